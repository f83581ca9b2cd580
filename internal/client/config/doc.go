// Package config loads runtime configuration for the medsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c/--config.
//  3. Command-line flags that were set explicitly.
//
// # JSON schema
//
// Intervals use timex.Duration, so they can be strings like "30s" or integer
// nanoseconds. Missing keys keep the default:
//
//	{
//	  "database_path": "data/medsync.db",
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "sync_interval": "30s",
//	  "online_check_interval": "3s",
//	  "workers": 4
//	}
package config
