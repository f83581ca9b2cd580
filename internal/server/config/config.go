// Package config handles configuration for the authority server: defaults,
// an optional JSON file, then command-line flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/spf13/pflag"
)

// Config holds runtime settings for the authority server.
//
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps everything in memory.
//   - SecretKey: HMAC secret for signing access tokens (HS256).
//   - DeviceSecret: the enrollment secret every workstation logs in with.
//   - ReferenceFile: JSON file of reference data loaded at startup.
//   - S3*: object storage for backups. An empty bucket disables presigning.
type Config struct {
	EndpointAddrGRPC            string
	DatabaseDSN                 string
	SecretKey                   string
	AccessTokenValidityDuration time.Duration
	DeviceSecret                string
	ReferenceFile               string

	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string

	LogFile  string
	LogLevel string
	LogJSON  bool
}

// LoadDefaults populates c with development defaults. They are insecure
// and must be overridden in production.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.SecretKey = "secretKey"
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.DeviceSecret = "enrollment-secret"
	c.S3Region = "us-east-1"
	c.LogLevel = "info"
}

// Load builds a Config from defaults, the JSON file named by the config
// flag, then the flags in fs that were set.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	path, _ := fs.GetString(FlagConfig)
	if err := parseJson(cfg, path); err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, fs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) LogOptions() logging.Options {
	return logging.Options{Level: c.LogLevel, File: c.LogFile, JSON: c.LogJSON}
}
