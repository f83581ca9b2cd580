package config

import (
	"time"

	"github.com/spf13/pflag"
)

const (
	FlagConfig         = "config"
	flagDatabase       = "db"
	flagAddr           = "addr"
	flagDeviceID       = "device-id"
	flagDeviceSecret   = "device-secret"
	flagSyncInterval   = "sync-interval"
	flagOnlineInterval = "online-interval"
	flagWorkers        = "workers"
	flagRetryMax       = "retry-max-attempts"
	flagRetryBase      = "retry-base-delay"
	flagRetryMaxDelay  = "retry-max-delay"
	flagStatusAddr     = "status-addr"
	flagLogFile        = "log-file"
	flagLogLevel       = "log-level"
	flagLogJSON        = "log-json"
	flagBackupDir      = "backup-dir"
	flagS3Bucket       = "s3-bucket"
	flagS3Region       = "s3-region"
	flagS3Endpoint     = "s3-endpoint"
	flagS3AccessKey    = "s3-access-key"
	flagS3SecretKey    = "s3-secret-key"
)

// RegisterFlags defines the client flags on fs with the defaults as shown
// values.
func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(FlagConfig, "c", "", "path to JSON config file")
	fs.StringP(flagDatabase, "d", d.DatabasePath, "local database file")
	fs.StringP(flagAddr, "a", d.ServerEndpointAddr, "address and port of the sync server")
	fs.String(flagDeviceID, d.DeviceID, "device id (defaults to the one stored locally)")
	fs.String(flagDeviceSecret, d.DeviceSecret, "device enrollment secret")
	fs.Duration(flagSyncInterval, d.SyncInterval, "interval between sync passes")
	fs.DurationP(flagOnlineInterval, "i", d.OnlineCheckInterval, "online check interval")
	fs.Int(flagWorkers, d.Workers, "entities replayed concurrently")
	fs.Int(flagRetryMax, d.RetryMaxAttempts, "attempts before a queue item is dead-lettered (0 = never)")
	fs.Duration(flagRetryBase, d.RetryBaseDelay, "first retry delay")
	fs.Duration(flagRetryMaxDelay, d.RetryMaxDelay, "retry delay cap")
	fs.String(flagStatusAddr, d.StatusAddr, "status server listen address (empty disables)")
	fs.String(flagLogFile, d.LogFile, "rotating log file (default stderr)")
	fs.String(flagLogLevel, d.LogLevel, "log level: debug, info, warn, error")
	fs.Bool(flagLogJSON, d.LogJSON, "log as JSON")
	fs.String(flagBackupDir, d.BackupDir, "write backups to this directory instead of uploading")
	fs.String(flagS3Bucket, d.S3Bucket, "S3 bucket for direct backup upload")
	fs.String(flagS3Region, d.S3Region, "S3 region")
	fs.String(flagS3Endpoint, d.S3BaseEndpoint, "S3 base endpoint")
	fs.String(flagS3AccessKey, d.S3AccessKey, "S3 access key")
	fs.String(flagS3SecretKey, d.S3SecretKey, "S3 secret key")
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	dur := func(name string, dst *time.Duration) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetDuration(name)
		}
	}
	num := func(name string, dst *int) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetInt(name)
		}
	}

	str(flagDatabase, &cfg.DatabasePath)
	str(flagAddr, &cfg.ServerEndpointAddr)
	str(flagDeviceID, &cfg.DeviceID)
	str(flagDeviceSecret, &cfg.DeviceSecret)
	dur(flagSyncInterval, &cfg.SyncInterval)
	dur(flagOnlineInterval, &cfg.OnlineCheckInterval)
	num(flagWorkers, &cfg.Workers)
	num(flagRetryMax, &cfg.RetryMaxAttempts)
	dur(flagRetryBase, &cfg.RetryBaseDelay)
	dur(flagRetryMaxDelay, &cfg.RetryMaxDelay)
	str(flagStatusAddr, &cfg.StatusAddr)
	str(flagLogFile, &cfg.LogFile)
	str(flagLogLevel, &cfg.LogLevel)
	str(flagBackupDir, &cfg.BackupDir)
	str(flagS3Bucket, &cfg.S3Bucket)
	str(flagS3Region, &cfg.S3Region)
	str(flagS3Endpoint, &cfg.S3BaseEndpoint)
	str(flagS3AccessKey, &cfg.S3AccessKey)
	str(flagS3SecretKey, &cfg.S3SecretKey)
	if err == nil && fs.Changed(flagLogJSON) {
		cfg.LogJSON, err = fs.GetBool(flagLogJSON)
	}
	return err
}
