package config

import (
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/retry"
	"github.com/dmitrijs2005/medsync/internal/client/services"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/spf13/pflag"
)

// Config holds runtime settings for the medsync client.
//
// DeviceID may be left empty, in which case the id persisted in the local
// database is used. S3Bucket empty means backups go through the server's
// presigned URLs, or to BackupDir when that is set.
type Config struct {
	DatabasePath        string
	ServerEndpointAddr  string
	DeviceID            string
	DeviceSecret        string
	SyncInterval        time.Duration
	OnlineCheckInterval time.Duration
	Workers             int

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	StatusAddr string

	LogFile  string
	LogLevel string
	LogJSON  bool

	BackupDir      string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "data/medsync.db"
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DeviceSecret = "enrollment-secret"
	c.SyncInterval = 30 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.Workers = services.DefaultWorkers
	c.RetryMaxAttempts = retry.DefaultMaxAttempts
	c.RetryBaseDelay = retry.DefaultBaseDelay
	c.RetryMaxDelay = retry.DefaultMaxDelay
	c.StatusAddr = "127.0.0.1:8089"
	c.LogLevel = "info"
	c.S3Region = "us-east-1"
}

// Load builds a Config from defaults, the JSON file named by the config
// flag, then the flags in fs that were set. fs must have been set up with
// RegisterFlags and parsed.
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

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.RetryMaxAttempts, BaseDelay: c.RetryBaseDelay, MaxDelay: c.RetryMaxDelay}
}

func (c *Config) LogOptions() logging.Options {
	return logging.Options{Level: c.LogLevel, File: c.LogFile, JSON: c.LogJSON}
}
