package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/medsync/internal/timex"
)

// JsonConfig is the on-disk form of Config. Pointer fields tell an absent
// key from a zero value.
type JsonConfig struct {
	DatabasePath        *string         `json:"database_path"`
	ServerEndpointAddr  *string         `json:"server_endpoint_addr"`
	DeviceID            *string         `json:"device_id"`
	DeviceSecret        *string         `json:"device_secret"`
	SyncInterval        *timex.Duration `json:"sync_interval"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	Workers             *int            `json:"workers"`
	RetryMaxAttempts    *int            `json:"retry_max_attempts"`
	RetryBaseDelay      *timex.Duration `json:"retry_base_delay"`
	RetryMaxDelay       *timex.Duration `json:"retry_max_delay"`
	StatusAddr          *string         `json:"status_addr"`
	LogFile             *string         `json:"log_file"`
	LogLevel            *string         `json:"log_level"`
	LogJSON             *bool           `json:"log_json"`
	BackupDir           *string         `json:"backup_dir"`
	S3Bucket            *string         `json:"s3_bucket"`
	S3Region            *string         `json:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint"`
	S3AccessKey         *string         `json:"s3_access_key"`
	S3SecretKey         *string         `json:"s3_secret_key"`
}

// parseJson overlays cfg with the keys present in the file at path. An empty
// path is a no-op.
func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	set(&cfg.DatabasePath, jc.DatabasePath)
	set(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	set(&cfg.DeviceID, jc.DeviceID)
	set(&cfg.DeviceSecret, jc.DeviceSecret)
	setDuration(&cfg.SyncInterval, jc.SyncInterval)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	set(&cfg.Workers, jc.Workers)
	set(&cfg.RetryMaxAttempts, jc.RetryMaxAttempts)
	setDuration(&cfg.RetryBaseDelay, jc.RetryBaseDelay)
	setDuration(&cfg.RetryMaxDelay, jc.RetryMaxDelay)
	set(&cfg.StatusAddr, jc.StatusAddr)
	set(&cfg.LogFile, jc.LogFile)
	set(&cfg.LogLevel, jc.LogLevel)
	set(&cfg.LogJSON, jc.LogJSON)
	set(&cfg.BackupDir, jc.BackupDir)
	set(&cfg.S3Bucket, jc.S3Bucket)
	set(&cfg.S3Region, jc.S3Region)
	set(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	set(&cfg.S3AccessKey, jc.S3AccessKey)
	set(&cfg.S3SecretKey, jc.S3SecretKey)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
