package config

import (
	"time"

	"github.com/spf13/pflag"
)

const (
	FlagConfig        = "config"
	flagAddr          = "addr"
	flagDSN           = "dsn"
	flagSecretKey     = "secret-key"
	flagTokenValidity = "token-validity"
	flagDeviceSecret  = "device-secret"
	flagReferenceFile = "reference"
	flagS3Bucket      = "s3-bucket"
	flagS3Region      = "s3-region"
	flagS3Endpoint    = "s3-endpoint"
	flagS3AccessKey   = "s3-access-key"
	flagS3SecretKey   = "s3-secret-key"
	flagLogFile       = "log-file"
	flagLogLevel      = "log-level"
	flagLogJSON       = "log-json"
)

func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(FlagConfig, "c", "", "path to JSON config file")
	fs.StringP(flagAddr, "a", d.EndpointAddrGRPC, "address and port to run server")
	fs.StringP(flagDSN, "d", d.DatabaseDSN, "PostgreSQL DSN (empty keeps data in memory)")
	fs.StringP(flagSecretKey, "s", d.SecretKey, "access token signing key")
	fs.DurationP(flagTokenValidity, "t", d.AccessTokenValidityDuration, "access token validity")
	fs.String(flagDeviceSecret, d.DeviceSecret, "device enrollment secret")
	fs.String(flagReferenceFile, d.ReferenceFile, "JSON file with reference data to load")
	fs.StringP(flagS3Bucket, "b", d.S3Bucket, "S3 bucket for backups (empty disables)")
	fs.StringP(flagS3Region, "g", d.S3Region, "S3 region")
	fs.StringP(flagS3Endpoint, "e", d.S3BaseEndpoint, "S3 base endpoint")
	fs.StringP(flagS3AccessKey, "u", d.S3AccessKey, "S3 access key")
	fs.StringP(flagS3SecretKey, "p", d.S3SecretKey, "S3 secret key")
	fs.String(flagLogFile, d.LogFile, "rotating log file (default stderr)")
	fs.String(flagLogLevel, d.LogLevel, "log level: debug, info, warn, error")
	fs.Bool(flagLogJSON, d.LogJSON, "log as JSON")
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}

	str(flagAddr, &cfg.EndpointAddrGRPC)
	str(flagDSN, &cfg.DatabaseDSN)
	str(flagSecretKey, &cfg.SecretKey)
	if err == nil && fs.Changed(flagTokenValidity) {
		var d time.Duration
		d, err = fs.GetDuration(flagTokenValidity)
		cfg.AccessTokenValidityDuration = d
	}
	str(flagDeviceSecret, &cfg.DeviceSecret)
	str(flagReferenceFile, &cfg.ReferenceFile)
	str(flagS3Bucket, &cfg.S3Bucket)
	str(flagS3Region, &cfg.S3Region)
	str(flagS3Endpoint, &cfg.S3BaseEndpoint)
	str(flagS3AccessKey, &cfg.S3AccessKey)
	str(flagS3SecretKey, &cfg.S3SecretKey)
	str(flagLogFile, &cfg.LogFile)
	str(flagLogLevel, &cfg.LogLevel)
	if err == nil && fs.Changed(flagLogJSON) {
		cfg.LogJSON, err = fs.GetBool(flagLogJSON)
	}
	return err
}
