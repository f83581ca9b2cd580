package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/medsync/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s3Config() *config.Config {
	c := testConfig()
	c.S3Bucket = "vault"
	c.S3BaseEndpoint = "http://127.0.0.1:9000"
	c.S3AccessKey = "minioadmin"
	c.S3SecretKey = "minioadmin"
	return c
}

func TestNewS3Presigner_NoBucket(t *testing.T) {
	p, err := NewS3Presigner(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestS3Presigner_PresignPut(t *testing.T) {
	p, err := NewS3Presigner(context.Background(), s3Config())
	require.NoError(t, err)
	require.NotNil(t, p)

	url, err := p.PresignPut(context.Background(), "backups/dev-1/b.msb")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://127.0.0.1:9000/vault/backups/dev-1/b.msb?"), url)
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=900")
}

func TestNewS3Presigner_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	_, err := NewS3Presigner(context.Background(), s3Config())
	assert.EqualError(t, err, "no config")
}

func TestNewS3Presigner_AppliesEndpoint(t *testing.T) {
	orig := newS3ClientFromConfig
	t.Cleanup(func() { newS3ClientFromConfig = orig })

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return orig(cfg, optFns...)
	}

	_, err := NewS3Presigner(context.Background(), s3Config())
	require.NoError(t, err)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestS3Presigner_PresignError(t *testing.T) {
	orig := presignPutObject
	t.Cleanup(func() { presignPutObject = orig })
	presignPutObject = func(*s3.PresignClient, context.Context, *s3.PutObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("sign failed")
	}

	p, err := NewS3Presigner(context.Background(), s3Config())
	require.NoError(t, err)
	_, err = p.PresignPut(context.Background(), "k")
	assert.EqualError(t, err, "sign failed")
}
