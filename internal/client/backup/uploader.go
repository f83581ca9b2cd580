package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/medsync/internal/client/client"
	"github.com/dmitrijs2005/medsync/internal/netx"
)

// Uploader stores a sealed backup under name and reports where it went.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// DirUploader writes backups into a local directory.
type DirUploader struct {
	Dir string
}

func (u DirUploader) Upload(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(u.Dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", u.Dir, err)
	}
	path := filepath.Join(u.Dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// PresignedUploader asks the authority for a presigned PUT URL and uploads
// the backup there.
type PresignedUploader struct {
	Remote client.Remote
}

func (u PresignedUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	p, err := u.Remote.PresignBackup(ctx, name)
	if err != nil {
		return "", err
	}
	if err := netx.UploadToPresignedURL(ctx, p.URL, data); err != nil {
		return "", err
	}
	return p.Key, nil
}

// S3Config points at an S3-compatible bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// S3Uploader talks to the bucket directly with static credentials.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Uploader(ctx context.Context, c S3Config) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	cl := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = true
	})
	return &S3Uploader{client: cl, bucket: c.Bucket, prefix: c.Prefix}, nil
}

func (u *S3Uploader) key(name string) string { return u.prefix + name }

func (u *S3Uploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	key := u.key(name)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

// Download fetches a backup previously stored under name.
func (u *S3Uploader) Download(ctx context.Context, name string) ([]byte, error) {
	out, err := u.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.key(name)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
