package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"scribe/internal/config"
)

// StagedObject describes a payload staged in external storage: a retrievable
// URL for the provider and a deletable path for cleanup.
type StagedObject struct {
	URL  string
	Path string
}

// Stager uploads payloads to external storage ahead of job submission.
type Stager interface {
	Stage(ctx context.Context, key string, r io.Reader, size int64, contentType string) (StagedObject, error)
	Remove(ctx context.Context, objectPath string) error
}

// ObjectStore wraps MinIO/S3 interactions for staged audio payloads.
type ObjectStore struct {
	client    *minio.Client
	bucket    string
	region    string
	urlExpiry time.Duration
}

var _ Stager = (*ObjectStore)(nil)

// New creates a MinIO client from the staging configuration.
func New(cfg *config.Config) (*ObjectStore, error) {
	client, err := minio.New(cfg.Staging.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Staging.AccessKey, cfg.Staging.SecretKey, ""),
		Secure: cfg.Staging.UseSSL,
		Region: cfg.Staging.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &ObjectStore{
		client:    client,
		bucket:    cfg.Staging.Bucket,
		region:    cfg.Staging.Region,
		urlExpiry: time.Duration(cfg.Staging.URLExpiryMinutes) * time.Minute,
	}, nil
}

// EnsureBucket makes sure the staging bucket exists before use.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Stage uploads the payload and returns a presigned URL plus the deletable
// object path.
func (s *ObjectStore) Stage(ctx context.Context, key string, r io.Reader, size int64, contentType string) (StagedObject, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, opts); err != nil {
		return StagedObject{}, fmt.Errorf("upload staged object: %w", err)
	}

	signed, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlExpiry, url.Values{})
	if err != nil {
		return StagedObject{}, fmt.Errorf("presign staged object: %w", err)
	}

	return StagedObject{URL: signed.String(), Path: key}, nil
}

// Remove deletes a staged object. Already-gone objects count as success so
// the call stays idempotent.
func (s *ObjectStore) Remove(ctx context.Context, objectPath string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{})
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return nil
	}
	return fmt.Errorf("remove staged object: %w", err)
}

// StagingKey builds the object key for a session's payload.
func StagingKey(sessionID, filename string) string {
	base := path.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == "/" {
		base = "audio"
	}
	return path.Join("staging", sessionID, sanitizeKeyPart(base))
}

func sanitizeKeyPart(part string) string {
	var b strings.Builder
	b.Grow(len(part))
	for _, r := range part {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
