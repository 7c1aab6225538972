// Package s3 implements storage.ObjectStore on any S3 compatible endpoint
// through minio-go.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sqlagent/sqlagent/internal/config"
	"github.com/sqlagent/sqlagent/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

func ConfigFromSettings(cfg config.ObjectStoreConfig) Config {
	return Config{
		Endpoint:         cfg.Endpoint,
		Region:           cfg.Region,
		Bucket:           cfg.Bucket,
		AccessKeyID:      cfg.AccessKeyID,
		SecretAccessKey:  cfg.SecretAccessKey,
		UseSSL:           cfg.UseSSL,
		Prefix:           cfg.Prefix,
		AutoCreateBucket: cfg.AutoCreateBucket,
	}
}

type client interface {
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket, region string) error
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

type Store struct {
	client client
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewWithClient(cfg.Bucket, cfg.Prefix, mc)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func NewWithClient(bucket, prefix string, c client) (*Store, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	return &Store{client: c, bucket: strings.TrimSpace(bucket), prefix: cleanPrefix(prefix)}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	normalized, err := s.normalizeKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.client.Put(ctx, s.bucket, normalized, body, size, opts)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put object %q: %w", normalized, err)
	}
	// Callers address objects without the store prefix.
	info.Key = key
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	normalized, err := s.normalizeKey(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Get(ctx, s.bucket, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object %q: %w", normalized, err)
	}
	return reader, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	normalized, err := s.normalizeKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.client.Stat(ctx, s.bucket, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.ObjectInfo{}, storage.ErrObjectNotFound
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat object %q: %w", normalized, err)
	}
	info.Key = key
	return info, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	normalized, err := s.normalizeKey(key)
	if err != nil {
		return err
	}
	if err := s.client.Delete(ctx, s.bucket, normalized); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("delete object %q: %w", normalized, err)
	}
	return nil
}

func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	normalized, err := s.normalizeKey(key)
	if err != nil {
		return "", err
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	link, err := s.client.PresignGet(ctx, s.bucket, normalized, expiry)
	if err != nil {
		return "", fmt.Errorf("presign object %q: %w", normalized, err)
	}
	return link, nil
}

// HealthCheck reports whether the configured bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.CreateBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return path.Join(s.prefix, cleaned), nil
}

func cleanPrefix(prefix string) string {
	prefix = path.Clean(strings.TrimSpace(strings.TrimPrefix(prefix, "/")))
	if prefix == "." || prefix == "/" {
		return ""
	}
	return prefix
}

func newMinioClient(cfg Config) (*minioClient, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioClient{client: mc}, nil
}

// parseEndpoint accepts either host:port or a URL; an https URL forces TLS.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint host is required")
	}
	return parsed.Host, useSSL || parsed.Scheme == "https", nil
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	uploaded, err := m.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return storage.ObjectInfo{}, mapMinioErr(err)
	}
	return storage.ObjectInfo{Key: uploaded.Key, Size: uploaded.Size, ETag: uploaded.ETag, LastModified: uploaded.LastModified}, nil
}

func (m *minioClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

func (m *minioClient) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	obj, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, mapMinioErr(err)
	}
	return storage.ObjectInfo{Key: obj.Key, Size: obj.Size, ETag: obj.ETag, LastModified: obj.LastModified}, nil
}

func (m *minioClient) Delete(ctx context.Context, bucket, key string) error {
	return mapMinioErr(m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (m *minioClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	return exists, mapMinioErr(err)
}

func (m *minioClient) CreateBucket(ctx context.Context, bucket, region string) error {
	return mapMinioErr(m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

func (m *minioClient) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	link, err := m.client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", mapMinioErr(err)
	}
	return link.String(), nil
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return storage.ErrObjectNotFound
		}
	}
	return err
}
