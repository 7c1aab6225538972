// Package storage is the object store used for conversation exports and for
// downloading warehouse datasets.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
	URL          string    `json:"url,omitempty"`
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// URLSigner is implemented by stores that can hand out time-limited download
// links.
type URLSigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
