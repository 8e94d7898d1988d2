package storage

import (
	"context"
	"io"
)

// Storage defines the object storage operations used by the statement exporter
type Storage interface {
	// Put stores an object at key, replacing any previous content.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns the public URL for a key.
	URL(key string) string
}

// Config holds S3-compatible connection settings.
// Set AccountID for Cloudflare R2, or Endpoint for MinIO and other S3 APIs.
// Both empty means AWS S3 itself.
type Config struct {
	AccountID       string
	Endpoint        string
	Region          string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	PublicURL       string
	UsePathStyle    bool
}

// Enabled reports whether enough settings are present to build a client.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.AccessKeySecret != ""
}
