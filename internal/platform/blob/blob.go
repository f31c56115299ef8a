// Package blob stores opaque documents by key, backed by a local directory
// or an S3 bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no object exists for the key.
var ErrNotFound = errors.New("blob not found")

// Store persists objects by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a backend.
type Config struct {
	Driver   string `env:"DRAINWIZ_BLOB_DRIVER" envDefault:"local"`
	Dir      string `env:"DRAINWIZ_BLOB_DIR" envDefault:"data/blobs"`
	Bucket   string `env:"DRAINWIZ_BLOB_S3_BUCKET"`
	Prefix   string `env:"DRAINWIZ_BLOB_S3_PREFIX" envDefault:"drainwiz"`
	Region   string `env:"DRAINWIZ_BLOB_S3_REGION" envDefault:"us-east-1"`
	Endpoint string `env:"DRAINWIZ_BLOB_S3_ENDPOINT"`
}

// Open builds the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "local":
		return NewLocal(cfg.Dir)
	case "s3":
		return NewS3(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("blob key is required")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid blob key %q", key)
		}
	}
	return key, nil
}
