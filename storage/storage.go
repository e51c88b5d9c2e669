// Package storage keeps run artifacts (summaries and logs) on the local
// filesystem or in S3.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrFileNotFound is returned when a requested artifact does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidPath is returned when a path is empty, absolute or escapes the root.
	ErrInvalidPath = errors.New("invalid path")
)

// BlobStorage stores artifacts under slash separated relative paths.
type BlobStorage interface {
	// Upload stores data from the reader at the specified path.
	Upload(ctx context.Context, path string, reader io.Reader) error

	// Download retrieves data from the specified path.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the data at the specified path.
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the specified path.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths stored under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// GetURL returns a URL for the data: file:// locally, presigned for S3.
	GetURL(ctx context.Context, path string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	// Type is "local" or "s3".
	Type string

	// BaseDir is the root directory of local storage.
	BaseDir string

	Bucket string
	Region string

	// Prefix is prepended to every S3 key.
	Prefix string

	// Endpoint overrides the S3 endpoint, e.g. for MinIO. Implies path-style addressing.
	Endpoint string

	// Static credentials; the default AWS credential chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string

	PresignExpiry time.Duration
}

// New creates a BlobStorage implementation based on configuration.
func New(ctx context.Context, cfg Config) (BlobStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "local", "":
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("base_dir is required for local storage")
		}
		return NewLocalStorage(cfg.BaseDir)

	case "s3":
		s3Storage, err := NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		return s3Storage, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// Put uploads data held in memory.
func Put(ctx context.Context, s BlobStorage, path string, data []byte) error {
	return s.Upload(ctx, path, bytes.NewReader(data))
}

// Get reads a whole artifact into memory.
func Get(ctx context.Context, s BlobStorage, path string) ([]byte, error) {
	rc, err := s.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// cleanKey normalises a relative artifact path to slash form and rejects
// empty, absolute and escaping paths.
func cleanKey(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}

	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: absolute paths not allowed", ErrInvalidPath)
	}

	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: path traversal detected", ErrInvalidPath)
	}
	return cleaned, nil
}

// cleanPrefix is cleanKey for list prefixes, where empty means everything.
func cleanPrefix(p string) (string, error) {
	if p == "" || p == "/" {
		return "", nil
	}
	trailing := strings.HasSuffix(p, "/")
	cleaned, err := cleanKey(p)
	if err != nil {
		return "", err
	}
	if trailing {
		cleaned += "/"
	}
	return cleaned, nil
}
