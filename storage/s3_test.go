package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s3Config() Config {
	return Config{
		Type:            "s3",
		Bucket:          "rateloop-artifacts",
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	}
}

func TestNewS3Storage(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		wantError bool
	}{
		{name: "valid bucket and region", modify: func(c *Config) {}},
		{name: "empty bucket", modify: func(c *Config) { c.Bucket = "" }, wantError: true},
		{name: "empty region", modify: func(c *Config) { c.Region = "" }, wantError: true},
		{name: "escaping prefix", modify: func(c *Config) { c.Prefix = "../up" }, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := s3Config()
			tt.modify(&cfg)
			s, err := NewS3Storage(context.Background(), cfg)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, cfg.Bucket, s.bucket)
			assert.Equal(t, DefaultPresignExpiry, s.presignExpiration)
		})
	}
}

func TestS3Storage_Keys(t *testing.T) {
	cfg := s3Config()
	cfg.Prefix = "/team-a/"
	_, err := NewS3Storage(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrInvalidPath)

	cfg.Prefix = "team-a/rateloop"
	s, err := NewS3Storage(context.Background(), cfg)
	require.NoError(t, err)

	key, err := s.key("runs/abc/summary.txt")
	require.NoError(t, err)
	assert.Equal(t, "team-a/rateloop/runs/abc/summary.txt", key)

	_, err = s.key("../abc")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestS3Storage_PathValidation(t *testing.T) {
	s, err := NewS3Storage(context.Background(), s3Config())
	require.NoError(t, err)
	ctx := context.Background()

	for _, p := range []string{"", "../x", "/abs/key"} {
		t.Run(p, func(t *testing.T) {
			assert.ErrorIs(t, s.Upload(ctx, p, strings.NewReader("x")), ErrInvalidPath)
			_, err := s.Download(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPath)
			assert.ErrorIs(t, s.Delete(ctx, p), ErrInvalidPath)
			_, err = s.Exists(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPath)
			_, err = s.GetURL(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestS3Storage_PresignUsesCustomEndpoint(t *testing.T) {
	cfg := s3Config()
	cfg.Endpoint = "http://localhost:9000"
	cfg.PresignExpiry = 5 * time.Minute
	s, err := NewS3Storage(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.presignExpiration)

	key, err := s.key("runs/abc/summary.txt")
	require.NoError(t, err)

	req, err := s.presignClient.PresignGetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(req.URL, "http://localhost:9000/rateloop-artifacts/runs/abc/summary.txt"), req.URL)
	assert.Contains(t, req.URL, "X-Amz-Signature=")
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantError bool
	}{
		{name: "local storage", cfg: Config{Type: "local", BaseDir: t.TempDir()}},
		{name: "local storage uppercase", cfg: Config{Type: "LOCAL", BaseDir: t.TempDir()}},
		{name: "empty type defaults to local", cfg: Config{BaseDir: t.TempDir()}},
		{name: "local storage missing base_dir", cfg: Config{Type: "local"}, wantError: true},
		{name: "s3 storage", cfg: s3Config()},
		{name: "s3 storage missing bucket", cfg: Config{Type: "s3", Region: "us-east-1"}, wantError: true},
		{name: "unsupported storage type", cfg: Config{Type: "gcs"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(context.Background(), tt.cfg)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestIsS3NotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil},
		{name: "generic error", err: context.Canceled},
		{name: "no such key", err: &smithy.GenericAPIError{Code: "NoSuchKey"}, want: true},
		{name: "head not found", err: &smithy.GenericAPIError{Code: "NotFound"}, want: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isS3NotFoundError(tt.err))
		})
	}
}
