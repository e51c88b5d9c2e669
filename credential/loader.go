package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hairizuanbinnoorazman/rateloop/logger"
)

// EnvVar holds inline JSON credentials and takes precedence over files.
const EnvVar = "CREDENTIALS_JSON"

// SealedExt marks a file produced by Seal.
const SealedExt = ".sealed"

// sampleCredentials is written when the credentials file is missing.
const sampleCredentials = `{
  "user1": {
    "username": "testuser1@example.com",
    "password": "password1"
  },
  "user2": {
    "username": "testuser2@example.com",
    "password": "password2"
  }
}
`

// Options selects where credentials come from.
type Options struct {
	// Inline JSON, usually the value of CREDENTIALS_JSON.
	Inline string

	// Path of a .json, .yaml/.yml or .sealed file.
	Path string

	// Passphrase opens sealed files.
	Passphrase string

	// CreateSample writes a sample file when Path does not exist.
	CreateSample bool
}

// Load returns the credentials described by opts in source order.
func Load(ctx context.Context, opts Options, log logger.Logger) ([]Credential, error) {
	var (
		creds []Credential
		err   error
	)

	if strings.TrimSpace(opts.Inline) != "" {
		log.Info(ctx, "using credentials from environment", map[string]interface{}{
			"variable": EnvVar,
		})
		creds, err = ParseJSON([]byte(opts.Inline))
	} else {
		creds, err = loadFile(ctx, opts, log)
	}
	if err != nil {
		return nil, err
	}

	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	log.Info(ctx, "loaded credentials", map[string]interface{}{
		"count": len(creds),
	})
	return creds, nil
}

func loadFile(ctx context.Context, opts Options, log logger.Logger) ([]Credential, error) {
	if opts.Path == "" {
		return nil, ErrNoCredentials
	}

	data, err := os.ReadFile(opts.Path)
	if errors.Is(err, fs.ErrNotExist) {
		if !opts.CreateSample {
			return nil, fmt.Errorf("%w: %s not found", ErrNoCredentials, opts.Path)
		}
		log.Warn(ctx, "credentials file not found, creating a sample file", map[string]interface{}{
			"path": opts.Path,
		})
		if err := WriteSample(opts.Path); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w at %s, update it with real credentials and run again", ErrSampleCreated, opts.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	return parseFile(opts.Path, data, opts.Passphrase)
}

// parseFile picks the format from the file extension.
func parseFile(path string, data []byte, passphrase string) ([]Credential, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case SealedExt:
		plaintext, err := Open(data, passphrase)
		if err != nil {
			return nil, err
		}
		return parseAny(plaintext)
	default:
		return ParseJSON(data)
	}
}

// parseAny accepts either JSON or YAML, as sealed files may wrap both.
func parseAny(data []byte) ([]Credential, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}

// WriteSample writes a placeholder credentials file at path.
func WriteSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleCredentials), 0600); err != nil {
		return fmt.Errorf("failed to write sample credentials: %w", err)
	}
	return nil
}
