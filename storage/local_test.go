package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNewLocalStorage(t *testing.T) {
	tests := []struct {
		name      string
		baseDir   string
		wantError bool
	}{
		{name: "valid base directory", baseDir: t.TempDir()},
		{name: "creates non-existent directory", baseDir: filepath.Join(t.TempDir(), "new-dir")},
		{name: "empty base directory", baseDir: "", wantError: true},
		{name: "dot as base directory", baseDir: ".", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewLocalStorage(tt.baseDir)
			if tt.wantError {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.DirExists(t, s.BaseDir())
			assert.True(t, filepath.IsAbs(s.BaseDir()))
		})
	}
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	require.NoError(t, Put(ctx, s, "runs/abc/summary.txt", []byte("==== AUTOMATION REPORT SUMMARY ====")))

	data, err := Get(ctx, s, "runs/abc/summary.txt")
	require.NoError(t, err)
	assert.Equal(t, "==== AUTOMATION REPORT SUMMARY ====", string(data))

	exists, err := s.Exists(ctx, "runs/abc/summary.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	// Directories are not artifacts.
	exists, err = s.Exists(ctx, "runs/abc")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, Put(ctx, s, "runs/abc/summary.txt", []byte("replaced")))
	data, err = Get(ctx, s, "runs/abc/summary.txt")
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	require.NoError(t, s.Delete(ctx, "runs/abc/summary.txt"))
	assert.ErrorIs(t, s.Delete(ctx, "runs/abc/summary.txt"), ErrFileNotFound)

	_, err = s.Download(ctx, "runs/abc/summary.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestLocalStorage_FailedUploadLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	err := s.Upload(ctx, "runs/x/log.txt", io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)

	exists, err := s.Exists(ctx, "runs/x/log.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	entries, err := os.ReadDir(filepath.Join(s.BaseDir(), "runs", "x"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStorage_List(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	for _, p := range []string{"runs/b/summary.json", "runs/a/summary.txt", "runs/a/log.txt", "other/file.txt"} {
		require.NoError(t, Put(ctx, s, p, []byte(p)))
	}

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"other/file.txt", "runs/a/log.txt", "runs/a/summary.txt", "runs/b/summary.json"}, all)

	runA, err := s.List(ctx, "runs/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/a/log.txt", "runs/a/summary.txt"}, runA)

	none, err := s.List(ctx, "runs/zzz/")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.List(ctx, "../")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestLocalStorage_GetURL(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)
	require.NoError(t, Put(ctx, s, "runs/a/summary.txt", []byte("x")))

	u, err := s.GetURL(ctx, "runs/a/summary.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "/runs/a/summary.txt"))

	_, err = s.GetURL(ctx, "runs/a/missing.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLocalStorage_UploadLargeFile(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	large := bytes.Repeat([]byte("rateloop"), 1<<17)
	require.NoError(t, s.Upload(ctx, "big.bin", bytes.NewReader(large)))

	data, err := Get(ctx, s, "big.bin")
	require.NoError(t, err)
	assert.Equal(t, len(large), len(data))
}

func TestLocalStorage_PathTraversalPrevention(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	for _, p := range []string{"", "../escape.txt", "runs/../../escape.txt", "/etc/passwd", "..", "runs/.."} {
		t.Run(p, func(t *testing.T) {
			assert.ErrorIs(t, Put(ctx, s, p, []byte("x")), ErrInvalidPath)
			_, err := s.Download(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPath)
			_, err = s.Exists(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}
