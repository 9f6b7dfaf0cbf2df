package filestorage

import (
	"context"
	"testing"

	"github.com/cozy-creator/vision-ai/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileStorage(t *testing.T) {
	cfg := &config.Config{OutputsDir: t.TempDir(), Host: "127.0.0.1", Port: 8881, Filesystem: config.FilesystemLocal}
	storage, err := NewFileStorage(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	url, err := storage.Upload(ctx, FileInfo{Name: "op-cat.png", Content: []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8881/file/op-cat.png", url)

	file, err := storage.GetFile(ctx, "op-cat.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), file.Content)

	require.NoError(t, storage.Delete(ctx, "op-cat.png"))
	_, err = storage.GetFile(ctx, "op-cat.png")
	assert.Error(t, err)
}

func TestLocalFileStorageRejectsTraversal(t *testing.T) {
	storage, err := NewLocalFileStorage(&config.Config{OutputsDir: t.TempDir()})
	require.NoError(t, err)

	_, err = storage.ResolveFile("../config.yaml")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = storage.Upload(context.Background(), FileInfo{Name: "a/b.png"})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestNewFileStorageUnknown(t *testing.T) {
	_, err := NewFileStorage(&config.Config{Filesystem: "ftp"})
	assert.Error(t, err)

	_, err = NewFileStorage(&config.Config{Filesystem: config.FilesystemS3})
	assert.Error(t, err)
}
