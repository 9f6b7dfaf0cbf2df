package filestorage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cozy-creator/vision-ai/internal/config"
)

var ErrInvalidName = errors.New("invalid file name")

type FileInfo struct {
	Name    string
	Content []byte
}

// FileStorage keeps generated images somewhere they can be served from.
type FileStorage interface {
	Upload(ctx context.Context, file FileInfo) (string, error)
	GetFile(ctx context.Context, name string) (*FileInfo, error)
	Delete(ctx context.Context, name string) error
}

func NewFileStorage(cfg *config.Config) (FileStorage, error) {
	filesystem := strings.ToLower(cfg.Filesystem)
	switch filesystem {
	case "", config.FilesystemLocal:
		return NewLocalFileStorage(cfg)
	case config.FilesystemS3:
		return NewS3FileStorage(context.Background(), cfg)
	}

	return nil, fmt.Errorf("invalid filesystem type %s", cfg.Filesystem)
}

// cleanName rejects names that would escape the storage root.
func cleanName(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return name, nil
}
