package filestorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cozy-creator/vision-ai/internal/config"
)

type LocalFileStorage struct {
	dir     string
	baseURL string
}

func NewLocalFileStorage(cfg *config.Config) (*LocalFileStorage, error) {
	return &LocalFileStorage{
		dir:     cfg.OutputsDir,
		baseURL: fmt.Sprintf("http://%s:%d/file", cfg.Host, cfg.Port),
	}, nil
}

func (s *LocalFileStorage) Upload(ctx context.Context, file FileInfo) (string, error) {
	name, err := cleanName(file.Name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, os.ModePerm); err != nil {
		return "", err
	}

	dest := filepath.Join(s.dir, name)
	if err := os.WriteFile(dest, file.Content, 0o644); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s", s.baseURL, name), nil
}

func (s *LocalFileStorage) GetFile(ctx context.Context, name string) (*FileInfo, error) {
	path, err := s.ResolveFile(name)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return &FileInfo{Name: name, Content: content}, nil
}

func (s *LocalFileStorage) Delete(ctx context.Context, name string) error {
	path, err := s.ResolveFile(name)
	if err != nil {
		return err
	}

	return os.Remove(path)
}

// ResolveFile returns the path of an existing file in the storage directory.
func (s *LocalFileStorage) ResolveFile(name string) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}

	return path, nil
}
