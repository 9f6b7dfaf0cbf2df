// Package outputs maintains the directory annotated images are written to.
package outputs

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/cozy-creator/vision-ai/internal/utils/imageutil"
)

type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

func (m *Manager) Dir() string {
	return m.dir
}

// List returns the names of generated images, sorted. Other files are ignored.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && imageutil.IsImageFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	return names, nil
}

func (m *Manager) Count() (int, error) {
	names, err := m.List()
	return len(names), err
}

// Clean deletes every generated image and returns how many were removed.
func (m *Manager) Clean() (int, error) {
	names, err := m.List()
	if err != nil {
		return 0, err
	}

	var (
		removed int
		errs    []error
	)
	for _, name := range names {
		if err := os.Remove(filepath.Join(m.dir, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}
