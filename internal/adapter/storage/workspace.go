package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Workspace is the local directory holding a run's transient dump files and archive.
type Workspace struct {
	basePath string
}

// NewWorkspace creates basePath with 0755 permissions if it does not exist.
func NewWorkspace(basePath string) (*Workspace, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Workspace{basePath: basePath}, nil
}

func (w *Workspace) GetPath(filename string) string {
	return filepath.Join(w.basePath, filename)
}

// Remove deletes path. A file that is already gone is not an error.
func (w *Workspace) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (w *Workspace) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(w.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}

	return files, nil
}

func (w *Workspace) Delete(ctx context.Context, name string) error {
	return w.Remove(w.GetPath(name))
}

// GetOldFiles lists regular files last modified before cutoffTime.
func (w *Workspace) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	entries, err := os.ReadDir(w.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var oldFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to get file info for %s: %w", entry.Name(), err)
		}
		if info.ModTime().Before(cutoffTime) {
			oldFiles = append(oldFiles, entry.Name())
		}
	}

	return oldFiles, nil
}
