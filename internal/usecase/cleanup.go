package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Store is a directory of backup artifacts that can be pruned by age.
type Store interface {
	GetOldFiles(ctx context.Context, cutoff time.Time) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Cleanup deletes dump files, archives and interrupted temp archives older
// than the retention window, left behind by crashed or failed runs.
type Cleanup struct {
	store         Store
	logger        Logger
	retentionDays int
	now           func() time.Time
}

func NewCleanup(store Store, logger Logger, retentionDays int) *Cleanup {
	return &Cleanup{
		store:         store,
		logger:        logger,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

func (uc *Cleanup) Execute(ctx context.Context) error {
	if uc.retentionDays <= 0 {
		return nil
	}

	uc.logger.Infof("Starting cleanup, retention: %d days", uc.retentionDays)

	cutoff := uc.now().AddDate(0, 0, -uc.retentionDays)
	files, err := uc.store.GetOldFiles(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list old files: %w", err)
	}

	deleted := 0
	for _, filename := range files {
		if !isBackupArtifact(filename) {
			continue
		}

		uc.logger.Infof("Deleting stale file: %s", filename)
		if err := uc.store.Delete(ctx, filename); err != nil {
			uc.logger.Errorf("Failed to delete %s: %v", filename, err)
		} else {
			deleted++
		}
	}

	uc.logger.Infof("Deleted %d stale file(s)", deleted)
	return nil
}

func isBackupArtifact(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".sql", ".zip":
		return true
	}
	// temp archives are named ".<archive>.zip.<random>"
	return strings.HasPrefix(name, ".") && strings.Contains(strings.ToLower(name), ".zip.")
}
