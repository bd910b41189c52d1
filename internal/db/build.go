package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/wesm/argh/internal/models"
	"go.uber.org/zap"
)

// ErrLocked is returned when another build holds the store lock
var ErrLocked = errors.New("store is locked by another build")

// Build writes a fresh store at path from one snapshot. The store is built
// next to path and only replaces it once the load has committed, so a failed
// build leaves any previous store untouched.
func Build(ctx context.Context, path string, snap *models.Snapshot, logger *zap.Logger) (models.LoadStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if snap == nil || snap.Empty() {
		return models.LoadStats{}, fmt.Errorf("%w: nothing to load into %s", models.ErrNoData, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return models.LoadStats{}, fmt.Errorf("%w: failed to create store directory: %v", models.ErrStore, err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return models.LoadStats{}, fmt.Errorf("%w: failed to lock %s: %v", models.ErrStore, path, err)
	}
	if !locked {
		return models.LoadStats{}, fmt.Errorf("%w: %w: %s", models.ErrStore, ErrLocked, path)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return models.LoadStats{}, fmt.Errorf("%w: failed to remove stale %s: %v", models.ErrStore, tmp, err)
	}

	stats, err := buildAt(ctx, tmp, snap)
	if err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("Failed to remove partial store", zap.String("path", tmp), zap.Error(rmErr))
		}
		return models.LoadStats{}, err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return models.LoadStats{}, fmt.Errorf("%w: failed to move store into place: %v", models.ErrStore, err)
	}

	logger.Info("Store built",
		zap.String("path", path),
		zap.Int("issues", stats.Issues),
		zap.Int("pull_requests", stats.PullRequests),
		zap.Int("labels", stats.Labels),
		zap.Int("issue_labels", stats.ResourceLabels),
		zap.Int("discussions", stats.Discussions))
	return stats, nil
}

func buildAt(ctx context.Context, path string, snap *models.Snapshot) (models.LoadStats, error) {
	dsn, err := fileDSN(path, "rwc")
	if err != nil {
		return models.LoadStats{}, fmt.Errorf("%w: %v", models.ErrStore, err)
	}
	store, err := New(dsn)
	if err != nil {
		return models.LoadStats{}, fmt.Errorf("%w: %v", models.ErrStore, err)
	}
	defer store.Close()

	if err := store.Initialize(ctx); err != nil {
		return models.LoadStats{}, err
	}
	return store.LoadSnapshot(ctx, snap)
}

// Open opens an existing store for reading
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no store at %s", models.ErrNoData, path)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStore, err)
	}
	dsn, err := fileDSN(path, "ro")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStore, err)
	}
	store, err := New(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStore, err)
	}
	return store, nil
}

// fileDSN turns a filesystem path into a SQLite URI. The path is escaped so
// that '#', '?' and '%' in directory names stay part of the file name.
func fileDSN(path, mode string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	u := &url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: url.Values{"mode": {mode}}.Encode(),
	}
	return u.String(), nil
}
