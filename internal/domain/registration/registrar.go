package registration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/GriffinCanCode/applibrary/internal/domain/bundle"
	"github.com/GriffinCanCode/applibrary/internal/shared/paths"
	"github.com/GriffinCanCode/applibrary/internal/shared/types"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"
)

// Store is the catalog persistence the registrar commits to
type Store interface {
	Save(ctx context.Context, entry *types.CatalogEntry) error
	Delete(ctx context.Context, id string) error
}

// Registrar turns an expanded bundle into a committed catalog entry.
type Registrar struct {
	store   Store
	appsDir string
	logger  *zap.Logger
}

// NewRegistrar creates a registrar installing bundles under appsDir
func NewRegistrar(store Store, appsDir string, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{
		store:   store,
		appsDir: appsDir,
		logger:  logger,
	}
}

// Register reads the bundle's metadata, moves it to its permanent location
// and commits the entry. Either the entry and its installed bundle both
// exist afterwards, or neither does and the bundle is back at bundlePath.
func (r *Registrar) Register(ctx context.Context, bundlePath, importID, sourceLocation string) (*types.CatalogEntry, error) {
	if err := paths.ValidateComponent(importID); err != nil {
		return nil, fmt.Errorf("invalid import ID: %w", err)
	}

	info, err := bundle.ReadInfo(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle metadata: %w", err)
	}

	installDir := filepath.Join(r.appsDir, importID)
	dest := filepath.Join(installDir, info.DirName())

	if err := os.RemoveAll(installDir); err != nil {
		return nil, fmt.Errorf("failed to prepare install directory: %w", err)
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create install directory: %w", err)
	}
	if err := os.Rename(bundlePath, dest); err != nil {
		os.RemoveAll(installDir)
		return nil, fmt.Errorf("failed to move bundle: %w", err)
	}

	size, err := dirSize(dest)
	if err != nil {
		r.logger.Warn("Failed to measure bundle", zap.String("import_id", importID), zap.Error(err))
	}

	entry := &types.CatalogEntry{
		ID:               importID,
		Name:             info.Name,
		BundleIdentifier: info.BundleIdentifier,
		Version:          info.Version,
		VersionNumber:    info.VersionNumber,
		BundlePath:       dest,
		SourceLocation:   sourceLocation,
		Size:             size,
	}

	if err := r.store.Save(ctx, entry); err != nil {
		r.rollback(importID, installDir, dest, bundlePath)
		return nil, fmt.Errorf("failed to commit catalog entry: %w", err)
	}

	r.logger.Info("Bundle registered",
		zap.String("import_id", importID),
		zap.String("name", entry.Name),
		zap.String("bundle_identifier", entry.BundleIdentifier),
		zap.Int("version", entry.VersionNumber))
	return entry, nil
}

// rollback returns the bundle to where it was found so the caller's cleanup
// policy decides its fate, then drops the install directory.
func (r *Registrar) rollback(importID, installDir, dest, bundlePath string) {
	log := r.logger.With(zap.String("import_id", importID))
	if err := os.Rename(dest, bundlePath); err != nil {
		log.Error("Failed to restore bundle", zap.String("bundle", bundlePath), zap.Error(err))
	}
	if err := os.RemoveAll(installDir); err != nil {
		log.Error("Failed to roll back installed bundle", zap.Error(err))
	}
}

// Unregister deletes an entry and its installed bundle.
func (r *Registrar) Unregister(ctx context.Context, id string) error {
	if err := paths.ValidateComponent(id); err != nil {
		return fmt.Errorf("invalid catalog ID: %w", err)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(r.appsDir, id)); err != nil {
		return fmt.Errorf("failed to remove installed bundle: %w", err)
	}
	return nil
}

func dirSize(root string) (int64, error) {
	var total atomic.Int64

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total.Add(info.Size())
		return nil
	})
	return total.Load(), err
}
