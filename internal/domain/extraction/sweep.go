package extraction

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"
)

// Sweep removes scratch directories whose newest file is older than
// olderThan and returns the import IDs it removed. A directory still being
// written has fresh files and is kept.
func (e *Extractor) Sweep(olderThan time.Duration) ([]string, error) {
	entries, err := os.ReadDir(e.scratchDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list scratch directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	var removed []string

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(e.scratchDir, entry.Name())

		newest, err := newestModTime(dir)
		if err != nil {
			e.logger.Warn("Failed to inspect scratch directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		if newest.After(cutoff) {
			continue
		}

		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("Failed to remove scratch directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed = append(removed, entry.Name())
	}

	if len(removed) > 0 {
		e.logger.Info("Swept stale scratch directories", zap.Int("count", len(removed)))
	}
	return removed, nil
}

func newestModTime(root string) (time.Time, error) {
	var (
		mu     sync.Mutex
		newest time.Time
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		mu.Lock()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		mu.Unlock()
		return nil
	})
	return newest, err
}
