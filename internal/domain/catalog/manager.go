package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/applibrary/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/applibrary/internal/shared/paths"
	"github.com/GriffinCanCode/applibrary/internal/shared/types"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const recordExt = ".json"

// ErrNotFound is returned for unknown catalog IDs.
var ErrNotFound = errors.New("catalog entry not found")

// Manager handles catalog persistence. Records live as one JSON file per
// entry; an in-memory cache fronts the directory.
type Manager struct {
	entries sync.Map
	dir     string
	writeMu sync.Mutex
	logger  *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewManager creates a catalog manager storing records in dir
func NewManager(dir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// WithMetrics attaches a metrics collector
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Save commits an entry. The record becomes visible to readers only once it
// is fully written.
func (m *Manager) Save(ctx context.Context, entry *types.CatalogEntry) error {
	if entry == nil {
		return fmt.Errorf("catalog entry is required")
	}
	if err := paths.ValidateComponent(entry.ID); err != nil {
		return fmt.Errorf("invalid catalog ID %q: %w", entry.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := m.now()
	entry.UpdatedAt = now
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	data, err := sonic.ConfigStd.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog entry: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := writeAtomic(m.recordPath(entry.ID), data); err != nil {
		return fmt.Errorf("failed to write catalog entry: %w", err)
	}

	stored := *entry
	m.entries.Store(entry.ID, &stored)
	m.updateGauge()
	return nil
}

// Load returns a copy of the entry with the given ID
func (m *Manager) Load(ctx context.Context, id string) (*types.CatalogEntry, error) {
	if cached, ok := m.entries.Load(id); ok {
		entry := *cached.(*types.CatalogEntry)
		return &entry, nil
	}
	if err := paths.ValidateComponent(id); err != nil {
		return nil, ErrNotFound
	}

	entry, err := m.readRecord(id)
	if err != nil {
		return nil, err
	}
	m.entries.Store(id, entry)

	out := *entry
	return &out, nil
}

// List returns every entry, newest first
func (m *Manager) List(ctx context.Context) ([]*types.CatalogEntry, error) {
	files, err := os.ReadDir(m.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}

	for _, f := range files {
		name := f.Name()
		if f.IsDir() || filepath.Ext(name) != recordExt {
			continue
		}
		id := strings.TrimSuffix(name, recordExt)
		if _, ok := m.entries.Load(id); ok {
			continue
		}
		entry, err := m.readRecord(id)
		if err != nil {
			m.logger.Warn("Skipping unreadable catalog record", zap.String("id", id), zap.Error(err))
			continue
		}
		m.entries.Store(id, entry)
	}

	var entries []*types.CatalogEntry
	m.entries.Range(func(_, value interface{}) bool {
		entry := *value.(*types.CatalogEntry)
		entries = append(entries, &entry)
		return true
	})

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	m.updateGauge()
	return entries, nil
}

// ListSummaries lists the listing view of every entry
func (m *Manager) ListSummaries(ctx context.Context) ([]types.CatalogSummary, error) {
	entries, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]types.CatalogSummary, len(entries))
	for i, entry := range entries {
		summaries[i] = entry.ToSummary()
	}
	return summaries, nil
}

// UpdateBundlePath changes where an entry's installed bundle lives. It is
// the only mutation allowed after commit.
func (m *Manager) UpdateBundlePath(ctx context.Context, id, bundlePath string) (*types.CatalogEntry, error) {
	if bundlePath == "" {
		return nil, fmt.Errorf("bundle path cannot be empty")
	}
	entry, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.BundlePath = bundlePath
	if err := m.Save(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes an entry's record
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := paths.ValidateComponent(id); err != nil {
		return ErrNotFound
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	err := os.Remove(m.recordPath(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete catalog entry: %w", err)
	}
	_, cached := m.entries.LoadAndDelete(id)
	if errors.Is(err, os.ErrNotExist) && !cached {
		return ErrNotFound
	}
	m.updateGauge()
	return nil
}

// Exists checks if an entry exists
func (m *Manager) Exists(ctx context.Context, id string) bool {
	_, err := m.Load(ctx, id)
	return err == nil
}

// Stats returns catalog statistics over the cached entries
func (m *Manager) Stats() types.CatalogStats {
	var stats types.CatalogStats

	m.entries.Range(func(_, value interface{}) bool {
		entry := value.(*types.CatalogEntry)
		stats.TotalEntries++
		stats.TotalBytes += entry.Size

		if stats.LastUpdated == nil || entry.UpdatedAt.After(*stats.LastUpdated) {
			updated := entry.UpdatedAt
			stats.LastUpdated = &updated
		}
		return true
	})

	return stats
}

func (m *Manager) readRecord(id string) (*types.CatalogEntry, error) {
	data, err := os.ReadFile(m.recordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read catalog entry: %w", err)
	}

	var entry types.CatalogEntry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog entry %s: %w", id, err)
	}
	if entry.ID != id {
		return nil, fmt.Errorf("catalog entry %s has mismatched ID %q", id, entry.ID)
	}
	return &entry, nil
}

func (m *Manager) updateGauge() {
	if m.metrics == nil {
		return
	}
	count := 0
	m.entries.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	m.metrics.SetCatalogEntries(count)
}

func (m *Manager) recordPath(id string) string {
	return filepath.Join(m.dir, id+recordExt)
}

// writeAtomic writes data to a temp file in the same directory and renames
// it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".record-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
