package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/applibrary/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/applibrary/internal/shared/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEntry(id string) *types.CatalogEntry {
	return &types.CatalogEntry{
		ID:               id,
		Name:             "Sample",
		BundleIdentifier: "com.example.sample",
		Version:          "3",
		VersionNumber:    3,
		BundlePath:       "/library/apps/" + id + "/Sample.app",
		SourceLocation:   types.SourceURL,
		Size:             1024,
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, zap.NewNop())
	ctx := context.Background()

	entry := newEntry("a1")
	require.NoError(t, m.Save(ctx, entry))
	assert.False(t, entry.CreatedAt.IsZero())
	assert.FileExists(t, filepath.Join(dir, "a1.json"))

	// A fresh manager reads from disk
	fresh := NewManager(dir, zap.NewNop())
	loaded, err := fresh.Load(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Sample", loaded.Name)
	assert.Equal(t, 3, loaded.VersionNumber)
	assert.Equal(t, types.SourceURL, loaded.SourceLocation)
}

func TestSaveRejectsInvalidIDs(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	ctx := context.Background()

	assert.Error(t, m.Save(ctx, nil))
	assert.Error(t, m.Save(ctx, newEntry("")))
	assert.Error(t, m.Save(ctx, newEntry("../escape")))
}

func TestLoadReturnsCopies(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	ctx := context.Background()
	require.NoError(t, m.Save(ctx, newEntry("a1")))

	loaded, err := m.Load(ctx, "a1")
	require.NoError(t, err)
	loaded.Name = "Mutated"

	again, err := m.Load(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Sample", again.Name)
}

func TestLoadNotFound(t *testing.T) {
	m := NewManager(t.TempDir(), nil)

	_, err := m.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Load(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListScansDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	writer := NewManager(dir, nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		e := newEntry(id)
		e.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, writer.Save(ctx, e))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	reader := NewManager(dir, nil)
	entries, err := reader.List(ctx)
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, "new", entries[0].ID)
	assert.Equal(t, "old", entries[2].ID)

	summaries, err := reader.ListSummaries(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 3)
}

func TestListMissingDirectory(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent"), nil)

	entries, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdateBundlePath(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	ctx := context.Background()
	require.NoError(t, m.Save(ctx, newEntry("a1")))

	_, err := m.UpdateBundlePath(ctx, "a1", "")
	assert.Error(t, err)

	updated, err := m.UpdateBundlePath(ctx, "a1", "/elsewhere/Sample.app")
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/Sample.app", updated.BundlePath)

	loaded, err := NewManager(m.dir, nil).Load(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/Sample.app", loaded.BundlePath)
	assert.Equal(t, "Sample", loaded.Name)

	_, err = m.UpdateBundlePath(ctx, "missing", "/x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)
	ctx := context.Background()
	require.NoError(t, m.Save(ctx, newEntry("a1")))

	require.True(t, m.Exists(ctx, "a1"))
	require.NoError(t, m.Delete(ctx, "a1"))
	assert.False(t, m.Exists(ctx, "a1"))
	assert.NoFileExists(t, filepath.Join(dir, "a1.json"))

	assert.ErrorIs(t, m.Delete(ctx, "a1"), ErrNotFound)
}

func TestStats(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	ctx := context.Background()

	assert.Equal(t, 0, m.Stats().TotalEntries)
	assert.Nil(t, m.Stats().LastUpdated)

	require.NoError(t, m.Save(ctx, newEntry("a1")))
	require.NoError(t, m.Save(ctx, newEntry("a2")))

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, int64(2048), stats.TotalBytes)
	assert.NotNil(t, stats.LastUpdated)
}

func TestCatalogGauge(t *testing.T) {
	metrics := monitoring.NewMetrics()
	m := NewManager(t.TempDir(), nil).WithMetrics(metrics)
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, newEntry("a1")))
	require.NoError(t, m.Save(ctx, newEntry("a2")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CatalogEntries))

	require.NoError(t, m.Delete(ctx, "a1"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CatalogEntries))
}

func TestConcurrentSaves(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := newEntry("same")
			e.Size = int64(i)
			assert.NoError(t, m.Save(ctx, e))
		}(i)
	}
	wg.Wait()

	entries, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
