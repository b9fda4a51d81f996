package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/GriffinCanCode/applibrary/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeHandle struct {
	id string
}

func (h fakeHandle) ID() string  { return h.id }
func (h fakeHandle) URL() string { return "http://127.0.0.1:0/" + h.id }

type fakeService struct {
	mu        sync.Mutex
	started   []Metadata
	shutdowns map[string]int
	startErr  error
	// beforeStart runs outside the lock, so it may block
	beforeStart func()
}

func newFakeService() *fakeService {
	return &fakeService{shutdowns: make(map[string]int)}
}

func (f *fakeService) Start(_ context.Context, meta Metadata) (Handle, error) {
	if f.beforeStart != nil {
		f.beforeStart()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, meta)
	return fakeHandle{id: fmt.Sprintf("svc-%d", len(f.started))}, nil
}

func (f *fakeService) Shutdown(_ context.Context, h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns[h.ID()]++
	return nil
}

func (f *fakeService) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeService) shutdownCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns[id]
}

type recordingActivity struct {
	mu      sync.Mutex
	on      bool
	changes []bool
}

func (a *recordingActivity) SetKeepActive(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.on = on
	a.changes = append(a.changes, on)
}

func (a *recordingActivity) state() (bool, []bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.on, append([]bool(nil), a.changes...)
}

type recordingPresenter struct {
	mu        sync.Mutex
	presented []string
	closed    []string
}

func (p *recordingPresenter) PresentTransferSurface(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presented = append(p.presented, s.ID)
}

func (p *recordingPresenter) TransferClosed(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, s.ID)
}

type harness struct {
	orch      *Orchestrator
	service   *fakeService
	activity  *recordingActivity
	presenter *recordingPresenter
	logs      *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		service:   newFakeService(),
		activity:  &recordingActivity{},
		presenter: &recordingPresenter{},
		logs:      logs,
	}
	h.orch = NewOrchestrator(h.service, NewKeepActive(h.activity), zap.New(core)).
		WithPresenter(h.presenter)
	return h
}

func sampleRequest() Request {
	return Request{
		Consumer:         "viewer-1",
		CatalogID:        "entry-1",
		BundlePath:       "/library/apps/entry-1/Sample.app",
		BundleIdentifier: "com.example.sample",
		Name:             "Sample",
		Version:          "3",
		Mode:             ModeInstall,
	}
}

func TestPrepareTransfer(t *testing.T) {
	h := newHarness(t)

	session, err := h.orch.PrepareTransfer(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "viewer-1", session.Consumer)
	assert.Equal(t, "http://127.0.0.1:0/svc-1", session.URL)

	require.Equal(t, 1, h.service.startCount())
	meta := h.service.started[0]
	assert.Equal(t, "com.example.sample", meta.ID)
	assert.Equal(t, 3, meta.Version)
	assert.Equal(t, "Sample", meta.Name)
	assert.Equal(t, ModeInstall, meta.Mode)

	on, _ := h.activity.state()
	assert.True(t, on)
	assert.Equal(t, []string{session.ID}, h.presenter.presented)

	got, ok := h.orch.Get(session.ID)
	require.True(t, ok)
	assert.Same(t, session, got)
}

func TestPrepareTransferUnparseableVersion(t *testing.T) {
	h := newHarness(t)
	req := sampleRequest()
	req.Version = "1.2.3-beta"

	_, err := h.orch.PrepareTransfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, h.service.started[0].Version)
}

func TestPrepareTransferEmptyBundlePath(t *testing.T) {
	h := newHarness(t)
	req := sampleRequest()
	req.BundlePath = ""

	session, err := h.orch.PrepareTransfer(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyBundlePath)
	assert.Nil(t, session)

	assert.Zero(t, h.service.startCount())
	on, changes := h.activity.state()
	assert.False(t, on)
	assert.Empty(t, changes, "keep-active must not be touched")
	assert.Empty(t, h.presenter.presented)
	assert.Equal(t, 1, h.logs.FilterMessage("Rejected transfer").Len())
}

func TestPrepareTransferInvalidMode(t *testing.T) {
	h := newHarness(t)
	req := sampleRequest()
	req.Mode = "broadcast"

	_, err := h.orch.PrepareTransfer(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Zero(t, h.service.startCount())
	assert.False(t, h.orch.guard.Active())
}

func TestPrepareTransferStartFailureReleasesGuard(t *testing.T) {
	h := newHarness(t)
	h.service.startErr = errors.New("address in use")

	_, err := h.orch.PrepareTransfer(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.ErrorContains(t, err, "address in use")

	on, changes := h.activity.state()
	assert.False(t, on)
	assert.Equal(t, []bool{true, false}, changes)
	assert.Empty(t, h.orch.List())
	assert.Empty(t, h.presenter.presented)
	assert.Equal(t, 1, h.logs.FilterMessage("Failed to start transfer service").Len())
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.orch.PrepareTransfer(ctx, sampleRequest())
	require.NoError(t, err)

	require.NoError(t, session.Close(ctx))
	require.NoError(t, session.Close(ctx))
	assert.ErrorIs(t, h.orch.Close(ctx, session.ID), ErrSessionNotFound)

	assert.Equal(t, 1, h.service.shutdownCount("svc-1"))
	on, changes := h.activity.state()
	assert.False(t, on)
	assert.Equal(t, []bool{true, false}, changes, "released exactly once")
	assert.Equal(t, []string{session.ID}, h.presenter.closed)

	select {
	case <-session.Done():
	default:
		t.Fatal("session should report done")
	}
}

func TestConcurrentCloseReleasesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.orch.PrepareTransfer(ctx, sampleRequest())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = session.Close(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.service.shutdownCount("svc-1"))
	assert.False(t, h.orch.guard.Active())
}

func TestSameConsumerReplacesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.orch.PrepareTransfer(ctx, sampleRequest())
	require.NoError(t, err)

	req := sampleRequest()
	req.Mode = ModeShare
	second, err := h.orch.PrepareTransfer(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 1, h.service.shutdownCount("svc-1"))
	_, ok := h.orch.Get(first.ID)
	assert.False(t, ok)

	sessions := h.orch.List()
	require.Len(t, sessions, 1)
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.True(t, h.orch.guard.Active())
}

func TestRetireClosesAndBlocksEntrySessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	doomed, err := h.orch.PrepareTransfer(ctx, sampleRequest())
	require.NoError(t, err)

	other := sampleRequest()
	other.Consumer = "viewer-2"
	other.CatalogID = "entry-2"
	kept, err := h.orch.PrepareTransfer(ctx, other)
	require.NoError(t, err)

	restore := h.orch.Retire(ctx, "entry-1")

	assert.Equal(t, 1, h.service.shutdownCount("svc-1"))
	_, ok := h.orch.Get(doomed.ID)
	assert.False(t, ok)
	_, ok = h.orch.Get(kept.ID)
	assert.True(t, ok)

	_, err = h.orch.PrepareTransfer(ctx, sampleRequest())
	assert.ErrorIs(t, err, ErrRetired)
	assert.Equal(t, 2, h.service.startCount(), "nothing started for a retired entry")

	restore()
	_, err = h.orch.PrepareTransfer(ctx, sampleRequest())
	assert.NoError(t, err)
}

func TestRetireDuringServiceStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	h.service.beforeStart = func() {
		close(entered)
		<-proceed
	}

	errc := make(chan error, 1)
	go func() {
		_, err := h.orch.PrepareTransfer(ctx, sampleRequest())
		errc <- err
	}()

	<-entered
	h.orch.Retire(ctx, "entry-1")
	close(proceed)

	assert.ErrorIs(t, <-errc, ErrRetired)
	assert.Equal(t, 1, h.service.shutdownCount("svc-1"), "late service is stopped")
	assert.Empty(t, h.orch.List())
	assert.False(t, h.orch.guard.Active())
}

func TestDistinctConsumersShareGuard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.orch.PrepareTransfer(ctx, sampleRequest())
	require.NoError(t, err)

	req := sampleRequest()
	req.Consumer = "viewer-2"
	b, err := h.orch.PrepareTransfer(ctx, req)
	require.NoError(t, err)

	require.NoError(t, a.Close(ctx))
	assert.True(t, h.orch.guard.Active(), "second session still holds the guard")

	require.NoError(t, b.Close(ctx))
	assert.False(t, h.orch.guard.Active())

	_, changes := h.activity.state()
	assert.Equal(t, []bool{true, false}, changes)
}

func TestStartInstallAndShare(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := &types.CatalogEntry{
		ID:               "entry-9",
		Name:             "Notes",
		BundleIdentifier: "com.example.notes",
		Version:          "12",
	}

	install, err := h.orch.StartInstall(ctx, "", entry, "/apps/entry-9/Notes.app")
	require.NoError(t, err)
	assert.Equal(t, ModeInstall, install.Mode)
	assert.Equal(t, DefaultConsumer, install.Consumer)
	assert.Equal(t, "entry-9", install.CatalogID)

	share, err := h.orch.StartShare(ctx, "phone", entry, "/apps/entry-9/Notes.app", "1234")
	require.NoError(t, err)
	assert.Equal(t, ModeShare, share.Mode)

	meta := h.service.started[1]
	assert.Equal(t, "1234", meta.PIN)
	assert.Equal(t, 12, meta.Version)
	assert.Equal(t, "com.example.notes", meta.ID)

	_, err = h.orch.StartInstall(ctx, "", entry, "")
	assert.ErrorIs(t, err, ErrEmptyBundlePath)
}

func TestShutdownClosesAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, consumer := range []string{"a", "b", "c"} {
		req := sampleRequest()
		req.Consumer = consumer
		_, err := h.orch.PrepareTransfer(ctx, req)
		require.NoError(t, err)
	}
	require.Len(t, h.orch.List(), 3)

	require.NoError(t, h.orch.Shutdown(ctx))
	require.NoError(t, h.orch.Shutdown(ctx))

	assert.Empty(t, h.orch.List())
	assert.False(t, h.orch.guard.Active())
	for _, id := range []string{"svc-1", "svc-2", "svc-3"} {
		assert.Equal(t, 1, h.service.shutdownCount(id))
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("share")
	require.NoError(t, err)
	assert.Equal(t, ModeShare, m)

	_, err = ParseMode("")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestKeepActiveReleaseIsOnce(t *testing.T) {
	activity := &recordingActivity{}
	guard := NewKeepActive(activity)

	release := guard.Acquire()
	release()
	release()

	_, changes := activity.state()
	assert.Equal(t, []bool{true, false}, changes)
	assert.False(t, guard.Active())
}
