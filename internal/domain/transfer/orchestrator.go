package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/applibrary/internal/domain/bundle"
	"github.com/GriffinCanCode/applibrary/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/applibrary/internal/shared/id"
	"github.com/GriffinCanCode/applibrary/internal/shared/types"
	"go.uber.org/zap"
)

var (
	ErrEmptyBundlePath = errors.New("bundle path is empty")
	ErrInvalidMode     = errors.New("invalid transfer mode")
	ErrSessionNotFound = errors.New("transfer session not found")
	// ErrRetired is returned for catalog entries that are being removed
	ErrRetired = errors.New("catalog entry is being removed")
)

// DefaultConsumer is used when a request names no consumer
const DefaultConsumer = "default"

// Request asks for a transfer session
type Request struct {
	Consumer         string
	CatalogID        string
	BundlePath       string
	BundleIdentifier string
	Name             string
	Version          string
	Mode             Mode
	PIN              string
}

// Orchestrator starts transfer sessions and guarantees their teardown.
type Orchestrator struct {
	service   Service
	guard     *KeepActive
	presenter Presenter
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	mu         sync.Mutex
	sessions   map[string]*Session
	byConsumer map[string]*Session
	retired    map[string]struct{}
}

// NewOrchestrator creates an orchestrator over service
func NewOrchestrator(service Service, guard *KeepActive, logger *zap.Logger) *Orchestrator {
	if guard == nil {
		guard = NewKeepActive(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		service:    service,
		guard:      guard,
		presenter:  nopPresenter{},
		logger:     logger,
		sessions:   make(map[string]*Session),
		byConsumer: make(map[string]*Session),
		retired:    make(map[string]struct{}),
	}
}

// WithPresenter sets where started sessions are presented
func (o *Orchestrator) WithPresenter(p Presenter) *Orchestrator {
	if p != nil {
		o.presenter = p
	}
	return o
}

// WithMetrics attaches a metrics collector
func (o *Orchestrator) WithMetrics(m *monitoring.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// PrepareTransfer validates req, starts a transfer service for it and
// presents the session. Invalid requests fail before anything is acquired.
// A consumer holds at most one session; an existing one is closed first.
func (o *Orchestrator) PrepareTransfer(ctx context.Context, req Request) (*Session, error) {
	if req.BundlePath == "" {
		o.logger.Warn("Rejected transfer", zap.String("catalog_id", req.CatalogID), zap.Error(ErrEmptyBundlePath))
		return nil, ErrEmptyBundlePath
	}
	if !req.Mode.Valid() {
		o.logger.Warn("Rejected transfer", zap.String("catalog_id", req.CatalogID), zap.String("mode", string(req.Mode)))
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	if req.Consumer == "" {
		req.Consumer = DefaultConsumer
	}
	if o.isRetired(req.CatalogID) {
		return nil, ErrRetired
	}

	if prev := o.sessionFor(req.Consumer); prev != nil {
		o.closeQuietly(ctx, prev)
	}

	meta := Metadata{
		ID:         req.BundleIdentifier,
		Version:    bundle.ParseVersion(req.Version),
		Name:       req.Name,
		BundlePath: req.BundlePath,
		Mode:       req.Mode,
		PIN:        req.PIN,
	}

	release := o.guard.Acquire()
	o.metrics.SetKeepActive(true)

	handle, err := o.service.Start(ctx, meta)
	if err != nil {
		release()
		o.metrics.SetKeepActive(o.guard.Active())
		o.logger.Error("Failed to start transfer service",
			zap.String("catalog_id", req.CatalogID),
			zap.String("mode", string(req.Mode)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to start transfer service: %w", err)
	}

	session := &Session{
		ID:         string(id.NewTransferID()),
		Consumer:   req.Consumer,
		CatalogID:  req.CatalogID,
		Name:       req.Name,
		BundlePath: req.BundlePath,
		Mode:       req.Mode,
		URL:        handle.URL(),
		StartedAt:  time.Now(),
		handle:     handle,
		release:    release,
		orch:       o,
		closed:     make(chan struct{}),
	}

	o.mu.Lock()
	if _, gone := o.retired[req.CatalogID]; gone && req.CatalogID != "" {
		o.mu.Unlock()
		// Retire ran while the service was starting
		if err := o.service.Shutdown(ctx, handle); err != nil {
			o.logger.Warn("Failed to stop transfer service", zap.String("catalog_id", req.CatalogID), zap.Error(err))
		}
		release()
		o.metrics.SetKeepActive(o.guard.Active())
		return nil, ErrRetired
	}
	displaced := o.byConsumer[req.Consumer]
	o.sessions[session.ID] = session
	o.byConsumer[req.Consumer] = session
	count := len(o.sessions)
	o.mu.Unlock()

	// A concurrent request for the same consumer got in first
	if displaced != nil {
		o.closeQuietly(ctx, displaced)
	}

	o.metrics.IncTransfersStarted(string(req.Mode))
	o.metrics.SetTransfersActive(count)
	o.logger.Info("Transfer session started",
		zap.String("session_id", session.ID),
		zap.String("consumer", session.Consumer),
		zap.String("catalog_id", session.CatalogID),
		zap.String("mode", string(session.Mode)),
		zap.String("url", session.URL))

	o.presenter.PresentTransferSurface(session)
	return session, nil
}

// StartInstall prepares an install session for a catalog entry
func (o *Orchestrator) StartInstall(ctx context.Context, consumer string, entry *types.CatalogEntry, bundlePath string) (*Session, error) {
	return o.PrepareTransfer(ctx, requestFor(consumer, entry, bundlePath, ModeInstall, ""))
}

// StartShare prepares a share session, optionally protected by pin
func (o *Orchestrator) StartShare(ctx context.Context, consumer string, entry *types.CatalogEntry, bundlePath, pin string) (*Session, error) {
	return o.PrepareTransfer(ctx, requestFor(consumer, entry, bundlePath, ModeShare, pin))
}

func requestFor(consumer string, entry *types.CatalogEntry, bundlePath string, mode Mode, pin string) Request {
	req := Request{
		Consumer:   consumer,
		BundlePath: bundlePath,
		Mode:       mode,
		PIN:        pin,
	}
	if entry != nil {
		req.CatalogID = entry.ID
		req.BundleIdentifier = entry.BundleIdentifier
		req.Name = entry.Name
		req.Version = entry.Version
	}
	return req
}

// Get returns a live session
func (o *Orchestrator) Get(sessionID string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionID]
	return s, ok
}

// List returns every live session, oldest first
func (o *Orchestrator) List() []SessionInfo {
	o.mu.Lock()
	out := make([]SessionInfo, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, s.Info())
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Close is the consumer-driven teardown of one session
func (o *Orchestrator) Close(ctx context.Context, sessionID string) error {
	s, ok := o.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.Close(ctx)
}

// Retire closes the sessions serving catalogID and refuses new ones until
// restore is called. Callers removing an entry call restore only if the
// removal failed.
func (o *Orchestrator) Retire(ctx context.Context, catalogID string) (restore func()) {
	o.mu.Lock()
	o.retired[catalogID] = struct{}{}
	var serving []*Session
	for _, s := range o.sessions {
		if s.CatalogID == catalogID {
			serving = append(serving, s)
		}
	}
	o.mu.Unlock()

	for _, s := range serving {
		o.closeQuietly(ctx, s)
	}
	return func() {
		o.mu.Lock()
		delete(o.retired, catalogID)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) isRetired(catalogID string) bool {
	if catalogID == "" {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.retired[catalogID]
	return ok
}

// Shutdown closes every live session
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) sessionFor(consumer string) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.byConsumer[consumer]
}

func (o *Orchestrator) closeQuietly(ctx context.Context, s *Session) {
	if err := s.Close(ctx); err != nil {
		o.logger.Warn("Failed to stop transfer session",
			zap.String("session_id", s.ID), zap.Error(err))
	}
}

// forget unregisters a closed session. Called once from Session.Close.
func (o *Orchestrator) forget(s *Session) {
	o.mu.Lock()
	delete(o.sessions, s.ID)
	if o.byConsumer[s.Consumer] == s {
		delete(o.byConsumer, s.Consumer)
	}
	count := len(o.sessions)
	o.mu.Unlock()

	o.metrics.SetTransfersActive(count)
	o.metrics.SetKeepActive(o.guard.Active())
	o.logger.Info("Transfer session closed",
		zap.String("session_id", s.ID),
		zap.String("consumer", s.Consumer))
	o.presenter.TransferClosed(s)
}
