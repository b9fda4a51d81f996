package acquisition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GriffinCanCode/applibrary/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/applibrary/internal/shared/paths"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the pending queue is at capacity
	ErrQueueFull = errors.New("acquisition queue is full")
	// ErrClosed is returned once the manager stops accepting work
	ErrClosed = errors.New("acquisition manager is closed")
)

// Fetcher transfers a remote resource into a local file.
type Fetcher interface {
	Download(ctx context.Context, url, dest string) (int64, error)
}

// Request describes one download
type Request struct {
	URL      string    `json:"url"`
	ImportID string    `json:"import_id"`
	QueuedAt time.Time `json:"queued_at"`
}

// Result is the terminal outcome of one request. Path is set only when Err
// is nil.
type Result struct {
	ImportID string
	Path     string
	Size     int64
	Err      error
}

// Callback receives the outcome of DownloadFile
type Callback func(importID, localPath string, err error)

// Options configures the manager
type Options struct {
	// QueueDepth is the number of requests allowed to wait behind the
	// in-flight one
	QueueDepth int
	// Timeout bounds each download; zero means no deadline
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

type job struct {
	req     Request
	ctx     context.Context
	result  chan Result
	onStart func()
}

// Manager runs downloads one at a time on its own worker goroutine.
type Manager struct {
	fetcher Fetcher
	dir     string
	opts    Options
	logger  *zap.Logger

	jobs chan *job
	done chan struct{}

	mu     sync.Mutex
	closed bool
	active *Request
}

// NewManager starts the worker. Downloads land in dir as <importID>.ipa.
func NewManager(fetcher Fetcher, dir string, opts Options) *Manager {
	if opts.QueueDepth < 1 {
		opts.QueueDepth = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := &Manager{
		fetcher: fetcher,
		dir:     dir,
		opts:    opts,
		logger:  opts.Logger,
		jobs:    make(chan *job, opts.QueueDepth),
		done:    make(chan struct{}),
	}
	go m.worker()
	return m
}

// Submit enqueues a download. The returned channel receives exactly one
// Result. ctx governs the download itself, not just the enqueue.
func (m *Manager) Submit(ctx context.Context, url, importID string) (<-chan Result, error) {
	return m.SubmitWithStart(ctx, url, importID, nil)
}

// SubmitWithStart is Submit with a hook the worker calls when it takes the
// request off the queue. onStart must not block.
func (m *Manager) SubmitWithStart(ctx context.Context, url, importID string, onStart func()) (<-chan Result, error) {
	if err := paths.ValidateComponent(importID); err != nil {
		return nil, fmt.Errorf("invalid import ID: %w", err)
	}

	j := &job{
		req:     Request{URL: url, ImportID: importID, QueuedAt: time.Now()},
		ctx:     ctx,
		result:  make(chan Result, 1),
		onStart: onStart,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	select {
	case m.jobs <- j:
	default:
		m.logger.Warn("Acquisition queue full", zap.String("import_id", importID))
		return nil, ErrQueueFull
	}
	m.opts.Metrics.SetQueueDepth(len(m.jobs))
	m.logger.Debug("Download queued",
		zap.String("import_id", importID),
		zap.String("url", url),
		zap.Int("pending", len(m.jobs)))
	return j.result, nil
}

// DownloadFile is the callback form of Submit. cb runs exactly once, on the
// worker's behalf, including when the request is rejected up front.
func (m *Manager) DownloadFile(ctx context.Context, url, importID string, cb Callback) {
	results, err := m.Submit(ctx, url, importID)
	if err != nil {
		go cb(importID, "", err)
		return
	}
	go func() {
		res := <-results
		cb(res.ImportID, res.Path, res.Err)
	}()
}

// Active returns the in-flight request, if any
func (m *Manager) Active() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Request{}, false
	}
	return *m.active, true
}

// Pending returns the number of queued requests
func (m *Manager) Pending() int {
	return len(m.jobs)
}

// Close stops accepting work, fails queued requests with ErrClosed and
// waits for the in-flight download to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.closed = true
	close(m.jobs)
	m.mu.Unlock()

	<-m.done
}

func (m *Manager) worker() {
	defer close(m.done)

	for j := range m.jobs {
		m.opts.Metrics.SetQueueDepth(len(m.jobs))

		if m.isClosed() {
			j.result <- Result{ImportID: j.req.ImportID, Err: ErrClosed}
			continue
		}

		m.setActive(&j.req)
		if j.onStart != nil {
			j.onStart()
		}
		j.result <- m.run(j)
		m.setActive(nil)
	}
}

func (m *Manager) run(j *job) Result {
	ctx := j.ctx
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	res := Result{ImportID: j.req.ImportID}
	dest := filepath.Join(m.dir, j.req.ImportID+".ipa")
	start := time.Now()

	log := m.logger.With(zap.String("import_id", j.req.ImportID), zap.String("url", j.req.URL))
	log.Info("Download started", zap.Duration("waited", start.Sub(j.req.QueuedAt)))

	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("download abandoned: %w", err)
		return res
	}

	size, err := m.fetcher.Download(ctx, j.req.URL, dest)
	if err == nil {
		if _, statErr := os.Stat(dest); statErr != nil {
			err = fmt.Errorf("downloaded file missing: %w", statErr)
		}
	}
	if err != nil {
		os.Remove(dest)
		log.Error("Download failed", zap.Error(err))
		res.Err = err
		return res
	}

	m.opts.Metrics.AddDownloadedBytes(size)
	log.Info("Download complete",
		zap.Int64("bytes", size),
		zap.Duration("duration", time.Since(start)))

	res.Path = dest
	res.Size = size
	return res
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) setActive(req *Request) {
	m.mu.Lock()
	m.active = req
	m.mu.Unlock()
}
