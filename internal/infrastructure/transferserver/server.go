package transferserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/applibrary/internal/domain/transfer"
	"github.com/GriffinCanCode/applibrary/internal/shared/id"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnknownHandle is returned for handles this server did not start
var ErrUnknownHandle = errors.New("unknown transfer handle")

// Options configures the transfer server
type Options struct {
	// Host is the interface each session listens on
	Host string
	// AdvertiseHost is written into session URLs; defaults to Host
	AdvertiseHost string
	// ShutdownTimeout bounds the graceful stop of one session
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// Server implements transfer.Service with one ephemeral HTTP listener per
// session.
type Server struct {
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	instances map[string]*instance
}

// New creates a transfer server
func New(opts Options) *Server {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.AdvertiseHost == "" {
		opts.AdvertiseHost = opts.Host
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts:      opts,
		logger:    logger,
		instances: make(map[string]*instance),
	}
}

type instance struct {
	id      string
	meta    transfer.Metadata
	base    string
	url     string
	pinHash []byte
	srv     *http.Server
	done    chan struct{}

	once sync.Once
	err  error
}

func (i *instance) ID() string  { return i.id }
func (i *instance) URL() string { return i.url }

// Start listens on an ephemeral port and serves meta's bundle until
// Shutdown.
func (s *Server) Start(ctx context.Context, meta transfer.Metadata) (transfer.Handle, error) {
	if meta.BundlePath == "" {
		return nil, transfer.ErrEmptyBundlePath
	}
	if !meta.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", transfer.ErrInvalidMode, meta.Mode)
	}

	inst := &instance{
		id:   string(id.NewRequestID()),
		meta: meta,
		done: make(chan struct{}),
	}
	if meta.PIN != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(meta.PIN), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash pin: %w", err)
		}
		inst.pinHash = hash
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.opts.Host, "0"))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	inst.base = "http://" + net.JoinHostPort(s.opts.AdvertiseHost, strconv.Itoa(port))
	inst.url = sessionURL(inst.base, meta.Mode)
	inst.srv = &http.Server{
		Handler:           s.router(inst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.instances[inst.id] = inst
	s.mu.Unlock()

	go func() {
		defer close(inst.done)
		if err := inst.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Transfer server stopped", zap.String("handle", inst.id), zap.Error(err))
		}
	}()

	s.logger.Info("Transfer server listening",
		zap.String("handle", inst.id),
		zap.String("mode", string(meta.Mode)),
		zap.String("bundle_id", meta.ID),
		zap.String("addr", ln.Addr().String()))
	return inst, nil
}

// Shutdown stops the listener behind h. Stopping twice is not an error.
func (s *Server) Shutdown(ctx context.Context, h transfer.Handle) error {
	if h == nil {
		return nil
	}
	inst, ok := h.(*instance)
	if !ok {
		return ErrUnknownHandle
	}

	inst.once.Do(func() {
		s.mu.Lock()
		delete(s.instances, inst.id)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		defer cancel()

		if err := inst.srv.Shutdown(ctx); err != nil {
			inst.err = fmt.Errorf("failed to stop transfer server: %w", err)
			_ = inst.srv.Close()
		}
		<-inst.done
		s.logger.Info("Transfer server stopped", zap.String("handle", inst.id))
	})
	return inst.err
}

// Active returns the number of running listeners
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// Close stops every running listener
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	running := make([]*instance, 0, len(s.instances))
	for _, inst := range s.instances {
		running = append(running, inst)
	}
	s.mu.Unlock()

	var errs []error
	for _, inst := range running {
		if err := s.Shutdown(ctx, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sessionURL is what the consumer opens: the install link for install
// mode, the package itself for share mode.
func sessionURL(base string, mode transfer.Mode) string {
	if mode == transfer.ModeInstall {
		return "itms-services://?action=download-manifest&url=" + url.QueryEscape(base+"/manifest.plist")
	}
	return base + "/app.ipa"
}

func (s *Server) router(inst *instance) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := &handlers{inst: inst, logger: s.logger.With(zap.String("handle", inst.id))}
	r.GET("/status", h.status)

	protected := r.Group("/", h.requirePIN)
	protected.GET("/app.ipa", h.pkg)
	protected.GET("/manifest.plist", h.manifest)
	return r
}
