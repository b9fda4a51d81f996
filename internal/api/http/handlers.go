package http

import (
	"errors"
	"net/http"

	"github.com/GriffinCanCode/applibrary/internal/domain/acquisition"
	"github.com/GriffinCanCode/applibrary/internal/domain/catalog"
	"github.com/GriffinCanCode/applibrary/internal/domain/pipeline"
	"github.com/GriffinCanCode/applibrary/internal/domain/registration"
	"github.com/GriffinCanCode/applibrary/internal/domain/transfer"
	"github.com/GriffinCanCode/applibrary/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// Deps are the components the handlers drive
type Deps struct {
	Importer    *pipeline.Importer
	Catalog     *catalog.Manager
	Registrar   *registration.Registrar
	Transfers   *transfer.Orchestrator
	Acquisition *acquisition.Manager
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
	// InboxDir receives uploaded archives
	InboxDir string
	// MaxUploadBytes bounds one upload; zero means unbounded
	MaxUploadBytes int64
}

// Handlers contains all HTTP handlers
type Handlers struct {
	importer    *pipeline.Importer
	catalog     *catalog.Manager
	registrar   *registration.Registrar
	transfers   *transfer.Orchestrator
	acquisition *acquisition.Manager
	metrics     *monitoring.Metrics
	logger      *zap.Logger
	inboxDir    string
	maxUpload   int64
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		importer:    deps.Importer,
		catalog:     deps.Catalog,
		registrar:   deps.Registrar,
		transfers:   deps.Transfers,
		acquisition: deps.Acquisition,
		metrics:     deps.Metrics,
		logger:      logger,
		inboxDir:    deps.InboxDir,
		maxUpload:   deps.MaxUploadBytes,
	}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "App Library",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	acq := gin.H{"pending": h.acquisition.Pending()}
	if req, ok := h.acquisition.Active(); ok {
		acq["active"] = gin.H{"import_id": req.ImportID, "url": req.URL, "queued_at": req.QueuedAt}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"catalog":     h.catalog.Stats(),
		"acquisition": acq,
		"transfers":   gin.H{"active": len(h.transfers.List())},
		"metrics":     h.metrics.GetSnapshot(),
	})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidURL),
		errors.Is(err, pipeline.ErrUnsupportedArchive),
		errors.Is(err, pipeline.ErrNotReadable),
		errors.Is(err, transfer.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, transfer.ErrSessionNotFound),
		errors.Is(err, transfer.ErrRetired):
		return http.StatusNotFound
	case errors.Is(err, transfer.ErrEmptyBundlePath):
		return http.StatusUnprocessableEntity
	case errors.Is(err, acquisition.ErrQueueFull),
		errors.Is(err, acquisition.ErrClosed),
		errors.Is(err, pipeline.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
