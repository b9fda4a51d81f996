package http

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/applibrary/internal/domain/pipeline"
	"github.com/GriffinCanCode/applibrary/internal/shared/id"
	"github.com/GriffinCanCode/applibrary/internal/shared/paths"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DownloadRequest starts a remote import
type DownloadRequest struct {
	URL   string `json:"url" binding:"required"`
	Label string `json:"label"`
}

// ImportFile accepts a multipart upload in field "file" and imports it
func (h *Handlers) ImportFile(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	if !pipeline.IsAcceptedArchive(file.Filename) {
		h.fail(c, pipeline.ErrUnsupportedArchive)
		return
	}

	dest := filepath.Join(h.inboxDir, uploadName(file.Filename))
	if err := c.SaveUploadedFile(file, dest); err != nil {
		os.Remove(dest)
		h.logger.Error("Failed to store upload", zap.String("filename", file.Filename), zap.Error(err))
		h.fail(c, fmt.Errorf("failed to store upload: %w", err))
		return
	}

	importID, err := h.importer.ImportLocal(dest)
	if err != nil {
		os.Remove(dest)
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"import_id": importID})
}

// uploadName keeps the client's extension but never its path
func uploadName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if err := paths.ValidateComponent(base); err != nil {
		base = "upload"
	}
	return string(id.NewRequestID()) + "_" + base
}

// Download starts a remote import
func (h *Handlers) Download(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	importID, err := h.importer.ImportRemote(req.URL, req.Label)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"import_id": importID})
}

// GetImport returns the status of one pipeline run
func (h *Handlers) GetImport(c *gin.Context) {
	status, ok := h.importer.Tracker().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "import not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListImports lists recent pipeline runs
func (h *Handlers) ListImports(c *gin.Context) {
	imports := h.importer.Tracker().List()
	c.JSON(http.StatusOK, gin.H{
		"imports": imports,
		"count":   len(imports),
	})
}

// ListApps lists catalog entries
func (h *Handlers) ListApps(c *gin.Context) {
	apps, err := h.catalog.ListSummaries(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"apps":  apps,
		"stats": h.catalog.Stats(),
	})
}

// GetApp returns one catalog entry
func (h *Handlers) GetApp(c *gin.Context) {
	entry, err := h.catalog.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// DeleteApp closes transfers of an entry, then removes it and its bundle
func (h *Handlers) DeleteApp(c *gin.Context) {
	ctx := c.Request.Context()
	appID := c.Param("id")
	if err := paths.ValidateComponent(appID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	restore := h.transfers.Retire(ctx, appID)
	if err := h.registrar.Unregister(ctx, appID); err != nil {
		restore()
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": appID})
}
