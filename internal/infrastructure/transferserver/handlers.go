package transferserver

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/applibrary/internal/domain/bundle"
	"github.com/GriffinCanCode/applibrary/internal/domain/transfer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type handlers struct {
	inst   *instance
	logger *zap.Logger
}

func (h *handlers) requirePIN(c *gin.Context) {
	if h.inst.pinHash == nil {
		c.Next()
		return
	}
	if err := bcrypt.CompareHashAndPassword(h.inst.pinHash, []byte(c.Query("pin"))); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid pin"})
		return
	}
	c.Next()
}

func (h *handlers) status(c *gin.Context) {
	meta := h.inst.meta
	c.JSON(http.StatusOK, gin.H{
		"id":           meta.ID,
		"name":         meta.Name,
		"version":      meta.Version,
		"mode":         meta.Mode,
		"url":          h.inst.url,
		"pin_required": h.inst.pinHash != nil,
	})
}

func (h *handlers) manifest(c *gin.Context) {
	if h.inst.meta.Mode != transfer.ModeInstall {
		c.JSON(http.StatusNotFound, gin.H{"error": "no manifest for share sessions"})
		return
	}

	data, err := Manifest(h.inst.meta, h.inst.base+"/app.ipa")
	if err != nil {
		h.logger.Error("Failed to render manifest", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render manifest"})
		return
	}
	c.Data(http.StatusOK, "application/xml", data)
}

func (h *handlers) pkg(c *gin.Context) {
	dirName := filepath.Base(h.inst.meta.BundlePath)
	if !strings.HasSuffix(dirName, ".app") {
		dirName = (&bundle.Info{Name: h.inst.meta.Name}).DirName()
	}
	filename := strings.TrimSuffix(dirName, ".app") + ".ipa"

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	if err := PackBundle(c.Writer, h.inst.meta.BundlePath, dirName); err != nil {
		// Headers are already out; the client sees a truncated archive
		h.logger.Error("Failed to stream bundle", zap.Error(err))
		_ = c.Error(err)
		return
	}
	h.logger.Info("Bundle served", zap.String("remote", c.ClientIP()))
}
