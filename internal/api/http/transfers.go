package http

import (
	"net/http"

	"github.com/GriffinCanCode/applibrary/internal/domain/transfer"
	"github.com/gin-gonic/gin"
)

// TransferRequest starts an install or share session
type TransferRequest struct {
	Consumer string `json:"consumer"`
	PIN      string `json:"pin"`
}

// InstallApp starts an install session for a catalog entry
func (h *Handlers) InstallApp(c *gin.Context) {
	h.startTransfer(c, transfer.ModeInstall)
}

// ShareApp starts a share session for a catalog entry
func (h *Handlers) ShareApp(c *gin.Context) {
	h.startTransfer(c, transfer.ModeShare)
}

func (h *Handlers) startTransfer(c *gin.Context, mode transfer.Mode) {
	var req TransferRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	entry, err := h.catalog.Load(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var session *transfer.Session
	if mode == transfer.ModeInstall {
		session, err = h.transfers.StartInstall(ctx, req.Consumer, entry, entry.BundlePath)
	} else {
		session, err = h.transfers.StartShare(ctx, req.Consumer, entry, entry.BundlePath, req.PIN)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, session.Info())
}

// ListTransfers lists live transfer sessions
func (h *Handlers) ListTransfers(c *gin.Context) {
	sessions := h.transfers.List()
	c.JSON(http.StatusOK, gin.H{
		"transfers": sessions,
		"count":     len(sessions),
	})
}

// CloseTransfer is the consumer's signal that a session is done
func (h *Handlers) CloseTransfer(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.transfers.Close(c.Request.Context(), sessionID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": sessionID})
}
