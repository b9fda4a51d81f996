package http

import "github.com/gin-gonic/gin"

// Register mounts every library and transfer route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	library := r.Group("/library")
	{
		library.POST("/import", h.ImportFile)
		library.POST("/download", h.Download)
		library.GET("/imports", h.ListImports)
		library.GET("/imports/:id", h.GetImport)
		library.GET("/apps", h.ListApps)
		library.GET("/apps/:id", h.GetApp)
		library.DELETE("/apps/:id", h.DeleteApp)
		library.POST("/apps/:id/install", h.InstallApp)
		library.POST("/apps/:id/share", h.ShareApp)
	}

	transfers := r.Group("/transfers")
	{
		transfers.GET("", h.ListTransfers)
		transfers.DELETE("/:id", h.CloseTransfer)
	}
}
