package handlers

import (
	"net/http"

	"collabEngine/backend/internal/collab"

	"github.com/gin-gonic/gin"
)

// AdminHandlers exposes operational endpoints over the document
// registry: inspect open documents and force persistence.
type AdminHandlers struct {
	registry *collab.Registry
}

func NewAdminHandlers(registry *collab.Registry) *AdminHandlers {
	return &AdminHandlers{registry: registry}
}

func (h *AdminHandlers) ListDocuments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"documents": h.registry.OpenDocuments()})
}

// FlushDocument persists one document immediately, skipping the
// debounce window.
func (h *AdminHandlers) FlushDocument(c *gin.Context) {
	projectID := c.Param("projectID")
	fileID := c.Param("fileID")
	if projectID == "" || fileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "projectID and fileID required"})
		return
	}
	key := collab.DocKey{ProjectID: projectID, FileID: fileID}
	h.registry.FlushNow(c.Request.Context(), key)
	c.JSON(http.StatusOK, gin.H{"flushed": key.String()})
}

func (h *AdminHandlers) FlushAll(c *gin.Context) {
	h.registry.SaveAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}
