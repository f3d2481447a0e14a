package storage

import (
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/casalinda/server/internal/shared/middleware"
)

const (
	presignExpiry = 15 * time.Minute
	// maxAttachmentSize caps uploads at 10 MiB.
	maxAttachmentSize = 10 << 20
)

// Handler handles HTTP requests for attachment storage.
type Handler struct {
	client *Client
}

// NewHandler creates a new storage handler.
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// RegisterProtectedRoutes registers attachment routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	attachments := r.Group("/attachments")
	{
		attachments.POST("/uploads", h.PresignUpload)
		attachments.GET("/:key/url", h.PresignDownload)
	}
}

// PresignUploadRequest asks for an upload slot for one attachment.
type PresignUploadRequest struct {
	Filename string `json:"filename" binding:"required"`
	Size     int64  `json:"size" binding:"required,min=1"`
}

// PresignUpload returns a presigned upload URL. The object key is
// generated server-side; clients never choose keys.
func (h *Handler) PresignUpload(c *gin.Context) {
	var req PresignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Size > maxAttachmentSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "attachment too large"})
		return
	}

	customerID := middleware.GetCustomerID(c)
	key := fmt.Sprintf("attachments/%s/%s%s",
		customerID, uuid.New(), path.Ext(req.Filename))

	url, err := h.client.PresignUpload(c.Request.Context(), key, req.Size, presignExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to presign upload"})
		return
	}
	c.JSON(http.StatusOK, url)
}

// PresignDownload returns a presigned download URL for an attachment key.
func (h *Handler) PresignDownload(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing attachment key"})
		return
	}

	url, err := h.client.PresignDownload(c.Request.Context(), key, presignExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to presign download"})
		return
	}
	c.JSON(http.StatusOK, url)
}
