package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/configs"
	"github.com/nexanet/configbot/internal/models"
)

const defaultConfigListLimit = 100

// ConfigHandler manages stored config files.
type ConfigHandler struct {
	configs *configs.Service
	now     func() time.Time
}

// NewConfigHandler constructs a ConfigHandler.
func NewConfigHandler(svc *configs.Service, now func() time.Time) *ConfigHandler {
	if now == nil {
		now = time.Now
	}
	return &ConfigHandler{configs: svc, now: now}
}

// List returns active configs, optionally filtered by category.
func (h *ConfigHandler) List(c *gin.Context) {
	var (
		rows    []models.StoredFile
		errList error
	)
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		rows, errList = h.configs.ListByCategory(c.Request.Context(), category)
	} else {
		rows, errList = h.configs.ListAll(c.Request.Context(), queryInt(c, "limit", defaultConfigListLimit))
	}
	if errList != nil {
		writeError(c, "list configs", errList)
		return
	}
	now := h.now()
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, configView(&rows[i], now))
	}
	c.JSON(http.StatusOK, gin.H{"configs": out})
}

// Upload accepts a multipart form with a "category" field and a "file" part.
func (h *ConfigHandler) Upload(c *gin.Context) {
	category := strings.TrimSpace(c.PostForm("category"))
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing category"})
		return
	}
	header, errForm := c.FormFile("file")
	if errForm != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	src, errOpen := header.Open()
	if errOpen != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer func() { _ = src.Close() }()

	f, errUpload := h.configs.Upload(c.Request.Context(), configs.UploadRequest{
		Category:     category,
		OriginalName: header.Filename,
		UploaderID:   c.GetInt64("adminID"),
		Body:         src,
	})
	if errUpload != nil {
		writeError(c, "upload config", errUpload)
		return
	}
	c.JSON(http.StatusCreated, configView(f, h.now()))
}

// Delete removes a config and its encrypted blob.
func (h *ConfigHandler) Delete(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	f, errDelete := h.configs.Delete(c.Request.Context(), id)
	if errDelete != nil {
		writeError(c, "delete config", errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": f.ConfigID, "original_filename": f.OriginalFilename})
}

func configView(f *models.StoredFile, now time.Time) gin.H {
	return gin.H{
		"config_id":         f.ConfigID,
		"original_filename": f.OriginalFilename,
		"category":          f.Category,
		"file_size":         f.FileSize,
		"upload_date":       f.UploadDate,
		"expiry_date":       f.ExpiryDate,
		"total_downloads":   f.TotalDownloads,
		"is_active":         f.IsActive,
		"available":         f.Available(now),
	}
}
