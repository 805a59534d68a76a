package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/models"
	"github.com/casekit/exposer/internal/reindex"
)

const maxRequestListSize = 200

// RequestsHandler manages expose requests.
type RequestsHandler struct {
	db      *gorm.DB
	service *reindex.Service
}

// NewRequestsHandler constructs a RequestsHandler.
func NewRequestsHandler(db *gorm.DB, service *reindex.Service) *RequestsHandler {
	return &RequestsHandler{db: db, service: service}
}

// createRequestBody defines the enqueue payload. Inline requests are
// processed immediately instead of waiting for the poll loop.
type createRequestBody struct {
	CaseInstanceID string `json:"case_instance_id"`
	EntityType     string `json:"entity_type"`
	Inline         bool   `json:"inline"`
}

// Create enqueues one expose request.
func (h *RequestsHandler) Create(c *gin.Context) {
	var body createRequestBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	caseID := strings.TrimSpace(body.CaseInstanceID)
	if caseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case_instance_id is required"})
		return
	}

	request := models.ExposeRequest{
		CaseInstanceID: caseID,
		EntityType:     strings.TrimSpace(body.EntityType),
		RequestedBy:    c.GetString("admin_username"),
		Status:         models.RequestStatusPending,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&request).Error; errCreate != nil {
		log.WithError(errCreate).Warn("admin: enqueue expose request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}

	if body.Inline && h.service != nil {
		status := models.RequestStatusDone
		if errReindex := h.service.Reindex(c.Request.Context(), caseID, request.EntityType); errReindex != nil {
			log.WithError(errReindex).Warnf("admin: inline reindex for case %s failed", caseID)
			status = models.RequestStatusFailed
		}
		now := time.Now()
		request.Status = status
		request.ProcessedAt = &now
		if errUpdate := h.db.WithContext(c.Request.Context()).
			Model(&models.ExposeRequest{}).
			Where("id = ?", request.ID).
			Updates(map[string]any{"status": status, "processed_at": now}).Error; errUpdate != nil {
			log.WithError(errUpdate).Warnf("admin: update inline request %d failed", request.ID)
		}
	}

	c.JSON(http.StatusCreated, request)
}

// List returns recent requests, optionally filtered by status.
func (h *RequestsHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.ExposeRequest{})
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}
	limit := maxRequestListSize
	if raw := c.Query("limit"); raw != "" {
		if parsed, errParse := strconv.Atoi(raw); errParse == nil && parsed > 0 && parsed < maxRequestListSize {
			limit = parsed
		}
	}

	var requests []models.ExposeRequest
	if errFind := query.Order("id DESC").Limit(limit).Find(&requests).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
