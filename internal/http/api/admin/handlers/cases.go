package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/models"
)

// CasesHandler appends case snapshots. The store is append-only; a new
// snapshot bumps the version, it never rewrites history.
type CasesHandler struct {
	db *gorm.DB
}

// NewCasesHandler constructs a CasesHandler.
func NewCasesHandler(db *gorm.DB) *CasesHandler {
	return &CasesHandler{db: db}
}

// appendCaseBody defines the snapshot payload.
type appendCaseBody struct {
	CaseInstanceID string          `json:"case_instance_id"`
	EntityType     string          `json:"entity_type"`
	Payload        json.RawMessage `json:"payload"`
}

// Append stores one case snapshot.
func (h *CasesHandler) Append(c *gin.Context) {
	var body appendCaseBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	caseID := strings.TrimSpace(body.CaseInstanceID)
	if caseID == "" || len(body.Payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case_instance_id and payload are required"})
		return
	}
	ctx := c.Request.Context()

	var latestVersion int
	if errVersion := h.db.WithContext(ctx).
		Model(&models.CaseRecord{}).
		Where("case_instance_id = ?", caseID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&latestVersion).Error; errVersion != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "version lookup failed"})
		return
	}

	record := models.CaseRecord{
		CaseInstanceID: caseID,
		EntityType:     strings.TrimSpace(body.EntityType),
		Payload:        string(body.Payload),
		Version:        latestVersion + 1,
	}
	if errCreate := h.db.WithContext(ctx).Create(&record).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "append failed"})
		return
	}
	c.JSON(http.StatusCreated, record)
}
