package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/metadata"
	"github.com/casekit/exposer/internal/models"
)

const maxClassDefListSize = 200

// ClassDefsHandler manages database-backed metadata overrides.
type ClassDefsHandler struct {
	db       *gorm.DB
	resolver *metadata.Resolver
}

// NewClassDefsHandler constructs a ClassDefsHandler.
func NewClassDefsHandler(db *gorm.DB, resolver *metadata.Resolver) *ClassDefsHandler {
	return &ClassDefsHandler{db: db, resolver: resolver}
}

// List returns stored overrides, optionally filtered by class.
func (h *ClassDefsHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.ClassDefOverride{})
	if class := strings.TrimSpace(c.Query("class")); class != "" {
		query = query.Where("class_name = ?", class)
	}
	limit := maxClassDefListSize
	if raw := c.Query("limit"); raw != "" {
		if parsed, errParse := strconv.Atoi(raw); errParse == nil && parsed > 0 && parsed < maxClassDefListSize {
			limit = parsed
		}
	}

	var overrides []models.ClassDefOverride
	if errFind := query.Order("class_name ASC, version DESC").Limit(limit).Find(&overrides).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"classdefs": overrides})
}

// createClassDefBody defines the override creation payload. The definition is
// the same JSON document shape the file loader accepts.
type createClassDefBody struct {
	Definition json.RawMessage `json:"definition"`
	Enabled    *bool           `json:"enabled"`
}

// Create stores a new override version and evicts the resolver cache for the
// affected class so the next resolve sees it.
func (h *ClassDefsHandler) Create(c *gin.Context) {
	var body createClassDefBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	var def metadata.Definition
	if errUnmarshal := json.Unmarshal(body.Definition, &def); errUnmarshal != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid definition document"})
		return
	}
	if strings.TrimSpace(def.Class) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "definition class is required"})
		return
	}

	enabled := body.Enabled == nil || *body.Enabled
	ctx := c.Request.Context()

	var latestVersion int
	if errVersion := h.db.WithContext(ctx).
		Model(&models.ClassDefOverride{}).
		Where("class_name = ?", def.Class).
		Select("COALESCE(MAX(version), 0)").
		Scan(&latestVersion).Error; errVersion != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "version lookup failed"})
		return
	}

	override := models.ClassDefOverride{
		ClassName:      def.Class,
		EntityType:     def.EntityType,
		Version:        latestVersion + 1,
		JSONDefinition: datatypes.JSON(body.Definition),
		Enabled:        enabled,
	}
	if errCreate := h.db.WithContext(ctx).Create(&override).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	if h.resolver != nil {
		h.resolver.Evict(def.Class)
		if def.EntityType != "" {
			h.resolver.Evict(def.EntityType)
		}
	}
	c.JSON(http.StatusCreated, override)
}
