package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/casekit/exposer/internal/metadata"
)

// MetadataHandler exposes the resolved metadata views.
type MetadataHandler struct {
	resolver *metadata.Resolver
}

// NewMetadataHandler constructs a MetadataHandler.
func NewMetadataHandler(resolver *metadata.Resolver) *MetadataHandler {
	return &MetadataHandler{resolver: resolver}
}

// Mappings returns the flattened column→mapping set for a class.
func (h *MetadataHandler) Mappings(c *gin.Context) {
	class := strings.TrimSpace(c.Param("class"))
	if class == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class is required"})
		return
	}
	merged := h.resolver.MappingsFor(c.Request.Context(), class)
	out := make([]gin.H, 0, merged.Len())
	for _, key := range merged.Keys() {
		fm, _ := merged.Get(key)
		out = append(out, gin.H{"key": key, "mapping": fm})
	}
	c.JSON(http.StatusOK, gin.H{"class": class, "mappings": out})
}

// Diagnostics returns the non-fatal merge diagnostics for a class.
func (h *MetadataHandler) Diagnostics(c *gin.Context) {
	class := strings.TrimSpace(c.Param("class"))
	if class == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"class":       class,
		"diagnostics": h.resolver.DiagnosticsFor(c.Request.Context(), class),
	})
}

// evictRequest defines the eviction payload; an empty key clears everything.
type evictRequest struct {
	Key string `json:"key"`
}

// Evict drops cached merge results.
func (h *MetadataHandler) Evict(c *gin.Context) {
	var body evictRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Key) == "" {
		h.resolver.EvictAll()
	} else {
		h.resolver.Evict(body.Key)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
