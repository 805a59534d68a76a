package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/config"
	"github.com/casekit/exposer/internal/http/api/admin/handlers"
	"github.com/casekit/exposer/internal/metadata"
	"github.com/casekit/exposer/internal/reindex"
	"github.com/casekit/exposer/internal/security"
)

// RegisterAdminRoutes registers the admin API under /v1/admin. Login and
// health are public; everything else requires a bearer token.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, authCfg config.AuthConfig, resolver *metadata.Resolver, service *reindex.Service) {
	if r == nil || db == nil {
		return
	}

	group := r.Group("/v1/admin")

	authHandler := handlers.NewAuthHandler(authCfg)
	group.POST("/login", authHandler.Login)

	healthHandler := handlers.NewHealthHandler(db)
	group.GET("/health", healthHandler.Healthz)

	authed := group.Group("")
	authed.Use(adminAuthMiddleware(authCfg))

	requestsHandler := handlers.NewRequestsHandler(db, service)
	authed.POST("/requests", requestsHandler.Create)
	authed.GET("/requests", requestsHandler.List)

	metadataHandler := handlers.NewMetadataHandler(resolver)
	authed.GET("/metadata/:class/mappings", metadataHandler.Mappings)
	authed.GET("/metadata/:class/diagnostics", metadataHandler.Diagnostics)
	authed.POST("/metadata/evict", metadataHandler.Evict)

	classDefsHandler := handlers.NewClassDefsHandler(db, resolver)
	authed.GET("/classdefs", classDefsHandler.List)
	authed.POST("/classdefs", classDefsHandler.Create)

	casesHandler := handlers.NewCasesHandler(db)
	authed.POST("/cases", casesHandler.Append)
}

// adminAuthMiddleware validates admin JWTs.
func adminAuthMiddleware(authCfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		claims, errJWT := security.ParseAdminToken(authCfg.JWTSecret, strings.TrimSpace(token))
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("admin_username", claims.Username)
		c.Next()
	}
}
