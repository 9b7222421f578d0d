package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	audithandler "costing-api/backend/internal/audit/handler"
	auditrepo "costing-api/backend/internal/audit/repository"
	identityhandler "costing-api/backend/internal/identity/handler"
	"costing-api/backend/internal/identity/service"
	"costing-api/backend/internal/security"
	"costing-api/backend/internal/server/middleware"
	sessionhandler "costing-api/backend/internal/session/handler"
)

// Options configures the router.
type Options struct {
	AuthService    *service.AuthService
	Cookies        *security.CookieManager
	DB             *sql.DB
	AuditLogs      auditrepo.Repository
	AllowedOrigins []string
	TracerProvider trace.TracerProvider
	Production     bool

	// Requests per minute per client IP. GlobalRateLimit covers every route;
	// AuthRateLimit additionally throttles login and refresh. Zero disables.
	GlobalRateLimit int64
	AuthRateLimit   int64
}

// New builds the gin engine with CORS, logging, tracing, and all routes.
func New(opts Options) *gin.Engine {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	if opts.TracerProvider != nil {
		r.Use(middleware.Tracing(opts.TracerProvider))
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if opts.GlobalRateLimit > 0 {
		r.Use(middleware.RateLimit(opts.GlobalRateLimit, time.Minute))
	}

	r.GET("/healthz", healthz(opts.DB))

	authRequired := middleware.Authenticate(opts.AuthService)
	var authLimit gin.HandlerFunc
	if opts.AuthRateLimit > 0 {
		authLimit = middleware.RateLimit(opts.AuthRateLimit, time.Minute)
	}

	v1 := r.Group("/api/v1")
	identityhandler.NewAuthHandler(opts.AuthService, opts.Cookies).RegisterRoutes(v1, authRequired, authLimit)
	sessionhandler.NewSessionHandler(opts.AuthService).RegisterRoutes(v1, authRequired)
	if opts.AuditLogs != nil {
		audithandler.NewAuditHandler(opts.AuditLogs).RegisterRoutes(v1, authRequired, middleware.RequireAdmin())
	}

	return r
}

func healthz(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
