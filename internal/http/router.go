// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup: all dependencies injected
package httpapi

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/pverne/scanledger/internal/config"
	"github.com/pverne/scanledger/internal/cropper"
	"github.com/pverne/scanledger/internal/http/handlers"
	"github.com/pverne/scanledger/internal/http/middleware"
	"github.com/pverne/scanledger/internal/marketplace"
	"github.com/pverne/scanledger/internal/services"
	"github.com/pverne/scanledger/internal/vision"
	"github.com/pverne/scanledger/internal/workflow"
)

// Collaborators are the external systems the pipeline and listing sync talk
// to. Injected so tests can swap fakes in without touching the router.
type Collaborators struct {
	Cropper     cropper.Cropper
	Extractor   vision.Extractor
	Marketplace marketplace.Client
	Taxonomy    marketplace.Taxonomy
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Structured access logging
//  4. Recovery: capture panics after logger
//  5. Body size limiter (uploads are image sheets, so the cap is generous)
//  6. Metrics
//  7. Rate limiter (per session/IP)
//  8. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, collab Collaborators, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	maxBody := int64(cfg.MaxUploadMB) << 20
	if maxBody <= 0 {
		maxBody = 32 << 20
	}
	r.Use(limitBody(maxBody))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per session/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySessionOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Session-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← db + collaborators
	identity := &services.IdentityService{DB: db, Log: log.With().Str("component", "identity").Logger()}
	cache := &services.CacheService{DB: db, Log: log.With().Str("component", "cache").Logger()}
	activity := &services.ActivityService{DB: db}
	listings := &services.ListingService{
		DB:        db,
		Client:    collab.Marketplace,
		Taxonomy:  collab.Taxonomy,
		SKUPrefix: cfg.SKUPrefix,
		Log:       log.With().Str("component", "listings").Logger(),
	}
	pipeline := &workflow.Pipeline{
		Identity:      identity,
		Cache:         cache,
		Activity:      activity,
		Cropper:       collab.Cropper,
		Extractor:     collab.Extractor,
		WorkDir:       cfg.ArtifactDir,
		PromptVariant: cfg.PromptVariant,
		Log:           log.With().Str("component", "pipeline").Logger(),
	}

	h := handlers.New(pipeline, cache, identity, activity, listings,
		filepath.Join(cfg.ArtifactDir, "staging"))

	// Public API
	api := r.Group("/api/v1")
	{
		// Ingestion
		api.POST("/uploads", h.Upload)
		api.POST("/combine", h.Combine)

		// Scans and artifacts
		api.GET("/scans/unlisted", h.UnlistedScans)
		api.GET("/scans/:id/artifact", h.GetArtifact)
		api.POST("/scans/:id/artifact", h.MergeArtifact)
		api.DELETE("/scans/:id/artifact", h.InvalidateArtifact)
		api.GET("/scans/:id/listing", h.ScanListing)

		// Session history
		api.GET("/sessions/:id/activity", h.SessionActivity)

		// Listings
		api.POST("/listings", h.CreateListing)
		api.GET("/listings/failed", h.FailedListings)
		api.POST("/listings/:sku/submit", h.SubmitListing)
		api.PUT("/listings/:sku", h.CorrectListing)
		api.POST("/listings/:sku/relist", h.RelistListing)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader; oversized bodies error on downstream reads.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
