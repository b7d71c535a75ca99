// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/cycle-assessment-backend/docs" // swagger spec
	"github.com/tbourn/cycle-assessment-backend/internal/ai"
	"github.com/tbourn/cycle-assessment-backend/internal/config"
	"github.com/tbourn/cycle-assessment-backend/internal/http/handlers"
	"github.com/tbourn/cycle-assessment-backend/internal/http/middleware"
	"github.com/tbourn/cycle-assessment-backend/internal/keylock"
	"github.com/tbourn/cycle-assessment-backend/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// Deps are the runtime dependencies the API is built from.
type Deps struct {
	DB *gorm.DB
	// Locks serializes writes per conversation; nil means in-process.
	Locks keylock.Locker
	// Generator may be nil, in which case every reply is a fallback.
	Generator ai.Generator
	Fallback  services.FallbackReplier
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and builds the services behind them.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access log with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Compression, CORS and security headers
//
// Under the API group, responses are marked no-store and Identity runs
// next; chat send then adds the
// idempotency validator before the rate limiter so replays bypass it.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(middleware.Metrics())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsMiddleware(cfg.CORS)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := newHandlers(d, cfg)
	limiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.NoStore(), middleware.Identity())
	{
		api.POST("/assessment/send", h.CreateAssessment)
		api.GET("/assessment/list", h.ListAssessments)
		api.GET("/assessment/:id", h.GetAssessment)
		api.PUT("/assessment/:id", h.UpdateAssessment)
		api.DELETE("/assessment/:id", h.DeleteAssessment)

		api.POST("/chat/send",
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: handlers.ChatSendScope}, h.ChatSendLookup()),
			limiter.Handler(),
			h.SendMessage,
		)
		api.GET("/chat/history", h.History)
		api.GET("/chat/:conversationId", h.GetConversation)
		api.DELETE("/chat/:conversationId", h.DeleteConversation)
		api.PUT("/chat/:conversationId/assessment", h.RelinkConversation)
		api.PUT("/chat/:conversationId/messages/:messageId", h.EditMessage)
	}
}

// newHandlers builds the service graph over d.
func newHandlers(d Deps, cfg config.Config) *handlers.Handlers {
	locks := d.Locks
	if locks == nil {
		locks = keylock.NewLocal()
	}

	assessments := services.NewAssessmentService(d.DB, log.Logger)
	conversations := services.NewConversationService(d.DB, assessments, locks)
	if cfg.Chat.PreviewRunes > 0 {
		conversations.PreviewRunes = cfg.Chat.PreviewRunes
	}
	threader := services.NewMessageThreader(d.DB, locks)
	threader.MaxRunes = cfg.Chat.MaxMessageRunes

	chat := &services.ChatOrchestrator{
		Assessments:   assessments,
		Conversations: conversations,
		Threader:      threader,
		Generator:     d.Generator,
		Fallback:      d.Fallback,
		ReplyTimeout:  cfg.Chat.ReplyTimeout,
		HistoryLimit:  cfg.Chat.HistoryLimit,
	}

	return handlers.New(handlers.Deps{
		Assessments:    assessments,
		Conversations:  conversations,
		Messages:       threader,
		Chat:           chat,
		DB:             d.DB,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})
}

// corsMiddleware allows every origin when none are configured; otherwise
// only the listed origins are echoed back.
func corsMiddleware(c config.CORSConfig) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"},
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Retry-After", middleware.HeaderIdempotencyReplayed},
		MaxAge:        12 * time.Hour,
	}
	if len(c.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
		// ACAO: * even without an Origin header, for simple health checks.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}
	base.AllowOrigins = c.AllowedOrigins
	return []gin.HandlerFunc{cors.New(base)}
}

// limitBody caps the request body at maxBytes using http.MaxBytesReader.
// Reads beyond the cap fail, which binding turns into a 400.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
