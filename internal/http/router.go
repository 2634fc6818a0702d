// Package httpapi assembles the Gin engine: middleware chain, the chat and
// visit API under the configured base path, and the tracked HTML pages.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatboard/internal/config"
	"github.com/tbourn/go-chatboard/internal/domain"
	"github.com/tbourn/go-chatboard/internal/http/handlers"
	"github.com/tbourn/go-chatboard/internal/http/middleware"
	"github.com/tbourn/go-chatboard/internal/repo"
	"github.com/tbourn/go-chatboard/internal/services"
)

// maxBodyBytes caps request bodies; a chat post is a short JSON object.
const maxBodyBytes = 64 << 10

// pageCSP keeps scripts same-origin. The board UI renders buttons with
// inline onclick handlers and pulls icon fonts and stylesheets from a CDN.
const pageCSP = "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline' https:; font-src 'self' https: data:; " +
	"img-src 'self' data:; connect-src 'self'; frame-ancestors 'none'"

// assetCache lets browsers reuse page scripts briefly; they are not counted.
const assetCache = "public, max-age=300"

// chatRepoShim adapts the repository free functions to the services.ChatRepo
// interface expected by the ChatService. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type chatRepoShim struct{}

// CreateChatWithinQuota proxies repo.CreateChatWithinQuota.
func (chatRepoShim) CreateChatWithinQuota(ctx context.Context, db *gorm.DB, in repo.NewChat) (*domain.ChatMessage, int64, error) {
	return repo.CreateChatWithinQuota(ctx, db, in)
}

// ListRecentChats proxies repo.ListRecentChats.
func (chatRepoShim) ListRecentChats(ctx context.Context, db *gorm.DB, limit int, newestFirst bool) ([]domain.ChatMessage, error) {
	return repo.ListRecentChats(ctx, db, limit, newestFirst)
}

// CountChatsSince proxies repo.CountChatsSince.
func (chatRepoShim) CountChatsSince(ctx context.Context, db *gorm.DB, addr string, since time.Time) (int64, error) {
	return repo.CountChatsSince(ctx, db, addr, since)
}

// OldestChatSince proxies repo.OldestChatSince (Retry-After support).
func (chatRepoShim) OldestChatSince(ctx context.Context, db *gorm.DB, addr string, since time.Time) (*time.Time, error) {
	return repo.OldestChatSince(ctx, db, addr, since)
}

// ChatsStats proxies repo.ChatsStats (ETag support).
func (chatRepoShim) ChatsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.ChatsStats(ctx, db)
}

// RegisterRoutes installs the middleware chain and every route on r. mod
// screens chat messages; callers build it from the word list and the optional
// remote classifier.
//
// Order: tracing, request id, access log, recovery, body cap, metrics,
// replay guard, throttle, CORS, security headers. The replay guard runs before
// the throttle so a retried post is not rejected for flooding.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, mod services.Moderator, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// ClientIP is the rate-limit and visitor identity, so only listed
	// proxies may set X-Forwarded-For.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn().Err(err).Strs("proxies", cfg.TrustedProxies).Msg("invalid TRUSTED_PROXIES, trusting none")
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.AccessLog(middleware.AccessLogOptions{
			MaskHeaders: []string{"X-Api-Key"},
			SkipPaths:   []string{"/health", "/metrics"},
		}),
		middleware.Recovery(),
		limitBody(maxBodyBytes),
		middleware.Metrics(cfg.APIBasePath),
	)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.ReplayGuard(middleware.ReplayOptions{},
		func(ctx context.Context, addr, route, key string, now time.Time) (bool, error) {
			_, err := repo.FindReceipt(ctx, db, addr, route, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
	))
	r.Use(middleware.NewThrottle(middleware.ThrottleOptions{
		RPS:    cfg.RateRPS,
		Burst:  cfg.RateBurst,
		Exempt: []string{"/health", "/metrics"},
	}).Handler())

	r.Use(corsFor(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		HSTS:       cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/moderator
	chatSvc := services.NewChatService(db, chatRepoShim{}, mod)
	if cfg.Chat.Limit > 0 {
		chatSvc.Limit = int64(cfg.Chat.Limit)
	}
	if cfg.Chat.Window > 0 {
		chatSvc.Window = cfg.Chat.Window
	}
	if cfg.Chat.MaxLen > 0 {
		chatSvc.MaxLen = cfg.Chat.MaxLen
	}
	if cfg.Chat.ListLimit > 0 {
		chatSvc.ListLimit = cfg.Chat.ListLimit
	}
	if cfg.IdempotencyTTL > 0 {
		chatSvc.IdempotencyTTL = cfg.IdempotencyTTL
	}
	visitSvc := &services.VisitService{DB: db}
	statsSvc := &services.StatsService{DB: db}
	h := handlers.New(chatSvc, visitSvc, statsSvc, cfg.PublicDir)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api"
	{
		// Chats
		api.POST("/chats", h.PostChat)
		api.GET("/chats", h.ListChats)

		// Visits
		api.GET("/page-views", h.PageViews)
		api.GET("/unique-visitors", h.UniqueVisitors)
		api.GET("/client-info", h.ClientInfo)

		// Engagement
		api.GET("/stats", h.Stats)
	}

	// HTML pages, each successful view counted once per visitor.
	pages := r.Group("")
	pages.Use(
		middleware.SecurityHeaders(middleware.SecurityOptions{CSP: pageCSP, CacheControl: "no-cache"}),
		middleware.TrackVisit(visitSvc, cfg.TrackTimeout),
	)
	{
		pages.GET("/", h.Page(handlers.FileHome))
		pages.GET("/about", h.Page(handlers.FileAbout))
		pages.GET("/contact", h.Page(handlers.FileContact))
		pages.GET("/articles", h.Page(handlers.FileArticles))
		pages.GET("/article/:slug", h.Page(handlers.FileArticle))
	}

	// Scripts under PUBLIC_DIR/src, served without tracking or listings.
	assets := r.Group("/src")
	assets.Use(middleware.SecurityHeaders(middleware.SecurityOptions{CacheControl: assetCache}))
	assets.StaticFS("/", gin.Dir(filepath.Join(cfg.PublicDir, "src"), false))
}

// corsFor allows any origin when origins is empty and echoes listed origins
// otherwise. Credentials are never allowed: the board has no sessions.
func corsFor(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After", "ETag", "Idempotency-Replayed"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// ACAO on every response, not only on requests carrying Origin.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if o := c.GetHeader("Origin"); o != "" {
				if _, ok := allowed[o]; ok {
					c.Writer.Header().Set("Access-Control-Allow-Origin", o)
					c.Writer.Header().Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
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
