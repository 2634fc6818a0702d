// Command server runs the chat board: tracked HTML pages, the moderated chat
// API and the visit counters.
//
//	@title			go-chatboard API
//	@version		1.0
//	@description	Moderated, rate-limited public chat board with page visit tracking.
//	@BasePath		/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-chatboard/docs"
	"github.com/tbourn/go-chatboard/internal/config"
	httpapi "github.com/tbourn/go-chatboard/internal/http"
	"github.com/tbourn/go-chatboard/internal/moderation"
	"github.com/tbourn/go-chatboard/internal/observability"
	"github.com/tbourn/go-chatboard/internal/repo"
	"github.com/tbourn/go-chatboard/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment wins.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	ver := sysutil.Version(version)
	sysutil.SetupLogger(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
		Version: ver,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.BuildInfo{
		Version:     ver,
		Environment: cfg.GinMode,
		DBDriver:    cfg.DB.Driver,
		Classifier:  cfg.Moderation.APIKey != "",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(repo.Options{Driver: cfg.DB.Driver, Path: cfg.DB.Path, DSN: cfg.DB.URL})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		log.Warn().Err(err).Msg("gorm tracing plugin not installed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	mod, closeMod := buildModerator(ctx, cfg)
	defer closeMod()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	httpapi.RegisterRoutes(r, db, mod, cfg)

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		docs.SwaggerInfo.Version = ver
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	go purgeReceipts(ctx, db)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db", cfg.DB.Driver).
			Str("public_dir", cfg.PublicDir).
			Bool("classifier", cfg.Moderation.APIKey != "").
			Msg("chatboard listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// buildModerator assembles the moderation pipeline. The local filter always
// runs; the remote classifier is added when an API key is configured, and
// its verdicts are cached in Redis when REDIS_ADDR is set and reachable.
func buildModerator(ctx context.Context, cfg config.Config) (*moderation.Pipeline, func()) {
	words := moderation.DefaultWordlist()
	if p := cfg.Moderation.WordlistPath; p != "" {
		w, err := moderation.LoadWordlist(p)
		if err != nil {
			log.Fatal().Err(err).Str("path", p).Msg("load wordlist")
		}
		words = w
	}
	lexical := moderation.NewLexicalFilter(words)
	log.Info().Int("terms", words.Len()).Msg("wordlist loaded")

	if cfg.Moderation.APIKey == "" {
		log.Warn().Msg("MODERATION_API_KEY not set, remote classifier disabled")
		return moderation.NewPipeline(lexical, moderation.NoopClassifier{}), func() {}
	}

	llm, err := moderation.NewLLMClassifier(moderation.LLMConfig{
		APIKey:  cfg.Moderation.APIKey,
		BaseURL: cfg.Moderation.BaseURL,
		Model:   cfg.Moderation.Model,
		Timeout: cfg.Moderation.Timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("moderation classifier")
	}

	if cfg.Redis.Addr == "" || cfg.Moderation.CacheTTL == 0 {
		return moderation.NewPipeline(lexical, llm), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, verdict cache disabled")
		_ = rdb.Close()
		return moderation.NewPipeline(lexical, llm), func() {}
	}

	cached := moderation.NewCachedClassifier(llm, moderation.NewRedisVerdictStore(rdb), cfg.Moderation.CacheTTL)
	return moderation.NewPipeline(lexical, cached), func() { _ = rdb.Close() }
}

// purgeReceipts drops expired post receipts once an hour until ctx ends.
func purgeReceipts(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeReceipts(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("receipt purge")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("receipts purged")
			}
		}
	}
}
