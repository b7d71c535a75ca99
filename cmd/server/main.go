// Command server runs the cycle assessment API.
//
// @title       Cycle Assessment API
// @version     1.0
// @description Menstrual cycle assessments and assessment-anchored chat.
// @BasePath    /
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/cycle-assessment-backend/internal/ai"
	"github.com/tbourn/cycle-assessment-backend/internal/config"
	"github.com/tbourn/cycle-assessment-backend/internal/guidance"
	httpapi "github.com/tbourn/cycle-assessment-backend/internal/http"
	"github.com/tbourn/cycle-assessment-backend/internal/keylock"
	"github.com/tbourn/cycle-assessment-backend/internal/observability"
	"github.com/tbourn/cycle-assessment-backend/internal/repo"
	"github.com/tbourn/cycle-assessment-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = ""

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.MustLoad()
	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")
	sysutil.SetupLogging(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, ver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	var locks keylock.Locker = keylock.NewLocal()
	if cfg.Lock.RedisAddr != "" {
		rl, err := keylock.NewRedis(keylock.RedisOptions{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
			TTL:      cfg.Lock.TTL,
		})
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Lock.RedisAddr).Msg("redis lock setup failed")
		}
		defer rl.Close()
		locks = rl
		log.Info().Str("addr", cfg.Lock.RedisAddr).Msg("conversation locks in redis")
	}

	deps := httpapi.Deps{DB: db, Locks: locks}
	if gen, err := ai.NewOpenAIGenerator(cfg.AI); err != nil {
		log.Warn().Err(err).Msg("reply generator disabled, answering from local guidance")
	} else {
		deps.Generator = gen
	}
	guide, err := guidance.New()
	if err != nil {
		log.Fatal().Err(err).Msg("load guidance")
	}
	deps.Fallback = guide

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

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
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
