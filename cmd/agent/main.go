package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pushtalk-agent/internal/auth"
	"pushtalk-agent/internal/callstate"
	"pushtalk-agent/internal/config"
	"pushtalk-agent/internal/engine"
	"pushtalk-agent/internal/history"
	"pushtalk-agent/internal/httpapi"
	"pushtalk-agent/internal/lifecycle"
	"pushtalk-agent/internal/presence"
	"pushtalk-agent/internal/procstate"
	"pushtalk-agent/internal/session"
	"pushtalk-agent/pkg/logger"
	"pushtalk-agent/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	journal := history.NewService(history.NewPostgresRepo(db), log)

	store := callstate.NewRedisStore(rdb, cfg.Call.RecoveryWindow)
	store.OnStale = func() {
		journal.Record(context.Background(), history.Event{
			Kind:   history.EventStaleDiscarded,
			Detail: "persisted call older than recovery window",
		})
	}

	probe := procstate.NewActivityProbe(cfg.Call.ForegroundFreshness)

	gwCfg := engine.GatewayConfig{
		URL:         cfg.Gateway.WSURL,
		AppID:       cfg.Gateway.AppID,
		DialTimeout: cfg.Gateway.DialTimeout,
	}
	adapter := engine.NewAdapter(
		engine.NewGatewayFactory(gwCfg),
		engine.NewMinimalGatewayFactory(gwCfg),
		log,
	)

	lease := presence.NewRedisLease(rdb, uuid.NewString(), cfg.Call.PresenceLeaseTTL, log)
	notifier := presence.NewRedisNotifier(rdb, cfg.Call.NotifyChannel)
	keeper := presence.NewKeeper(lease, notifier, &http.Client{Timeout: 10 * time.Second}, log)

	ctrl := session.New(session.Config{
		Engine:   adapter,
		Store:    store,
		Detector: probe,
		Presence: keeper,
		Journal:  journal,
		Log:      log,
	})

	// Resume a persisted, non-stale call from a previous run before taking
	// traffic. Failure is not fatal: the slot stays for a later attempt.
	if err := ctrl.Recover(rootCtx); err != nil {
		log.Error("call recovery failed", "err", err)
	}

	observer := lifecycle.NewObserver(probe, ctrl, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Calls:     ctrl,
		Lifecycle: observer,
		Tokens:    authManager,
		UserID:    cfg.Auth.UserID,
		DeviceID:  cfg.Auth.DeviceID,
	}
	registerRoutes(r, handlers, auth.RequireAccessToken(authManager), db, rdb)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("agent listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// The persisted slot is deliberately NOT cleared here: a supervisor
	// restart recovers the call from it.
	ctrl.Close()
	adapter.Destroy()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
