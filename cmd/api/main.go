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

	"callnote-relay/internal/callctx"
	"callnote-relay/internal/config"
	"callnote-relay/internal/crm"
	"callnote-relay/internal/directory"
	"callnote-relay/internal/overrides"
	"callnote-relay/internal/relay"
	"callnote-relay/internal/relaylog"
	"callnote-relay/internal/resolve"
	"callnote-relay/pkg/logger"
	"callnote-relay/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local runs keep secrets in a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
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

	overrideTable := overrides.Empty()
	if cfg.Relay.OverridesFile != "" {
		overrideTable, err = overrides.LoadFile(cfg.Relay.OverridesFile)
		if err != nil {
			log.Error("override table load failed", "err", err)
			os.Exit(1)
		}
	}

	dirRepo := directory.NewPostgresRepo(db)
	dirService := directory.NewService(dirRepo)

	contexts := callctx.Layered{
		Memory:  callctx.NewMemoryStore(cfg.Relay.CallContextTTL),
		Durable: callctx.NewRedisStore(rdb, cfg.Relay.CallContextTTL),
	}

	crmClient := crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.APIKey)

	engine, err := resolve.NewEngine(overrideTable, dirRepo, crmClient, contexts, cfg.Relay.FallbackContactID, cfg.Relay.LookupTimeout)
	if err != nil {
		log.Error("resolution engine init failed", "err", err)
		os.Exit(1)
	}
	engine.Log = log

	relayHandler := relay.Handler{
		Engine:   engine,
		Composer: relay.Composer{},
		Notes:    crmClient,
		Dedupe:   relay.RedisDeduper{RDB: rdb, TTL: cfg.Relay.DedupeTTL},
		Log:      relaylog.NewService(relaylog.NewPostgresRepo(db)),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	registerRoutes(r, directory.Handlers{Service: dirService}, relayHandler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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
}
