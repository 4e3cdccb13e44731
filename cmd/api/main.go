package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/axiom-os/ccp/internal/app/migrate"
	httpx "github.com/axiom-os/ccp/internal/http"
	"github.com/axiom-os/ccp/internal/repository/postgres"
	"github.com/axiom-os/ccp/internal/service/binding"
	"github.com/axiom-os/ccp/internal/service/promotion"
	"github.com/axiom-os/ccp/internal/service/tomain"
	"github.com/axiom-os/ccp/internal/shell"
	"github.com/axiom-os/ccp/internal/ws"
	"github.com/axiom-os/ccp/pkg/config"
	"github.com/axiom-os/ccp/pkg/logger"
)

func main() {
	cfg := config.LoadRegistryConfig()
	log := logger.New("registry-api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()
	defer hub.Close()

	var host shell.Host
	if base := strings.TrimSpace(cfg.ShellBaseURL); base != "" {
		shellClient, err := shell.New(base, cfg.ShellTimeout, log)
		if err != nil {
			log.Warn("shell host not configured", "error", err)
		} else {
			host = shellClient
		}
	}

	tomainSvc := tomain.New(repo, repo, repo, host, log)
	bindingSvc := binding.New(repo, repo, host, hub, log)
	promotionSvc := promotion.New(repo, repo, repo, host, hub, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, tomainSvc, bindingSvc, promotionSvc, hub, limiter, cfg.AdminToken, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("registry api starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("registry api stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
