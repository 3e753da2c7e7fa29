// Command tracker serves the expense tracker JSON API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneytrack/internal/cache"
	"moneytrack/internal/cli"
	apphttp "moneytrack/internal/http"
	"moneytrack/internal/log"
	"moneytrack/internal/middleware/ratelimit"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := cli.LoadEnvFile(); err != nil {
		return err
	}
	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, stop := cli.SignalContext()
	defer stop()

	res, err := cli.InitBackend(ctx, cfg, logger, false)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldOperation, log.OpStartup)
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err, log.FieldOperation, log.OpShutdown)
		}
	}()

	svc := cli.NewServices(cfg, res, logger)

	rl := ratelimit.DefaultConfig()
	rl.RPS, rl.Burst = cfg.RateLimitRPS, cfg.RateLimitBurst
	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Expenses:       svc.Expenses,
		Categories:     svc.Categories,
		Ready:          res.Store.Ping,
		Logger:         logger,
		RateLimit:      rl,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting tracker server", "port", cfg.Port, "backend", cfg.DataBackend,
			"amqp", res.Broker != nil, log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if svc.StatsCache != nil {
		janitor := cache.NewJanitor(cfg.StatsCacheTTL, logger)
		janitor.Register(svc.StatsCache)
		g.Go(func() error { return janitor.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
