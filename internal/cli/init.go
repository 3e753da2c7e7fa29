// Package cli collects the start-up steps shared by cmd/tracker and
// cmd/tracker-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"moneytrack/internal/analytics"
	"moneytrack/internal/backend"
	"moneytrack/internal/cache"
	"moneytrack/internal/config"
	"moneytrack/internal/log"
	"moneytrack/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// A missing file is not an error.
func LoadEnvFile(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadConfig reads the environment and validates it.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the root logger for component and makes it the slog
// default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := cfg.Logger(component)
	log.SetDefault(logger)
	return logger
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// InitBackend opens the configured store and broker.
func InitBackend(ctx context.Context, cfg *config.Config, logger *log.Logger, requireAMQP bool) (*backend.Result, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	bcfg.RequireAMQP = requireAMQP
	return backend.NewFactory(logger).CreateBackend(ctx, bcfg)
}

// Services are the application services built on one backend.
type Services struct {
	Expenses   *services.ExpenseService
	Categories *services.CategoryService
	// StatsCache is nil when STATS_CACHE_TTL is zero.
	StatsCache *cache.LRUCache[analytics.Stats]
}

// NewServices wires the services to the store of res and, when connected, to
// its broker for expense events.
func NewServices(cfg *config.Config, res *backend.Result, logger *log.Logger) Services {
	scfg := services.Config{
		MinConfidence: cfg.IngestMinConfidence,
		Logger:        logger,
	}
	if res.Broker != nil {
		scfg.Publisher = res.Broker
	}

	var out Services
	if cfg.StatsCacheTTL > 0 {
		out.StatsCache = cache.NewLRUCache[analytics.Stats](cfg.StatsCacheSize, cfg.StatsCacheTTL)
		scfg.StatsCache = out.StatsCache
	}
	out.Categories = services.NewCategoryService(res.Store, scfg)
	out.Expenses = services.NewExpenseService(res.Store, out.Categories, scfg)
	return out
}
