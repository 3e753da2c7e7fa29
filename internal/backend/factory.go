package backend

import (
	"context"
	"errors"
	"fmt"

	"moneytrack/internal/amqp"
	"moneytrack/internal/log"
	"moneytrack/internal/storage"
	"moneytrack/internal/storage/memory"
)

var _ Factory = (*DefaultFactory)(nil)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the store and, when configured, the broker client.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(config)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	var broker *amqp.Client
	if config.AMQP.URL != "" {
		broker, err = amqp.NewClient(config.AMQP, f.logger)
		switch {
		case err != nil && config.RequireAMQP:
			store.Close()
			return nil, fmt.Errorf("connect AMQP: %w", err)
		case err != nil:
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
			broker = nil
		default:
			f.logger.Info("Initialized AMQP client", "exchange", config.AMQP.Exchange)
		}
	}

	f.logger.Info("Backend ready", "type", config.Type, "amqp_enabled", broker != nil)

	return &Result{
		Store:  store,
		Broker: broker,
		Cleanup: func() error {
			var errs []error
			if broker != nil {
				if err := broker.Close(); err != nil {
					errs = append(errs, fmt.Errorf("amqp: %w", err))
				}
			}
			if err := store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createStore(config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
