// Package backend assembles the persistence and messaging resources selected
// by configuration.
package backend

import (
	"context"

	"moneytrack/internal/amqp"
	"moneytrack/internal/storage"
)

// BackendType names a Store implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc releases the resources of a Result.
type CleanupFunc func() error

// Result holds what the factory built. Broker is nil when no AMQP URL is
// configured or the broker was unreachable and not required.
type Result struct {
	Store   storage.Store
	Broker  *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}
