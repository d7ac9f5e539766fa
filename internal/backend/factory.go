package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

var errNoSuchRow = errors.New("no such row")

// BackendType selects the remote store adapter.
type BackendType string

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Config holds what the factory needs to build a Client.
type Config struct {
	Type BackendType

	// Postgres specific
	PostgresDSN    string
	RequestTimeout time.Duration
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == PostgresBackend {
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN is required for postgres backend")
		}
		if c.RequestTimeout <= 0 {
			return fmt.Errorf("request timeout must be positive")
		}
	}
	return nil
}

// CleanupFunc releases adapter resources.
type CleanupFunc func() error

// New creates the configured Client and its cleanup function.
func New(logger *slog.Logger, config Config) (Client, CleanupFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}

	switch config.Type {
	case PostgresBackend:
		client, err := NewPostgresClient(config.PostgresDSN, config.RequestTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize postgres backend: %w", err)
		}
		logger.Info("Initialized postgres backend", "request_timeout", config.RequestTimeout)
		return client, client.Close, nil
	case MemoryBackend:
		logger.Info("Initialized memory backend")
		return NewMemoryClient(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
