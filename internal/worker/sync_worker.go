// Package worker runs the background push side of the sync engine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kharcha/internal/amqp"
	"kharcha/internal/services"
)

// Config holds the sweep loop settings.
type Config struct {
	// PollInterval is how often to sweep for pending expenses (default: 30s)
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 30 * time.Second,
	}
}

// SyncWorker drives push passes: immediately on push-requested messages and
// periodically as a sweep, which also catches records whose message was lost.
type SyncWorker struct {
	sync   *services.SyncService
	config Config

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncWorker(syncService *services.SyncService, config Config) *SyncWorker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	return &SyncWorker{
		sync:   syncService,
		config: config,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Sync worker started",
		"poll_interval", w.config.PollInterval)
	return nil
}

// Stop gracefully stops the worker and waits for completion.
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		slog.InfoContext(ctx, "Sync worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// IsRunning reports whether the worker loop is active.
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *SyncWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Sweep immediately on startup to recover anything pending from a
	// previous run or missed messages.
	w.sweep(ctx)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SyncWorker) sweep(ctx context.Context) {
	pushed, err := w.sync.PushChanges(ctx)
	if err != nil {
		if errors.Is(err, services.ErrSyncInFlight) {
			slog.DebugContext(ctx, "Sweep skipped, sync already in flight")
			return
		}
		slog.ErrorContext(ctx, "Push sweep failed", "error", err)
		return
	}
	if pushed > 0 {
		slog.InfoContext(ctx, "Push sweep completed", "pushed", pushed)
	}
}

// HandlePushRequest processes one push-requested message by running a full
// push pass. An in-flight pass already covers the new record, so that case is
// success, not an error to requeue.
func (w *SyncWorker) HandlePushRequest(ctx context.Context, msg *amqp.PushRequestMessage) error {
	slog.InfoContext(ctx, "Processing push request", "local_id", msg.LocalID)

	if _, err := w.sync.PushChanges(ctx); err != nil {
		if errors.Is(err, services.ErrSyncInFlight) {
			return nil
		}
		return fmt.Errorf("push changes: %w", err)
	}
	return nil
}
