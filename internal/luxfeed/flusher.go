package luxfeed

import (
	"context"
	"sync"
	"time"

	"github.com/fieldsense/lux.report/internal/monitoring"
)

// EstimateRecorder is an interface for types that can write one
// point-in-time estimate record. Processor implements this interface.
type EstimateRecorder interface {
	FlushEstimate() error
}

// EstimateFlusher periodically flushes a Processor's estimate to the
// database. It provides context-aware lifecycle management for the
// estimate history.
type EstimateFlusher struct {
	recorder EstimateRecorder
	interval time.Duration
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// EstimateFlusherConfig contains configuration for EstimateFlusher.
type EstimateFlusherConfig struct {
	// Recorder is the estimate source to flush (typically a Processor)
	Recorder EstimateRecorder
	// Interval is how often to flush (e.g., time.Second)
	Interval time.Duration
}

// NewEstimateFlusher creates a new EstimateFlusher.
func NewEstimateFlusher(cfg EstimateFlusherConfig) *EstimateFlusher {
	return &EstimateFlusher{
		recorder: cfg.Recorder,
		interval: cfg.Interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run starts the periodic flushing loop. It blocks until the context is
// cancelled or Stop() is called. Returns nil on clean shutdown.
func (f *EstimateFlusher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil // already running
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.mu.Unlock()

	defer func() {
		close(f.doneCh)
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	if f.interval <= 0 {
		monitoring.Logf("EstimateFlusher: interval is zero or negative, not starting")
		return nil
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	monitoring.Logf("EstimateFlusher started: interval=%v", f.interval)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("EstimateFlusher stopping due to context cancellation")
			f.flushFinal()
			return nil
		case <-f.stopCh:
			monitoring.Logf("EstimateFlusher stopping due to Stop() call")
			f.flushFinal()
			return nil
		case <-ticker.C:
			f.flush()
		}
	}
}

// Stop requests the flusher to stop. It is safe to call multiple times.
func (f *EstimateFlusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	select {
	case <-f.stopCh:
		// already closed
	default:
		close(f.stopCh)
	}
	f.mu.Unlock()

	// Wait for completion
	<-f.doneCh
}

// IsRunning returns whether the flusher is currently running.
func (f *EstimateFlusher) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// flush performs a single flush operation. Estimate flushes fire every
// second in a live daemon, so only failures are logged.
func (f *EstimateFlusher) flush() {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.FlushEstimate(); err != nil {
		monitoring.Logf("EstimateFlusher: error flushing: %v", err)
	}
}

// flushFinal performs a final flush before shutdown so the stored
// history ends with the estimate the daemon last believed.
func (f *EstimateFlusher) flushFinal() {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.FlushEstimate(); err != nil {
		monitoring.Logf("EstimateFlusher: error during final flush: %v", err)
	} else {
		monitoring.Logf("EstimateFlusher: final estimate flushed to database")
	}
}

// FlushNow triggers an immediate flush outside the regular interval.
func (f *EstimateFlusher) FlushNow() {
	f.flush()
}
