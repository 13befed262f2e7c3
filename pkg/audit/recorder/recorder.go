package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/audit"
)

// Config contains configuration for the decision recorder.
type Config struct {
	// Enabled enables decision recording.
	Enabled bool

	// Sync makes Record write through to storage before returning, so
	// storage faults surface to the caller. When false, writes happen on a
	// background worker and faults are only logged.
	// Default: false
	Sync bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing a decision to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// ChainHashes enables the tamper-evident hash chain across decisions.
	// Default: true
	ChainHashes bool
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		Sync:         false,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
		ChainHashes:  true,
	}
}

// Recorder appends decisions to the audit log. In async mode (the default)
// it enqueues records for a background worker so evaluation paths never
// block on storage; in sync mode it writes through and returns storage
// errors to the caller.
//
// The recorder assigns record identity (UUID), the recorded timestamp, and
// the integrity hash chain. Hash chaining is serialized internally, so the
// chain order always matches the order Record was called.
type Recorder struct {
	storage audit.Storage
	config  *Config

	decisionChan chan *audit.Decision
	wg           sync.WaitGroup
	done         chan struct{}
	closeOnce    sync.Once
	logger       *slog.Logger

	// chainMu guards lastHash so concurrent Record calls chain cleanly.
	chainMu  sync.Mutex
	lastHash string
}

// NewRecorder creates a decision recorder over the provided storage backend.
// The hash chain is seeded from storage so it survives restarts.
func NewRecorder(storage audit.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}

	r := &Recorder{
		storage:      storage,
		config:       config,
		decisionChan: make(chan *audit.Decision, config.AsyncBuffer),
		done:         make(chan struct{}),
		logger:       slog.Default().With("component", "audit.recorder"),
	}

	if config.ChainHashes {
		ctx, cancel := context.WithTimeout(context.Background(), config.WriteTimeout)
		defer cancel()
		seed, err := storage.LastHash(ctx)
		if err != nil {
			r.logger.Warn("could not seed hash chain from storage", "error", err)
		}
		r.lastHash = seed
	}

	if !config.Sync {
		r.wg.Add(1)
		go r.worker()
	}

	r.logger.Info("decision recorder initialized",
		"sync", config.Sync,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"chain_hashes", config.ChainHashes,
	)

	return r
}

// Record appends a decision to the audit log. Missing identity fields (ID,
// EventID, timestamps) are filled in. In sync mode the returned error is the
// storage error, if any; in async mode an error is returned only when the
// record could not be enqueued, which leaves a detectable gap in the hash
// chain.
func (r *Recorder) Record(ctx context.Context, d *audit.Decision) error {
	if !r.config.Enabled {
		return nil
	}

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.EventID == "" {
		d.EventID = uuid.New().String()
	}

	if r.config.ChainHashes {
		// Stamping under the lock keeps recorded times non-decreasing in
		// chain order.
		r.chainMu.Lock()
		r.stamp(d)
		d.PrevHash = r.lastHash
		d.Hash = ChainHash(d)
		r.lastHash = d.Hash

		if r.config.Sync {
			// Hold the chain lock through the write so the persisted order
			// matches the chain order.
			defer r.chainMu.Unlock()
			return r.writeThrough(ctx, d)
		}

		// Async: enqueue while still holding the lock for the same reason.
		err := r.enqueue(d)
		r.chainMu.Unlock()
		return err
	}

	r.stamp(d)
	if r.config.Sync {
		return r.writeThrough(ctx, d)
	}
	return r.enqueue(d)
}

// stamp fills in the decision and recorded timestamps.
func (r *Recorder) stamp(d *audit.Decision) {
	now := time.Now()
	if d.Timestamp.IsZero() {
		d.Timestamp = now
	}
	d.RecordedTime = now
}

// writeThrough writes a decision synchronously.
func (r *Recorder) writeThrough(ctx context.Context, d *audit.Decision) error {
	writeCtx, cancel := context.WithTimeout(ctx, r.config.WriteTimeout)
	defer cancel()

	if err := r.storage.Store(writeCtx, d); err != nil {
		return audit.NewRecorderError(d.ID, err)
	}

	r.logger.Debug("decision recorded",
		"decision_id", d.ID,
		"outcome", d.Outcome,
		"component", d.Component,
	)
	return nil
}

// enqueue hands a decision to the background worker.
func (r *Recorder) enqueue(d *audit.Decision) error {
	select {
	case r.decisionChan <- d:
		return nil
	case <-time.After(r.config.WriteTimeout):
		r.logger.Error("decision channel full, dropping record",
			"decision_id", d.ID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return audit.NewRecorderError(d.ID, context.DeadlineExceeded)
	case <-r.done:
		r.logger.Warn("recorder shutting down, dropping record",
			"decision_id", d.ID,
		)
		return audit.NewRecorderError(d.ID, context.Canceled)
	}
}

// Close gracefully shuts down the recorder, draining the async channel and
// waiting for pending writes to complete.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down decision recorder")
		close(r.done)
		r.wg.Wait()
		r.logger.Info("decision recorder shut down complete")
	})
	return nil
}

// worker drains the decision channel and writes records to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case d := <-r.decisionChan:
			r.writeDecision(d)

		case <-r.done:
			// Drain remaining records before exit
			r.logger.Info("draining decision channel before shutdown",
				"pending_count", len(r.decisionChan),
			)
			for {
				select {
				case d := <-r.decisionChan:
					r.writeDecision(d)
				default:
					r.logger.Info("decision channel drained")
					return
				}
			}
		}
	}
}

// writeDecision writes a single decision to storage.
func (r *Recorder) writeDecision(d *audit.Decision) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()

	if err := r.storage.Store(ctx, d); err != nil {
		r.logger.Error("failed to store decision",
			"decision_id", d.ID,
			"outcome", d.Outcome,
			"error", err,
		)
		return
	}

	duration := time.Since(start)

	r.logger.Debug("decision recorded",
		"decision_id", d.ID,
		"outcome", d.Outcome,
		"component", d.Component,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow decision write",
			"decision_id", d.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
