package memory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DecayConfig configures the decay and eviction scheduler.
type DecayConfig struct {
	// Interval between automatic decay runs. Defaults to one hour.
	Interval time.Duration

	// Timeout bounds a single full decay scan. Defaults to one minute.
	Timeout time.Duration

	// Now is used for testing. Defaults to time.Now.
	Now func() time.Time

	// OnResult, when set, receives the counters of every completed
	// automatic scan.
	OnResult func(DecayResult)
}

// DefaultDecayConfig returns sensible defaults.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		Interval: time.Hour,
		Timeout:  time.Minute,
	}
}

// DecayResult contains the counters of one decay scan.
type DecayResult struct {
	Processed int       `json:"processed"`
	Decayed   int       `json:"decayed"`
	Deleted   int       `json:"deleted"`
	Timestamp time.Time `json:"timestamp"`
}

// DecayScheduler continuously erodes unused memory and prunes chunks
// whose score falls below MinRetentionScore. Scans are serialized by an
// internal mutex: overlapping invocations would double-apply the same
// elapsed window, so a late tick waits for the running scan.
type DecayScheduler struct {
	store  Store
	config DecayConfig
	logger *zap.Logger

	scanMu  sync.Mutex
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewDecayScheduler creates a decay scheduler over the given store.
func NewDecayScheduler(store Store, config DecayConfig, logger *zap.Logger) *DecayScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &DecayScheduler{
		store:  store,
		config: config,
		logger: logger.With(zap.String("component", "decay_scheduler")),
		stopCh: make(chan struct{}),
	}
}

// ApplyDecay runs one full scan, bucket by bucket. For each chunk the
// new score is score * decayRate^elapsedHours where elapsedHours is the
// age of lastAccessed. Chunks below MinRetentionScore are deleted;
// changed scores are persisted without touching lastAccessed, so decay
// never counts as access and re-running with no elapsed time is a
// near-no-op.
func (d *DecayScheduler) ApplyDecay(ctx context.Context) (DecayResult, error) {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	now := d.config.Now()
	result := DecayResult{Timestamp: now}

	for _, bucket := range CanonicalBucketNames() {
		chunks, err := d.store.ChunksForMaintenance(ctx, bucket)
		if err != nil {
			return result, fmt.Errorf("decay scan of %q: %w", bucket, err)
		}

		for _, chunk := range chunks {
			result.Processed++

			elapsedHours := now.Sub(chunk.LastAccessed).Hours()
			if elapsedHours < 0 {
				elapsedHours = 0
			}
			newScore := chunk.Score * math.Pow(chunk.DecayRate, elapsedHours)

			if newScore < MinRetentionScore {
				if err := d.store.DeleteChunk(ctx, chunk.ID); err != nil {
					return result, fmt.Errorf("evict chunk %q: %w", chunk.ID, err)
				}
				result.Deleted++
				continue
			}

			if newScore != chunk.Score {
				if err := d.store.UpdateScore(ctx, chunk.ID, newScore); err != nil {
					return result, fmt.Errorf("persist decayed score of %q: %w", chunk.ID, err)
				}
				result.Decayed++
			}
		}
	}

	d.logger.Info("decay completed",
		zap.Int("processed", result.Processed),
		zap.Int("decayed", result.Decayed),
		zap.Int("deleted", result.Deleted))

	return result, nil
}

// Start begins the automatic decay loop. Calling Start on a running
// scheduler is a no-op.
func (d *DecayScheduler) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.mu.Unlock()

	go d.runLoop(ctx)
}

// Stop halts the automatic decay loop.
func (d *DecayScheduler) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		close(d.stopCh)
		d.running = false
	}
}

func (d *DecayScheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := d.ApplyDecay(ctx)
			if err != nil {
				d.logger.Warn("decay run failed", zap.Error(err))
				continue
			}
			if d.config.OnResult != nil {
				d.config.OnResult(result)
			}
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
