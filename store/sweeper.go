package store

import (
	"sync"
	"time"

	"github.com/pithecene-io/chorus/log"
	"github.com/pithecene-io/chorus/metrics"
)

// Sweeper defaults.
const (
	// DefaultSweepInterval is how often the sweeper runs.
	DefaultSweepInterval = time.Minute
	// DefaultRetention is how long finalized messages are kept.
	DefaultRetention = 30 * time.Minute
)

// SweeperConfig configures the eviction sweeper.
type SweeperConfig struct {
	// Interval is the fixed sweep period (default DefaultSweepInterval).
	Interval time.Duration
	// Retention is the finalized-message retention window (default DefaultRetention).
	Retention time.Duration
}

// Sweeper prunes old finalized messages on a fixed interval. A message
// still streaming is never removed regardless of age; no other component
// depends on sweep timing for correctness, only for the memory bound.
type Sweeper struct {
	store     *Store
	config    SweeperConfig
	logger    *log.Logger
	collector *metrics.Collector

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// NewSweeper creates a sweeper for the store. Zero config fields take the
// package defaults.
func NewSweeper(s *Store, config SweeperConfig, logger *log.Logger, collector *metrics.Collector) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Sweeper{
		store:     s,
		config:    config,
		logger:    logger,
		collector: collector,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the sweep loop goroutine.
func (sw *Sweeper) Start() {
	go sw.loop()
}

// Stop terminates the sweep loop. Idempotent.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.stopped {
		sw.stopped = true
		close(sw.stopCh)
	}
}

func (sw *Sweeper) loop() {
	ticker := time.NewTicker(sw.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.SweepOnce()
		case <-sw.stopCh:
			return
		}
	}
}

// SweepOnce runs a single sweep and returns the number of messages
// removed. Exposed for tests and for forced sweeps at teardown.
func (sw *Sweeper) SweepOnce() int {
	cutoff := time.Now().Add(-sw.config.Retention)
	removed := sw.store.Evict(cutoff)
	if removed > 0 {
		sw.collector.AddMessagesEvicted(int64(removed))
		sw.logger.Debug("swept transcript", map[string]any{
			"removed":   removed,
			"remaining": sw.store.Len(),
		})
	}
	return removed
}
