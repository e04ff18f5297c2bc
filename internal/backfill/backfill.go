// Package backfill finds entities missing one or more embedding spaces and
// regenerates their vectors in bounded batches.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/cortex-graph/internal/indexing"
	"github.com/ajitpratap0/cortex-graph/internal/metrics"
	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/store"
)

// Trigger names recorded on reports and metrics.
const (
	TriggerStartup = "startup"
	TriggerLazy    = "lazy"
	TriggerManual  = "manual"
)

// Indexer is the batch path of the index manager.
type Indexer interface {
	IndexEntities(ctx context.Context, entities []models.Entity) indexing.BatchReport
}

// Report summarizes one backfill run.
type Report struct {
	RunID    string                 `json:"run_id"`
	Trigger  string                 `json:"trigger"`
	Found    int64                  `json:"found"`
	Indexed  int                    `json:"indexed"`
	Failed   []models.EntityFailure `json:"failed,omitempty"`
	Started  time.Time              `json:"started_at"`
	Finished time.Time              `json:"finished_at"`
}

// Coordinator runs backfills. Runs never overlap; a run that finds nothing
// unindexed is a cheap no-op, so repeating it is safe.
type Coordinator struct {
	store  store.GraphStore
	index  Indexer
	logger *slog.Logger

	runMu   sync.Mutex
	latched atomic.Bool
	wg      sync.WaitGroup

	lastMu sync.RWMutex
	last   *Report
}

// New creates a Coordinator.
func New(st store.GraphStore, index Indexer, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: st, index: index, logger: logger}
}

// EnsureAllIndexed counts unindexed entities and migrates them if any exist.
func (c *Coordinator) EnsureAllIndexed(ctx context.Context) (*Report, error) {
	return c.run(ctx, TriggerManual)
}

// Migrate indexes every currently unindexed entity. Entities that fail stay
// unindexed and are picked up by a later run.
func (c *Coordinator) Migrate(ctx context.Context) (*Report, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.migrateLocked(ctx, TriggerManual, -1)
}

// Start schedules one background run at startup. It shares the latch with
// TriggerOnce, so whichever comes first wins.
func (c *Coordinator) Start(ctx context.Context) bool {
	return c.fire(ctx, TriggerStartup)
}

// TriggerOnce schedules the deferred background run on first use. The run is
// detached from ctx's cancellation so it outlives the request that fired it.
// It reports whether this call started a run.
func (c *Coordinator) TriggerOnce(ctx context.Context) bool {
	return c.fire(context.WithoutCancel(ctx), TriggerLazy)
}

// Wait blocks until background runs started by Start or TriggerOnce finish.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// LastReport returns the report of the most recent completed run, or nil.
func (c *Coordinator) LastReport() *Report {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	return c.last
}

func (c *Coordinator) fire(ctx context.Context, trigger string) bool {
	if !c.latched.CompareAndSwap(false, true) {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.run(ctx, trigger); err != nil {
			// A failed run leaves the latch open so the next trigger retries.
			c.latched.Store(false)
			c.logger.Error("background backfill failed", "trigger", trigger, "error", err)
		}
	}()
	return true
}

func (c *Coordinator) run(ctx context.Context, trigger string) (*Report, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	n, err := c.store.CountUnindexed(ctx)
	if err != nil {
		return nil, fmt.Errorf("backfill: counting unindexed entities: %w", err)
	}
	if n == 0 {
		now := time.Now().UTC()
		report := &Report{RunID: uuid.NewString(), Trigger: trigger, Started: now, Finished: now}
		c.logger.Debug("backfill: nothing to index", "trigger", trigger)
		c.setLast(report)
		return report, nil
	}
	return c.migrateLocked(ctx, trigger, n)
}

func (c *Coordinator) migrateLocked(ctx context.Context, trigger string, found int64) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Trigger: trigger, Started: time.Now().UTC()}
	metrics.BackfillRuns.WithLabelValues(trigger).Inc()

	entities, err := c.store.ListUnindexed(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("backfill: listing unindexed entities: %w", err)
	}
	if found < 0 {
		found = int64(len(entities))
	}
	report.Found = found

	if len(entities) > 0 {
		c.logger.Info("backfill started", "run_id", report.RunID, "trigger", trigger, "unindexed", len(entities))
		br := c.index.IndexEntities(ctx, entities)
		report.Indexed = br.Indexed
		report.Failed = br.Failed
	}
	report.Finished = time.Now().UTC()

	c.logger.Info("backfill finished",
		"run_id", report.RunID,
		"indexed", report.Indexed,
		"failed", len(report.Failed),
		"duration", report.Finished.Sub(report.Started))
	c.setLast(report)
	return report, nil
}

func (c *Coordinator) setLast(r *Report) {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	c.last = r
}
