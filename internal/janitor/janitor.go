// Package janitor purges queue entries that have sat unsynced past an age
// threshold.
//
// This is a deliberate data-loss policy: bounded local storage and a clean
// pending counter are worth more than indefinitely retrying operations the
// user likely abandoned. Creates that never reached the server lose their
// local-only record as well; update and delete targets are left alone
// because the remote copy exists in some form either way.
package janitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/stockpile-dev/stockpile/internal/identity"
	"github.com/stockpile-dev/stockpile/internal/model"
	"github.com/stockpile-dev/stockpile/internal/store"
)

// Config holds janitor settings.
type Config struct {
	// Interval is how often the sweep runs.
	Interval time.Duration

	// MaxAge is the entry age past which a sweep purges it, regardless of
	// its status.
	MaxAge time.Duration

	// Logger for sweep activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 30 * time.Minute,
		MaxAge:   3 * time.Hour,
		Logger:   log.New(os.Stderr, "[janitor] ", log.LstdFlags),
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	// Purged is the number of queue entries removed.
	Purged int
	// RecordsDeleted is the number of never-reconciled local-only records
	// removed along with their create entries.
	RecordsDeleted int
}

// Janitor runs the periodic stale-entry sweep. It holds no state beyond
// its timer; every decision is made against the store at sweep time, so it
// may run concurrently with a drain. The races are benign: the
// orchestrator's settle calls are no-ops on rows the janitor removed.
type Janitor struct {
	store  *store.Store
	ids    *identity.Reconciler
	config *Config

	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// New creates a Janitor. A nil config selects defaults.
func New(st *store.Store, ids *identity.Reconciler, config *Config) *Janitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[janitor] ", log.LstdFlags)
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Minute
	}
	if config.MaxAge <= 0 {
		config.MaxAge = 3 * time.Hour
	}

	return &Janitor{
		store:  st,
		ids:    ids,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (j *Janitor) Start() {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.ticker = time.NewTicker(j.config.Interval)
	j.mu.Unlock()

	j.config.Logger.Printf("Started: interval=%v max-age=%v", j.config.Interval, j.config.MaxAge)

	j.wg.Add(1)
	go j.run()
}

// Stop halts the periodic sweep.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		j.mu.Lock()
		if j.ticker != nil {
			j.ticker.Stop()
		}
		j.running = false
		j.mu.Unlock()
		close(j.stopCh)
	})
	j.wg.Wait()
}

func (j *Janitor) run() {
	defer j.wg.Done()

	for {
		select {
		case <-j.stopCh:
			j.config.Logger.Println("Stopped")
			return
		case <-j.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := j.RunNow(ctx); err != nil {
				j.config.Logger.Printf("Sweep failed: %v", err)
			}
			cancel()
		}
	}
}

// RunNow performs one sweep immediately.
func (j *Janitor) RunNow(ctx context.Context) (SweepResult, error) {
	cutoff := time.Now().UTC().Add(-j.config.MaxAge)

	entries, err := j.store.ListQueueOlderThan(ctx, cutoff)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list stale entries: %w", err)
	}
	if len(entries) == 0 {
		return SweepResult{}, nil
	}

	var res SweepResult
	for _, entry := range entries {
		if err := j.purgeEntry(ctx, &entry, &res); err != nil {
			j.config.Logger.Printf("Failed to purge entry %d: %v", entry.ID, err)
		}
	}

	details := fmt.Sprintf("purged=%d records_deleted=%d max_age=%v", res.Purged, res.RecordsDeleted, j.config.MaxAge)
	if err := j.store.AppendSyncLog(ctx, "janitor_sweep", "completed", details); err != nil {
		j.config.Logger.Printf("Failed to append sync log: %v", err)
	}

	j.config.Logger.Printf("Sweep complete: %s", details)
	return res, nil
}

// purgeEntry removes one stale entry, plus its local-only record when the
// entry is a create that was never reconciled.
func (j *Janitor) purgeEntry(ctx context.Context, entry *model.QueueEntry, res *SweepResult) error {
	if err := j.store.DeleteQueueEntry(ctx, entry.ID); err != nil {
		return err
	}
	res.Purged++

	recordGone := false
	if entry.Action == model.ActionCreate && identity.IsProvisional(entry.ProductID) {
		_, mapped, err := j.ids.Lookup(ctx, entry.ProductID)
		if err != nil {
			return err
		}
		if !mapped {
			// The record never reached the server; it has no observable
			// existence outside this store.
			if err := j.store.DeleteProduct(ctx, entry.ProductID); err != nil {
				return err
			}
			res.RecordsDeleted++
			recordGone = true
		}
	}

	msg := fmt.Sprintf("Discarded unsynced %s for %s (queued %s)", entry.Action, entry.ProductID, entry.CreatedAt.Format(time.RFC3339))
	if recordGone {
		msg += "; the local-only record was removed"
	}
	if err := j.store.AddNotification(ctx, model.NotifySyncPurged, msg); err != nil {
		return err
	}

	return nil
}
