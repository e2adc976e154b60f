// Package connectivity observes remote reachability and triggers debounced
// auto-sync on reconnect.
//
// Reachability is derived from polling the backend's health endpoint:
// level transitions (became reachable / became unreachable) are the only
// signals acted on. On reconnect, a short debounce window batches bursts
// of micro-outages into one drain rather than firing a drain per flap.
package connectivity

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/stockpile-dev/stockpile/internal/model"
	"github.com/stockpile-dev/stockpile/internal/store"
	"github.com/stockpile-dev/stockpile/internal/syncer"
)

// Prober checks whether the remote service is reachable right now.
// *remote.Client satisfies it.
type Prober interface {
	Ping(ctx context.Context) error
}

// Config holds monitor settings.
type Config struct {
	// ProbeInterval is how often reachability is checked.
	ProbeInterval time.Duration

	// Debounce is how long to wait after a reconnect before draining,
	// batching reconnect-triggered mutations.
	Debounce time.Duration

	// Logger for monitor activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProbeInterval: 10 * time.Second,
		Debounce:      2 * time.Second,
		Logger:        log.New(os.Stderr, "[connectivity] ", log.LstdFlags),
	}
}

// Monitor polls the remote health endpoint and feeds transitions into the
// sync orchestrator.
type Monitor struct {
	prober Prober
	store  *store.Store
	syncer *syncer.Syncer
	config *Config

	mu      sync.Mutex
	online  bool
	pending *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor. A nil config selects defaults.
func New(prober Prober, st *store.Store, sy *syncer.Syncer, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = 10 * time.Second
	}
	if config.Debounce <= 0 {
		config.Debounce = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		prober: prober,
		store:  st,
		syncer: sy,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins probing. An immediate probe establishes the initial state;
// after that the monitor polls on the configured interval until Stop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop halts probing and cancels any pending debounced drain.
func (m *Monitor) Stop() {
	m.cancel()

	m.mu.Lock()
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// Online reports the last observed reachability state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) run() {
	defer m.wg.Done()

	m.probe()

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

// probe checks reachability once and handles the transition, if any.
func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(m.ctx, m.config.ProbeInterval)
	online := m.prober.Ping(ctx) == nil
	cancel()

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	m.mu.Unlock()

	m.syncer.SetOnline(online)

	if !changed {
		return
	}

	if online {
		m.config.Logger.Println("Remote became reachable")
		m.scheduleDrain()
	} else {
		// Nothing to cancel: an in-flight drain fails naturally when its
		// network calls error out.
		m.config.Logger.Println("Remote became unreachable")
	}
}

// scheduleDrain arms the debounce timer when there is pending work and no
// active drain. A reconnect inside the window re-arms the timer.
func (m *Monitor) scheduleDrain() {
	pending, err := m.store.CountQueue(m.ctx, model.QueuePending)
	if err != nil {
		m.config.Logger.Printf("Failed to count pending queue: %v", err)
		return
	}
	if pending == 0 || m.syncer.Syncing() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		m.pending.Stop()
	}
	m.pending = time.AfterFunc(m.config.Debounce, func() {
		if m.ctx.Err() != nil {
			return
		}
		m.config.Logger.Printf("Auto-sync after reconnect (%d pending)", pending)
		if _, err := m.syncer.SyncAll(m.ctx); err != nil {
			m.config.Logger.Printf("Auto-sync failed: %v", err)
		}
	})
}
