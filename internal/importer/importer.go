// Package importer watches a drop directory for product JSON files and
// ingests them into the local catalogue.
//
// Dropping files into the directory is the bulk entry path: each *.json
// file is parsed, validated, created through the catalogue's optimistic
// path (so it queues a remote insert like any other create), and removed
// on success. Files that fail to parse are left in place for inspection.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stockpile-dev/stockpile/internal/catalog"
	"github.com/stockpile-dev/stockpile/internal/model"
)

// Config holds importer settings.
type Config struct {
	// DropDir is the watched directory.
	DropDir string

	// DebounceInterval is how long a file must sit unchanged before it is
	// ingested. Batches editors that write in multiple chunks.
	DebounceInterval time.Duration

	// Logger for importer activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[importer] ", log.LstdFlags),
	}
}

// productFile is the on-disk shape of a dropped product.
type productFile struct {
	Name       string `json:"name"`
	SKU        string `json:"sku,omitempty"`
	Category   string `json:"category,omitempty"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
	Notes      string `json:"notes,omitempty"`
}

// Importer watches the drop directory and feeds files into the catalogue.
type Importer struct {
	catalog *catalog.Service
	config  *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Importer for the configured drop directory, creating the
// directory if needed.
func New(svc *catalog.Service, config *Config) (*Importer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DropDir == "" {
		return nil, fmt.Errorf("drop directory cannot be empty")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[importer] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}

	if err := os.MkdirAll(config.DropDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create drop directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Importer{
		catalog:     svc,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start ingests any files already sitting in the drop directory, then
// watches for new ones until Stop.
func (im *Importer) Start() error {
	if err := im.ingestExisting(); err != nil {
		return err
	}

	if err := im.watcher.Add(im.config.DropDir); err != nil {
		return fmt.Errorf("failed to watch drop directory: %w", err)
	}

	im.config.Logger.Printf("Watching %s", im.config.DropDir)

	im.wg.Add(2)
	go im.watchFileEvents()
	go im.processChangeQueue()

	return nil
}

// Stop halts watching.
func (im *Importer) Stop() error {
	im.cancel()
	if err := im.watcher.Close(); err != nil {
		im.config.Logger.Printf("Error closing watcher: %v", err)
	}
	im.wg.Wait()
	return nil
}

// ingestExisting sweeps files that were dropped while the importer was not
// running.
func (im *Importer) ingestExisting() error {
	entries, err := os.ReadDir(im.config.DropDir)
	if err != nil {
		return fmt.Errorf("failed to read drop directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(im.config.DropDir, entry.Name())
		if err := im.ingestFile(path); err != nil {
			im.config.Logger.Printf("Warning: failed to import %s: %v", entry.Name(), err)
		}
	}

	return nil
}

// watchFileEvents queues filesystem events for debounced processing.
func (im *Importer) watchFileEvents() {
	defer im.wg.Done()

	for {
		select {
		case <-im.ctx.Done():
			return

		case event, ok := <-im.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			im.queueChange(event.Name)

		case err, ok := <-im.watcher.Errors:
			if !ok {
				return
			}
			im.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (im *Importer) queueChange(path string) {
	im.changeQueueMu.Lock()
	defer im.changeQueueMu.Unlock()
	im.changeQueue[path] = time.Now()
}

// processChangeQueue ingests files whose last event is old enough.
func (im *Importer) processChangeQueue() {
	defer im.wg.Done()

	ticker := time.NewTicker(im.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-im.ctx.Done():
			return
		case <-ticker.C:
			im.processPendingChanges()
		}
	}
}

func (im *Importer) processPendingChanges() {
	im.changeQueueMu.Lock()
	defer im.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range im.changeQueue {
		if now.Sub(queuedAt) < im.config.DebounceInterval {
			continue
		}
		delete(im.changeQueue, path)

		if err := im.ingestFile(path); err != nil {
			im.config.Logger.Printf("Warning: failed to import %s: %v", filepath.Base(path), err)
		}
	}
}

// ingestFile parses one dropped file, creates the product, and removes the
// file. The file stays put when parsing or the create fails.
func (im *Importer) ingestFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	var pf productFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("failed to parse product file: %w", err)
	}

	product := &model.Product{
		Name:       pf.Name,
		SKU:        pf.SKU,
		Category:   pf.Category,
		Quantity:   pf.Quantity,
		PriceCents: pf.PriceCents,
		Notes:      pf.Notes,
	}

	created, err := im.catalog.Create(im.ctx, product)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	if err := os.Remove(path); err != nil {
		im.config.Logger.Printf("Warning: imported %s but could not remove %s: %v", created.ID, path, err)
	}

	im.config.Logger.Printf("Imported %s as %s", filepath.Base(path), created.ID)
	return nil
}
