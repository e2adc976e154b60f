package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/stockpile-dev/stockpile/internal/model"
	"github.com/stockpile-dev/stockpile/internal/store"
	"github.com/stockpile-dev/stockpile/internal/syncer"
)

// Handler bridges orchestrator events to the WebSocket server. It relays
// every lifecycle event as-is and follows each completed drain with fresh
// queue statistics.
type Handler struct {
	server *Server
	store  *store.Store
	syncer *syncer.Syncer
	logger *log.Logger

	subID  int
	events <-chan syncer.Event
	done   chan struct{}
}

// NewHandler creates an event handler connected to a dashboard server.
func NewHandler(server *Server, st *store.Store, sy *syncer.Syncer, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		store:  st,
		syncer: sy,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start subscribes to the orchestrator and begins relaying.
func (h *Handler) Start() {
	h.subID, h.events = h.syncer.Subscribe()
	go h.relay()
}

// Stop unsubscribes and halts the relay.
func (h *Handler) Stop() {
	h.syncer.Unsubscribe(h.subID)
	<-h.done
}

func (h *Handler) relay() {
	defer close(h.done)

	for ev := range h.events {
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Printf("Failed to marshal event: %v", err)
			continue
		}

		h.server.Broadcast(Message{
			Type:      string(ev.Type),
			Timestamp: ev.Timestamp,
			Data:      data,
		})

		if ev.Type == syncer.EventSyncComplete || ev.Type == syncer.EventSyncError {
			h.broadcastStats()
		}
	}
}

// broadcastStats pushes current store counters to all clients.
func (h *Handler) broadcastStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	products, err := h.store.CountProducts(ctx)
	if err != nil {
		h.logger.Printf("Failed to count products: %v", err)
		return
	}
	pending, err := h.store.CountQueue(ctx, model.QueuePending)
	if err != nil {
		h.logger.Printf("Failed to count pending queue: %v", err)
		return
	}
	failed, err := h.store.CountQueue(ctx, model.QueueFailed)
	if err != nil {
		h.logger.Printf("Failed to count failed queue: %v", err)
		return
	}

	data, err := json.Marshal(StatsData{Products: products, Pending: pending, Failed: failed})
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return
	}

	h.server.Broadcast(Message{Type: "stats", Timestamp: time.Now(), Data: data})
}
