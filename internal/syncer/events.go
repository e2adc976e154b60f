package syncer

import (
	"sync"
	"time"
)

// EventType identifies a sync lifecycle event.
type EventType string

const (
	// EventSyncStart marks the beginning of a drain cycle.
	EventSyncStart EventType = "sync_start"
	// EventProgress is emitted after each entry, success or not.
	EventProgress EventType = "progress"
	// EventSyncComplete carries the final counts of a drain cycle.
	EventSyncComplete EventType = "sync_complete"
	// EventSyncError means the cycle itself could not start or finish.
	EventSyncError EventType = "sync_error"
	// EventSyncPaused means a drain suspended its remaining entries.
	EventSyncPaused EventType = "sync_paused"
	// EventSyncResumed means the orchestrator accepts drains again.
	EventSyncResumed EventType = "sync_resumed"
)

// Event is one sync lifecycle notification. Current/Total are set on
// progress events; Synced/Failed/Skipped on completion; Message on errors.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Current   int       `json:"current,omitempty"`
	Total     int       `json:"total,omitempty"`
	Synced    int       `json:"synced,omitempty"`
	Failed    int       `json:"failed,omitempty"`
	Skipped   int       `json:"skipped,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// subscribers fan events out to registered channels. Delivery is
// best-effort: a subscriber that stops draining its channel loses events
// rather than blocking the drain loop.
type subscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[int]chan Event)}
}

func (s *subscribers) add() (int, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan Event, 64)
	s.subs[id] = ch
	return id, ch
}

func (s *subscribers) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *subscribers) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
