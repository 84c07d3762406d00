// Package dashboard exposes the run's control surface: a JSON control
// endpoint, a server-sent state stream, and a small embedded UI.
package dashboard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chr1sbest/lotrunner/internal/runstate"
)

// DefaultPublishInterval is how often the hub samples the run state for
// its subscribers.
const DefaultPublishInterval = 500 * time.Millisecond

// Hub fans run-state snapshots out to every connected stream. Each
// subscriber has a buffer of one; a slow consumer only ever misses
// intermediate snapshots, never the latest.
type Hub struct {
	state    *runstate.State
	interval time.Duration

	mu   sync.Mutex
	subs map[string]chan runstate.Snapshot

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub sampling the given state.
func NewHub(state *runstate.State, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	return &Hub{
		state:    state,
		interval: interval,
		subs:     make(map[string]chan runstate.Snapshot),
		done:     make(chan struct{}),
	}
}

// Run samples and publishes until Stop. Call it in its own goroutine.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.publish(h.state.Snapshot())
		}
	}
}

// Stop ends publishing and closes every subscriber channel.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for id, ch := range h.subs {
			close(ch)
			delete(h.subs, id)
		}
	})
}

// Subscribe registers a stream consumer. The returned cancel must be
// called when the consumer goes away.
func (h *Hub) Subscribe() (<-chan runstate.Snapshot, func()) {
	id := uuid.NewString()
	ch := make(chan runstate.Snapshot, 1)

	h.mu.Lock()
	select {
	case <-h.done:
		// Stopped already; hand back a closed channel.
		close(ch)
		h.mu.Unlock()
		return ch, func() {}
	default:
	}
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			close(sub)
			delete(h.subs, id)
		}
	}
	return ch, cancel
}

func (h *Hub) publish(snap runstate.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- snap:
		default:
			// Replace the stale buffered snapshot with the fresh one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
