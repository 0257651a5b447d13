// Package live fans reference invalidations out to the sessions and SSE
// clients that can see the affected data.
package live

import (
	"context"
	"sync"
	"time"

	"ebdconsole.org/internal/access"
)

// Invalidation tells subscribers that reference data under a partition
// changed and their snapshot should be refetched.
type Invalidation struct {
	MinistryID     string    `json:"ministryId"`
	CongregationID string    `json:"congregationId,omitempty"`
	Collection     string    `json:"collection,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Affects reports whether subscribers under scope should react.
func (e Invalidation) Affects(scope access.Scope) bool {
	if e.MinistryID != scope.MinistryID {
		return false
	}
	return e.CongregationID == "" || scope.CongregationID == "" || e.CongregationID == scope.CongregationID
}

type subscriber struct {
	scope access.Scope
	ch    chan Invalidation
}

// Hub is an in-process fan-out.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers interest in invalidations affecting scope. The channel
// is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, scope access.Scope) <-chan Invalidation {
	ch := make(chan Invalidation, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{scope: scope, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to affected subscribers and returns how many got it.
// Slow subscribers miss the event rather than block the publisher.
func (h *Hub) Publish(evt Invalidation) int {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, sub := range h.subs {
		if !evt.Affects(sub.scope) {
			continue
		}
		select {
		case sub.ch <- evt:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
