// Package realtime pushes approval status snapshots to connected clients.
// A Hub fans payloads out to per-group subscribers and a Feed decides when
// a new snapshot is worth broadcasting.
package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// subscriberBuffer is the per-subscriber send queue. A subscriber that falls
// this far behind is dropped and has to reconnect.
const subscriberBuffer = 16

// Subscriber is one client's registration for a group's snapshot stream
type Subscriber struct {
	GroupID string
	ch      chan []byte
	closed  bool
}

// Events returns the channel snapshot payloads arrive on. The channel is
// closed when the subscriber is dropped or unsubscribed.
func (s *Subscriber) Events() <-chan []byte {
	return s.ch
}

// Hub tracks the subscribers of each group and fans broadcasts out to them
type Hub struct {
	mu     sync.Mutex
	groups map[string]map[*Subscriber]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		groups: make(map[string]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber for a group's snapshot stream
func (h *Hub) Subscribe(groupID string) *Subscriber {
	sub := &Subscriber{
		GroupID: groupID,
		ch:      make(chan []byte, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.groups[groupID]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.groups[groupID] = subs
	}
	subs[sub] = struct{}{}

	h.logger.Debug("Subscriber registered",
		zap.String("group_id", groupID),
		zap.Int("group_subscribers", len(subs)))

	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

// Broadcast delivers a payload to every subscriber of a group and reports
// how many received it. Subscribers with a full queue are dropped rather
// than allowed to stall the rest.
func (h *Hub) Broadcast(groupID string, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for sub := range h.groups[groupID] {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			h.logger.Warn("Dropping slow subscriber",
				zap.String("group_id", groupID))
			h.remove(sub)
		}
	}

	return delivered
}

// ActiveGroups returns the ids of every group that has at least one
// subscriber. Used by the polling fallback to bound its work.
func (h *Hub) ActiveGroups() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	groups := make([]string, 0, len(h.groups))
	for groupID := range h.groups {
		groups = append(groups, groupID)
	}
	return groups
}

// SubscriberCount returns the number of subscribers of a group
func (h *Hub) SubscriberCount(groupID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[groupID])
}

// remove deletes a subscriber from the registry and closes its channel.
// Caller must hold h.mu.
func (h *Hub) remove(sub *Subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)

	subs := h.groups[sub.GroupID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.groups, sub.GroupID)
	}
}
