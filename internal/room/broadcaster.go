// ABOUTME: In-memory fan-out event broadcaster for cross-connection awareness
// ABOUTME: Publishes room events to all subscribers of a room id

package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Broadcaster provides in-memory pub/sub for room events. Subscribers
// register for a room id and receive events as they are applied. This is
// what lets every connection observe mutations without polling.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // roomID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given room id.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, roomID string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[roomID]; !ok {
		b.subscribers[roomID] = make(map[string]chan *Event)
	}
	b.subscribers[roomID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"room_id", roomID,
		"sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(roomID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the given room id.
// If excludeSubID is non-empty, that subscriber is skipped (used to avoid
// sending events back to the originating connection).
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(roomID string, event *Event, excludeSubID string) {
	b.mu.RLock()
	subs, ok := b.subscribers[roomID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan *Event, 0, len(subs))
	for id, ch := range subs {
		if excludeSubID != "" && id == excludeSubID {
			continue
		}
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
			// Sent
		default:
			// Subscriber channel full — drop event for this subscriber
			b.logger.Debug("dropped event for slow subscriber",
				"room_id", roomID,
				"seq", event.Seq)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(roomID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[roomID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty room entries
	if len(subs) == 0 {
		delete(b.subscribers, roomID)
	}

	b.logger.Debug("subscriber removed",
		"room_id", roomID,
		"sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for roomID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, roomID)
	}

	b.logger.Debug("broadcaster closed")
}
