// ABOUTME: Typed subscription dispatcher for realtime project events.
// ABOUTME: Per-subscriber buffered fan-out; slow subscribers drop, never block.

package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Event is one JSON frame from the project event feed. Exchange is only
// populated for assistant_reply events.
type Event struct {
	Name      string          `json:"event"`
	EventID   string          `json:"event_id,omitempty"`
	ProjectID string          `json:"project_id"`
	ChannelID string          `json:"channel_id,omitempty"`
	Exchange  json.RawMessage `json:"exchange,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Handler receives events for a subscription. Handlers run on a dedicated
// goroutine per subscription, so they may block briefly without stalling
// the feed; sustained blocking drops events.
type Handler func(Event)

// Dispatcher fans events out to subscribers by event name.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[string]map[string]chan Event // event name -> subID -> ch
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. Pass nil logger for default.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		subs:   make(map[string]map[string]chan Event),
		logger: logger.With("component", "realtime"),
	}
}

// Subscribe registers handler for events with the given name and returns a
// token for Unsubscribe.
func (d *Dispatcher) Subscribe(name string, handler Handler) string {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	d.mu.Lock()
	if _, ok := d.subs[name]; !ok {
		d.subs[name] = make(map[string]chan Event)
	}
	d.subs[name][subID] = ch
	d.mu.Unlock()

	go func() {
		for ev := range ch {
			handler(ev)
		}
	}()

	d.logger.Debug("subscriber added", "event", name, "sub_id", subID)
	return subID
}

// Unsubscribe removes a subscription. Unknown tokens are ignored.
func (d *Dispatcher) Unsubscribe(subID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, subs := range d.subs {
		if ch, ok := subs[subID]; ok {
			delete(subs, subID)
			close(ch)
			if len(subs) == 0 {
				delete(d.subs, name)
			}
			d.logger.Debug("subscriber removed", "event", name, "sub_id", subID)
			return
		}
	}
}

// Dispatch delivers an event to every subscriber of its name.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	subs, ok := d.subs[ev.Name]
	if !ok || len(subs) == 0 {
		d.mu.RUnlock()
		return
	}
	targets := make([]chan Event, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	d.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			d.logger.Debug("dropped event for slow subscriber",
				"event", ev.Name, "event_id", ev.EventID)
		}
	}
}

// Close removes all subscriptions and closes their channels.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, subs := range d.subs {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(d.subs, name)
	}
	d.logger.Debug("dispatcher closed")
}
