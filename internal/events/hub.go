package events

import (
	"sync"
	"sync/atomic"

	"grimm.is/fwplan/internal/clock"
	"grimm.is/fwplan/internal/deploy"
)

// Hub is the central event bus.
// It provides pub/sub semantics with typed events and non-blocking fan-out.
type Hub struct {
	mu    sync.RWMutex
	subs  map[EventType][]chan Event
	clock clock.Clock

	// Global subscribers receive all events
	global []chan Event

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a new event hub. A nil clock means the real clock.
func NewHub(clk clock.Clock) *Hub {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	return &Hub{
		subs:  make(map[EventType][]chan Event),
		clock: clk,
	}
}

// Publish sends an event to all subscribers of that event type.
// This is non-blocking - if a subscriber's channel is full, the event is dropped.
func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = h.clock.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	h.published.Add(1)
	for _, ch := range h.subs[e.Type] {
		h.send(ch, e)
	}
	for _, ch := range h.global {
		h.send(ch, e)
	}
}

func (h *Hub) send(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
		h.dropped.Add(1)
	}
}

// Subscribe returns a channel that receives events of the specified types.
// If no types are specified, subscribes to all events.
// The caller is responsible for draining the channel to avoid drops.
func (h *Hub) Subscribe(bufSize int, types ...EventType) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan Event, bufSize)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(types) == 0 {
		h.global = append(h.global, ch)
	} else {
		for _, t := range types {
			h.subs[t] = append(h.subs[t], ch)
		}
	}
	return ch
}

// Unsubscribe removes a channel from all subscriptions.
// The channel is NOT closed by this method.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.global = removeFromSlice(h.global, ch)
	for t, subs := range h.subs {
		h.subs[t] = removeFromSlice(subs, ch)
	}
}

// Stats returns publish/drop counts for monitoring.
func (h *Hub) Stats() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}

func removeFromSlice(slice []chan Event, target <-chan Event) []chan Event {
	result := make([]chan Event, 0, len(slice))
	for _, ch := range slice {
		if ch != target {
			result = append(result, ch)
		}
	}
	return result
}

// EmitDeployment publishes the current state of d.
func (h *Hub) EmitDeployment(d *deploy.Deployment) {
	h.Publish(Event{
		Type:   EventDeploymentState,
		Source: "deploy",
		Data: DeploymentStateData{
			ID:      d.ID,
			State:   string(d.State),
			Routers: d.Routers(),
			Errors:  d.Errors,
		},
	})
}

// EmitDrift publishes one event per drifted router in reports.
func (h *Hub) EmitDrift(reports []deploy.DriftReport) {
	for _, r := range reports {
		if !r.Drifted() {
			continue
		}
		h.Publish(Event{
			Type:      EventDriftDetected,
			Timestamp: r.CheckedAt,
			Source:    "drift",
			Data: DriftData{
				Router:     r.Router,
				Operations: len(r.Operations),
				Diff:       r.Diff,
			},
		})
	}
}
