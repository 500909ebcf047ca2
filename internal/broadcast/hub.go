package broadcast

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/example/charity-drive/internal/observability"
)

// Topic of the global pending-rides list, read by every driver session.
const TopicPending = "rides.pending"

// RideRoom names the per-ride topic read by the ride's rider and, once
// assigned, its driver.
func RideRoom(rideID string) string { return "ride." + rideID }

// Event kinds published by the coordinator, chat relay and call signaler.
const (
	KindPendingList  = "pending_list"
	KindRideAccepted = "ride_accepted"
	KindRideArrived  = "driver_arrived"
	KindRideComplete = "trip_complete"
	KindRideCancel   = "ride_cancelled"
	KindChatMessage  = "chat_message"
	KindCallState    = "call_state"
)

// Event is one broadcast message. Delivery is at-least-once and ordered
// only within a topic for a single publisher; consumers de-duplicate by
// ID. Origin identifies the publishing process so a cross-instance bridge
// can skip echoes of its own events.
type Event struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	At      time.Time       `json:"at"`
}

// Subscription receives events for one topic, starting from the moment of
// subscription. There is no replay: a reconnecting session must re-fetch
// authoritative state instead.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	topic  string
	hub    *Hub
	closed bool
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.unsubscribe(s)
}

// Hub is the in-process fan-out for topics and ride rooms. A slow
// subscriber is dropped rather than allowed to block publishers; the push
// channel is a latency optimization and polling remains authoritative.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	origin string
	logger *slog.Logger
	bridge Bridge // optional cross-instance fan-out
}

// Bridge republishes locally-published events to other instances.
type Bridge interface {
	Forward(ev Event)
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		origin: newID(),
		logger: logger,
	}
}

// SetBridge attaches a cross-instance bridge. Call before serving traffic.
func (h *Hub) SetBridge(b Bridge) { h.bridge = b }

// Origin is this process's publisher identity.
func (h *Hub) Origin() string { return h.origin }

const subscriptionBuffer = 64

// Subscribe registers interest in a topic.
func (h *Hub) Subscribe(topic string) *Subscription {
	ch := make(chan Event, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, topic: topic, hub: h}
	h.mu.Lock()
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.topics[topic] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	observability.BroadcastSubscribers.Inc()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	if set, ok := h.topics[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	close(sub.ch)
	observability.BroadcastSubscribers.Dec()
}

// Publish marshals payload, stamps an event id and fans out to the
// topic's subscribers, then forwards to the bridge when one is attached.
func (h *Hub) Publish(topic, kind string, payload any) Event {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			h.logger.Error("broadcast payload marshal failed", "topic", topic, "kind", kind, "error", err)
		} else {
			raw = b
		}
	}
	ev := Event{
		ID:      newID(),
		Topic:   topic,
		Kind:    kind,
		Payload: raw,
		Origin:  h.origin,
		At:      time.Now().UTC(),
	}
	h.deliver(ev)
	if h.bridge != nil {
		h.bridge.Forward(ev)
	}
	return ev
}

// Inject delivers an event received from another instance without
// re-forwarding it. Events originated by this process are dropped.
func (h *Hub) Inject(ev Event) {
	if ev.Origin == h.origin {
		return
	}
	h.deliver(ev)
}

func (h *Hub) deliver(ev Event) {
	observability.BroadcastEventsTotal.WithLabelValues(ev.Kind).Inc()

	// sends stay under the read lock: close(sub.ch) only ever happens in
	// unsubscribe under the write lock, so a send can never land on a
	// closed channel
	h.mu.RLock()
	var dropped []*Subscription
	for sub := range h.topics[ev.Topic] {
		select {
		case sub.ch <- ev:
		default:
			dropped = append(dropped, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range dropped {
		// a full buffer means the reader is gone or hopelessly behind;
		// it will re-sync via the authoritative read path on reconnect
		h.logger.Warn("dropping slow broadcast subscriber", "topic", ev.Topic)
		observability.BroadcastDropsTotal.Inc()
		h.unsubscribe(sub)
	}
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
