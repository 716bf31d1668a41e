// Package bus implements the process-wide typed event bus: a single
// publish/subscribe point fanning events out to every interested local
// consumer and to the streamable subscription the external API reads
// from, so both share one delivery path rather than two.
package bus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the category of a bus event. The core only ever
// produces the kinds declared below; components may still publish other
// kinds for internal diagnostics without the bus rejecting them.
type Kind string

const (
	KindSessionMessageUpdated     Kind = "session.message.updated"
	KindSessionMessagePartUpdated Kind = "session.message.part.updated"
	KindSessionIdle               Kind = "session.idle"
	KindSessionError              Kind = "session.error"
	KindPermissionUpdated         Kind = "permission.updated"
	KindToolExecutionStarted      Kind = "tool.execution.started"
	KindToolExecutionCompleted    Kind = "tool.execution.completed"
	KindWriterProgress            Kind = "writer.progress"
	KindHookNotification          Kind = "hook.notification"
)

// Event is a single published occurrence. Payload carries the kind-specific
// body (e.g. a *models.PermissionRequest for permission.updated).
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(kind Kind, sessionID string, payload any) *Event {
	return &Event{
		Kind:      kind,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// Filter selects which published events a subscription receives. A zero
// Filter matches everything.
type Filter struct {
	Kinds      []Kind
	SessionIDs []string
}

// Matches reports whether event satisfies the filter.
func (f *Filter) Matches(event *Event) bool {
	if f == nil {
		return true
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, event.Kind) {
		return false
	}
	if len(f.SessionIDs) > 0 && !containsString(f.SessionIDs, event.SessionID) {
		return false
	}
	return true
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, want := range values {
		if want == v {
			return true
		}
	}
	return false
}

// Subscription is a live registration on the Bus. C delivers every event
// matching the subscription's filter, in publication order; it is closed
// when Close is called or the Bus shuts down.
type Subscription struct {
	ID string
	C  <-chan *Event

	bus *Bus
}

// Close unregisters the subscription and drains its channel.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.ID)
}

type subscriber struct {
	id     string
	filter *Filter
	ch     chan *Event
}

// Bus is the process-wide event bus. The zero value is not usable; call
// New. A single instance is shared by the whole runtime, matching the
// process-wide-singleton treatment given to the Agent Registry, the
// Permission Engine, and Storage handles.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	logger *slog.Logger

	bufferSize int
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the per-subscriber channel buffer. Defaults to 64.
// A full buffer means the subscriber is falling behind; Publish drops the
// event for that subscriber rather than blocking the publisher, since
// tool dispatch and turn progress must never stall on a slow reader.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// New creates an empty Bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		subs:       make(map[string]*subscriber),
		logger:     logger.With("component", "bus"),
		bufferSize: 64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscription matching filter (nil matches
// everything). The caller must call Close on the returned Subscription
// once done reading.
func (b *Bus) Subscribe(filter *Filter) *Subscription {
	sub := &subscriber{
		id:     uuid.NewString(),
		filter: filter,
		ch:     make(chan *Event, b.bufferSize),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return &Subscription{ID: sub.id, C: sub.ch, bus: b}
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Publish fans event out to every subscriber whose filter matches it.
// Delivery to each subscriber is non-blocking: a subscriber that isn't
// keeping up has its event dropped and logged rather than stalling the
// publisher, since callers publish from the turn's hot path.
func (b *Bus) Publish(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sub := b.subs[id]
		if !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("subscriber dropped event",
				"subscription_id", sub.id,
				"kind", event.Kind,
				"session_id", event.SessionID)
		}
	}
}

// Close unregisters and closes every active subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
