package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/schema"
)

// Event represents a display-facing event emitted by a session.
type Event struct {
	Type  schema.EventType
	Chunk schema.ChunkEvent
	State schema.StateEvent
}

// SessionID returns the session the event belongs to.
func (e Event) SessionID() schema.SessionID {
	if e.Type == schema.EventState {
		return e.State.SessionID
	}
	return e.Chunk.SessionID
}

// Bus fans events out to per-session subscribers. Publishing never blocks;
// events for a full subscriber are dropped, so subscribers re-read session
// state rather than replaying events.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.SessionID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.SessionID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the session and returns a channel + cancel.
func (b *Bus) Subscribe(sessionID schema.SessionID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	sessionSubs := b.subs[sessionID]
	if sessionSubs == nil {
		sessionSubs = make(map[chan Event]struct{})
		b.subs[sessionID] = sessionSubs
	}
	sessionSubs[ch] = struct{}{}
	count := len(sessionSubs)
	b.mu.Unlock()
	b.log.With("session", sessionID).Debug("eventbus subscribe", "subs", count)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[sessionID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, sessionID)
				}
			}
			close(ch)
			b.mu.Unlock()
			b.log.With("session", sessionID).Debug("eventbus unsubscribe")
		})
	}
}

// Subscribers returns the number of subscribers for a session.
func (b *Bus) Subscribers(sessionID schema.SessionID) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

// OnChunk publishes a scrollback append.
func (b *Bus) OnChunk(event schema.ChunkEvent) {
	b.publish(event.SessionID, Event{Type: schema.EventChunk, Chunk: event})
}

// OnState publishes a state transition.
func (b *Bus) OnState(event schema.StateEvent) {
	b.publish(event.SessionID, Event{Type: schema.EventState, State: event})
}

// publish sends under the lock so a concurrent cancel cannot close a
// channel mid-send. Sends are non-blocking.
func (b *Bus) publish(sessionID schema.SessionID, event Event) {
	if b == nil {
		return
	}
	dropped := 0
	b.mu.Lock()
	for sub := range b.subs[sessionID] {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.With("session", sessionID).Trace("eventbus dropped", "count", dropped, "type", event.Type)
	}
}
