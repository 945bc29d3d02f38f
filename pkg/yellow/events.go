package yellow

import "sync"

// EventKind tags the variant of an Event (DESIGN NOTES §9: "prefer a typed channel/stream
// of tagged events so the surrounding kernel can pattern-match").
type EventKind string

const (
	EventConnected      EventKind = "connected"
	EventDisconnected   EventKind = "disconnected"
	EventChannelChanged EventKind = "channelChanged"
	EventIntentStatus   EventKind = "intentStatus"
)

// Event is the single tagged type emitted both through the handler-based On/Off API and
// through the typed Events() channel stream.
type Event struct {
	Kind     EventKind
	Channel  *Channel
	Status   ExecutionStatus
	Metadata map[string]string
}

// Handler receives emitted events via On/Off registration.
type Handler func(Event)

// emitter fans a single Event out to registered handlers and to a bounded channel stream.
// Handlers never block emission on a suspension point and never see a partially
// constructed Event, matching §5's reentrancy requirement ("never holding a lock across a
// suspension point"): emit holds the lock only to snapshot handlers, then releases it
// before invoking them.
type emitter struct {
	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	stream   chan Event
}

func newEmitter() *emitter {
	return &emitter{
		handlers: make(map[int]Handler),
		stream:   make(chan Event, 64),
	}
}

// On registers a handler and returns an unsubscribe function.
func (e *emitter) On(h Handler) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.handlers[id] = h
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

// Off removes every registered handler. Used during disconnect() cleanup so "no handler
// is invoked after disconnect() returns" (§4.2) holds even for handlers that never called
// their own unsubscribe function.
func (e *emitter) Off() {
	e.mu.Lock()
	e.handlers = make(map[int]Handler)
	e.mu.Unlock()
}

// Events returns the typed channel stream of emitted events.
func (e *emitter) Events() <-chan Event {
	return e.stream
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	snapshot := make([]Handler, 0, len(e.handlers))
	for _, h := range e.handlers {
		snapshot = append(snapshot, h)
	}
	e.mu.Unlock()

	for _, h := range snapshot {
		h(ev)
	}

	select {
	case e.stream <- ev:
	default:
		// Stream is a best-effort secondary surface; a slow/absent consumer must never
		// block event emission for handler-based subscribers.
	}
}
