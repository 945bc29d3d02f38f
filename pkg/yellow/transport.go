package yellow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erc7824/yellow-provider/internal/logger"
	"github.com/erc7824/yellow-provider/internal/metrics"
)

// ConnState is the C2 connection state machine (§4.2).
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Message is one ClearNode protocol frame: a method name plus method-specific payload
// (§6). RequestID is carried when the transport has one available but correlation never
// depends on it — see Transport's doc comment.
type Message struct {
	Method    string                 `json:"method"`
	Params    map[string]interface{} `json:"params,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Transport owns a single WebSocket to the relay and exposes the three primitives C2
// requires (§4.2): Send, SendAndWait, OnMessage.
//
// Request/response correlation is method-keyed FIFO: the relay protocol carries a method
// name but no opaque request id guaranteed unique across outstanding calls, so at most
// one SendAndWait call per method may be in flight from a single Transport at a time — a
// second concurrent call for the same method is queued behind the first and receives the
// next response for that method once every waiter ahead of it has been served (§9 Design
// Notes).
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Send(ctx context.Context, msg Message) error
	SendAndWait(ctx context.Context, msg Message, timeout time.Duration) (*Message, error)
	OnMessage(h func(Message)) (unsubscribe func())
	State() ConnState
}

type waiter struct {
	ch chan *Message
}

// WSTransport is the gorilla/websocket-backed Transport implementation.
type WSTransport struct {
	url    string
	log    logger.Logger
	dialer *websocket.Dialer

	reconnectInitialDelay time.Duration
	maxReconnectAttempts  int

	mu    sync.Mutex
	state ConnState
	conn  *websocket.Conn

	waitersMu sync.Mutex
	waiters   map[string][]*waiter // keyed by method name, FIFO per method

	handlersMu sync.Mutex
	handlers   map[int]func(Message)
	nextHandlerID int

	closeCh chan struct{} // closed once on explicit Disconnect

	onConnected    func()
	onDisconnected func()
}

// NewWSTransport constructs a Transport bound to relayURL. onConnected/onDisconnected may
// be nil; when set they let the Provider raise its own `connected`/`disconnected` events
// (C1-mapped) without WSTransport depending on the emitter type directly. onConnected runs
// after each successful reconnect, not after the initial Connect (the Provider emits
// `connected` itself once the first handshake succeeds); onDisconnected runs once the
// reconnect attempts are exhausted.
func NewWSTransport(relayURL string, reconnectInitialDelay time.Duration, maxReconnectAttempts int, log logger.Logger, onConnected, onDisconnected func()) *WSTransport {
	return &WSTransport{
		url:                   relayURL,
		log:                   log,
		dialer:                &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		reconnectInitialDelay: reconnectInitialDelay,
		maxReconnectAttempts:  maxReconnectAttempts,
		state:                 StateDisconnected,
		waiters:               make(map[string][]*waiter),
		handlers:              make(map[int]func(Message)),
		closeCh:               make(chan struct{}),
		onConnected:           onConnected,
		onDisconnected:        onDisconnected,
	}
}

func (t *WSTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *WSTransport) setState(s ConnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	metrics.ConnectionState.Set(float64(s))
}

// Connect dials the relay and starts the read loop. On an unexpected close it transitions
// to RECONNECTING and retries with exponential backoff (§4.2); Connect itself only
// performs the first dial.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.setState(StateConnecting)

	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.setState(StateDisconnected)
		return newFallback(ReasonUnavailable, "failed to connect to relay", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.setState(StateConnected)

	go t.readLoop()
	return nil
}

// readLoop parses every inbound frame into a Message. A message consumed by a waiter for
// its method is not redelivered to OnMessage handlers; everything else is broadcast.
func (t *WSTransport) readLoop() {
	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleUnexpectedClose()
			return
		}

		var msg Message
		if jsonErr := json.Unmarshal(data, &msg); jsonErr != nil {
			t.log.Warn("discarding malformed relay frame", logger.Error(jsonErr))
			continue
		}

		if !t.deliverToWaiter(msg) {
			t.broadcast(msg)
		}
	}
}

func (t *WSTransport) deliverToWaiter(msg Message) bool {
	t.waitersMu.Lock()
	defer t.waitersMu.Unlock()

	queue := t.waiters[msg.Method]
	if len(queue) == 0 {
		return false
	}

	w := queue[0]
	t.waiters[msg.Method] = queue[1:]
	m := msg
	w.ch <- &m
	return true
}

func (t *WSTransport) broadcast(msg Message) {
	t.handlersMu.Lock()
	snapshot := make([]func(Message), 0, len(t.handlers))
	for _, h := range t.handlers {
		snapshot = append(snapshot, h)
	}
	t.handlersMu.Unlock()

	for _, h := range snapshot {
		h(msg)
	}
}

func (t *WSTransport) handleUnexpectedClose() {
	select {
	case <-t.closeCh:
		// Explicit Disconnect already tore everything down; nothing unexpected happened.
		return
	default:
	}

	t.setState(StateReconnecting)
	t.rejectAllWaiters(newFallback(ReasonUnavailable, "connection closed unexpectedly", nil))

	delay := t.reconnectInitialDelay
	for attempt := 1; attempt <= t.maxReconnectAttempts; attempt++ {
		t.log.Warn("reconnecting to relay after backoff", logger.Int("attempt", attempt), logger.Duration("delay", delay))
		metrics.ReconnectBackoffSeconds.Observe(delay.Seconds())
		time.Sleep(delay)
		metrics.ReconnectAttempts.Inc()

		conn, _, err := t.dialer.Dial(t.url, nil)
		if err == nil {
			t.mu.Lock()
			t.conn = conn
			t.mu.Unlock()
			t.setState(StateConnected)
			if t.onConnected != nil {
				t.onConnected()
			}
			go t.readLoop()
			return
		}

		delay = delay * 2
	}

	t.setState(StateClosed)
	metrics.ConnectionsClosed.WithLabelValues("exhausted_retries").Inc()
	if t.onDisconnected != nil {
		t.onDisconnected()
	}
}

// Disconnect closes the socket, rejects all pending waiters with a connection-closed
// error, and drops all message handlers. No handler is invoked after Disconnect returns
// (§4.2).
func (t *WSTransport) Disconnect() error {
	select {
	case <-t.closeCh:
		return nil // already closed
	default:
		close(t.closeCh)
	}

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	t.rejectAllWaiters(newFallback(ReasonUnavailable, "connection closed", nil))

	t.handlersMu.Lock()
	t.handlers = make(map[int]func(Message))
	t.handlersMu.Unlock()

	t.setState(StateClosed)
	metrics.ConnectionsClosed.WithLabelValues("explicit").Inc()
	return nil
}

func (t *WSTransport) rejectAllWaiters(fb *Fallback) {
	t.waitersMu.Lock()
	defer t.waitersMu.Unlock()

	for method, queue := range t.waiters {
		for _, w := range queue {
			close(w.ch)
		}
		delete(t.waiters, method)
	}
	_ = fb
}

// Send writes msg without waiting for a response.
func (t *WSTransport) Send(ctx context.Context, msg Message) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return newFallback(ReasonUnavailable, "not connected", nil)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return newFallback(ReasonUnavailable, "failed to write to relay", err)
	}
	return nil
}

// SendAndWait sends msg and waits for the first inbound message whose method matches,
// honoring the method-keyed FIFO documented on Transport. It fails with YELLOW_TIMEOUT on
// deadline and YELLOW_UNAVAILABLE on transport error (§4.2).
func (t *WSTransport) SendAndWait(ctx context.Context, msg Message, timeout time.Duration) (*Message, error) {
	w := &waiter{ch: make(chan *Message, 1)}

	t.waitersMu.Lock()
	t.waiters[msg.Method] = append(t.waiters[msg.Method], w)
	t.waitersMu.Unlock()

	metrics.RequestsInFlight.WithLabelValues(msg.Method).Inc()
	defer metrics.RequestsInFlight.WithLabelValues(msg.Method).Dec()

	start := time.Now()
	if err := t.Send(ctx, msg); err != nil {
		t.removeWaiter(msg.Method, w)
		metrics.RequestDuration.WithLabelValues(msg.Method, "closed").Observe(time.Since(start).Seconds())
		return nil, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case resp, ok := <-w.ch:
		if !ok {
			metrics.RequestDuration.WithLabelValues(msg.Method, "closed").Observe(time.Since(start).Seconds())
			return nil, newFallback(ReasonUnavailable, "connection closed while awaiting response", nil)
		}
		metrics.RequestDuration.WithLabelValues(msg.Method, "ok").Observe(time.Since(start).Seconds())
		return resp, nil
	case <-deadline.C:
		t.removeWaiter(msg.Method, w)
		metrics.RequestDuration.WithLabelValues(msg.Method, "timeout").Observe(time.Since(start).Seconds())
		return nil, newFallback(ReasonTimeout, fmt.Sprintf("no response to %q before deadline", msg.Method), nil)
	case <-ctx.Done():
		t.removeWaiter(msg.Method, w)
		metrics.RequestDuration.WithLabelValues(msg.Method, "timeout").Observe(time.Since(start).Seconds())
		return nil, newFallback(ReasonTimeout, ctx.Err().Error(), ctx.Err())
	}
}

func (t *WSTransport) removeWaiter(method string, target *waiter) {
	t.waitersMu.Lock()
	defer t.waitersMu.Unlock()

	queue := t.waiters[method]
	for i, w := range queue {
		if w == target {
			t.waiters[method] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

// OnMessage registers a handler for every inbound message not consumed by a pending
// SendAndWait waiter. Returns an unsubscribe function.
func (t *WSTransport) OnMessage(h func(Message)) (unsubscribe func()) {
	t.handlersMu.Lock()
	id := t.nextHandlerID
	t.nextHandlerID++
	t.handlers[id] = h
	t.handlersMu.Unlock()

	return func() {
		t.handlersMu.Lock()
		delete(t.handlers, id)
		t.handlersMu.Unlock()
	}
}
