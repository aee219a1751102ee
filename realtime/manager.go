// Package realtime owns the client side of the MediaLab WebSocket channel:
// dialing, authenticated handshake via the shared cookie jar, reconnection
// with exponential backoff, heartbeats, and a FIFO queue for messages sent
// while disconnected.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Eklista/medialab-sub000/hints"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// wsPath is the deterministic, versioned endpoint path. Identity travels as
// a non-secret query parameter; authentication rides on the cookie jar the
// dialer shares with the REST client. The manager never reads cookie values.
const wsPath = "/ws/v1"

const (
	defaultDialTimeout       = 15 * time.Second
	defaultHeartbeatInterval = 30 * time.Second

	// flushBatchSize bounds how many queued messages are written per flush
	// tick so a reconnect does not amplify into a burst.
	flushBatchSize = 32
	flushTickPause = 50 * time.Millisecond
)

// Status is the connection manager's lifecycle state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Manager owns one realtime connection. Reconnect attempts are strictly
// sequential: at most one socket is alive per manager at any time.
type Manager struct {
	baseURL string
	dialer  *websocket.Dialer
	hints   hints.Repo

	dialTimeout       time.Duration
	heartbeatInterval time.Duration
	maxAttempts       int
	delayFn           func(attempt int) time.Duration
	pongWatchdog      bool

	handlersMu sync.RWMutex
	handlers   map[string][]Handler

	queue *OutboundQueue

	// writeMu serializes writes; gorilla/websocket allows one writer at a time.
	writeMu sync.Mutex

	mu             sync.Mutex
	status         Status
	attempt        int
	conn           *websocket.Conn
	gen            int // connection generation; stale socket callbacks are ignored
	closed         bool
	userID         int64
	lastPong       time.Time
	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer
	connID         string
}

// Option configures a Manager.
type Option func(*Manager)

// WithCookieJar shares the REST client's cookie jar with the WebSocket
// handshake so the httpOnly session cookie authenticates the connection.
func WithCookieJar(jar http.CookieJar) Option {
	return func(m *Manager) { m.dialer.Jar = jar }
}

// WithHintRepo lets the manager fall back to the persisted user-id hint
// when Connect is called without one.
func WithHintRepo(repo hints.Repo) Option {
	return func(m *Manager) { m.hints = repo }
}

// WithHeartbeatInterval overrides the 30s heartbeat period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Manager) { m.heartbeatInterval = d }
}

// WithDialTimeout overrides the 15s connection-attempt timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) { m.dialTimeout = d }
}

// WithMaxReconnectAttempts overrides the retry ceiling.
func WithMaxReconnectAttempts(n int) Option {
	return func(m *Manager) { m.maxAttempts = n }
}

// WithReconnectDelayFn overrides the backoff policy (primarily for testing).
func WithReconnectDelayFn(fn func(attempt int) time.Duration) Option {
	return func(m *Manager) { m.delayFn = fn }
}

// WithPongWatchdog enables the optional heartbeat watchdog: when no pong
// arrives within two heartbeat intervals the socket is closed and the
// normal backoff path reconnects. Off by default.
func WithPongWatchdog() Option {
	return func(m *Manager) { m.pongWatchdog = true }
}

// NewManager creates a manager for the realtime endpoint at baseURL
// (scheme ws or wss, no path).
func NewManager(baseURL string, options ...Option) (*Manager, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewManager] invalid realtime base URL")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.Errorf("[NewManager] realtime URL scheme must be ws or wss, got %q", u.Scheme)
	}

	m := &Manager{
		baseURL:           baseURL,
		dialer:            &websocket.Dialer{},
		dialTimeout:       defaultDialTimeout,
		heartbeatInterval: defaultHeartbeatInterval,
		maxAttempts:       DefaultMaxReconnectAttempts,
		delayFn:           ReconnectDelay,
		handlers:          make(map[string][]Handler),
		queue:             NewOutboundQueue(DefaultQueueCap),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// On registers a handler for a message type or lifecycle event name.
func (m *Manager) On(eventType string, handler Handler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Attempt returns the current reconnect attempt counter.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// QueueLen returns the number of buffered outbound messages.
func (m *Manager) QueueLen() int {
	return m.queue.Len()
}

// Connect opens the realtime channel. No-op when already connecting or
// connected. The identity hint resolution order is: the explicit argument,
// the last-known hint, then the persisted hint cache. The first dial is
// bounded by the dial timeout; failures beyond it are retried in the
// background through the backoff policy.
func (m *Manager) Connect(ctx context.Context, userIDHint int64) error {
	m.mu.Lock()
	if m.status == StatusConnecting || m.status == StatusConnected {
		m.mu.Unlock()
		return nil
	}
	if userIDHint != 0 {
		m.userID = userIDHint
	}
	if m.userID == 0 && m.hints != nil {
		if cached, err := m.hints.CachedUserID(); err == nil && cached != 0 {
			m.userID = cached
		}
	}
	m.closed = false
	m.status = StatusConnecting
	m.gen++
	gen := m.gen
	userID := m.userID
	m.connID = uuid.NewString()
	m.mu.Unlock()

	if err := m.dial(ctx, gen, userID); err != nil {
		return errors.Wrap(err, "[Manager.Connect] dial failed")
	}
	return nil
}

// ForceReconnect resets the retry counter and reconnects. This is the only
// way out of the max_reconnect_reached terminal state.
func (m *Manager) ForceReconnect(ctx context.Context) error {
	m.mu.Lock()
	m.attempt = 0
	m.mu.Unlock()
	return m.Connect(ctx, 0)
}

// Disconnect closes the channel with a normal closure, cancels all timers,
// clears the identity hint, and resets the attempt counter. Safe to call
// when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	m.gen++
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopHeartbeatLocked()
	hadConn := m.conn != nil
	if hadConn {
		deadline := time.Now().Add(time.Second)
		_ = m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"), deadline)
		m.conn.Close()
		m.conn = nil
	}
	m.status = StatusDisconnected
	m.attempt = 0
	m.userID = 0
	m.mu.Unlock()

	if hadConn {
		m.emit(Event{Type: EventDisconnected, Code: websocket.CloseNormalClosure, Reason: "client disconnect"})
	}
}

// Send serializes and sends immediately when connected; otherwise the
// message is queued for the next flush. "Sent" means handed to the
// transport without a synchronous error — there is no server ack.
func (m *Manager) Send(msgType string, data any) error {
	var payload json.RawMessage
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return errors.Wrapf(err, "[Manager.Send] marshal %q payload", msgType)
		}
		payload = raw
	}

	m.mu.Lock()
	conn := m.conn
	connected := m.status == StatusConnected
	userID := m.userID
	m.mu.Unlock()

	if connected && conn != nil {
		msg := Message{Type: msgType, Data: payload, Timestamp: nowMillis(), UserID: userID}
		if err := m.write(conn, msg); err == nil {
			return nil
		}
		// Synchronous write failure: the read loop will notice the dead
		// socket; buffer the message for the next connection.
	}

	if dropped := m.queue.Push(QueuedMessage{Type: msgType, Data: payload, EnqueuedAt: time.Now()}); dropped {
		log.Warn().Str("conn_id", m.connID).Str("type", msgType).Msg("outbound queue full, dropped oldest message")
	}
	return nil
}

func (m *Manager) write(conn *websocket.Conn, msg Message) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (m *Manager) dial(ctx context.Context, gen int, userID int64) error {
	endpoint := m.baseURL + wsPath
	if userID != 0 {
		endpoint += "?user_id=" + strconv.FormatInt(userID, 10)
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()

	conn, resp, err := m.dialer.DialContext(dialCtx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		m.onDialFailed(gen, err)
		return err
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		// Disconnected while the dial was in flight.
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.conn = conn
	m.status = StatusConnected
	m.attempt = 0
	m.lastPong = time.Now()
	stop := make(chan struct{})
	m.heartbeatStop = stop
	connID := m.connID
	m.mu.Unlock()

	log.Debug().Str("conn_id", connID).Str("endpoint", wsPath).Msg("realtime channel connected")

	go m.readLoop(conn, gen)
	go m.heartbeatLoop(gen, stop)
	go m.flushQueue(gen)

	m.emit(Event{Type: EventConnected})
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			m.onSocketClosed(gen, code, reason)
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			// Malformed frames are logged and dropped, never thrown.
			log.Warn().Str("conn_id", m.connID).Err(err).Msg("dropping malformed realtime message")
			continue
		}

		if msg.Type == TypePong {
			m.mu.Lock()
			m.lastPong = time.Now()
			m.mu.Unlock()
		}

		m.dispatch(msg)
	}
}

func (m *Manager) dispatch(msg Message) {
	m.handlersMu.RLock()
	handlers := m.handlers[msg.Type]
	m.handlersMu.RUnlock()

	if len(handlers) == 0 {
		if msg.Type != TypePong && msg.Type != TypeHeartbeat {
			log.Debug().Str("conn_id", m.connID).Str("type", msg.Type).Msg("no handler for realtime message type")
		}
		return
	}
	ev := Event{Type: msg.Type, Message: &msg}
	for _, h := range handlers {
		h(ev)
	}
}

func (m *Manager) heartbeatLoop(gen int, stop chan struct{}) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			conn := m.conn
			alive := gen == m.gen && m.status == StatusConnected && conn != nil
			lastPong := m.lastPong
			userID := m.userID
			m.mu.Unlock()
			if !alive {
				return
			}

			if m.pongWatchdog && time.Since(lastPong) > 2*m.heartbeatInterval {
				log.Warn().Str("conn_id", m.connID).Msg("pong watchdog tripped, forcing reconnect")
				conn.Close() // read loop surfaces the close and reconnects via backoff
				return
			}

			ping := Message{Type: TypePing, Timestamp: nowMillis(), UserID: userID}
			if err := m.write(conn, ping); err != nil {
				log.Debug().Str("conn_id", m.connID).Err(err).Msg("heartbeat write failed")
			}
		}
	}
}

// flushQueue drains the outbound queue in bounded batches, preserving
// enqueue order. A write failure re-queues the message at the head and
// stops; the next connection resumes from the same point.
func (m *Manager) flushQueue(gen int) {
	for {
		for i := 0; i < flushBatchSize; i++ {
			m.mu.Lock()
			conn := m.conn
			alive := gen == m.gen && m.status == StatusConnected && conn != nil
			userID := m.userID
			m.mu.Unlock()
			if !alive {
				return
			}

			queued, ok := m.queue.Pop()
			if !ok {
				return
			}
			msg := Message{Type: queued.Type, Data: queued.Data, Timestamp: nowMillis(), UserID: userID}
			if err := m.write(conn, msg); err != nil {
				m.queue.PushFront(queued)
				return
			}
		}
		time.Sleep(flushTickPause)
	}
}

func (m *Manager) onDialFailed(gen int, err error) {
	log.Warn().Str("conn_id", m.connID).Err(err).Msg("realtime dial failed")

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.status = StatusDisconnected
	maxed := !m.scheduleReconnectLocked(gen)
	m.mu.Unlock()

	if maxed {
		m.emit(Event{Type: EventMaxReconnectReached})
	}
}

func (m *Manager) onSocketClosed(gen int, code int, reason string) {
	m.mu.Lock()
	if gen != m.gen {
		// A newer connection owns the manager; this close belongs to a
		// socket that was already replaced or explicitly shut down.
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.status = StatusDisconnected

	terminal := m.closed || IsTerminalCloseCode(code)
	maxed := false
	if !terminal {
		maxed = !m.scheduleReconnectLocked(gen)
	}
	m.mu.Unlock()

	log.Debug().Str("conn_id", m.connID).Int("code", code).Str("reason", reason).Msg("realtime channel closed")
	m.emit(Event{Type: EventDisconnected, Code: code, Reason: reason})
	if maxed {
		m.emit(Event{Type: EventMaxReconnectReached})
	}
}

// scheduleReconnectLocked arms the backoff timer for the next attempt.
// Returns false when the attempt ceiling is exhausted. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked(gen int) bool {
	if m.attempt >= m.maxAttempts {
		log.Warn().Str("conn_id", m.connID).Int("attempts", m.attempt).Msg("reconnect attempts exhausted")
		return false
	}
	m.attempt++
	m.status = StatusReconnecting
	delay := m.delayFn(m.attempt)
	attempt := m.attempt
	m.reconnectTimer = time.AfterFunc(delay, func() { m.redial(gen) })
	log.Debug().Str("conn_id", m.connID).Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
	return true
}

func (m *Manager) redial(gen int) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.status != StatusReconnecting {
		m.mu.Unlock()
		return
	}
	m.status = StatusConnecting
	userID := m.userID
	m.mu.Unlock()

	// Errors schedule the next attempt themselves.
	_ = m.dial(context.Background(), gen, userID)
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

func (m *Manager) emit(ev Event) {
	m.handlersMu.RLock()
	handlers := m.handlers[ev.Type]
	m.handlersMu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func closeDetails(err error) (code int, reason string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
