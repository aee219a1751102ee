package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Eklista/medialab-sub000/realtime"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// wsHarness is an httptest server exposing the realtime endpoint.
type wsHarness struct {
	server    *httptest.Server
	url       string // ws:// URL of the server root
	dialCount atomic.Int64
	lastQuery atomic.Value // url.Values of the most recent handshake
}

func newWSHarness(t *testing.T, handle func(conn *websocket.Conn)) *wsHarness {
	t.Helper()
	h := &wsHarness{}

	router := mux.NewRouter()
	router.HandleFunc("/ws/v1", func(w http.ResponseWriter, r *http.Request) {
		h.dialCount.Add(1)
		h.lastQuery.Store(r.URL.Query())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(conn)
	})

	h.server = httptest.NewServer(router)
	h.url = "ws" + strings.TrimPrefix(h.server.URL, "http")
	t.Cleanup(h.server.Close)
	return h
}

// drain keeps a server-side connection open, discarding inbound frames.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func eventRecorder(m *realtime.Manager, eventType string) <-chan realtime.Event {
	ch := make(chan realtime.Event, 16)
	m.On(eventType, func(ev realtime.Event) { ch <- ev })
	return ch
}

func waitEvent(t *testing.T, ch <-chan realtime.Event, what string) realtime.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s event", what)
		return realtime.Event{}
	}
}

func requireNoEvent(t *testing.T, ch <-chan realtime.Event, within time.Duration, what string) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected %s event: %+v", what, ev)
	case <-time.After(within):
	}
}

func fastDelay(int) time.Duration { return time.Millisecond }

func TestConnectCarriesUserIDHint(t *testing.T) {
	h := newWSHarness(t, drain)

	m, err := realtime.NewManager(h.url, realtime.WithReconnectDelayFn(fastDelay))
	require.NoError(t, err)
	defer m.Disconnect()

	connected := eventRecorder(m, realtime.EventConnected)
	require.NoError(t, m.Connect(context.Background(), 42))
	waitEvent(t, connected, "connected")

	require.Equal(t, realtime.StatusConnected, m.Status())
	require.Equal(t, 0, m.Attempt())

	query := h.lastQuery.Load().(url.Values)
	require.Equal(t, "42", query.Get("user_id"))
}

func TestConnectIsNoOpWhenAlreadyConnected(t *testing.T) {
	h := newWSHarness(t, drain)

	m, err := realtime.NewManager(h.url)
	require.NoError(t, err)
	defer m.Disconnect()

	connected := eventRecorder(m, realtime.EventConnected)
	require.NoError(t, m.Connect(context.Background(), 1))
	waitEvent(t, connected, "connected")

	require.NoError(t, m.Connect(context.Background(), 1))
	requireNoEvent(t, connected, 100*time.Millisecond, "second connected")
	require.EqualValues(t, 1, h.dialCount.Load())
}

func TestTerminalCloseCodesNeverRetry(t *testing.T) {
	for _, code := range []int{1000, 1001, 1008, 4001, 4003} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			h := newWSHarness(t, func(conn *websocket.Conn) {
				deadline := time.Now().Add(time.Second)
				conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, "rejected"), deadline)
				conn.Close()
			})

			m, err := realtime.NewManager(h.url, realtime.WithReconnectDelayFn(fastDelay))
			require.NoError(t, err)
			defer m.Disconnect()

			disconnected := eventRecorder(m, realtime.EventDisconnected)
			require.NoError(t, m.Connect(context.Background(), 1))

			ev := waitEvent(t, disconnected, "disconnected")
			require.Equal(t, code, ev.Code)

			// Give a would-be reconnect plenty of time to fire.
			time.Sleep(150 * time.Millisecond)
			require.Equal(t, realtime.StatusDisconnected, m.Status())
			require.EqualValues(t, 1, h.dialCount.Load())
		})
	}
}

func TestTransientCloseReconnects(t *testing.T) {
	var closes atomic.Int64
	h := newWSHarness(t, func(conn *websocket.Conn) {
		// First connection dies abruptly; later ones stay up.
		if closes.Add(1) == 1 {
			conn.Close()
			return
		}
		drain(conn)
	})

	m, err := realtime.NewManager(h.url, realtime.WithReconnectDelayFn(fastDelay))
	require.NoError(t, err)
	defer m.Disconnect()

	connected := eventRecorder(m, realtime.EventConnected)
	disconnected := eventRecorder(m, realtime.EventDisconnected)

	require.NoError(t, m.Connect(context.Background(), 1))
	waitEvent(t, connected, "first connected")
	waitEvent(t, disconnected, "disconnected")
	waitEvent(t, connected, "reconnected")

	require.Equal(t, realtime.StatusConnected, m.Status())
	require.Equal(t, 0, m.Attempt(), "attempt counter resets on successful connect")
	require.GreaterOrEqual(t, h.dialCount.Load(), int64(2))
}

func TestMaxReconnectReached(t *testing.T) {
	// Nothing listens on this address; every dial fails.
	dead := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(dead.URL, "http")
	dead.Close()

	m, err := realtime.NewManager(url,
		realtime.WithReconnectDelayFn(fastDelay),
		realtime.WithMaxReconnectAttempts(2),
		realtime.WithDialTimeout(time.Second),
	)
	require.NoError(t, err)

	maxed := eventRecorder(m, realtime.EventMaxReconnectReached)
	_ = m.Connect(context.Background(), 1) // first dial fails synchronously

	waitEvent(t, maxed, "max_reconnect_reached")
	require.Equal(t, realtime.StatusDisconnected, m.Status())
}

func TestQueueFlushPreservesOrder(t *testing.T) {
	received := make(chan realtime.Message, 16)
	h := newWSHarness(t, func(conn *websocket.Conn) {
		for {
			var msg realtime.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	})

	m, err := realtime.NewManager(h.url)
	require.NoError(t, err)
	defer m.Disconnect()

	// Queued while disconnected.
	require.NoError(t, m.Send("test", map[string]string{"seq": "A"}))
	require.NoError(t, m.Send("test", map[string]string{"seq": "B"}))
	require.NoError(t, m.Send("test", map[string]string{"seq": "C"}))
	require.Equal(t, 3, m.QueueLen())

	connected := eventRecorder(m, realtime.EventConnected)
	require.NoError(t, m.Connect(context.Background(), 7))
	waitEvent(t, connected, "connected")

	for _, want := range []string{"A", "B", "C"} {
		select {
		case msg := <-received:
			require.Equal(t, "test", msg.Type)
			require.Contains(t, string(msg.Data), want)
			require.EqualValues(t, 7, msg.UserID)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for queued message %s", want)
		}
	}
	require.Equal(t, 0, m.QueueLen())
}

func TestSendImmediateWhenConnected(t *testing.T) {
	received := make(chan realtime.Message, 1)
	h := newWSHarness(t, func(conn *websocket.Conn) {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err == nil {
			received <- msg
		}
		drain(conn)
	})

	m, err := realtime.NewManager(h.url)
	require.NoError(t, err)
	defer m.Disconnect()

	connected := eventRecorder(m, realtime.EventConnected)
	require.NoError(t, m.Connect(context.Background(), 1))
	waitEvent(t, connected, "connected")

	require.NoError(t, m.Send("test", map[string]int{"n": 1}))
	msg := <-received
	require.Equal(t, "test", msg.Type)
	require.Equal(t, 0, m.QueueLen())
}

func TestInboundMessageDispatch(t *testing.T) {
	h := newWSHarness(t, func(conn *websocket.Conn) {
		conn.WriteJSON(realtime.Message{Type: realtime.TypeNotification, Data: []byte(`{"title":"hi"}`), Timestamp: time.Now().UnixMilli()})
		// Unknown types must be dropped without breaking the loop.
		conn.WriteJSON(realtime.Message{Type: "mystery", Timestamp: time.Now().UnixMilli()})
		conn.WriteJSON(realtime.Message{Type: realtime.TypeSystemDataUpdated, Timestamp: time.Now().UnixMilli()})
		drain(conn)
	})

	m, err := realtime.NewManager(h.url)
	require.NoError(t, err)
	defer m.Disconnect()

	notifications := eventRecorder(m, realtime.TypeNotification)
	dataUpdates := eventRecorder(m, realtime.TypeSystemDataUpdated)

	require.NoError(t, m.Connect(context.Background(), 1))

	ev := waitEvent(t, notifications, "notification")
	require.NotNil(t, ev.Message)
	require.JSONEq(t, `{"title":"hi"}`, string(ev.Message.Data))

	waitEvent(t, dataUpdates, "system_data_updated")
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newWSHarness(t, drain)

	m, err := realtime.NewManager(h.url)
	require.NoError(t, err)

	connected := eventRecorder(m, realtime.EventConnected)
	require.NoError(t, m.Connect(context.Background(), 1))
	waitEvent(t, connected, "connected")

	m.Disconnect()
	m.Disconnect() // must be safe when already disconnected

	require.Equal(t, realtime.StatusDisconnected, m.Status())
	require.Equal(t, 0, m.Attempt())
}

func TestNewManagerRejectsBadURL(t *testing.T) {
	_, err := realtime.NewManager("http://not-a-ws-url")
	require.Error(t, err)

	_, err = realtime.NewManager("ws://ok.example")
	require.NoError(t, err)
}
