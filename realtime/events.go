package realtime

// Lifecycle event names. Wire message types double as event names, so a
// subscriber registers for "notification" the same way it registers for
// "connected".
const (
	EventConnected           = "connected"
	EventDisconnected        = "disconnected"
	EventMaxReconnectReached = "max_reconnect_reached"
)

// Event is delivered to registered handlers. Message is set for inbound
// wire messages; Code/Reason are set for EventDisconnected.
type Event struct {
	Type    string
	Message *Message
	Code    int
	Reason  string
}

// Handler receives events for the type it was registered under. Handlers
// run on the manager's read goroutine and must not block.
type Handler func(Event)
