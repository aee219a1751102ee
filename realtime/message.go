package realtime

import (
	"encoding/json"
	"time"
)

// Message is the wire schema in both directions:
// { "type": string, "data": any, "timestamp": epoch-ms, "userId"?: number }.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	UserID    int64           `json:"userId,omitempty"`
}

// Reserved inbound message types.
const (
	TypeConnected         = "connected"
	TypeNotification      = "notification"
	TypeUserUpdated       = "user_updated"
	TypeSystemDataUpdated = "system_data_updated"
	TypePong              = "pong"
	TypeHeartbeat         = "heartbeat"
	TypeError             = "error"
)

// Reserved outbound message types.
const (
	TypePing = "ping"
	TypeTest = "test"
)

// Close codes for which retrying is pointless. Everything else is treated
// as transient and goes through the backoff policy.
var terminalCloseCodes = map[int]bool{
	1000: true, // normal closure
	1001: true, // going away
	1008: true, // policy violation / auth rejected
	4001: true, // custom: authentication required
	4003: true, // custom: insufficient permissions
}

// IsTerminalCloseCode reports whether a close code suppresses reconnection.
func IsTerminalCloseCode(code int) bool {
	return terminalCloseCodes[code]
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
