package realtime

import (
	"sync"
	"time"
)

// DefaultQueueCap bounds the outbound queue. Beyond it the oldest message
// is dropped; realtime traffic is advisory and a stale backlog is worth
// less than fresh messages.
const DefaultQueueCap = 256

// QueuedMessage is an outbound message buffered while disconnected.
// Immutable once created; removed strictly in FIFO order.
type QueuedMessage struct {
	Type       string
	Data       []byte
	EnqueuedAt time.Time
}

// OutboundQueue is a bounded FIFO buffer for messages sent while the
// connection is down.
type OutboundQueue struct {
	mu    sync.Mutex
	items []QueuedMessage
	cap   int
}

// NewOutboundQueue creates a queue bounded at capacity (DefaultQueueCap if
// capacity <= 0).
func NewOutboundQueue(capacity int) *OutboundQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCap
	}
	return &OutboundQueue{cap: capacity}
}

// Push appends a message, dropping the oldest entry when full. It reports
// whether a message was dropped.
func (q *OutboundQueue) Push(msg QueuedMessage) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cap {
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, msg)
	return dropped
}

// Pop removes and returns the oldest message.
func (q *OutboundQueue) Pop() (QueuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return QueuedMessage{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// PushFront returns a message to the head of the queue. Used when a flush
// write fails after the message was already popped, preserving order.
func (q *OutboundQueue) PushFront(msg QueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]QueuedMessage{msg}, q.items...)
}

// Len returns the number of buffered messages.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
