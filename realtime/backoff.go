package realtime

import (
	"math"
	"time"
)

// Reconnection policy defaults.
const (
	BackoffBaseInterval = 5 * time.Second
	BackoffGrowthFactor = 1.5
	BackoffMaxInterval  = 30 * time.Second

	// DefaultMaxReconnectAttempts is the retry ceiling before the manager
	// gives up and emits EventMaxReconnectReached.
	DefaultMaxReconnectAttempts = 10
)

// ReconnectDelay computes the delay before reconnect attempt n (1-based):
//
//	delay(n) = min(base * growth^(n-1), cap)
//
// It is a pure function of its argument so the policy can be tested on its
// own, with no hidden state.
func ReconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(BackoffBaseInterval) * math.Pow(BackoffGrowthFactor, float64(attempt-1))
	if delay > float64(BackoffMaxInterval) {
		return BackoffMaxInterval
	}
	return time.Duration(delay)
}
