package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Inactivity defaults: the session locks after 15 minutes of silence,
// checked once a minute.
const (
	DefaultInactivityThreshold = 15 * time.Minute
	DefaultInactivityPoll      = time.Minute
)

// InactivityMonitor watches the machine's activity clock and locks the
// session once the idle threshold is exceeded. It is a background
// component: lock failures are logged, never propagated.
type InactivityMonitor struct {
	machine   *Machine
	threshold time.Duration
	poll      time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	running bool
}

// MonitorOption configures an InactivityMonitor.
type MonitorOption func(*InactivityMonitor)

// WithThreshold overrides the 15 minute idle threshold.
func WithThreshold(d time.Duration) MonitorOption {
	return func(im *InactivityMonitor) { im.threshold = d }
}

// WithPollInterval overrides the 60s poll interval.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(im *InactivityMonitor) { im.poll = d }
}

// NewInactivityMonitor creates a monitor for the given machine.
func NewInactivityMonitor(machine *Machine, options ...MonitorOption) *InactivityMonitor {
	im := &InactivityMonitor{
		machine:   machine,
		threshold: DefaultInactivityThreshold,
		poll:      DefaultInactivityPoll,
	}
	for _, opt := range options {
		opt(im)
	}
	return im
}

// Start begins polling. Calling Start on a running monitor is a no-op.
func (im *InactivityMonitor) Start() {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.running {
		return
	}
	im.running = true
	im.stop = make(chan struct{})
	go im.loop(im.stop)
}

// Stop cancels the monitor. Safe to call repeatedly and while stopped.
func (im *InactivityMonitor) Stop() {
	im.mu.Lock()
	defer im.mu.Unlock()
	if !im.running {
		return
	}
	im.running = false
	close(im.stop)
	im.stop = nil
}

func (im *InactivityMonitor) loop(stop chan struct{}) {
	ticker := time.NewTicker(im.poll)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if im.machine.LockIfIdle(im.threshold) {
				log.Info().Dur("threshold", im.threshold).Msg("session locked after inactivity")
			}
		}
	}
}
