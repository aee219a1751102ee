// Package client composes the session machine, the inactivity monitor, and
// the realtime manager into one client facade: the realtime channel follows
// the session lifecycle, connecting on authentication and disconnecting on
// logout, while a locked session keeps its connection alive.
package client

import (
	"context"

	"github.com/Eklista/medialab-sub000/realtime"
	"github.com/Eklista/medialab-sub000/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Client is the top-level handle applications interact with.
type Client struct {
	machine  *session.Machine
	monitor  *session.InactivityMonitor
	realtime *realtime.Manager
}

// Option configures a Client.
type Option func(*Client)

// WithInactivityMonitor attaches an idle-lock monitor; it is started by New
// and stopped by Close.
func WithInactivityMonitor(monitor *session.InactivityMonitor) Option {
	return func(c *Client) { c.monitor = monitor }
}

// New wires the realtime manager to the machine's lifecycle transitions and
// starts the inactivity monitor when one is attached. The manager may be nil
// for sessions that do not need the realtime channel.
func New(machine *session.Machine, manager *realtime.Manager, options ...Option) (*Client, error) {
	if machine == nil {
		return nil, errors.New("[New] session machine is required")
	}

	c := &Client{machine: machine, realtime: manager}
	for _, opt := range options {
		opt(c)
	}

	if manager != nil {
		machine.OnTransition(c.followTransition)
	}
	if c.monitor != nil {
		c.monitor.Start()
	}
	return c, nil
}

// followTransition keeps the realtime channel in step with the session.
// Lock transitions deliberately fall through to the connected branch: a
// locked session is still authenticated and keeps receiving events.
func (c *Client) followTransition(tr session.Transition) {
	switch tr.To {
	case session.PhaseAuthenticated:
		var userID int64
		if user := c.machine.User(); user != nil {
			userID = user.ID
		}
		if err := c.realtime.Connect(context.Background(), userID); err != nil {
			log.Warn().Err(err).Msg("realtime connect after authentication failed")
		}
	case session.PhaseLoggingOut, session.PhaseUnauthenticated:
		c.realtime.Disconnect()
	}
}

// Session exposes the lifecycle machine for commands and queries.
func (c *Client) Session() *session.Machine {
	return c.machine
}

// Realtime exposes the realtime manager, or nil when none is attached.
func (c *Client) Realtime() *realtime.Manager {
	return c.realtime
}

// Close stops the monitor and tears down the realtime connection. The
// session itself is left as-is; call Logout first to end it.
func (c *Client) Close() {
	if c.monitor != nil {
		c.monitor.Stop()
	}
	if c.realtime != nil {
		c.realtime.Disconnect()
	}
}
