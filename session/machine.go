// Package session holds the authoritative in-memory representation of the
// authenticated session: the lifecycle state machine, its permission
// queries, and the inactivity monitor that locks an idle session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/Eklista/medialab-sub000/api"
	"github.com/Eklista/medialab-sub000/hints"
	"github.com/Eklista/medialab-sub000/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultSuppressCooldown is how long background auth checks stay
// suppressed after an explicit logout, so a concurrent status probe cannot
// resurrect a session the user just ended.
const DefaultSuppressCooldown = 5 * time.Second

const loginPath = "/login"

// AuthAPI is the remote backing store for the machine. The remote API is
// always the source of truth for authorization; everything the machine
// keeps locally is a cache of the server's answer.
type AuthAPI interface {
	Login(ctx context.Context, creds api.Credentials) (users.User, error)
	Logout(ctx context.Context) error
	CheckStatus(ctx context.Context) (bool, error)
	CurrentUser(ctx context.Context) (users.User, error)
	VerifyPassword(ctx context.Context, password string) error

	// ClearClientCookies drops any client-visible cookie state. The
	// httpOnly session cookie itself is invisible to the client and is
	// invalidated server-side by Logout.
	ClearClientCookies()
}

// Navigator is invoked when the machine wants the host application to move
// to another surface, e.g. the login page after logout.
type Navigator func(path string)

// Machine is the session lifecycle state machine. All state is owned by the
// machine and mutated only through its command methods, which are safe for
// concurrent use.
type Machine struct {
	api      AuthAPI
	hints    hints.Repo
	nowTime  func() time.Time
	navigate Navigator
	cooldown time.Duration

	// publicRoutes never auto-lock; an idle login page stays usable.
	publicRoutes map[string]struct{}

	mu            sync.Mutex
	phase         Phase
	locked        bool
	user          *users.User
	lastActivity  time.Time
	suppressUntil time.Time
	errMsg        string
	currentRoute  string
	subs          []func(Transition)
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithNowTime sets the clock function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) MachineOption {
	return func(m *Machine) { m.nowTime = nowFunc }
}

// WithNavigator sets the redirect hook fired after logout completes.
func WithNavigator(nav Navigator) MachineOption {
	return func(m *Machine) { m.navigate = nav }
}

// WithPublicRoutes replaces the public-route allowlist.
func WithPublicRoutes(paths ...string) MachineOption {
	return func(m *Machine) {
		m.publicRoutes = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			m.publicRoutes[p] = struct{}{}
		}
	}
}

// WithSuppressCooldown overrides the post-logout suppression window.
func WithSuppressCooldown(d time.Duration) MachineOption {
	return func(m *Machine) { m.cooldown = d }
}

// NewMachine initializes a session machine backed by the given API client
// and hint store.
func NewMachine(authAPI AuthAPI, hintRepo hints.Repo, options ...MachineOption) (*Machine, error) {
	if authAPI == nil {
		return nil, errors.New("[NewMachine] auth API is required")
	}
	if hintRepo == nil {
		return nil, errors.New("[NewMachine] hint repo is required")
	}

	m := &Machine{
		api:      authAPI,
		hints:    hintRepo,
		nowTime:  time.Now,
		cooldown: DefaultSuppressCooldown,
		navigate: func(path string) {
			log.Info().Str("path", path).Msg("session redirect requested")
		},
		publicRoutes: map[string]struct{}{
			"/login":          {},
			"/password-reset": {},
		},
		phase: PhaseUnauthenticated,
	}
	for _, opt := range options {
		opt(m)
	}
	m.lastActivity = m.nowTime()
	return m, nil
}

// OnTransition subscribes to phase and lock-state changes. Callbacks run on
// the goroutine that triggered the transition, after state has moved.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Login authenticates against the remote API. Valid from Unauthenticated or
// from Authenticated with a recorded error; on success the machine is
// Authenticated and unlocked, and the user-id hint is persisted. Failures
// are recorded in state and returned to the caller.
func (m *Machine) Login(ctx context.Context, creds api.Credentials) error {
	m.mu.Lock()
	switch m.phase {
	case PhaseAuthenticating:
		m.mu.Unlock()
		return LoginInProgressErr
	case PhaseLoggingOut:
		m.mu.Unlock()
		return LogoutInProgressErr
	case PhaseAuthenticated:
		if m.errMsg == "" {
			m.mu.Unlock()
			return AlreadyAuthenticatedErr
		}
	}
	from := m.phase
	m.phase = PhaseAuthenticating
	m.errMsg = ""
	m.mu.Unlock()
	m.emit(Transition{From: from, To: PhaseAuthenticating})

	user, err := m.api.Login(ctx, creds)

	m.mu.Lock()
	if m.phase != PhaseAuthenticating {
		// A logout won the race while the request was in flight; the
		// result is discarded rather than resurrecting the session.
		m.mu.Unlock()
		return LoginInterruptedErr
	}
	if err != nil {
		m.phase = PhaseUnauthenticated
		m.user = nil
		m.errMsg = err.Error()
		m.mu.Unlock()
		m.emit(Transition{From: PhaseAuthenticating, To: PhaseUnauthenticated})
		return errors.Wrap(err, "[Machine.Login] authentication failed")
	}
	m.user = &user
	m.phase = PhaseAuthenticated
	m.locked = false
	m.suppressUntil = time.Time{}
	m.lastActivity = m.nowTime()
	m.mu.Unlock()

	m.persistUserHints(user.ID, false)
	m.emit(Transition{From: PhaseAuthenticating, To: PhaseAuthenticated})
	return nil
}

// Logout ends the session: immediate transition to LoggingOut, suppression
// of background auth checks, local hint/cookie cleanup, best-effort remote
// logout, then Unauthenticated and a redirect to the login surface.
// Idempotent: concurrent calls observe LoggingOut and return immediately,
// so navigation fires exactly once per logout.
func (m *Machine) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.phase == PhaseLoggingOut {
		m.mu.Unlock()
		return nil
	}
	from := m.phase
	m.phase = PhaseLoggingOut
	m.user = nil
	m.locked = false
	m.errMsg = ""
	m.suppressUntil = m.nowTime().Add(m.cooldown)
	m.mu.Unlock()
	m.emit(Transition{From: from, To: PhaseLoggingOut})

	// Local cleanup happens regardless of the remote call's outcome.
	if err := m.hints.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear session hints on logout")
	}
	m.api.ClearClientCookies()

	if err := m.api.Logout(ctx); err != nil {
		log.Warn().Err(err).Msg("remote logout failed, local session ended anyway")
	}

	m.mu.Lock()
	m.phase = PhaseUnauthenticated
	m.mu.Unlock()
	m.emit(Transition{From: PhaseLoggingOut, To: PhaseUnauthenticated})

	m.navigate(loginPath)
	return nil
}

// CheckAuthStatus probes remote session validity. It is a deliberate no-op
// while logging out or within the post-logout suppression window — a
// background probe must never resurrect a session the user is destroying.
func (m *Machine) CheckAuthStatus(ctx context.Context) error {
	return m.refresh(ctx, false)
}

// RestoreSession re-establishes local session state from the server, e.g.
// on application start. On success it also restores the persisted lock
// flag and clears the suppression window.
func (m *Machine) RestoreSession(ctx context.Context) error {
	return m.refresh(ctx, true)
}

func (m *Machine) refresh(ctx context.Context, explicitRestore bool) error {
	m.mu.Lock()
	if m.phase == PhaseLoggingOut || m.nowTime().Before(m.suppressUntil) {
		m.mu.Unlock()
		log.Debug().Msg("auth status check suppressed")
		return nil
	}
	m.mu.Unlock()

	valid, err := m.api.CheckStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "[Machine] auth status check failed")
	}

	if !valid {
		m.mu.Lock()
		if m.phase == PhaseLoggingOut {
			m.mu.Unlock()
			return nil
		}
		from := m.phase
		m.phase = PhaseUnauthenticated
		m.user = nil
		m.locked = false
		m.mu.Unlock()
		if from != PhaseUnauthenticated {
			m.emit(Transition{From: from, To: PhaseUnauthenticated})
		}
		return nil
	}

	user, err := m.api.CurrentUser(ctx)
	if err != nil {
		return errors.Wrap(err, "[Machine] current user fetch failed")
	}

	restoreLocked := false
	if explicitRestore {
		if lockedHint, hintErr := m.hints.SessionLocked(); hintErr == nil {
			restoreLocked = lockedHint
		}
	}

	m.mu.Lock()
	if m.phase == PhaseLoggingOut || m.nowTime().Before(m.suppressUntil) {
		// Logout interleaved with the fetch; the result is stale.
		m.mu.Unlock()
		return nil
	}
	from := m.phase
	fromLocked := m.locked
	m.user = &user
	m.phase = PhaseAuthenticated
	m.lastActivity = m.nowTime()
	if explicitRestore {
		m.locked = restoreLocked
		m.suppressUntil = time.Time{}
	}
	locked := m.locked
	m.mu.Unlock()

	m.persistUserHints(user.ID, locked)
	if from != PhaseAuthenticated || fromLocked != locked {
		m.emit(Transition{From: from, To: PhaseAuthenticated, Locked: locked})
	}
	return nil
}

// LockSession locks the session in place, keeping it authenticated but
// requiring the password to resume. Effective only while Authenticated and
// when the current route is not public. Reports whether the session is now
// locked by this call.
func (m *Machine) LockSession() bool {
	m.mu.Lock()
	if m.phase != PhaseAuthenticated || m.locked {
		m.mu.Unlock()
		return false
	}
	if _, public := m.publicRoutes[m.currentRoute]; public {
		m.mu.Unlock()
		return false
	}
	m.locked = true
	m.mu.Unlock()

	if err := m.hints.SetSessionLocked(true); err != nil {
		log.Warn().Err(err).Msg("failed to persist session lock hint")
	}
	m.emit(Transition{From: PhaseAuthenticated, To: PhaseAuthenticated, Locked: true})
	return true
}

// UnlockSession verifies the password remotely and unlocks on success. A
// wrong password leaves the session locked and returns the failure.
func (m *Machine) UnlockSession(ctx context.Context, password string) error {
	m.mu.Lock()
	if m.phase != PhaseAuthenticated || !m.locked {
		m.mu.Unlock()
		return NotLockedErr
	}
	m.mu.Unlock()

	if err := m.api.VerifyPassword(ctx, password); err != nil {
		m.mu.Lock()
		m.errMsg = err.Error()
		m.mu.Unlock()
		return errors.Wrap(err, "[Machine.UnlockSession] password verification failed")
	}

	m.mu.Lock()
	if m.phase != PhaseAuthenticated || !m.locked {
		m.mu.Unlock()
		return nil
	}
	m.locked = false
	m.errMsg = ""
	m.lastActivity = m.nowTime()
	m.mu.Unlock()

	if err := m.hints.SetSessionLocked(false); err != nil {
		log.Warn().Err(err).Msg("failed to persist session unlock hint")
	}
	m.emit(Transition{From: PhaseAuthenticated, To: PhaseAuthenticated, Locked: false})
	return nil
}

// RecordActivity refreshes the inactivity clock. No-op while locked or
// logging out so system-driven interactions cannot masquerade as the user.
func (m *Machine) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked || m.phase == PhaseLoggingOut {
		return
	}
	m.lastActivity = m.nowTime()
}

// SetRoute records the current route, persists the last-path hint, and
// counts as user activity.
func (m *Machine) SetRoute(path string) {
	m.mu.Lock()
	m.currentRoute = path
	if !m.locked && m.phase != PhaseLoggingOut {
		m.lastActivity = m.nowTime()
	}
	m.mu.Unlock()

	if err := m.hints.SetLastPath(path); err != nil {
		log.Warn().Err(err).Msg("failed to persist last-path hint")
	}
}

// LockIfIdle locks the session when it has been idle at least threshold.
// Used by the inactivity monitor. Reports whether a lock happened.
func (m *Machine) LockIfIdle(threshold time.Duration) bool {
	m.mu.Lock()
	idle := m.nowTime().Sub(m.lastActivity)
	eligible := m.phase == PhaseAuthenticated && !m.locked && idle >= threshold
	m.mu.Unlock()
	if !eligible {
		return false
	}
	return m.LockSession()
}

// IdleFor returns how long the session has gone without recorded activity.
func (m *Machine) IdleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowTime().Sub(m.lastActivity)
}

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Locked reports whether the session is locked.
func (m *Machine) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// IsAuthenticated reports whether the machine is in the Authenticated phase.
func (m *Machine) IsAuthenticated() bool {
	return m.Phase() == PhaseAuthenticated
}

// User returns a copy of the authenticated user, or nil.
func (m *Machine) User() *users.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Err returns the most recent command error message, if any.
func (m *Machine) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// HasPermission reports whether the authenticated user holds the named
// permission. Administrators short-circuit to true.
func (m *Machine) HasPermission(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseAuthenticated || m.user == nil {
		return false
	}
	return m.user.Can(name)
}

// HasAnyPermission reports whether the user holds at least one of the named
// permissions.
func (m *Machine) HasAnyPermission(names ...string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseAuthenticated || m.user == nil {
		return false
	}
	return m.user.CanAny(names...)
}

func (m *Machine) persistUserHints(userID int64, locked bool) {
	if err := m.hints.SetCachedUserID(userID); err != nil {
		log.Warn().Err(err).Msg("failed to persist user-id hint")
	}
	if err := m.hints.SetSessionLocked(locked); err != nil {
		log.Warn().Err(err).Msg("failed to persist session lock hint")
	}
}

func (m *Machine) emit(tr Transition) {
	m.mu.Lock()
	subs := make([]func(Transition), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(tr)
	}
}
