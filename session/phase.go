package session

// Phase is the authentication lifecycle phase. Lock state is orthogonal and
// only meaningful while PhaseAuthenticated.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseLoggingOut
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseLoggingOut:
		return "logging_out"
	default:
		return "unknown"
	}
}

// Transition describes a completed phase or lock-state change. Subscribers
// receive transitions after the machine's state has already moved.
type Transition struct {
	From   Phase
	To     Phase
	Locked bool
}
