// Package hints persists non-sensitive client-side hints: the last visited
// path, the session-locked flag, and a cached user id. Hints are read
// optimistically and are never a source of truth for authorization — the
// remote API always is. No tokens or secrets are ever stored here.
package hints

// Hint keys shared by all repo implementations.
const (
	keyLastPath      = "last_path"
	keySessionLocked = "session_locked"
	keyCachedUserID  = "cached_user_id"
)

// Repo is the storage contract for persistence hints.
type Repo interface {
	LastPath() (string, error)
	SetLastPath(path string) error

	SessionLocked() (bool, error)
	SetSessionLocked(locked bool) error

	CachedUserID() (int64, error)
	SetCachedUserID(id int64) error

	// Clear removes every hint. Called on logout.
	Clear() error

	Close() error
}
