package hints

import (
	"strconv"
	"sync"
)

// InMemoryRepo is a map-backed Repo for tests and ephemeral sessions.
type InMemoryRepo struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryRepo creates an empty in-memory hint store.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{values: make(map[string]string)}
}

func (r *InMemoryRepo) get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[key]
}

func (r *InMemoryRepo) set(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
}

func (r *InMemoryRepo) LastPath() (string, error) {
	return r.get(keyLastPath), nil
}

func (r *InMemoryRepo) SetLastPath(path string) error {
	r.set(keyLastPath, path)
	return nil
}

func (r *InMemoryRepo) SessionLocked() (bool, error) {
	return r.get(keySessionLocked) == "true", nil
}

func (r *InMemoryRepo) SetSessionLocked(locked bool) error {
	r.set(keySessionLocked, strconv.FormatBool(locked))
	return nil
}

func (r *InMemoryRepo) CachedUserID() (int64, error) {
	raw := r.get(keyCachedUserID)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil // a corrupt hint is treated as absent
	}
	return id, nil
}

func (r *InMemoryRepo) SetCachedUserID(id int64) error {
	r.set(keyCachedUserID, strconv.FormatInt(id, 10))
	return nil
}

func (r *InMemoryRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = make(map[string]string)
	return nil
}

func (r *InMemoryRepo) Close() error {
	return nil
}

var _ Repo = (*InMemoryRepo)(nil)
