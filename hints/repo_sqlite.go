package hints

import (
	"database/sql"
	"strconv"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS hints (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// SQLiteRepo stores hints in a small local SQLite database, the desktop
// analog of the browser's localStorage hint cache.
type SQLiteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo opens (creating if needed) the hint database at path.
func NewSQLiteRepo(path string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[NewSQLiteRepo] open hint database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[NewSQLiteRepo] create hints table")
	}
	return &SQLiteRepo{db: db}, nil
}

func (r *SQLiteRepo) get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM hints WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "[SQLiteRepo] read hint %q", key)
	}
	return value, nil
}

func (r *SQLiteRepo) set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO hints (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return errors.Wrapf(err, "[SQLiteRepo] write hint %q", key)
}

func (r *SQLiteRepo) LastPath() (string, error) {
	return r.get(keyLastPath)
}

func (r *SQLiteRepo) SetLastPath(path string) error {
	return r.set(keyLastPath, path)
}

func (r *SQLiteRepo) SessionLocked() (bool, error) {
	raw, err := r.get(keySessionLocked)
	if err != nil {
		return false, err
	}
	return raw == "true", nil
}

func (r *SQLiteRepo) SetSessionLocked(locked bool) error {
	return r.set(keySessionLocked, strconv.FormatBool(locked))
}

func (r *SQLiteRepo) CachedUserID() (int64, error) {
	raw, err := r.get(keyCachedUserID)
	if err != nil || raw == "" {
		return 0, err
	}
	id, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil {
		return 0, nil // a corrupt hint is treated as absent
	}
	return id, nil
}

func (r *SQLiteRepo) SetCachedUserID(id int64) error {
	return r.set(keyCachedUserID, strconv.FormatInt(id, 10))
}

func (r *SQLiteRepo) Clear() error {
	_, err := r.db.Exec(`DELETE FROM hints`)
	return errors.Wrap(err, "[SQLiteRepo] clear hints")
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

var _ Repo = (*SQLiteRepo)(nil)
