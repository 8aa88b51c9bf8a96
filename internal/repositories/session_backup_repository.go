package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // For pq.Error
)

// SessionBackupRepository is the durable store for in-progress split
// sessions, keyed by backup key ("backup_" + order id). It holds opaque JSON
// payloads; the recovery manager owns the schema of what is stored.
type SessionBackupRepository interface {
	Save(key string, payload []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

type sessionBackupRepository struct {
	db *sql.DB
}

// NewSessionBackupRepository creates a new instance of SessionBackupRepository.
func NewSessionBackupRepository(db *sql.DB) SessionBackupRepository {
	return &sessionBackupRepository{db: db}
}

// Save upserts the payload for the given key. Every committed session
// mutation writes through here, so the record is always at least as new as
// what the cashier saw on screen.
func (r *sessionBackupRepository) Save(key string, payload []byte) error {
	query := `INSERT INTO session_backups (backup_key, payload, updated_at)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (backup_key) DO UPDATE SET payload = $2, updated_at = $3`

	_, err := r.db.Exec(query, key, payload, time.Now())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("%w: saving session backup: %s", ErrDatabaseError, pqErr.Message)
		}
		return fmt.Errorf("%w: saving session backup: %v", ErrDatabaseError, err)
	}
	return nil
}

// Get returns the payload for the given key, or ErrNotFound when no backup
// exists. Absence is the normal fresh-session path, not a failure.
func (r *sessionBackupRepository) Get(key string) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRow(
		`SELECT payload FROM session_backups WHERE backup_key = $1`, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session backup %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading session backup: %v", ErrDatabaseError, err)
	}
	return payload, nil
}

// Delete removes the backup record. Deleting a missing key is not an error.
func (r *sessionBackupRepository) Delete(key string) error {
	_, err := r.db.Exec(`DELETE FROM session_backups WHERE backup_key = $1`, key)
	if err != nil {
		return fmt.Errorf("%w: deleting session backup: %v", ErrDatabaseError, err)
	}
	return nil
}
