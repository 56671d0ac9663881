package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/pinboard/internal/model"
	"github.com/sakif/pinboard/internal/repository"
)

var _ repository.SavedPinRepository = (*SavedPinDB)(nil)

const (
	insertSavedPinSQL = `INSERT OR IGNORE INTO saved_pins (user_id, pin_id, created_at) VALUES (?, ?, ?)`
	listSavedPinsSQL  = `SELECT ` + pinColumns + ` FROM saved_pins s
		 JOIN pins p ON p.id = s.pin_id
		 WHERE s.user_id = ?
		 ORDER BY s.created_at DESC, p.id DESC LIMIT ? OFFSET ?`
)

// SavedPinDB stores the user -> pin bookmarks.
type SavedPinDB struct {
	conn *sql.DB
}

// Save is idempotent: saving the same pair twice leaves one row and
// reports created=false the second time.
//
// With foreign_keys on, a missing user or pin fails the insert. Callers
// that want a 404 should look the pin up first.
func (s *SavedPinDB) Save(ctx context.Context, userID, pinID int64) (bool, error) {
	res, err := s.conn.ExecContext(ctx, insertSavedPinSQL, userID, pinID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("sqlite: saving pin %d for user %d: %w", pinID, userID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

// ListSavedBy returns the pins userID saved, most recently saved first.
func (s *SavedPinDB) ListSavedBy(ctx context.Context, userID int64, opts repository.ListOptions) ([]model.Pin, error) {
	limit, offset := pageBounds(opts)
	rows, err := s.conn.QueryContext(ctx, listSavedPinsSQL, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing saved pins for user %d: %w", userID, err)
	}
	return collectPins(rows)
}
