package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/pinboard/internal/apperror"
	"github.com/sakif/pinboard/internal/model"
	"github.com/sakif/pinboard/internal/repository"
)

var _ repository.PinRepository = (*PinDB)(nil)

const pinColumns = `p.id, p.user_id, p.title, p.description, p.image_url, p.author_name, p.author_avatar, p.created_at, p.updated_at`

const (
	insertPinSQL = `INSERT INTO pins (user_id, title, description, image_url, author_name, author_avatar, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	selectPinByIDSQL = `SELECT ` + pinColumns + ` FROM pins p WHERE p.id = ?`
	listPinsSQL      = `SELECT ` + pinColumns + ` FROM pins p
		 ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`
	listPinsByAuthorSQL = `SELECT ` + pinColumns + ` FROM pins p
		 WHERE p.author_name = ?
		 ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`
)

// PinDB stores pins. Newest first is the only ordering the feed needs.
type PinDB struct {
	conn *sql.DB
}

func (p *PinDB) Create(ctx context.Context, pin *model.Pin) error {
	now := time.Now().UTC()

	res, err := p.conn.ExecContext(ctx, insertPinSQL,
		pin.UserID,
		pin.Title,
		pin.Description,
		pin.ImageURL,
		pin.AuthorName,
		pin.AuthorAvatar,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting pin %q: %w", pin.Title, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new pin id: %w", err)
	}

	pin.ID = id
	pin.CreatedAt = now
	pin.UpdatedAt = now
	return nil
}

// GetByID returns apperror.ErrNotFound when the pin does not exist.
func (p *PinDB) GetByID(ctx context.Context, id int64) (*model.Pin, error) {
	pin, err := scanPin(p.conn.QueryRowContext(ctx, selectPinByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("pin", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting pin %d: %w", id, err)
	}
	return pin, nil
}

// List returns a page of the global feed, newest first.
func (p *PinDB) List(ctx context.Context, opts repository.ListOptions) ([]model.Pin, error) {
	limit, offset := pageBounds(opts)
	rows, err := p.conn.QueryContext(ctx, listPinsSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing pins: %w", err)
	}
	return collectPins(rows)
}

// ListByAuthor matches authorName case-insensitively.
// An unknown author yields an empty slice, not an error.
func (p *PinDB) ListByAuthor(ctx context.Context, authorName string, opts repository.ListOptions) ([]model.Pin, error) {
	limit, offset := pageBounds(opts)
	rows, err := p.conn.QueryContext(ctx, listPinsByAuthorSQL, authorName, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing pins by %q: %w", authorName, err)
	}
	return collectPins(rows)
}

func pageBounds(opts repository.ListOptions) (limit, offset int) {
	opts = opts.Normalize()
	return opts.Limit, opts.Offset
}

// collectPins drains and closes rows. It always returns a non-nil slice so
// an empty page encodes as [] rather than null.
func collectPins(rows *sql.Rows) ([]model.Pin, error) {
	defer rows.Close()

	pins := make([]model.Pin, 0)
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning pin: %w", err)
		}
		pins = append(pins, *pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating pins: %w", err)
	}
	return pins, nil
}

func scanPin(row rowScanner) (*model.Pin, error) {
	var pin model.Pin
	if err := row.Scan(
		&pin.ID,
		&pin.UserID,
		&pin.Title,
		&pin.Description,
		&pin.ImageURL,
		&pin.AuthorName,
		&pin.AuthorAvatar,
		&pin.CreatedAt,
		&pin.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &pin, nil
}
