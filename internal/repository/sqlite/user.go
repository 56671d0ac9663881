package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/pinboard/internal/apperror"
	"github.com/sakif/pinboard/internal/model"
	"github.com/sakif/pinboard/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, username, email, password_hash, avatar, bio, created_at, updated_at`

const (
	insertUserSQL = `INSERT INTO users (username, email, password_hash, avatar, bio, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`
	selectUserByIDSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	selectUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	selectUserByNameOrEmailSQL = `SELECT ` + userColumns + ` FROM users
		 WHERE username = ? OR email = ? ORDER BY id LIMIT 1`
	updateUserSQL = `UPDATE users
		 SET username = ?, email = ?, password_hash = ?, avatar = ?, bio = ?, updated_at = ?
		 WHERE id = ?`
)

// UserDB is the SQLite credential store.
type UserDB struct {
	conn *sql.DB
}

// Create inserts user and fills in ID, CreatedAt and UpdatedAt.
//
// The UNIQUE indexes on username and email are the real guard against
// duplicates. A violation comes back as apperror.Conflict naming the field,
// so a registration that lost a race still answers 409, not 500.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()

	res, err := u.conn.ExecContext(ctx, insertUserSQL,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Avatar,
		user.Bio,
		now,
		now,
	)
	if err != nil {
		if msg, ok := uniqueViolation(err); ok {
			return apperror.Conflict("user", conflictField(msg))
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new user id: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByID retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that id.
func (u *UserDB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx, selectUserByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return user, nil
}

// GetByEmail looks a user up by email (case-insensitive, the column is
// COLLATE NOCASE).
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx, selectUserByEmailSQL, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return user, nil
}

func (u *UserDB) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx, selectUserByNameOrEmailSQL, username, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: finding user by username or email: %w", err)
	}
	return user, nil
}

// Update writes every mutable column and refreshes UpdatedAt.
// id and created_at never change.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	res, err := u.conn.ExecContext(ctx, updateUserSQL,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Avatar,
		user.Bio,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if msg, ok := uniqueViolation(err); ok {
			return apperror.Conflict("user", conflictField(msg))
		}
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", strconv.FormatInt(user.ID, 10))
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var user model.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Avatar,
		&user.Bio,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

// conflictField maps "UNIQUE constraint failed: users.email" to "email".
func conflictField(msg string) string {
	if strings.Contains(msg, "users.email") {
		return "email"
	}
	return "username"
}
