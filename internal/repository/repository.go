// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/sakif/pinboard/internal/model"
)

// Page size bounds shared by every listing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps Limit to 1..MaxPageSize (0 or less means
// DefaultPageSize) and Offset to zero or more.
func (o ListOptions) Normalize() ListOptions {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultPageSize
	case o.Limit > MaxPageSize:
		o.Limit = MaxPageSize
	}
	o.Offset = max(o.Offset, 0)
	return o
}

// UserRepository is the credential store.
//
// Create must map a UNIQUE violation on username or email to
// apperror.Conflict: the pre-check in the service is only advisory, two
// concurrent registrations can both pass it.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// FindByUsernameOrEmail returns the first user matching either value,
	// or apperror.ErrNotFound.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

type PinRepository interface {
	Create(ctx context.Context, pin *model.Pin) error
	GetByID(ctx context.Context, id int64) (*model.Pin, error)
	List(ctx context.Context, opts ListOptions) ([]model.Pin, error)
	ListByAuthor(ctx context.Context, authorName string, opts ListOptions) ([]model.Pin, error)
}

type SavedPinRepository interface {
	// Save records that userID saved pinID. It reports created=false when
	// the pair already existed.
	Save(ctx context.Context, userID, pinID int64) (created bool, err error)
	ListSavedBy(ctx context.Context, userID int64, opts ListOptions) ([]model.Pin, error)
}
