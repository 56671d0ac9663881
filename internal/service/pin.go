package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/pinboard/internal/apperror"
	"github.com/sakif/pinboard/internal/imaging"
	"github.com/sakif/pinboard/internal/model"
	"github.com/sakif/pinboard/internal/repository"
	"github.com/sakif/pinboard/internal/storage"
	"github.com/sakif/pinboard/internal/validate"
)

// AvatarWidth is the width uploaded pin avatars are scaled down to.
const AvatarWidth = 256

// CreatePinInput carries the multipart form of POST /api/pins. Image is
// required; Avatar is optional and overrides the author's profile avatar
// for this pin only.
type CreatePinInput struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
	Image       []byte `json:"image" validate:"required"`
	Avatar      []byte `json:"avatar"`
}

// Author is the uploader as known from the verified token.
type Author struct {
	ID       int64
	Username string
}

type PinService struct {
	pins      repository.PinRepository
	saved     repository.SavedPinRepository
	users     repository.UserRepository
	images    storage.ImageStore
	validator *validate.Validator
	maxWidth  int
	logger    *slog.Logger
}

func NewPinService(
	pins repository.PinRepository,
	saved repository.SavedPinRepository,
	users repository.UserRepository,
	images storage.ImageStore,
	validator *validate.Validator,
	maxWidth int,
	logger *slog.Logger,
) *PinService {
	return &PinService{
		pins:      pins,
		saved:     saved,
		users:     users,
		images:    images,
		validator: validator,
		maxWidth:  maxWidth,
		logger:    logger,
	}
}

// Create stores the image (and optional avatar) and records the pin.
//
// Images are uploaded before the row is written. A failed insert leaves an
// orphaned object in the store, never a pin pointing at nothing.
func (s *PinService) Create(ctx context.Context, author Author, in CreatePinInput) (*model.Pin, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	img, err := prepareImage("image", in.Image, s.maxWidth)
	if err != nil {
		return nil, err
	}

	var avatarImg imaging.Image
	if len(in.Avatar) > 0 {
		if avatarImg, err = prepareImage("avatar", in.Avatar, AvatarWidth); err != nil {
			return nil, err
		}
	}

	user, err := s.users.GetByID(ctx, author.ID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/pin: fetching author %d: %w", author.ID, err)
	}

	imageURL, err := s.upload(ctx, "pins", img)
	if err != nil {
		return nil, err
	}

	authorAvatar := user.Avatar
	if len(in.Avatar) > 0 {
		if authorAvatar, err = s.upload(ctx, "avatars", avatarImg); err != nil {
			return nil, err
		}
	}

	pin := &model.Pin{
		UserID:       user.ID,
		Title:        in.Title,
		Description:  in.Description,
		ImageURL:     imageURL,
		AuthorName:   author.Username,
		AuthorAvatar: authorAvatar,
	}
	if err := s.pins.Create(ctx, pin); err != nil {
		return nil, fmt.Errorf("service/pin: creating pin: %w", err)
	}

	s.logger.Info("pin created",
		slog.Int64("pinID", pin.ID),
		slog.Int64("userID", pin.UserID),
		slog.String("imageURL", pin.ImageURL),
	)
	return pin, nil
}

func (s *PinService) List(ctx context.Context, opts repository.ListOptions) ([]model.Pin, error) {
	pins, err := s.pins.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/pin: listing pins: %w", err)
	}
	return pins, nil
}

func (s *PinService) Get(ctx context.Context, id int64) (*model.Pin, error) {
	pin, err := s.pins.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/pin: fetching pin %d: %w", id, err)
	}
	return pin, nil
}

// ListByAuthor returns an empty list for a username with no pins, whether
// or not the account exists.
func (s *PinService) ListByAuthor(ctx context.Context, username string, opts repository.ListOptions) ([]model.Pin, error) {
	pins, err := s.pins.ListByAuthor(ctx, username, opts)
	if err != nil {
		return nil, fmt.Errorf("service/pin: listing pins by %q: %w", username, err)
	}
	return pins, nil
}

// Save bookmarks pinID for userID. created is false when it was already
// saved.
func (s *PinService) Save(ctx context.Context, userID, pinID int64) (created bool, err error) {
	if _, err := s.Get(ctx, pinID); err != nil {
		return false, err
	}

	created, err = s.saved.Save(ctx, userID, pinID)
	if err != nil {
		return false, fmt.Errorf("service/pin: saving pin %d for user %d: %w", pinID, userID, err)
	}

	if created {
		s.logger.Info("pin saved", slog.Int64("pinID", pinID), slog.Int64("userID", userID))
	}
	return created, nil
}

// SavedBy lists the pins userID saved. Unknown users are NotFound.
func (s *PinService) SavedBy(ctx context.Context, userID int64, opts repository.ListOptions) ([]model.Pin, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/pin: fetching user %d: %w", userID, err)
	}

	pins, err := s.saved.ListSavedBy(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/pin: listing saved pins for user %d: %w", userID, err)
	}
	return pins, nil
}

// upload stores img under "<prefix>/<xid><ext>". xids sort by creation
// time, which keeps a bucket listing roughly chronological.
func (s *PinService) upload(ctx context.Context, prefix string, img imaging.Image) (string, error) {
	key := prefix + "/" + xid.New().String() + img.Ext()

	url, err := s.images.Put(ctx, key, img.ContentType, bytes.NewReader(img.Data))
	if err != nil {
		return "", fmt.Errorf("service/pin: storing %s: %w", key, err)
	}
	return url, nil
}

// prepareImage sniffs data and downscales it. Unsupported or corrupt files
// are a ValidationError on field.
func prepareImage(field string, data []byte, maxWidth int) (imaging.Image, error) {
	img, err := imaging.Inspect(data)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrUnsupportedType):
			return imaging.Image{}, apperror.ValidationFailed(field, field+" must be a JPEG, PNG, GIF or WebP image")
		case errors.Is(err, imaging.ErrCorruptImage):
			return imaging.Image{}, apperror.ValidationFailed(field, field+" could not be read as an image")
		case errors.Is(err, imaging.ErrTooLarge):
			return imaging.Image{}, apperror.ValidationFailed(field,
				fmt.Sprintf("%s dimensions are too large (at most %d pixels)", field, imaging.MaxPixels))
		}
		return imaging.Image{}, fmt.Errorf("service/pin: inspecting %s: %w", field, err)
	}

	fitted, err := imaging.Fit(img, maxWidth)
	if err != nil {
		return imaging.Image{}, fmt.Errorf("service/pin: resizing %s (%dx%d): %w", field, img.Width, img.Height, err)
	}
	return fitted, nil
}
