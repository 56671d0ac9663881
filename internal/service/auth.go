// Package service — authentication business logic.
//
// AuthService sits between the HTTP handlers and the credential store:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt), TokenService (JWT)
//
// It knows nothing about HTTP. Every expected failure comes back as an
// *apperror.AppError; anything else is an internal error.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/pinboard/internal/apperror"
	"github.com/sakif/pinboard/internal/auth"
	"github.com/sakif/pinboard/internal/model"
	"github.com/sakif/pinboard/internal/repository"
	"github.com/sakif/pinboard/internal/validate"
)

// RegisterInput is the body of POST /api/auth/register.
//
// confirmPassword is only checked for presence here. Whether it matches is a
// separate PasswordMismatch failure, reported after the uniqueness check.
type RegisterInput struct {
	Username        string `json:"username" validate:"required,min=3,max=20,username"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// LoginInput is the body of POST /api/auth/login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileInput is the body of PUT /api/auth/profile. Nil fields are
// left untouched; an empty Password means "keep the current one".
type UpdateProfileInput struct {
	Avatar          *string `json:"avatar" validate:"omitempty,max=2048"`
	Bio             *string `json:"bio" validate:"omitempty,max=500"`
	Password        string  `json:"password" validate:"omitempty,min=6,max=72"`
	ConfirmPassword string  `json:"confirmPassword"`
}

// AuthResult bundles the user record and the issued JWT so the handler can
// respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	validator *validate.Validator
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	validator *validate.Validator,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		validator: validator,
		logger:    logger,
	}
}

// Register creates an account and signs the new user in.
//
// Order of checks:
//  1. input shape                      → ValidationError
//  2. username or email already taken  → Conflict
//  3. password != confirmPassword      → PasswordMismatch
//  4. hash, insert, issue token
//
// Step 2 is advisory. Two concurrent registrations can both pass it; the
// store's UNIQUE constraint then turns the loser's insert into a Conflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByUsernameOrEmail(ctx, in.Username, in.Email)
	switch {
	case err == nil:
		field := "username"
		if strings.EqualFold(existing.Email, in.Email) {
			field = "email"
		}
		return nil, apperror.Conflict("user", field)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: checking existing user: %w", err)
	}

	if in.Password != in.ConfirmPassword {
		return nil, apperror.PasswordMismatch()
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user %q: %w", in.Username, err)
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)

	return s.signIn(user)
}

// Login checks email and password. An unknown email and a wrong password
// produce the same InvalidCredentials error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.VerifyDummy(in.Password)
			s.logger.Debug("login rejected", slog.String("reason", "unknown email"))
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	ok, err := s.passwords.Verify(user.PasswordHash, in.Password)
	if err != nil {
		// a stored hash bcrypt cannot parse is a data problem, not a bad login
		return nil, fmt.Errorf("service/auth: verifying password for user %d: %w", user.ID, err)
	}
	if !ok {
		s.logger.Debug("login rejected", slog.String("reason", "wrong password"), slog.Int64("userID", user.ID))
		return nil, apperror.InvalidCredentials()
	}

	s.logger.Info("user logged in", slog.Int64("userID", user.ID))
	return s.signIn(user)
}

// Profile returns the current record for an authenticated id. The token may
// outlive the account, in which case this is NotFound.
func (s *AuthService) Profile(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: fetching user %d: %w", userID, err)
	}
	return user, nil
}

// UpdateProfile changes avatar, bio and, when supplied, the password.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (*model.User, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if in.Password != "" && in.Password != in.ConfirmPassword {
		return nil, apperror.PasswordMismatch()
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Avatar != nil {
		user.Avatar = strings.TrimSpace(*in.Avatar)
	}
	if in.Bio != nil {
		user.Bio = *in.Bio
	}
	if in.Password != "" {
		hash, err := s.hashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: updating user %d: %w", userID, err)
	}

	s.logger.Info("profile updated",
		slog.Int64("userID", user.ID),
		slog.Bool("passwordChanged", in.Password != ""),
	)
	return user, nil
}

func (s *AuthService) hashPassword(plaintext string) (string, error) {
	hash, err := s.passwords.Hash(plaintext)
	if err != nil {
		// max=72 counts characters; bcrypt's limit is 72 bytes
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperror.ValidationFailed("password", "password must be at most 72 bytes")
		}
		return "", fmt.Errorf("service/auth: hashing password: %w", err)
	}
	return hash, nil
}

func (s *AuthService) signIn(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Username, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %d: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
