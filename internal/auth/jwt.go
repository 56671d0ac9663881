// Package auth provides password hashing, JWT issuance/verification and the
// bearer-token middleware that protects API routes.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. POST /api/auth/register or /api/auth/login checks credentials
//  2. The server issues a signed JWT carrying id, username and email
//  3. The client sends it back as "Authorization: Bearer <token>"
//  4. RequireAuth verifies the signature and expiry, then puts the identity
//     in the request context. No database lookup happens on this path.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"id":1,"username":"alice","email":"a@x.com","iat":...,"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued token stays valid unless configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 16

var (
	// ErrTokenExpired means the signature was fine but exp has passed.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenMalformed covers bad structure, bad signature, wrong algorithm
	// and missing claims.
	ErrTokenMalformed = errors.New("auth: invalid token")
)

// TokenConfig is the explicit configuration of a TokenService. It is built
// once at startup from internal/config and never read from the environment
// inside request handling.
type TokenConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// Claims is the JWT payload: the identity of the token holder as of
// issuance time, plus the registered iat/exp/iss/sub fields.
type Claims struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService handles JWT creation and validation.
//
// The same secret is used for both operations (HS256 is symmetric).
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenService creates a TokenService from cfg.
// The secret should be at least 32 bytes of random data in production.
// Example: PINBOARD_JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "pinboard"
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime applied by Issue.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates and signs a token for the given identity using the
// configured lifetime.
func (s *TokenService) Issue(userID int64, username, email string) (string, error) {
	return s.IssueWithTTL(userID, username, email, s.ttl)
}

// IssueWithTTL creates a token with a custom lifetime. A negative ttl yields
// an already-expired token, which tests use to exercise the expiry path.
func (s *TokenService) IssueWithTTL(userID int64, username, email string, ttl time.Duration) (string, error) {
	now := s.now()

	c := Claims{
		UserID:   userID,
		Username: username,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify parses and verifies a JWT string and returns its claims.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid and the algorithm is HS256 (no "none", no RS/HS confusion)
//   - exp is present and in the future
//   - iss matches the configured issuer
//
// The result is ErrTokenExpired when only the expiry check failed and
// ErrTokenMalformed for everything else.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrTokenMalformed)
	}
	if c.UserID <= 0 {
		return nil, fmt.Errorf("%w: token has no user id", ErrTokenMalformed)
	}

	return c, nil
}
