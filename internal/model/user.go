// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. Go favours composition over inheritance.
package model

import "time"

// User represents a registered account.
//
// PasswordHash carries the `json:"-"` tag so the hash can never leak through
// encoding/json, even if a handler accidentally serialises a whole User.
// Handlers respond with PublicUser instead.
type User struct {
	ID           int64     `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Avatar       string    `json:"avatar"    db:"avatar"`
	Bio          string    `json:"bio"       db:"bio"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// PublicUser is the subset of a User that is safe to return to clients.
type PublicUser struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar"`
	Bio       string    `json:"bio"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public returns the client-facing projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Avatar:    u.Avatar,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt,
	}
}
