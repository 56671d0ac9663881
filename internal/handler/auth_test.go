package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pinboard/internal/apperror"
	"github.com/sakif/pinboard/internal/auth"
	"github.com/sakif/pinboard/internal/model"
	"github.com/sakif/pinboard/internal/service"
)

// stubAuthService returns canned results and records what it was called with.
type stubAuthService struct {
	result *service.AuthResult
	user   *model.User
	err    error

	gotRegister service.RegisterInput
	gotLogin    service.LoginInput
	gotUpdate   service.UpdateProfileInput
	gotUserID   int64
}

func (s *stubAuthService) Register(_ context.Context, in service.RegisterInput) (*service.AuthResult, error) {
	s.gotRegister = in
	return s.result, s.err
}

func (s *stubAuthService) Login(_ context.Context, in service.LoginInput) (*service.AuthResult, error) {
	s.gotLogin = in
	return s.result, s.err
}

func (s *stubAuthService) Profile(_ context.Context, userID int64) (*model.User, error) {
	s.gotUserID = userID
	return s.user, s.err
}

func (s *stubAuthService) UpdateProfile(_ context.Context, userID int64, in service.UpdateProfileInput) (*model.User, error) {
	s.gotUserID = userID
	s.gotUpdate = in
	return s.user, s.err
}

func alice() *model.User {
	return &model.User{
		ID:           7,
		Username:     "alice",
		Email:        "a@x.com",
		PasswordHash: "$2a$04$secret-hash-material",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestAuthHandler(svc AuthService) *AuthHandler {
	return NewAuthHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), false)
}

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body
}

func TestHandleRegister(t *testing.T) {
	svc := &stubAuthService{result: &service.AuthResult{User: alice(), Token: "tok"}}
	h := newTestAuthHandler(svc)

	rr := httptest.NewRecorder()
	h.HandleRegister(rr, postJSON("/api/auth/register",
		`{"username":"alice","email":"a@x.com","password":"Secret123","confirmPassword":"Secret123"}`))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "alice", svc.gotRegister.Username)
	assert.Equal(t, "Secret123", svc.gotRegister.ConfirmPassword)

	raw := rr.Body.String()
	assert.NotContains(t, raw, "secret-hash-material", "password hash must never be serialized")
	assert.NotContains(t, raw, "passwordHash")

	body := decodeBody(t, strings.NewReader(raw))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "tok", body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "a@x.com", user["email"])
	assert.EqualValues(t, 7, user["id"])
}

func TestHandleRegister_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
	}{
		{"unknown field", `{"username":"alice","admin":true}`, nil, http.StatusBadRequest},
		{"empty body", ``, nil, http.StatusBadRequest},
		{"validation", `{"username":"al"}`, apperror.ValidationFailed("username", "too short"), http.StatusBadRequest},
		{"mismatch", `{"username":"alice"}`, apperror.PasswordMismatch(), http.StatusBadRequest},
		{"duplicate", `{"username":"alice"}`, apperror.Conflict("user", "email"), http.StatusConflict},
		{"store down", `{"username":"alice"}`, errors.New("database is locked"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAuthHandler(&stubAuthService{err: tt.svcErr})

			rr := httptest.NewRecorder()
			h.HandleRegister(rr, postJSON("/api/auth/register", tt.body))

			assert.Equal(t, tt.wantStatus, rr.Code)
			body := decodeBody(t, rr.Body)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestHandleLogin(t *testing.T) {
	svc := &stubAuthService{result: &service.AuthResult{User: alice(), Token: "tok"}}
	h := newTestAuthHandler(svc)

	rr := httptest.NewRecorder()
	h.HandleLogin(rr, postJSON("/api/auth/login", `{"email":"a@x.com","password":"Secret123"}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "a@x.com", svc.gotLogin.Email)
	body := decodeBody(t, rr.Body)
	assert.Equal(t, "tok", body["token"])
	assert.Equal(t, "alice", body["user"].(map[string]any)["username"])
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	h := newTestAuthHandler(&stubAuthService{err: apperror.InvalidCredentials()})

	rr := httptest.NewRecorder()
	h.HandleLogin(rr, postJSON("/api/auth/login", `{"email":"a@x.com","password":"nope"}`))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	body := decodeBody(t, rr.Body)
	assert.Equal(t, "invalid_credentials", body["error"])
	assert.Nil(t, body["field"], "must not disclose which field was wrong")
}

func TestHandleProfile(t *testing.T) {
	svc := &stubAuthService{user: alice()}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{ID: 7, Username: "alice"}))
	rr := httptest.NewRecorder()
	h.HandleProfile(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 7, svc.gotUserID)
	body := decodeBody(t, rr.Body)
	assert.Equal(t, "alice", body["user"].(map[string]any)["username"])
	assert.Nil(t, body["token"])
}

func TestHandleProfile_NoIdentity(t *testing.T) {
	h := newTestAuthHandler(&stubAuthService{user: alice()})

	rr := httptest.NewRecorder()
	h.HandleProfile(rr, httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleProfile_UserGone(t *testing.T) {
	h := newTestAuthHandler(&stubAuthService{err: apperror.NotFound("user", "7")})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{ID: 7}))
	rr := httptest.NewRecorder()
	h.HandleProfile(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleUpdateProfile(t *testing.T) {
	updated := alice()
	updated.Bio = "hello"
	svc := &stubAuthService{user: updated}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/auth/profile", strings.NewReader(`{"bio":"hello"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{ID: 7}))
	rr := httptest.NewRecorder()
	h.HandleUpdateProfile(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, svc.gotUpdate.Bio)
	assert.Equal(t, "hello", *svc.gotUpdate.Bio)
	assert.Nil(t, svc.gotUpdate.Avatar, "absent fields must stay nil")
	assert.Equal(t, "hello", decodeBody(t, rr.Body)["user"].(map[string]any)["bio"])
}
