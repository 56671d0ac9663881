package handler

// RESPONSE HELPERS:
// Every response carries "success". Errors always have the same shape:
//
//	{"success": false, "error": "conflict", "message": "a user with that email already exists", "field": "email"}
//
// "field" is set when one input caused the failure. "detail" carries the
// raw internal error and is only present in development mode.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/pinboard/internal/apperror"
	"github.com/sakif/pinboard/internal/repository"
)

// maxJSONBody caps JSON request bodies. Uploads go through multipart with
// their own limit.
const maxJSONBody = 1 << 20

// MsgInternal is the only thing a client learns about an unexpected failure.
const MsgInternal = "an internal error occurred"

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`   // machine-readable kind, e.g. "not_found"
	Message string `json:"message"` // human-readable description
	Field   string `json:"field,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// responder carries what every handler needs to answer a request.
type responder struct {
	logger  *slog.Logger
	devMode bool
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; anything after is ignored.
func (rs responder) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent; all we can do is log
			rs.logger.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
//	ErrValidation         → 400 validation_error
//	ErrPasswordMismatch   → 400 password_mismatch
//	ErrInvalidCredentials → 401 invalid_credentials
//	ErrUnauthorized       → 401 unauthorized
//	ErrForbidden          → 403 forbidden
//	ErrNotFound           → 404 not_found
//	ErrConflict           → 409 conflict
//	anything else         → 500 internal_error, logged
func (rs responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := classify(err)
		if status != http.StatusInternalServerError {
			rs.writeJSON(w, status, ErrorResponse{
				Error:   kind,
				Message: appErr.Message,
				Field:   appErr.Field,
			})
			return
		}
	}

	rs.logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("requestID", middleware.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	)

	resp := ErrorResponse{Error: "internal_error", Message: MsgInternal}
	if rs.devMode {
		resp.Detail = err.Error()
	}
	rs.writeJSON(w, http.StatusInternalServerError, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrPasswordMismatch):
		return http.StatusBadRequest, "password_mismatch"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// decodeJSON reads exactly one JSON object into dst. Unknown fields, an
// empty body and trailing data are all ValidationErrors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr *json.SyntaxError
			typeErr   *json.UnmarshalTypeError
			maxErr    *http.MaxBytesError
		)
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return apperror.ValidationFailed("body", "request body is not valid JSON")
		case errors.As(err, &typeErr):
			// Field is empty when the top-level value is not an object
			if typeErr.Field == "" {
				return apperror.ValidationFailed("body", "request body must be a JSON object")
			}
			return apperror.ValidationFailed(typeErr.Field, typeErr.Field+" has the wrong type")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", "request body is too large")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return apperror.ValidationFailed(field, "unknown field "+field)
		}
		return apperror.ValidationFailed("body", "request body could not be decoded")
	}

	if dec.More() {
		return apperror.ValidationFailed("body", "request body must contain a single JSON object")
	}
	return nil
}

// listOptions reads ?limit= and ?offset=. Missing values take defaults;
// non-numeric values are a ValidationError.
func listOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &opts.Limit},
		{"offset", &opts.Offset},
	} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return repository.ListOptions{}, apperror.ValidationFailed(p.name, p.name+" must be an integer")
		}
		*p.dst = n
	}
	return opts.Normalize(), nil
}

// pathID parses a positive integer path parameter.
func pathID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(field, field+" must be a positive integer")
	}
	return id, nil
}
