package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pinboard/internal/apperror"
	"github.com/sakif/pinboard/internal/auth"
	"github.com/sakif/pinboard/internal/model"
	"github.com/sakif/pinboard/internal/repository"
	"github.com/sakif/pinboard/internal/service"
)

// multipartMemory is how much of a multipart body is kept in memory before
// parts spill to temporary files.
const multipartMemory = 8 << 20

// PinService is what PinHandler needs from the service layer.
// *service.PinService satisfies it.
type PinService interface {
	Create(ctx context.Context, author service.Author, in service.CreatePinInput) (*model.Pin, error)
	List(ctx context.Context, opts repository.ListOptions) ([]model.Pin, error)
	Get(ctx context.Context, id int64) (*model.Pin, error)
	ListByAuthor(ctx context.Context, username string, opts repository.ListOptions) ([]model.Pin, error)
	Save(ctx context.Context, userID, pinID int64) (bool, error)
	SavedBy(ctx context.Context, userID int64, opts repository.ListOptions) ([]model.Pin, error)
}

type PinResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Pin     *model.Pin `json:"pin,omitempty"`
}

type PinListResponse struct {
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	Pins    []model.Pin `json:"pins"`
}

// PinHandler serves /api/pins and the per-user pin listings.
type PinHandler struct {
	responder
	pins     PinService
	maxBytes int64
}

// NewPinHandler creates a PinHandler. maxBytes caps the whole multipart
// upload body.
func NewPinHandler(svc PinService, maxBytes int64, logger *slog.Logger, devMode bool) *PinHandler {
	return &PinHandler{
		responder: responder{logger: logger, devMode: devMode},
		pins:      svc,
		maxBytes:  maxBytes,
	}
}

// HandleCreate uploads a pin.
//
// HTTP: POST /api/pins (multipart/form-data)
// FIELDS: title, description; FILES: image (required), avatar (optional)
func (h *PinHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperror.Unauthorized(auth.MsgTokenRequired))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeUploadError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	image, err := formFile(r.MultipartForm, "image")
	if err != nil {
		h.writeUploadError(w, r, err)
		return
	}
	avatar, err := formFile(r.MultipartForm, "avatar")
	if err != nil {
		h.writeUploadError(w, r, err)
		return
	}

	pin, err := h.pins.Create(r.Context(), service.Author{ID: id.ID, Username: id.Username}, service.CreatePinInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Image:       image,
		Avatar:      avatar,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, PinResponse{
		Success: true,
		Message: "pin created",
		Pin:     pin,
	})
}

// HandleList returns the feed, newest first.
//
// HTTP: GET /api/pins?limit=20&offset=0
func (h *PinHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	pins, err := h.pins.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeList(w, pins, opts)
}

// HandleGet returns one pin.
//
// HTTP: GET /api/pins/{id}
func (h *PinHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	pinID, err := pathID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	pin, err := h.pins.Get(r.Context(), pinID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, PinResponse{Success: true, Message: "pin retrieved", Pin: pin})
}

// HandleListByAuthor returns the pins a username uploaded.
//
// HTTP: GET /api/users/{user}/pins (user is a username)
func (h *PinHandler) HandleListByAuthor(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	pins, err := h.pins.ListByAuthor(r.Context(), chi.URLParam(r, "user"), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeList(w, pins, opts)
}

// HandleSave bookmarks a pin for the caller.
//
// HTTP: POST /api/pins/{id}/save
// 201 when newly saved, 200 when it already was.
func (h *PinHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperror.Unauthorized(auth.MsgTokenRequired))
		return
	}

	pinID, err := pathID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.pins.Save(r.Context(), id.ID, pinID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !created {
		h.writeJSON(w, http.StatusOK, PinResponse{Success: true, Message: "already saved"})
		return
	}
	h.writeJSON(w, http.StatusCreated, PinResponse{Success: true, Message: "pin saved"})
}

// HandleListSaved returns the pins a user saved, most recent first.
//
// HTTP: GET /api/users/{user}/saved-pins (user is a numeric id)
func (h *PinHandler) HandleListSaved(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(chi.URLParam(r, "user"), "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	pins, err := h.pins.SavedBy(r.Context(), userID, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeList(w, pins, opts)
}

func (h *PinHandler) writeList(w http.ResponseWriter, pins []model.Pin, opts repository.ListOptions) {
	if pins == nil {
		pins = []model.Pin{}
	}
	h.writeJSON(w, http.StatusOK, PinListResponse{
		Success: true,
		Count:   len(pins),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		Pins:    pins,
	})
}

// writeUploadError answers 413 for an oversized body and 400 for any other
// multipart problem.
func (h *PinHandler) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		h.writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "payload_too_large",
			Message: fmt.Sprintf("upload exceeds %d bytes", h.maxBytes),
		})
	case errors.Is(err, http.ErrNotMultipart):
		h.writeError(w, r, apperror.ValidationFailed("body", "request must be multipart/form-data"))
	default:
		h.logger.Debug("malformed multipart upload", slog.String("error", err.Error()))
		h.writeError(w, r, apperror.ValidationFailed("body", "malformed multipart upload"))
	}
}

// formFile reads the first file under field. A missing file is (nil, nil).
func formFile(form *multipart.Form, field string) ([]byte, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, nil
	}

	f, err := headers[0].Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	return data, nil
}
