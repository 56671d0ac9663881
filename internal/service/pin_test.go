package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/pinboard/internal/apperror"
	"github.com/sakif/pinboard/internal/model"
	"github.com/sakif/pinboard/internal/repository"
	"github.com/sakif/pinboard/internal/validate"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

type fakePinRepo struct {
	mu     sync.Mutex
	pins   []model.Pin
	nextID int64
	err    error
}

func (f *fakePinRepo) Create(_ context.Context, pin *model.Pin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nextID++
	pin.ID = f.nextID
	pin.CreatedAt = time.Now()
	pin.UpdatedAt = pin.CreatedAt
	f.pins = append(f.pins, *pin)
	return nil
}

func (f *fakePinRepo) GetByID(_ context.Context, id int64) (*model.Pin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pins {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, apperror.NotFound("pin", strconv.FormatInt(id, 10))
}

func (f *fakePinRepo) List(_ context.Context, _ repository.ListOptions) ([]model.Pin, error) {
	return f.filter(func(model.Pin) bool { return true })
}

func (f *fakePinRepo) ListByAuthor(_ context.Context, author string, _ repository.ListOptions) ([]model.Pin, error) {
	return f.filter(func(p model.Pin) bool { return strings.EqualFold(p.AuthorName, author) })
}

func (f *fakePinRepo) filter(keep func(model.Pin) bool) ([]model.Pin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Pin, 0)
	for i := len(f.pins) - 1; i >= 0; i-- {
		if keep(f.pins[i]) {
			out = append(out, f.pins[i])
		}
	}
	return out, nil
}

type fakeSavedRepo struct {
	mu    sync.Mutex
	pins  *fakePinRepo
	saved map[int64][]int64 // user id -> pin ids in save order
}

func (f *fakeSavedRepo) Save(_ context.Context, userID, pinID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.saved[userID] {
		if id == pinID {
			return false, nil
		}
	}
	f.saved[userID] = append(f.saved[userID], pinID)
	return true, nil
}

func (f *fakeSavedRepo) ListSavedBy(ctx context.Context, userID int64, _ repository.ListOptions) ([]model.Pin, error) {
	f.mu.Lock()
	ids := append([]int64(nil), f.saved[userID]...)
	f.mu.Unlock()

	out := make([]model.Pin, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		p, err := f.pins.GetByID(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// fakeStore records what was uploaded.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeStore) Put(_ context.Context, key, contentType string, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
	return "http://img.test/" + key, nil
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type pinFixture struct {
	svc   *PinService
	users *fakeUserRepo
	pins  *fakePinRepo
	store *fakeStore
	alice *model.User
}

func newPinFixture(t *testing.T) *pinFixture {
	t.Helper()
	users := newFakeUserRepo()
	alice := &model.User{Username: "alice", Email: "a@x.com", PasswordHash: "x", Avatar: "http://img.test/alice.png"}
	if err := users.Create(context.Background(), alice); err != nil {
		t.Fatalf("creating alice: %v", err)
	}

	pins := &fakePinRepo{}
	saved := &fakeSavedRepo{pins: pins, saved: make(map[int64][]int64)}
	store := newFakeStore()
	svc := NewPinService(pins, saved, users, store, validate.New(), 100, discardLogger())

	return &pinFixture{svc: svc, users: users, pins: pins, store: store, alice: alice}
}

func (fx *pinFixture) author() Author {
	return Author{ID: fx.alice.ID, Username: fx.alice.Username}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func (fx *pinFixture) mustCreate(t *testing.T, title string) *model.Pin {
	t.Helper()
	pin, err := fx.svc.Create(context.Background(), fx.author(), CreatePinInput{
		Title:       title,
		Description: "about " + title,
		Image:       pngBytes(t, 10, 10),
	})
	if err != nil {
		t.Fatalf("Create(%s) error = %v", title, err)
	}
	return pin
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestPinCreate(t *testing.T) {
	fx := newPinFixture(t)

	pin := fx.mustCreate(t, "sunset")

	if pin.ID <= 0 || pin.UserID != fx.alice.ID {
		t.Errorf("pin = %+v", pin)
	}
	if pin.AuthorName != "alice" {
		t.Errorf("AuthorName = %q, want alice", pin.AuthorName)
	}
	if pin.AuthorAvatar != fx.alice.Avatar {
		t.Errorf("AuthorAvatar = %q, want the profile avatar %q", pin.AuthorAvatar, fx.alice.Avatar)
	}

	keys := fx.store.keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "pins/") || !strings.HasSuffix(keys[0], ".png") {
		t.Fatalf("stored keys = %v, want one pins/*.png", keys)
	}
	if pin.ImageURL != "http://img.test/"+keys[0] {
		t.Errorf("ImageURL = %q", pin.ImageURL)
	}
	if fx.store.types[keys[0]] != "image/png" {
		t.Errorf("content type = %q", fx.store.types[keys[0]])
	}
}

func TestPinCreate_UploadedAvatarOverridesProfile(t *testing.T) {
	fx := newPinFixture(t)

	pin, err := fx.svc.Create(context.Background(), fx.author(), CreatePinInput{
		Title:       "sunset",
		Description: "orange",
		Image:       pngBytes(t, 10, 10),
		Avatar:      pngBytes(t, 512, 512),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !strings.HasPrefix(pin.AuthorAvatar, "http://img.test/avatars/") {
		t.Errorf("AuthorAvatar = %q, want an uploaded avatar", pin.AuthorAvatar)
	}

	key := strings.TrimPrefix(pin.AuthorAvatar, "http://img.test/")
	cfg, err := png.DecodeConfig(bytes.NewReader(fx.store.objects[key]))
	if err != nil {
		t.Fatalf("decoding stored avatar: %v", err)
	}
	if cfg.Width != AvatarWidth {
		t.Errorf("avatar width = %d, want %d", cfg.Width, AvatarWidth)
	}
}

func TestPinCreate_DownscalesWideImages(t *testing.T) {
	fx := newPinFixture(t)

	pin, err := fx.svc.Create(context.Background(), fx.author(), CreatePinInput{
		Title:       "panorama",
		Description: "wide",
		Image:       pngBytes(t, 400, 100),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	key := strings.TrimPrefix(pin.ImageURL, "http://img.test/")
	cfg, err := png.DecodeConfig(bytes.NewReader(fx.store.objects[key]))
	if err != nil {
		t.Fatalf("decoding stored image: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 25 {
		t.Errorf("stored image = %dx%d, want 100x25", cfg.Width, cfg.Height)
	}
}

func TestPinCreate_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		in        func(t *testing.T) CreatePinInput
		wantField string
	}{
		{"missing title", func(t *testing.T) CreatePinInput {
			return CreatePinInput{Description: "d", Image: pngBytes(t, 5, 5)}
		}, "title"},
		{"blank title", func(t *testing.T) CreatePinInput {
			return CreatePinInput{Title: "   ", Description: "d", Image: pngBytes(t, 5, 5)}
		}, "title"},
		{"title too long", func(t *testing.T) CreatePinInput {
			return CreatePinInput{Title: strings.Repeat("t", 256), Description: "d", Image: pngBytes(t, 5, 5)}
		}, "title"},
		{"missing description", func(t *testing.T) CreatePinInput {
			return CreatePinInput{Title: "t", Image: pngBytes(t, 5, 5)}
		}, "description"},
		{"missing image", func(t *testing.T) CreatePinInput {
			return CreatePinInput{Title: "t", Description: "d"}
		}, "image"},
		{"image is not an image", func(t *testing.T) CreatePinInput {
			return CreatePinInput{Title: "t", Description: "d", Image: []byte("#!/bin/sh\necho hi\n")}
		}, "image"},
		{"avatar is not an image", func(t *testing.T) CreatePinInput {
			return CreatePinInput{Title: "t", Description: "d", Image: pngBytes(t, 5, 5), Avatar: []byte("nope")}
		}, "avatar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newPinFixture(t)

			_, err := fx.svc.Create(context.Background(), fx.author(), tt.in(t))

			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Create() error = %v, want ErrValidation", err)
			}
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
			if len(fx.store.keys()) != 0 {
				t.Error("nothing should be uploaded for a rejected pin")
			}
		})
	}
}

func TestPinCreate_AuthorGone(t *testing.T) {
	fx := newPinFixture(t)

	_, err := fx.svc.Create(context.Background(), Author{ID: 99, Username: "ghost"}, CreatePinInput{
		Title: "t", Description: "d", Image: pngBytes(t, 5, 5),
	})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Create() error = %v, want ErrNotFound", err)
	}
}

func TestPinCreate_StoreFailure(t *testing.T) {
	fx := newPinFixture(t)
	fx.store.err = errors.New("bucket unreachable")

	_, err := fx.svc.Create(context.Background(), fx.author(), CreatePinInput{
		Title: "t", Description: "d", Image: pngBytes(t, 5, 5),
	})
	if err == nil {
		t.Fatal("Create() should fail when the image store fails")
	}
	if len(fx.pins.pins) != 0 {
		t.Error("no pin should be recorded when the upload failed")
	}
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestPinGet(t *testing.T) {
	fx := newPinFixture(t)
	created := fx.mustCreate(t, "sunset")

	got, err := fx.svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "sunset" {
		t.Errorf("Title = %q", got.Title)
	}

	if _, err := fx.svc.Get(context.Background(), 999); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get(999) error = %v, want ErrNotFound", err)
	}
}

func TestPinListAndListByAuthor(t *testing.T) {
	fx := newPinFixture(t)
	fx.mustCreate(t, "one")
	fx.mustCreate(t, "two")

	all, err := fx.svc.List(context.Background(), repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 || all[0].Title != "two" {
		t.Errorf("List() = %+v", all)
	}

	mine, err := fx.svc.ListByAuthor(context.Background(), "ALICE", repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListByAuthor() error = %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("ListByAuthor(ALICE) returned %d pins, want 2", len(mine))
	}

	none, err := fx.svc.ListByAuthor(context.Background(), "nobody", repository.ListOptions{})
	if err != nil || len(none) != 0 {
		t.Errorf("ListByAuthor(nobody) = %v, %v; want empty, nil", none, err)
	}
}

func TestPinList_StoreFailure(t *testing.T) {
	fx := newPinFixture(t)
	fx.pins.err = errors.New("disk I/O error")

	if _, err := fx.svc.List(context.Background(), repository.ListOptions{}); err == nil {
		t.Fatal("List() should surface repository errors")
	}
}

// =========================================================================
// SAVE TESTS
// =========================================================================

func TestPinSave(t *testing.T) {
	fx := newPinFixture(t)
	pin := fx.mustCreate(t, "sunset")

	created, err := fx.svc.Save(context.Background(), fx.alice.ID, pin.ID)
	if err != nil || !created {
		t.Fatalf("first Save() = %v, %v; want true, nil", created, err)
	}

	created, err = fx.svc.Save(context.Background(), fx.alice.ID, pin.ID)
	if err != nil || created {
		t.Fatalf("second Save() = %v, %v; want false, nil", created, err)
	}

	saved, err := fx.svc.SavedBy(context.Background(), fx.alice.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("SavedBy() error = %v", err)
	}
	if len(saved) != 1 || saved[0].ID != pin.ID {
		t.Errorf("SavedBy() = %+v, want the one saved pin", saved)
	}
}

func TestPinSave_MissingPin(t *testing.T) {
	fx := newPinFixture(t)

	_, err := fx.svc.Save(context.Background(), fx.alice.ID, 404)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Save() error = %v, want ErrNotFound", err)
	}
}

func TestPinSavedBy_UnknownUser(t *testing.T) {
	fx := newPinFixture(t)

	_, err := fx.svc.SavedBy(context.Background(), 404, repository.ListOptions{})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SavedBy() error = %v, want ErrNotFound", err)
	}
}
