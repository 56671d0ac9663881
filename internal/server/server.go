// Package server is the composition root: it builds the services and
// handlers from config and an open database, mounts the routes and runs the
// HTTP server until its context is canceled.
//
// ROUTES:
//
//	POST   /api/auth/register            → register, returns token
//	POST   /api/auth/login               → login, returns token
//	GET    /api/auth/profile     [auth]  → current user
//	PUT    /api/auth/profile     [auth]  → update avatar, bio or password
//	GET    /api/pins                     → feed, newest first
//	POST   /api/pins             [auth]  → upload a pin (multipart)
//	GET    /api/pins/{id}                → one pin
//	POST   /api/pins/{id}/save   [auth]  → save a pin for the caller
//	GET    /api/users/{user}/pins        → pins by username
//	GET    /api/users/{user}/saved-pins  → pins saved by user id
//	GET    /api/health                   → liveness plus database ping
//	GET    /uploads/*                    → uploaded images (local storage only)
//
// MIDDLEWARE ORDER:
//  1. RequestID, so everything after can log it
//  2. RealIP
//  3. Logger, which sees the final status even when Recover wrote it
//  4. Recover
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/pinboard/internal/auth"
	"github.com/sakif/pinboard/internal/config"
	"github.com/sakif/pinboard/internal/handler"
	"github.com/sakif/pinboard/internal/middleware"
	sqliteRepo "github.com/sakif/pinboard/internal/repository/sqlite"
	"github.com/sakif/pinboard/internal/service"
	"github.com/sakif/pinboard/internal/storage"
	"github.com/sakif/pinboard/internal/storage/localstore"
	"github.com/sakif/pinboard/internal/storage/s3store"
	"github.com/sakif/pinboard/internal/validate"
)

// shutdownTimeout is how long in-flight requests get to finish after the
// context passed to Start is canceled.
const shutdownTimeout = 30 * time.Second

// Server holds the router and the resources it was built from. It does not
// own the database; the caller closes it after Start returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	images storage.ImageStore
}

// New wires every layer:
//
//	sqlite.DB → UserDB/PinDB/SavedPinDB → AuthService/PinService → handlers
//
// Handlers only see the service interfaces, services only see repository
// interfaces and the ImageStore.
func New(cfg config.Config, db *sqliteRepo.DB, images storage.ImageStore, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		images: images,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// NewImageStore builds the ImageStore selected by cfg.Driver.
func NewImageStore(ctx context.Context, cfg config.StorageConfig) (storage.ImageStore, error) {
	switch cfg.Driver {
	case "local":
		return localstore.New(cfg.Local.Dir, cfg.Local.PublicURL)
	case "s3":
		return s3store.New(ctx, s3store.Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() error {
	devMode := s.config.IsDevelopment()

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Recover(s.logger, devMode))

	passwords, err := auth.NewPasswordService(s.config.Bcrypt.Cost)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: s.config.JWT.Secret,
		TTL:    s.config.JWT.TTL,
		Issuer: s.config.JWT.Issuer,
	})
	if err != nil {
		return err
	}
	validator := validate.New()

	users := s.db.Users()
	authService := service.NewAuthService(users, passwords, tokens, validator, s.logger)
	pinService := service.NewPinService(s.db.Pins(), s.db.SavedPins(), users, s.images, validator, s.config.Upload.MaxWidth, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger, devMode)
	pinHandler := handler.NewPinHandler(pinService, s.config.Upload.MaxBytes, s.logger, devMode)
	healthHandler := handler.NewHealthHandler(s.db, s.logger, devMode)

	requireAuth := auth.RequireAuth(tokens, s.logger)

	s.router.NotFound(healthHandler.HandleNotFound)
	s.router.MethodNotAllowed(healthHandler.HandleMethodNotAllowed)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/profile", authHandler.HandleProfile)
				r.Put("/profile", authHandler.HandleUpdateProfile)
			})
		})

		r.Route("/pins", func(r chi.Router) {
			r.Get("/", pinHandler.HandleList)
			r.Get("/{id}", pinHandler.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", pinHandler.HandleCreate)
				r.Post("/{id}/save", pinHandler.HandleSave)
			})
		})

		// Both routes share one parameter name: chi matches {user} as a
		// single segment and each handler interprets it.
		r.Get("/users/{user}/pins", pinHandler.HandleListByAuthor)
		r.Get("/users/{user}/saved-pins", pinHandler.HandleListSaved)
	})

	if local, ok := s.images.(*localstore.Store); ok {
		s.mountUploads(local)
	}

	return nil
}

// mountUploads serves local images under the configured public URL when it
// is a path on this server. An absolute URL means something else (a CDN or
// reverse proxy) serves the directory.
func (s *Server) mountUploads(local *localstore.Store) {
	prefix := strings.TrimRight(s.config.Storage.Local.PublicURL, "/")
	if !strings.HasPrefix(prefix, "/") {
		return
	}

	files := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(local.Dir())))
	s.router.Get(prefix+"/*", func(w http.ResponseWriter, r *http.Request) {
		// no directory listings
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// Start serves until ctx is canceled, then shuts down gracefully, giving
// in-flight requests shutdownTimeout to finish.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second, // uploads
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
			slog.String("storage", s.config.Storage.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
