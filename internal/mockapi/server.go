// Package mockapi is an in-memory stand-in for the QA portal backend.
//
// It serves the same routes, error bodies and bearer token rules as the real service so the
// client can be exercised end to end: in tests via httptest, and locally with
// `qaportal mock-server`. Tokens are HS256 JWTs checked against the server clock, and sessions
// can be revoked to force a 401 on the next authenticated call.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/airqa/qaportal/internal/apiclient"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jub0bs/cors"
)

const (
	corsMaxAgeInSeconds = 300
	shutdownTimeout     = 5 * time.Second
	maxUploadBytes      = 32 << 20
)

// roles allowed on the /admin routes
var adminRoles = []string{"admin", "administrator", "superadmin"}

type Server struct {
	cfg    *Config
	auth   *AuthService
	store  *Store
	router *chi.Mux
	logger *slog.Logger
}

// SeedUser is a user created before the server accepts requests
type SeedUser struct {
	Username   string
	Email      string
	Password   string
	FullName   string
	Role       string
	Department string
}

func NewServer(cfg Config) (*Server, error) {
	resolved, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    resolved,
		auth:   NewAuthService(resolved.SecretKey, resolved.TokenTTL, resolved.Clock),
		store:  NewStore(resolved.Clock),
		router: chi.NewRouter(),
		logger: resolved.Logger,
	}

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Store() *Store {
	return s.store
}

// AddUser creates a user with a bcrypt hashed password
func (s *Server) AddUser(u SeedUser) (apiclient.UserProfile, error) {
	if u.Username == "" || u.Password == "" {
		return apiclient.UserProfile{}, fmt.Errorf("username and password are required")
	}
	hash, err := HashPassword(u.Password)
	if err != nil {
		return apiclient.UserProfile{}, fmt.Errorf("could not hash password: %w", err)
	}
	profile, err := s.store.AddUser(apiclient.UserProfile{
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Role:       strings.ToLower(u.Role),
		Department: u.Department,
	}, hash)
	if err != nil {
		return apiclient.UserProfile{}, fmt.Errorf("could not add user %s: %w", u.Username, err)
	}
	return profile, nil
}

// RevokeSessions invalidates every token issued to the user
func (s *Server) RevokeSessions(userID string) int {
	n := s.store.RevokeSessions(userID)
	s.logger.Info("sessions revoked", slog.String("user_id", userID), slog.Int("count", n))
	return n
}

func (s *Server) registerRoutes() error {
	s.router.Use(middleware.RequestID)
	s.router.Use(RequestLogging(s.logger))
	s.router.Use(middleware.Recoverer)

	if len(s.cfg.AllowedOrigins) > 0 {
		corsMiddleware, err := cors.NewMiddleware(cors.Config{
			Origins: s.cfg.AllowedOrigins,
			Methods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodPut,
				http.MethodDelete,
			},
			RequestHeaders: []string{
				"Authorization",
				"Content-Type",
				"X-Request-ID",
			},
			MaxAgeInSeconds: corsMaxAgeInSeconds,
		})
		if err != nil {
			return fmt.Errorf("failed to create CORS middleware: %w", err)
		}
		s.router.Use(corsMiddleware.Wrap)
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, r, http.StatusNotFound, "Not Found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	s.router.Post("/auth/login", s.handleLogin)

	s.router.Group(func(r chi.Router) {
		r.Use(s.RequireValidAccessToken)

		r.Get("/auth/me", s.handleMe)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(adminRoles...))

			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
			r.Put("/users/{userID}", s.handleUpdateUser)

			r.Post("/courses", s.handleCreateCourse)
			r.Post("/courses/{courseID}/assign", s.handleAssignStaff)
			r.Get("/courses/{courseID}/staff", s.handleCourseStaff)
			r.Put("/courses/{courseID}/clos", s.handleUpdateCLOs)
		})

		r.Route("/courses", func(r chi.Router) {
			r.Get("/", s.handleListCourses)
			r.Get("/{courseID}/quality-score", s.handleQualityScore)
			r.Get("/{courseID}/weekly-progress", s.handleWeeklyProgress)
			r.Get("/{courseID}/assessments", s.handleListAssessments)
			r.Post("/{courseID}/assessments", s.handleCreateAssessment)
			r.Get("/{courseID}/suggestions", s.handleListSuggestions)
			r.Post("/{courseID}/suggestions", s.handleCreateSuggestion)
			r.Post("/{courseID}/suggestions/auto", s.handleGenerateSuggestions)
		})

		r.Route("/assessments/{assessmentID}", func(r chi.Router) {
			r.Get("/", s.handleGetAssessment)
			r.Put("/", s.handleUpdateAssessment)
			r.Get("/submissions", s.handleListSubmissions)
			r.Post("/submissions/bulk-upload", s.handleBulkUploadMarks)
			r.Post("/submissions/file", s.handleUploadSolution)
			r.Post("/submissions/upload-zip", s.handleUploadZip)
			r.Post("/run-grading-audit", s.handleRunGradingAudit)
			r.Get("/grading-audit", s.handleGetGradingAudit)
		})

		r.Get("/suggestions/stats", s.handleSuggestionStats)
		r.Get("/suggestions/{suggestionID}", s.handleGetSuggestion)
		r.Put("/suggestions/{suggestionID}", s.handleUpdateSuggestion)
		r.Post("/suggestions/{suggestionID}/actions", s.handleAddSuggestionAction)

		r.Post("/upload/{courseID}", s.handleUploadCourseFiles)
		r.Post("/upload/{courseID}/{category}", s.handleUploadCourseFiles)

		r.Get("/api/reminders/inbox", s.handleReminderInbox)
		r.Post("/api/reminders/ack/{reminderID}", s.handleAckReminder)
	})

	return nil
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("mock api listening", slog.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("mock api failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down mock api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
