package mockapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/airqa/qaportal/internal/apiclient"
	"github.com/airqa/qaportal/internal/config"
	"github.com/airqa/qaportal/internal/portal"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
)

const testPassword = "correct-horse-battery"

type fixture struct {
	srv        *Server
	httpServer *httptest.Server
	clock      *clockwork.FakeClock
	admin      apiclient.UserProfile
	instructor apiclient.UserProfile
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Now())
	srv, err := NewServer(Config{
		TokenTTL: 10 * time.Minute,
		Clock:    clock,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	admin, err := srv.AddUser(SeedUser{Username: "qec", Email: "QEC@Example.edu", Password: testPassword, FullName: "QEC Office", Role: "admin"})
	if err != nil {
		t.Fatalf("AddUser(admin) error = %v", err)
	}
	instructor, err := srv.AddUser(SeedUser{Username: "alice", Email: "alice@example.edu", Password: testPassword, FullName: "Alice Khan", Role: "instructor", Department: "CS"})
	if err != nil {
		t.Fatalf("AddUser(instructor) error = %v", err)
	}

	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(httpServer.Close)

	return &fixture{
		srv:        srv,
		httpServer: httpServer,
		clock:      clock,
		admin:      admin,
		instructor: instructor,
	}
}

func (f *fixture) client(t *testing.T) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(
		&config.Config{APIBaseURL: f.httpServer.URL, RequestTimeout: 5 * time.Second},
		apiclient.WithTokenStore(apiclient.NewMemoryStore()),
		apiclient.WithLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("apiclient.New() error = %v", err)
	}
	return c
}

// login returns a client holding a session for username and a portal using it
func (f *fixture) login(t *testing.T, username string) (*apiclient.Client, *portal.Portal) {
	t.Helper()
	c := f.client(t)
	if _, err := c.Login(context.Background(), username, testPassword); err != nil {
		t.Fatalf("Login(%s) error = %v", username, err)
	}
	return c, portal.New(c)
}

func asAPIError(t *testing.T, err error) *apiclient.Error {
	t.Helper()
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apiclient.Error, got %T: %v", err, err)
	}
	return apiErr
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		identifier string
		password   string
		wantUser   string
		wantStatus int
	}{
		{"username", "alice", testPassword, "alice", 0},
		{"email in mixed case", "  Alice@Example.EDU ", testPassword, "alice", 0},
		{"stored email is lower cased", "qec@example.edu", testPassword, "qec", 0},
		{"wrong password", "alice", "nope", "", http.StatusUnauthorized},
		{"unknown user", "mallory", testPassword, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.client(t)
			session, err := c.Login(context.Background(), tt.identifier, tt.password)

			if tt.wantStatus != 0 {
				apiErr := asAPIError(t, err)
				if apiErr.StatusCode != tt.wantStatus {
					t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.wantStatus)
				}
				if apiErr.Message != "Invalid username/email or password" {
					t.Errorf("Message = %q", apiErr.Message)
				}
				if c.Session().IsAuthenticated() {
					t.Error("failed login left a session behind")
				}
				return
			}

			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if session.State != apiclient.Profiled {
				t.Errorf("State = %v, want %v", session.State, apiclient.Profiled)
			}
			if session.User == nil || session.User.Username != tt.wantUser {
				t.Errorf("User = %+v, want username %q", session.User, tt.wantUser)
			}
			if session.ExpiresAt.IsZero() {
				t.Error("ExpiresAt not taken from the token")
			}
		})
	}
}

func TestProfileMatchesLogin(t *testing.T) {
	f := newFixture(t)
	c, _ := f.login(t, "alice")

	profile, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if diff := cmp.Diff(f.instructor, *profile); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestExpiredTokenClearsSession(t *testing.T) {
	f := newFixture(t)
	c, p := f.login(t, "alice")

	f.clock.Advance(11 * time.Minute)

	_, err := p.ListCourses(context.Background())
	apiErr := asAPIError(t, err)
	if apiErr.Kind != apiclient.KindAuth {
		t.Errorf("Kind = %v, want %v", apiErr.Kind, apiclient.KindAuth)
	}
	if apiErr.Message != "Token has expired" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if c.Session().IsAuthenticated() {
		t.Error("session still authenticated after the token expired")
	}
}

func TestRevokedSession(t *testing.T) {
	f := newFixture(t)
	c, p := f.login(t, "alice")
	other, otherPortal := f.login(t, "qec")
	gen := c.Session().Generation

	if n := f.srv.RevokeSessions(f.instructor.ID); n != 1 {
		t.Fatalf("RevokeSessions() = %d, want 1", n)
	}

	_, err := p.ReminderInbox(context.Background(), 0)
	if !apiclient.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	session := c.Session()
	if session.IsAuthenticated() || session.User != nil {
		t.Errorf("session not cleared: %+v", session)
	}
	if session.Generation != gen+1 {
		t.Errorf("Generation = %d, want %d", session.Generation, gen+1)
	}

	// other users keep their sessions
	if _, err := otherPortal.ListCourses(context.Background()); err != nil {
		t.Errorf("ListCourses() for another user error = %v", err)
	}
	if !other.Session().IsAuthenticated() {
		t.Error("unrelated session was cleared")
	}

	// a fresh login works again
	if _, err := c.Login(context.Background(), "alice", testPassword); err != nil {
		t.Fatalf("Login() after revocation error = %v", err)
	}
	if _, err := p.ReminderInbox(context.Background(), 0); err != nil {
		t.Errorf("ReminderInbox() after new login error = %v", err)
	}
}

func TestRestoreSessionAgainstServer(t *testing.T) {
	f := newFixture(t)
	store := apiclient.NewMemoryStore()
	cfg := &config.Config{APIBaseURL: f.httpServer.URL, RequestTimeout: 5 * time.Second}

	first, err := apiclient.New(cfg, apiclient.WithTokenStore(store), apiclient.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := first.Login(context.Background(), "alice", testPassword); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	second, err := apiclient.New(cfg, apiclient.WithTokenStore(store), apiclient.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	session := second.RestoreSession(context.Background())
	if session.State != apiclient.Profiled || session.User.ID != f.instructor.ID {
		t.Errorf("restored session = %+v", session)
	}

	f.srv.RevokeSessions(f.instructor.ID)

	third, err := apiclient.New(cfg, apiclient.WithTokenStore(store), apiclient.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if session := third.RestoreSession(context.Background()); session.IsAuthenticated() {
		t.Errorf("revoked token restored: %+v", session)
	}
	if token, _ := store.Load(); token != "" {
		t.Errorf("stored token = %q, want it removed", token)
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	f := newFixture(t)
	c, p := f.login(t, "alice")

	_, err := p.CreateCourse(context.Background(), portal.CreateCourseRequest{CourseCode: "CS101", CourseName: "Programming"})
	apiErr := asAPIError(t, err)
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Kind != apiclient.KindServer {
		t.Errorf("got status %d kind %v, want 403 %v", apiErr.StatusCode, apiErr.Kind, apiclient.KindServer)
	}
	if !c.Session().IsAuthenticated() {
		t.Error("403 cleared the session")
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name          string
		authorization string
		wantDetail    string
	}{
		{"no header", "", "Not authenticated"},
		{"wrong scheme", "Basic YWxpY2U6cHc=", "Not authenticated"},
		{"garbage token", "Bearer not-a-jwt", "Invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, f.httpServer.URL+"/auth/me", nil)
			if err != nil {
				t.Fatal(err)
			}
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			res, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer res.Body.Close()
			body, _ := io.ReadAll(res.Body)

			if res.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", res.StatusCode)
			}
			if !strings.Contains(string(body), tt.wantDetail) {
				t.Errorf("body = %s, want detail %q", body, tt.wantDetail)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, err := NewServer(Config{AllowedOrigins: []string{"http://localhost:5173"}, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodOptions, "/courses", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestNewServerRejectsShortSecret(t *testing.T) {
	if _, err := NewServer(Config{SecretKey: "short"}); err == nil {
		t.Error("expected an error for a short secret key")
	}
}
