package apiclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// State is the position of a session in its lifecycle
type State int

const (
	Anonymous      State = iota // no token
	Authenticating              // login or restore in flight
	Authenticated               // token set, profile not fetched yet
	Profiled                    // token and profile set
)

var stateNames = []string{"Anonymous", "Authenticating", "Authenticated", "Profiled"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// UserProfile is the account returned by the backend's "who am I" endpoint
type UserProfile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

// Session is a snapshot of the client's authentication state.
//
// User is never set while Token is empty. Generation increases on every logout and every
// forced invalidation, results of calls started under an older generation are discarded.
type Session struct {
	Token      string
	User       *UserProfile
	State      State
	Generation uint64
	// ExpiresAt is the exp claim when the token is a JWT, zero otherwise
	ExpiresAt time.Time
}

// IsAuthenticated reports whether a bearer token is held
func (s Session) IsAuthenticated() bool {
	return s.Token != ""
}

// TokenExpiry returns the exp claim of a JWT bearer token.
// The signature is not verified, the backend remains the authority on validity.
// ok is false for opaque tokens and tokens without an exp claim.
func TokenExpiry(token string) (expiresAt time.Time, ok bool) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := &jwt.RegisteredClaims{}

	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Session returns a snapshot of the current session
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() Session {
	s := Session{
		Token:      c.token,
		Generation: c.generation,
	}
	if c.user != nil {
		u := *c.user
		s.User = &u
	}
	if c.token != "" {
		if exp, ok := TokenExpiry(c.token); ok {
			s.ExpiresAt = exp
		}
	}

	switch {
	case c.attempts > 0:
		s.State = Authenticating
	case c.token == "":
		s.State = Anonymous
	case c.user == nil:
		s.State = Authenticated
	default:
		s.State = Profiled
	}
	return s
}

// current returns the generation and token a new call runs under
func (c *Client) current() (uint64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, c.token
}

// beginAttempt marks a login or restore as in flight and returns the generation it belongs to
func (c *Client) beginAttempt() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	return c.generation
}

func (c *Client) endAttempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts--
}

// commitToken installs a new token if the session generation is still gen.
// The store is written under the same lock so a concurrent logout cannot interleave.
func (c *Client) commitToken(gen uint64, token string, persist bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false
	}
	if persist {
		if err := c.store.Save(token); err != nil {
			c.logger.Warn("failed to persist session token", slog.String("error", err.Error()))
		}
	}
	if c.token != token {
		c.user = nil
	}
	c.token = token
	return true
}

// commitUser caches the profile if the session still holds token in generation gen
func (c *Client) commitUser(gen uint64, token string, user *UserProfile) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen || c.token != token || token == "" {
		return false
	}
	u := *user
	c.user = &u
	return true
}

// Logout clears the token, the cached profile and the durable token entry.
// It never contacts the backend and is safe to call on an anonymous session.
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// invalidate forces the session back to Anonymous, but only if it still holds token in
// generation gen. Several calls failing together therefore clear the session exactly once.
func (c *Client) invalidate(gen uint64, token, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen || c.token != token || token == "" {
		return false
	}
	c.clearLocked()
	c.metrics.RecordSessionInvalidated(reason)
	c.logger.Warn("session invalidated", slog.String("reason", reason))
	return true
}

func (c *Client) clearLocked() {
	c.token = ""
	c.user = nil
	c.generation++
	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear stored session token", slog.String("error", err.Error()))
	}
}
