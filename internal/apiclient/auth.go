package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

const (
	LoginPath   = "/auth/login"
	ProfilePath = "/auth/me"
)

type LoginRequest struct {
	Username string `json:"username"` // username or email
	Password string `json:"password"`
}

// loginResponse accepts both token field names the backend has used
type loginResponse struct {
	AccessToken string       `json:"access_token"`
	Token       string       `json:"token"`
	TokenType   string       `json:"token_type"`
	User        *UserProfile `json:"user"`
}

// normalizeIdentifier trims the login identifier and lower-cases email addresses,
// which the backend matches case-insensitively. Usernames are left as typed.
func normalizeIdentifier(raw string) string {
	v := strings.TrimSpace(raw)
	if strings.Contains(v, "@") {
		return strings.ToLower(v)
	}
	return v
}

// Login exchanges credentials for a bearer token, persists it and loads the user profile.
//
// The credentials travel in the JSON body of a POST without an Authorization header. If the
// login response embeds the user it is used directly, otherwise one follow-up call to the
// profile endpoint is made with the new token attached explicitly. A failed login leaves the
// session untouched. If Logout runs while the login is in flight the result is discarded and
// ErrSessionSuperseded is returned.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	identifier := normalizeIdentifier(username)

	var fieldErrors []FieldError
	if identifier == "" {
		fieldErrors = append(fieldErrors, FieldError{Field: "username", Message: "Username or email is required"})
	}
	if password == "" {
		fieldErrors = append(fieldErrors, FieldError{Field: "password", Message: "Password is required"})
	}
	if len(fieldErrors) > 0 {
		return c.Session(), newInputError(fieldErrors)
	}

	gen := c.beginAttempt()
	err := c.login(ctx, gen, identifier, password)
	c.endAttempt()
	return c.Session(), err
}

// login runs one attempt in generation gen. The caller ends the attempt before taking the
// session snapshot so the returned state is never Authenticating.
func (c *Client) login(ctx context.Context, gen uint64, identifier, password string) error {
	var res loginResponse
	err := c.Post(ctx, LoginPath, LoginRequest{Username: identifier, Password: password}, &res, WithoutAuth())
	if err != nil {
		return loginError(err)
	}

	token := res.AccessToken
	if token == "" {
		token = res.Token
	}
	if token == "" {
		return &Error{
			Kind:       KindAuth,
			StatusCode: http.StatusOK,
			Message:    msgNoToken,
			LogMessage: "login response contained neither access_token nor token",
		}
	}

	if !c.commitToken(gen, token, true) {
		c.logger.Info("login result discarded, session changed while in flight")
		return ErrSessionSuperseded
	}

	user := res.User
	if user == nil {
		var profile UserProfile
		if err := c.Get(ctx, ProfilePath, &profile, WithToken(token)); err != nil {
			if IsAuthError(err) {
				// the interceptor has already cleared the session
				return err
			}
			// the token is good, the profile can be fetched later with Profile
			c.logger.Warn("profile fetch after login failed", slog.String("error", err.Error()))
			return nil
		}
		user = &profile
	}

	if !c.commitUser(gen, token, user) {
		return ErrSessionSuperseded
	}

	c.logger.Info("logged in", slog.String("username", user.Username))
	return nil
}

// loginError replaces generic fallback messages with login specific ones.
// Messages sent by the backend are kept as they are.
func loginError(err error) error {
	var e *Error
	if !errors.As(err, &e) || e.serverMessage || e.StatusCode == 0 {
		return err
	}
	if e.Kind == KindAuth {
		e.Message = msgInvalidCredentials
	} else {
		e.Message = msgLoginFailed
	}
	return e
}

// RestoreSession picks up a token persisted by an earlier run and checks it against the
// profile endpoint. It never fails: any problem (no token, expired token, rejected token,
// network failure) resolves to an empty session and the stored token is removed.
func (c *Client) RestoreSession(ctx context.Context) Session {
	token, err := c.store.Load()
	if err != nil {
		c.logger.Warn("failed to read stored session token", slog.String("error", err.Error()))
		c.discardStoredToken()
		return c.Session()
	}
	if token == "" {
		return c.Session()
	}

	if exp, ok := TokenExpiry(token); ok && !c.clock.Now().Before(exp) {
		c.logger.Info("stored session token has expired", slog.Time("expired_at", exp))
		c.discardStoredToken()
		c.metrics.RecordSessionInvalidated("token_expired")
		return c.Session()
	}

	gen := c.beginAttempt()
	c.verifyStoredToken(ctx, gen, token)
	c.endAttempt()
	return c.Session()
}

func (c *Client) verifyStoredToken(ctx context.Context, gen uint64, token string) {
	if !c.commitToken(gen, token, false) {
		return
	}

	var profile UserProfile
	if err := c.Get(ctx, ProfilePath, &profile, WithToken(token)); err != nil {
		c.logger.Info("stored session token could not be verified", slog.String("error", err.Error()))
		c.invalidate(gen, token, "restore_failed")
		return
	}

	c.commitUser(gen, token, &profile)
}

// discardStoredToken removes the durable entry without touching an in-memory session
func (c *Client) discardStoredToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear stored session token", slog.String("error", err.Error()))
	}
}

// Profile fetches the profile for the current token and caches it on the session,
// moving an Authenticated session to Profiled.
func (c *Client) Profile(ctx context.Context) (*UserProfile, error) {
	gen, token := c.current()
	if token == "" {
		return nil, &Error{
			Kind:       KindAuth,
			Message:    msgNotLoggedIn,
			LogMessage: "profile requested without a session token",
		}
	}

	var profile UserProfile
	if err := c.Get(ctx, ProfilePath, &profile); err != nil {
		return nil, err
	}
	if !c.commitUser(gen, token, &profile) {
		return nil, ErrSessionSuperseded
	}
	return &profile, nil
}
