package mockapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/airqa/qaportal/internal/apiclient"
)

type loginResponse struct {
	AccessToken string                `json:"access_token"`
	TokenType   string                `json:"token_type"`
	User        apiclient.UserProfile `json:"user"`
}

// handleLogin accepts a username or an email address as the identifier
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req apiclient.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var check fieldChecker
	check.required("username", strings.TrimSpace(req.Username))
	check.required("password", req.Password)
	if check.respond(w, r) {
		return
	}

	user, ok := s.store.userByLogin(strings.TrimSpace(req.Username))
	if !ok || CheckPasswordHash(user.passwordHash, req.Password) != nil {
		RespondWithError(w, r, http.StatusUnauthorized, "Invalid username/email or password")
		return
	}

	tokenID := s.store.StartSession(user.profile.ID)
	token, err := s.auth.GenerateAccessToken(user.profile.ID, tokenID)
	if err != nil {
		ContextRequestLogger(r.Context()).Error("could not issue token", slog.String("error", err.Error()))
		RespondWithError(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	ContextRequestLogger(r.Context()).Info("user logged in", slog.String("user_id", user.profile.ID))
	RespondWithJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user.profile,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := ContextUser(r.Context())
	RespondWithJSON(w, http.StatusOK, user)
}
