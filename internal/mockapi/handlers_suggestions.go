package mockapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/airqa/qaportal/internal/portal"
	"github.com/go-chi/chi/v5"
)

var (
	suggestionStatuses   = []string{portal.SuggestionNew, portal.SuggestionInProgress, portal.SuggestionImplemented, portal.SuggestionIgnored}
	suggestionPriorities = []string{portal.PriorityLow, portal.PriorityMedium, portal.PriorityHigh}
	suggestionActions    = []string{portal.ActionComment, portal.ActionStatusChange, portal.ActionEvidenceAdded}
)

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := portal.SuggestionFilter{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		OwnerID:  q.Get("owner_id"),
	}
	suggestions, err := s.store.CourseSuggestions(chi.URLParam(r, "courseID"), filter)
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleCreateSuggestion(w http.ResponseWriter, r *http.Request) {
	var req portal.CreateSuggestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Priority == "" {
		req.Priority = portal.PriorityMedium
	}
	if req.Source == "" {
		req.Source = "qec_manual"
	}

	var check fieldChecker
	check.required("owner_id", req.OwnerID)
	check.required("text", strings.TrimSpace(req.Text))
	check.oneOf("priority", req.Priority, suggestionPriorities...)
	if check.respond(w, r) {
		return
	}

	sg, err := s.store.AddSuggestion(chi.URLParam(r, "courseID"), req)
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return
	}
	RespondWithJSON(w, http.StatusCreated, sg)
}

func (s *Server) handleGenerateSuggestions(w http.ResponseWriter, r *http.Request) {
	user, _ := ContextUser(r.Context())
	created, err := s.store.GenerateSuggestions(chi.URLParam(r, "courseID"), user.ID)
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"created":     len(created),
		"suggestions": created,
	})
}

func (s *Server) handleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	sg, ok := s.store.Suggestion(chi.URLParam(r, "suggestionID"))
	if !ok {
		RespondWithError(w, r, http.StatusNotFound, "Suggestion not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, sg)
}

func (s *Server) handleUpdateSuggestion(w http.ResponseWriter, r *http.Request) {
	var req portal.UpdateSuggestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var check fieldChecker
	if req.Status != nil {
		check.required("status", *req.Status)
		check.oneOf("status", *req.Status, suggestionStatuses...)
	}
	if req.Priority != nil {
		check.required("priority", *req.Priority)
		check.oneOf("priority", *req.Priority, suggestionPriorities...)
	}
	if check.respond(w, r) {
		return
	}

	sg, err := s.store.UpdateSuggestion(chi.URLParam(r, "suggestionID"), req)
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Suggestion not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, sg)
}

func (s *Server) handleAddSuggestionAction(w http.ResponseWriter, r *http.Request) {
	var req portal.AddActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var check fieldChecker
	check.required("action_type", req.ActionType)
	check.oneOf("action_type", req.ActionType, suggestionActions...)
	if check.respond(w, r) {
		return
	}

	user, _ := ContextUser(r.Context())
	action, err := s.store.AddSuggestionAction(chi.URLParam(r, "suggestionID"), user.ID, req)
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Suggestion not found")
		return
	}
	RespondWithJSON(w, http.StatusCreated, action)
}

func (s *Server) handleSuggestionStats(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.store.SuggestionStats(r.URL.Query().Get("course_id")))
}

// reminders

const maxInboxLimit = 500

func (s *Server) handleReminderInbox(w http.ResponseWriter, r *http.Request) {
	limit := portal.DefaultInboxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxInboxLimit {
			RespondWithValidationErrors(w, r, []ValidationIssue{{
				Loc:  []any{"query", "limit"},
				Msg:  "Input should be between 1 and " + strconv.Itoa(maxInboxLimit),
				Type: "int_parsing",
			}})
			return
		}
		limit = n
	}

	user, _ := ContextUser(r.Context())
	RespondWithJSON(w, http.StatusOK, s.store.Inbox(user.Role, limit))
}

func (s *Server) handleAckReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.store.AckReminder(chi.URLParam(r, "reminderID")); err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Reminder not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, portal.Ack{OK: true})
}
