package portal

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// Suggestion statuses, priorities and action types understood by the backend
const (
	SuggestionNew         = "new"
	SuggestionInProgress  = "in_progress"
	SuggestionImplemented = "implemented"
	SuggestionIgnored     = "ignored"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"

	ActionComment       = "comment"
	ActionStatusChange  = "status_change"
	ActionEvidenceAdded = "evidence_added"
)

type Suggestion struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	OwnerID   string    `json:"owner_id"`
	Source    string    `json:"source" example:"qec_manual"`
	Text      string    `json:"text"`
	Status    string    `json:"status" example:"new"`
	Priority  string    `json:"priority" example:"medium"`
	CreatedAt time.Time `json:"created_at"`
}

type SuggestionAction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ActionType  string    `json:"action_type"`
	Notes       string    `json:"notes"`
	EvidenceURL *string   `json:"evidence_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// SuggestionDetail is a suggestion with its action timeline
type SuggestionDetail struct {
	Suggestion
	Actions []SuggestionAction `json:"actions"`
}

type CreateSuggestionRequest struct {
	OwnerID  string `json:"owner_id"`
	Text     string `json:"text"`
	Priority string `json:"priority,omitempty"`
	Source   string `json:"source,omitempty"`
}

// UpdateSuggestionRequest changes only the fields that are set
type UpdateSuggestionRequest struct {
	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`
	Text     *string `json:"text,omitempty"`
}

type AddActionRequest struct {
	ActionType  string  `json:"action_type"`
	Notes       string  `json:"notes"`
	EvidenceURL *string `json:"evidence_url,omitempty"`
}

// SuggestionFilter narrows a suggestion listing, empty fields are not sent
type SuggestionFilter struct {
	Status   string
	Priority string
	OwnerID  string
}

func (f SuggestionFilter) query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Priority != "" {
		q.Set("priority", f.Priority)
	}
	if f.OwnerID != "" {
		q.Set("owner_id", f.OwnerID)
	}
	return q
}

func (p *Portal) ListSuggestions(ctx context.Context, courseID string, filter SuggestionFilter) ([]Suggestion, error) {
	if err := requireID("course_id", courseID); err != nil {
		return nil, err
	}
	var suggestions []Suggestion
	if err := p.api.Get(ctx, pathf("/courses/%s/suggestions", courseID), &suggestions, withQuery(filter.query())...); err != nil {
		return nil, err
	}
	return suggestions, nil
}

func (p *Portal) CreateSuggestion(ctx context.Context, courseID string, req CreateSuggestionRequest) (*Suggestion, error) {
	if err := requireID("course_id", courseID); err != nil {
		return nil, err
	}
	var s Suggestion
	if err := p.api.Post(ctx, pathf("/courses/%s/suggestions", courseID), req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GenerateSuggestions asks the quality engine to propose suggestions for a course
func (p *Portal) GenerateSuggestions(ctx context.Context, courseID string) (json.RawMessage, error) {
	if err := requireID("course_id", courseID); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := p.api.Post(ctx, pathf("/courses/%s/suggestions/auto", courseID), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (p *Portal) GetSuggestion(ctx context.Context, suggestionID string) (*SuggestionDetail, error) {
	if err := requireID("suggestion_id", suggestionID); err != nil {
		return nil, err
	}
	var detail SuggestionDetail
	if err := p.api.Get(ctx, pathf("/suggestions/%s", suggestionID), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (p *Portal) UpdateSuggestion(ctx context.Context, suggestionID string, req UpdateSuggestionRequest) (*Suggestion, error) {
	if err := requireID("suggestion_id", suggestionID); err != nil {
		return nil, err
	}
	var s Suggestion
	if err := p.api.Put(ctx, pathf("/suggestions/%s", suggestionID), req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Portal) AddSuggestionAction(ctx context.Context, suggestionID string, req AddActionRequest) (*SuggestionAction, error) {
	if err := requireID("suggestion_id", suggestionID); err != nil {
		return nil, err
	}
	var a SuggestionAction
	if err := p.api.Post(ctx, pathf("/suggestions/%s/actions", suggestionID), req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SuggestionStats returns the QEC dashboard counters, optionally narrowed by params
func (p *Portal) SuggestionStats(ctx context.Context, params url.Values) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := p.api.Get(ctx, "/suggestions/stats", &raw, withQuery(params)...); err != nil {
		return nil, err
	}
	return raw, nil
}
