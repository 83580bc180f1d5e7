package portal

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// DefaultInboxLimit is the number of reminders fetched when no limit is given
const DefaultInboxLimit = 100

type Reminder struct {
	ID           string          `json:"id"`
	RuleID       string          `json:"rule_id"`
	StepID       string          `json:"step_id"`
	TargetType   string          `json:"target_type"`
	TargetKey    string          `json:"target_key"`
	CourseID     *string         `json:"course_id"`
	AssessmentID *string         `json:"assessment_id"`
	WeekNo       *int            `json:"week_no"`
	AudienceRole string          `json:"audience_role"`
	Status       string          `json:"status"`
	DueAt        *time.Time      `json:"due_at"`
	CreatedAt    time.Time       `json:"created_at"`
	SentAt       *time.Time      `json:"sent_at"`
	AckedAt      *time.Time      `json:"acked_at"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// ReminderInbox returns the logged in user's reminders, newest first
func (p *Portal) ReminderInbox(ctx context.Context, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}

	var reminders []Reminder
	if err := p.api.Get(ctx, "/api/reminders/inbox", &reminders, withQuery(q)...); err != nil {
		return nil, err
	}
	return reminders, nil
}

// AckReminder marks a reminder as acknowledged
func (p *Portal) AckReminder(ctx context.Context, reminderID string) error {
	if err := requireID("reminder_id", reminderID); err != nil {
		return err
	}
	return p.api.Post(ctx, pathf("/api/reminders/ack/%s", reminderID), nil, nil)
}
