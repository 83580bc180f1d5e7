package portal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/airqa/qaportal/internal/apiclient"
)

// Assessment types used by the portal
const (
	AssessmentQuiz       = "quiz"
	AssessmentAssignment = "assignment"
	AssessmentMidterm    = "midterm"
	AssessmentFinal      = "final"
)

// Date is a calendar date encoded as YYYY-MM-DD
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

type Assessment struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	Type      string    `json:"type" example:"quiz"`
	Title     string    `json:"title" example:"Quiz 1"`
	MaxMarks  int       `json:"max_marks" example:"10"`
	Weightage int       `json:"weightage" example:"5"`
	Date      Date      `json:"date"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AssessmentRequest struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	MaxMarks  int    `json:"max_marks"`
	Weightage int    `json:"weightage"`
	Date      Date   `json:"date"`
}

// validate mirrors the backend's own checks so obviously bad input never leaves the process
func (r AssessmentRequest) validate() error {
	var fieldErrors []apiclient.FieldError
	if r.Type == "" {
		fieldErrors = append(fieldErrors, apiclient.FieldError{Field: "type", Message: "type is required"})
	}
	if r.Title == "" {
		fieldErrors = append(fieldErrors, apiclient.FieldError{Field: "title", Message: "title is required"})
	}
	if r.MaxMarks < 0 {
		fieldErrors = append(fieldErrors, apiclient.FieldError{Field: "max_marks", Message: "max_marks must not be negative"})
	}
	if r.Weightage < 0 {
		fieldErrors = append(fieldErrors, apiclient.FieldError{Field: "weightage", Message: "weightage must not be negative"})
	}
	if r.Date.IsZero() {
		fieldErrors = append(fieldErrors, apiclient.FieldError{Field: "date", Message: "date is required"})
	}
	if len(fieldErrors) > 0 {
		return apiclient.NewValidationError(fieldErrors...)
	}
	return nil
}

// AssessmentDetail is an assessment with its uploaded files and the backend's analysis.
// The analysis parts are passed through untouched.
type AssessmentDetail struct {
	Assessment   Assessment      `json:"assessment"`
	Files        json.RawMessage `json:"files,omitempty"`
	Expected     json.RawMessage `json:"expected,omitempty"`
	CLOAlignment json.RawMessage `json:"clo_alignment,omitempty"`
}

type Submission struct {
	ID            string          `json:"id"`
	AssessmentID  string          `json:"assessment_id"`
	StudentID     string          `json:"student_id,omitempty"`
	ObtainedMarks *int            `json:"obtained_marks"`
	Status        string          `json:"status"`
	AIMarks       *float64        `json:"ai_marks"`
	AIFeedback    string          `json:"ai_feedback,omitempty"`
	Evidence      json.RawMessage `json:"evidence_json,omitempty"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

func (p *Portal) ListCourseAssessments(ctx context.Context, courseID string) ([]Assessment, error) {
	if err := requireID("course_id", courseID); err != nil {
		return nil, err
	}
	var assessments []Assessment
	if err := p.api.Get(ctx, pathf("/courses/%s/assessments", courseID), &assessments); err != nil {
		return nil, err
	}
	return assessments, nil
}

func (p *Portal) CreateAssessment(ctx context.Context, courseID string, req AssessmentRequest) (*Assessment, error) {
	if err := requireID("course_id", courseID); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	var a Assessment
	if err := p.api.Post(ctx, pathf("/courses/%s/assessments", courseID), req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Portal) GetAssessment(ctx context.Context, assessmentID string) (*AssessmentDetail, error) {
	if err := requireID("assessment_id", assessmentID); err != nil {
		return nil, err
	}
	var detail AssessmentDetail
	if err := p.api.Get(ctx, pathf("/assessments/%s", assessmentID), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (p *Portal) UpdateAssessment(ctx context.Context, assessmentID string, req AssessmentRequest) (*Assessment, error) {
	if err := requireID("assessment_id", assessmentID); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	var a Assessment
	if err := p.api.Put(ctx, pathf("/assessments/%s", assessmentID), req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Portal) ListSubmissions(ctx context.Context, assessmentID string) ([]Submission, error) {
	if err := requireID("assessment_id", assessmentID); err != nil {
		return nil, err
	}
	var subs []Submission
	if err := p.api.Get(ctx, pathf("/assessments/%s/submissions", assessmentID), &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// RunGradingAudit starts the backend's grading audit for an assessment
func (p *Portal) RunGradingAudit(ctx context.Context, assessmentID string) (json.RawMessage, error) {
	if err := requireID("assessment_id", assessmentID); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := p.api.Post(ctx, pathf("/assessments/%s/run-grading-audit", assessmentID), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetGradingAudit returns the latest grading audit result
func (p *Portal) GetGradingAudit(ctx context.Context, assessmentID string) (json.RawMessage, error) {
	if err := requireID("assessment_id", assessmentID); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := p.api.Get(ctx, pathf("/assessments/%s/grading-audit", assessmentID), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
