package portal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/airqa/qaportal/internal/apiclient"
	"github.com/airqa/qaportal/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
)

type recordedPart struct {
	Field    string
	Filename string
	Value    string
}

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]any
	Parts  []recordedPart
	Auth   string
}

// fakeBackend records every request and answers with the response registered for its path
type fakeBackend struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]string
}

func (b *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Auth:   r.Header.Get("Authorization"),
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(p)
			rec.Parts = append(rec.Parts, recordedPart{Field: p.FormName(), Filename: p.FileName(), Value: string(data)})
		}
	} else if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
	}

	b.mu.Lock()
	b.requests = append(b.requests, rec)
	body, ok := b.responses[r.Method+" "+r.URL.Path]
	b.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (b *fakeBackend) last(t *testing.T) recordedRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		t.Fatal("backend received no request")
	}
	return b.requests[len(b.requests)-1]
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func setupPortal(t *testing.T, responses map[string]string) (*Portal, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{responses: responses}

	r := chi.NewRouter()
	r.HandleFunc("/*", b.handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	api, err := apiclient.New(&config.Config{APIBaseURL: srv.URL, RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("apiclient.New() error = %v", err)
	}
	return New(api), b
}

func strPtr(s string) *string { return &s }

func TestPortalRequests(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		call      func(p *Portal) error
		method    string
		path      string
		wantQuery url.Values
		wantBody  map[string]any
	}{
		{
			name:   "list courses",
			call:   func(p *Portal) error { _, err := p.ListCourses(ctx); return err },
			method: http.MethodGet,
			path:   "/courses",
		},
		{
			name: "create course defaults clos",
			call: func(p *Portal) error {
				_, err := p.CreateCourse(ctx, CreateCourseRequest{CourseCode: "CS101", CourseName: "Intro", Semester: "Fall", Year: "2026", Department: "CS"})
				return err
			},
			method: http.MethodPost,
			path:   "/admin/courses",
			wantBody: map[string]any{
				"course_code": "CS101", "course_name": "Intro", "semester": "Fall", "year": "2026",
				"instructor": "", "department": "CS", "clos": "[]",
			},
		},
		{
			name: "assign course lead",
			call: func(p *Portal) error {
				return p.AssignCourseStaff(ctx, "c1", AssignStaffRequest{UserID: "u-2", Role: StaffCourseLead})
			},
			method:   http.MethodPost,
			path:     "/admin/courses/c1/assign",
			wantBody: map[string]any{"user_id": "u-2", "role": "COURSE_LEAD"},
		},
		{
			name: "update clos drops incomplete entries",
			call: func(p *Portal) error {
				return p.UpdateCourseCLOs(ctx, "c1", []CLO{
					{Code: " CLO1 ", Description: "Apply loops"},
					{Code: "CLO2", Description: "  "},
				})
			},
			method: http.MethodPut,
			path:   "/admin/courses/c1/clos",
			wantBody: map[string]any{"clos": []any{
				map[string]any{"code": "CLO1", "description": "Apply loops"},
			}},
		},
		{
			name:   "course quality score",
			call:   func(p *Portal) error { _, err := p.CourseQualityScore(ctx, "c1"); return err },
			method: http.MethodGet,
			path:   "/courses/c1/quality-score",
		},
		{
			name:   "course ids are escaped",
			call:   func(p *Portal) error { _, err := p.ListCourseAssessments(ctx, "a/b"); return err },
			method: http.MethodGet,
			path:   "/courses/a/b/assessments",
		},
		{
			name: "create assessment",
			call: func(p *Portal) error {
				_, err := p.CreateAssessment(ctx, "c1", AssessmentRequest{
					Type: AssessmentQuiz, Title: "Quiz 1", MaxMarks: 10, Weightage: 5, Date: NewDate(2026, time.March, 1),
				})
				return err
			},
			method: http.MethodPost,
			path:   "/courses/c1/assessments",
			wantBody: map[string]any{
				"type": "quiz", "title": "Quiz 1", "max_marks": float64(10), "weightage": float64(5), "date": "2026-03-01",
			},
		},
		{
			name:   "run grading audit",
			call:   func(p *Portal) error { _, err := p.RunGradingAudit(ctx, "a1"); return err },
			method: http.MethodPost,
			path:   "/assessments/a1/run-grading-audit",
		},
		{
			name:   "get grading audit",
			call:   func(p *Portal) error { _, err := p.GetGradingAudit(ctx, "a1"); return err },
			method: http.MethodGet,
			path:   "/assessments/a1/grading-audit",
		},
		{
			name: "list suggestions with filter",
			call: func(p *Portal) error {
				_, err := p.ListSuggestions(ctx, "c1", SuggestionFilter{Status: SuggestionNew, Priority: PriorityHigh})
				return err
			},
			method:    http.MethodGet,
			path:      "/courses/c1/suggestions",
			wantQuery: url.Values{"status": {"new"}, "priority": {"high"}},
		},
		{
			name: "update suggestion sends only set fields",
			call: func(p *Portal) error {
				_, err := p.UpdateSuggestion(ctx, "s1", UpdateSuggestionRequest{Status: strPtr(SuggestionImplemented)})
				return err
			},
			method:   http.MethodPut,
			path:     "/suggestions/s1",
			wantBody: map[string]any{"status": "implemented"},
		},
		{
			name: "add suggestion action",
			call: func(p *Portal) error {
				_, err := p.AddSuggestionAction(ctx, "s1", AddActionRequest{ActionType: ActionComment, Notes: "Discussed in QEC meeting"})
				return err
			},
			method:   http.MethodPost,
			path:     "/suggestions/s1/actions",
			wantBody: map[string]any{"action_type": "comment", "notes": "Discussed in QEC meeting"},
		},
		{
			name:      "suggestion stats",
			call:      func(p *Portal) error { _, err := p.SuggestionStats(ctx, url.Values{"course_id": {"c1"}}); return err },
			method:    http.MethodGet,
			path:      "/suggestions/stats",
			wantQuery: url.Values{"course_id": {"c1"}},
		},
		{
			name:      "reminder inbox default limit",
			call:      func(p *Portal) error { _, err := p.ReminderInbox(ctx, 0); return err },
			method:    http.MethodGet,
			path:      "/api/reminders/inbox",
			wantQuery: url.Values{"limit": {"100"}},
		},
		{
			name:   "ack reminder",
			call:   func(p *Portal) error { return p.AckReminder(ctx, "r1") },
			method: http.MethodPost,
			path:   "/api/reminders/ack/r1",
		},
		{
			name:      "list users by role",
			call:      func(p *Portal) error { _, err := p.ListUsersByRole(ctx, RoleInstructor); return err },
			method:    http.MethodGet,
			path:      "/admin/users",
			wantQuery: url.Values{"role": {"instructor"}},
		},
		{
			name: "create user normalizes role and department",
			call: func(p *Portal) error {
				_, err := p.CreateUser(ctx, CreateUserRequest{
					FullName: "Bob Njoroge", Username: "bob", Email: "bob@example.edu",
					Department: strPtr(""), Role: " Course_Lead ", Password: "pw",
				})
				return err
			},
			method: http.MethodPost,
			path:   "/admin/users",
			wantBody: map[string]any{
				"full_name": "Bob Njoroge", "username": "bob", "email": "bob@example.edu",
				"department": nil, "role": "course_lead", "password": "pw",
			},
		},
		{
			name: "update user",
			call: func(p *Portal) error {
				_, err := p.UpdateUser(ctx, "u-2", UpdateUserRequest{Email: "bob@uni.example"})
				return err
			},
			method:   http.MethodPut,
			path:     "/admin/users/u-2",
			wantBody: map[string]any{"email": "bob@uni.example"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, b := setupPortal(t, nil)

			if err := tt.call(p); err != nil {
				t.Fatalf("call error = %v", err)
			}

			got := b.last(t)
			if got.Method != tt.method || got.Path != tt.path {
				t.Errorf("request = %s %s, want %s %s", got.Method, got.Path, tt.method, tt.path)
			}
			wantQuery := tt.wantQuery
			if wantQuery == nil {
				wantQuery = url.Values{}
			}
			if diff := cmp.Diff(wantQuery, got.Query); diff != "" {
				t.Errorf("query mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantBody, got.Body); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPortalResponses(t *testing.T) {
	p, _ := setupPortal(t, map[string]string{
		"GET /courses": `[{"id":"c1","course_code":"CS101","course_name":"Intro","semester":"Fall","year":"2026","instructor":"","department":"CS","clos":"[]"}]`,
		"GET /assessments/a1": `{"assessment":{"id":"a1","course_id":"c1","type":"quiz","title":"Quiz 1","max_marks":10,"weightage":5,"date":"2026-03-01","created_at":"2026-02-20T10:00:00Z"},
			"files":[],"expected":null,"clo_alignment":{"coverage_percent":80.0}}`,
		"GET /suggestions/s1": `{"id":"s1","course_id":"c1","owner_id":"u-1","source":"qec_manual","text":"Share rubric","status":"new","priority":"high","created_at":"2026-02-20T10:00:00Z",
			"actions":[{"id":"x1","user_id":"u-9","action_type":"comment","notes":"ok","evidence_url":null,"created_at":"2026-02-21T10:00:00Z"}]}`,
		"PUT /admin/users/u-2":          `{"ok":true,"user":{"id":"u-2","full_name":"Bob","username":"bob","email":"bob@example.edu","role":"instructor","department":null}}`,
		"GET /courses/c1/quality-score": `{"score":0.82,"breakdown":{"coverage":0.9}}`,
	})
	ctx := context.Background()

	courses, err := p.ListCourses(ctx)
	if err != nil {
		t.Fatalf("ListCourses() error = %v", err)
	}
	if diff := cmp.Diff([]Course{{ID: "c1", CourseCode: "CS101", CourseName: "Intro", Semester: "Fall", Year: "2026", Department: "CS", CLOs: "[]"}}, courses); diff != "" {
		t.Errorf("courses mismatch (-want +got):\n%s", diff)
	}

	detail, err := p.GetAssessment(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAssessment() error = %v", err)
	}
	if !detail.Assessment.Date.Equal(NewDate(2026, time.March, 1).Time) {
		t.Errorf("date = %v", detail.Assessment.Date)
	}
	if string(detail.CLOAlignment) != `{"coverage_percent":80.0}` {
		t.Errorf("clo alignment = %s, want it passed through untouched", detail.CLOAlignment)
	}

	s, err := p.GetSuggestion(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSuggestion() error = %v", err)
	}
	if s.Priority != PriorityHigh || len(s.Actions) != 1 || s.Actions[0].EvidenceURL != nil {
		t.Errorf("suggestion = %+v", s)
	}

	u, err := p.UpdateUser(ctx, "u-2", UpdateUserRequest{})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if u.Username != "bob" {
		t.Errorf("username = %q, want bob", u.Username)
	}

	score, err := p.CourseQualityScore(ctx, "c1")
	if err != nil {
		t.Fatalf("CourseQualityScore() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(score, &decoded); err != nil || decoded["score"] != 0.82 {
		t.Errorf("quality score = %s", score)
	}
}

func TestPortalUploads(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		call      func(p *Portal) error
		path      string
		wantParts []recordedPart
	}{
		{
			name: "bulk marks upload",
			call: func(p *Portal) error {
				_, err := p.BulkUploadMarks(ctx, "a1", File{Name: "marks.csv", Content: strings.NewReader("reg_no,marks")})
				return err
			},
			path:      "/assessments/a1/submissions/bulk-upload",
			wantParts: []recordedPart{{Field: "file", Filename: "marks.csv", Value: "reg_no,marks"}},
		},
		{
			name: "solution file with registration number",
			call: func(p *Portal) error {
				_, err := p.UploadSolutionFile(ctx, "a1", " 2021-CS-17 ", File{Name: "answers.pdf", Content: strings.NewReader("%PDF")})
				return err
			},
			path: "/assessments/a1/submissions/file",
			wantParts: []recordedPart{
				{Field: "reg_no", Value: "2021-CS-17"},
				{Field: "file", Filename: "answers.pdf", Value: "%PDF"},
			},
		},
		{
			name: "submissions zip",
			call: func(p *Portal) error {
				_, err := p.UploadSubmissionsZip(ctx, "a1", File{Name: "batch.zip", Content: strings.NewReader("PK")})
				return err
			},
			path:      "/assessments/a1/submissions/upload-zip",
			wantParts: []recordedPart{{Field: "file", Filename: "batch.zip", Value: "PK"}},
		},
		{
			name: "course file into a category",
			call: func(p *Portal) error {
				_, err := p.UploadCourseFiles(ctx, "123", "quizzes", File{Name: "quiz1.pdf", Content: strings.NewReader("q1")})
				return err
			},
			path:      "/upload/123/quizzes",
			wantParts: []recordedPart{{Field: "file", Filename: "quiz1.pdf", Value: "q1"}},
		},
		{
			name: "course folder bulk upload",
			call: func(p *Portal) error {
				_, err := p.UploadCourseFiles(ctx, "123", "",
					File{Name: "outline.docx", Content: strings.NewReader("a")},
					File{Name: "week1.pptx", Content: strings.NewReader("b")})
				return err
			},
			path: "/upload/123",
			wantParts: []recordedPart{
				{Field: "files", Filename: "outline.docx", Value: "a"},
				{Field: "files", Filename: "week1.pptx", Value: "b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, b := setupPortal(t, nil)
			if err := tt.call(p); err != nil {
				t.Fatalf("upload error = %v", err)
			}
			got := b.last(t)
			if got.Method != http.MethodPost || got.Path != tt.path {
				t.Errorf("request = %s %s, want POST %s", got.Method, got.Path, tt.path)
			}
			if diff := cmp.Diff(tt.wantParts, got.Parts); diff != "" {
				t.Errorf("parts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPortalRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	p, b := setupPortal(t, nil)

	tests := []struct {
		name      string
		call      func() error
		wantField string
	}{
		{"blank course id", func() error { _, err := p.ListCourseAssessments(ctx, " "); return err }, "course_id"},
		{"blank assessment id", func() error { _, err := p.GetGradingAudit(ctx, ""); return err }, "assessment_id"},
		{"blank reminder id", func() error { return p.AckReminder(ctx, "") }, "reminder_id"},
		{"missing upload", func() error { _, err := p.BulkUploadMarks(ctx, "a1", File{}); return err }, "file"},
		{"blank registration number", func() error {
			_, err := p.UploadSolutionFile(ctx, "a1", "", File{Name: "a.pdf", Content: strings.NewReader("x")})
			return err
		}, "reg_no"},
		{"no course files", func() error { _, err := p.UploadCourseFiles(ctx, "c1", ""); return err }, "files"},
		{"unknown role", func() error { _, err := p.CreateUser(ctx, CreateUserRequest{Role: "admin"}); return err }, "role"},
		{"negative marks", func() error {
			_, err := p.CreateAssessment(ctx, "c1", AssessmentRequest{Type: "quiz", Title: "Q", MaxMarks: -1, Date: NewDate(2026, 1, 1)})
			return err
		}, "max_marks"},
		{"missing date", func() error {
			_, err := p.UpdateAssessment(ctx, "a1", AssessmentRequest{Type: "quiz", Title: "Q"})
			return err
		}, "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var apiErr *apiclient.Error
			if !errors.As(err, &apiErr) || apiErr.Kind != apiclient.KindValidation {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if len(apiErr.FieldErrors) == 0 || apiErr.FieldErrors[0].Field != tt.wantField {
				t.Errorf("field errors = %+v, want first field %q", apiErr.FieldErrors, tt.wantField)
			}
		})
	}

	if n := b.count(); n != 0 {
		t.Errorf("backend received %d requests, want 0", n)
	}
}

func TestPortalPassesBackendErrors(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/courses/{courseID}/assessments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","weightage"],"msg":"Input should be a valid integer"}]}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	api, err := apiclient.New(&config.Config{APIBaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	p := New(api)

	_, err = p.CreateAssessment(context.Background(), "c1", AssessmentRequest{Type: "quiz", Title: "Q", Date: NewDate(2026, 1, 1)})
	if !apiclient.IsValidationError(err) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	var apiErr *apiclient.Error
	_ = errors.As(err, &apiErr)
	want := []apiclient.FieldError{{Field: "weightage", Message: "Input should be a valid integer"}}
	if diff := cmp.Diff(want, apiErr.FieldErrors); diff != "" {
		t.Errorf("field errors mismatch (-want +got):\n%s", diff)
	}
}

func TestDateJSON(t *testing.T) {
	tests := []struct {
		name string
		date Date
		want string
	}{
		{"calendar date", NewDate(2026, time.March, 1), `"2026-03-01"`},
		{"zero", Date{}, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.date)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}
			var back Date
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !back.Equal(tt.date.Time) {
				t.Errorf("round trip = %v, want %v", back, tt.date)
			}
		})
	}
}
