package mockapi

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/airqa/qaportal/internal/apiclient"
	"github.com/airqa/qaportal/internal/portal"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	errNotFound  = errors.New("not found")
	errDuplicate = errors.New("already exists")
)

type userRecord struct {
	profile      apiclient.UserProfile
	passwordHash string
}

type gradingAudit struct {
	AssessmentID string `json:"assessment_id"`
	Submissions  int    `json:"submissions"`
	Graded       int    `json:"graded"`
	Status       string `json:"status"`
	RunAt        string `json:"run_at"`
}

type uploadRecord struct {
	CourseID string `json:"course_id"`
	Category string `json:"category,omitempty"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
}

// Store is the mock backend's in-memory state. All methods are safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	users       map[string]*userRecord
	sessions    map[string]string // token id -> user id
	courses     []*portal.Course
	staff       map[string][]portal.CourseStaff
	assessments []*portal.Assessment
	submissions map[string][]portal.Submission
	audits      map[string]gradingAudit
	suggestions []*portal.SuggestionDetail
	reminders   []*portal.Reminder
	uploads     []uploadRecord
}

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:       clock,
		users:       make(map[string]*userRecord),
		sessions:    make(map[string]string),
		staff:       make(map[string][]portal.CourseStaff),
		submissions: make(map[string][]portal.Submission),
		audits:      make(map[string]gradingAudit),
	}
}

// users

// AddUser stores a new user. Username and email must be unique, emails are compared in lower case.
func (s *Store) AddUser(profile apiclient.UserProfile, passwordHash string) (apiclient.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	profile.Username = strings.TrimSpace(profile.Username)
	for _, u := range s.users {
		if u.profile.Username == profile.Username || (profile.Email != "" && u.profile.Email == profile.Email) {
			return apiclient.UserProfile{}, errDuplicate
		}
	}
	profile.ID = uuid.NewString()
	s.users[profile.ID] = &userRecord{profile: profile, passwordHash: passwordHash}
	return profile, nil
}

func (s *Store) User(id string) (apiclient.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return apiclient.UserProfile{}, false
	}
	return u.profile, true
}

// userByLogin finds a user by username, or by email when identifier contains an @
func (s *Store) userByLogin(identifier string) (userRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email := strings.ToLower(identifier)
	for _, u := range s.users {
		if u.profile.Username == identifier || (u.profile.Email != "" && u.profile.Email == email) {
			return *u, true
		}
	}
	return userRecord{}, false
}

// UsersByRole lists users ordered by username, role is matched case-insensitively and empty matches all
func (s *Store) UsersByRole(role string) []apiclient.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := []apiclient.UserProfile{}
	for _, u := range s.users {
		if role == "" || strings.EqualFold(u.profile.Role, role) {
			users = append(users, u.profile)
		}
	}
	slices.SortFunc(users, func(a, b apiclient.UserProfile) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users
}

func (s *Store) UpdateUser(id string, req portal.UpdateUserRequest, passwordHash string) (apiclient.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apiclient.UserProfile{}, errNotFound
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	for otherID, other := range s.users {
		if otherID == id {
			continue
		}
		if (req.Username != "" && other.profile.Username == req.Username) || (email != "" && other.profile.Email == email) {
			return apiclient.UserProfile{}, errDuplicate
		}
	}
	if req.FullName != nil {
		u.profile.FullName = *req.FullName
	}
	if req.Username != "" {
		u.profile.Username = req.Username
	}
	if email != "" {
		u.profile.Email = email
	}
	if req.Department != nil {
		u.profile.Department = *req.Department
	}
	if passwordHash != "" {
		u.passwordHash = passwordHash
	}
	return u.profile, nil
}

// sessions

func (s *Store) StartSession(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokenID := uuid.NewString()
	s.sessions[tokenID] = userID
	return tokenID
}

func (s *Store) SessionActive(tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[tokenID]
	return ok
}

// RevokeSessions ends every session of the user and returns how many were ended
func (s *Store) RevokeSessions(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tokenID, owner := range s.sessions {
		if owner == userID {
			delete(s.sessions, tokenID)
			n++
		}
	}
	return n
}

// courses

func (s *Store) AddCourse(req portal.CreateCourseRequest) portal.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &portal.Course{
		ID:         uuid.NewString(),
		CourseCode: req.CourseCode,
		CourseName: req.CourseName,
		Semester:   req.Semester,
		Year:       req.Year,
		Instructor: req.Instructor,
		Department: req.Department,
		CLOs:       req.CLOs,
	}
	if c.CLOs == "" {
		c.CLOs = "[]"
	}
	s.courses = append(s.courses, c)
	return *c
}

func (s *Store) Courses() []portal.Course {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]portal.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, *c)
	}
	return out
}

func (s *Store) course(id string) (*portal.Course, bool) {
	for _, c := range s.courses {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (s *Store) Course(id string) (portal.Course, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.course(id)
	if !ok {
		return portal.Course{}, false
	}
	return *c, true
}

func (s *Store) SetCourseCLOs(courseID string, clos []portal.CLO) (portal.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.course(courseID)
	if !ok {
		return portal.Course{}, errNotFound
	}
	if clos == nil {
		clos = []portal.CLO{}
	}
	dat, err := json.Marshal(clos)
	if err != nil {
		return portal.Course{}, err
	}
	c.CLOs = string(dat)
	return *c, nil
}

// errCourseLeadTaken is returned when a second course lead is assigned to a course
var errCourseLeadTaken = errors.New("course already has a course lead")

// AssignStaff adds or re-roles a staff member, a course has at most one course lead
func (s *Store) AssignStaff(courseID, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.course(courseID); !ok {
		return errNotFound
	}
	u, ok := s.users[userID]
	if !ok {
		return errNotFound
	}

	staff := s.staff[courseID]
	if role == portal.StaffCourseLead {
		for _, st := range staff {
			if st.Role == portal.StaffCourseLead && st.User.ID != userID {
				return errCourseLeadTaken
			}
		}
	}
	for i, st := range staff {
		if st.User.ID == userID {
			staff[i].Role = role
			return nil
		}
	}
	s.staff[courseID] = append(staff, portal.CourseStaff{
		ID:   uuid.NewString(),
		Role: role,
		User: portal.StaffUser{
			ID:         u.profile.ID,
			FullName:   u.profile.FullName,
			Username:   u.profile.Username,
			Email:      u.profile.Email,
			Role:       u.profile.Role,
			Department: u.profile.Department,
		},
		AssignedAt: s.clock.Now().UTC().Format("2006-01-02T15:04:05Z"),
	})
	return nil
}

func (s *Store) Staff(courseID string) ([]portal.CourseStaff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.course(courseID); !ok {
		return nil, errNotFound
	}
	return append([]portal.CourseStaff{}, s.staff[courseID]...), nil
}

// assessments

func (s *Store) AddAssessment(courseID, createdBy string, req portal.AssessmentRequest) (portal.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.course(courseID); !ok {
		return portal.Assessment{}, errNotFound
	}
	a := &portal.Assessment{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		Type:      req.Type,
		Title:     req.Title,
		MaxMarks:  req.MaxMarks,
		Weightage: req.Weightage,
		Date:      req.Date,
		CreatedBy: createdBy,
		CreatedAt: s.clock.Now().UTC(),
	}
	s.assessments = append(s.assessments, a)
	return *a, nil
}

func (s *Store) assessment(id string) (*portal.Assessment, bool) {
	for _, a := range s.assessments {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

func (s *Store) Assessment(id string) (portal.Assessment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessment(id)
	if !ok {
		return portal.Assessment{}, false
	}
	return *a, true
}

func (s *Store) CourseAssessments(courseID string) ([]portal.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.course(courseID); !ok {
		return nil, errNotFound
	}
	out := []portal.Assessment{}
	for _, a := range s.assessments {
		if a.CourseID == courseID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *Store) UpdateAssessment(id string, req portal.AssessmentRequest) (portal.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessment(id)
	if !ok {
		return portal.Assessment{}, errNotFound
	}
	a.Type = req.Type
	a.Title = req.Title
	a.MaxMarks = req.MaxMarks
	a.Weightage = req.Weightage
	a.Date = req.Date
	return *a, nil
}

// submissions and grading audits

// AddSubmission records an uploaded solution for a student registration number
func (s *Store) AddSubmission(assessmentID, regNo string) (portal.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assessment(assessmentID); !ok {
		return portal.Submission{}, errNotFound
	}
	sub := portal.Submission{
		ID:           uuid.NewString(),
		AssessmentID: assessmentID,
		StudentID:    regNo,
		Status:       "submitted",
		SubmittedAt:  s.clock.Now().UTC(),
	}
	s.submissions[assessmentID] = append(s.submissions[assessmentID], sub)
	return sub, nil
}

func (s *Store) Submissions(assessmentID string) ([]portal.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.assessment(assessmentID); !ok {
		return nil, errNotFound
	}
	return append([]portal.Submission{}, s.submissions[assessmentID]...), nil
}

// RunGradingAudit marks every submission without marks as graded and stores the audit summary
func (s *Store) RunGradingAudit(assessmentID string) (gradingAudit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessment(assessmentID)
	if !ok {
		return gradingAudit{}, errNotFound
	}
	subs := s.submissions[assessmentID]
	graded := 0
	for i := range subs {
		if subs[i].AIMarks == nil {
			marks := float64(a.MaxMarks)
			subs[i].AIMarks = &marks
			subs[i].Status = "graded"
			graded++
		}
	}
	audit := gradingAudit{
		AssessmentID: assessmentID,
		Submissions:  len(subs),
		Graded:       graded,
		Status:       "completed",
		RunAt:        s.clock.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}
	s.audits[assessmentID] = audit
	return audit, nil
}

func (s *Store) GradingAudit(assessmentID string) (gradingAudit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	audit, ok := s.audits[assessmentID]
	return audit, ok
}

// uploads

func (s *Store) AddUpload(rec uploadRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, rec)
}

func (s *Store) Uploads(courseID string) []uploadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uploadRecord
	for _, u := range s.uploads {
		if u.CourseID == courseID {
			out = append(out, u)
		}
	}
	return out
}

// suggestions

func (s *Store) AddSuggestion(courseID string, req portal.CreateSuggestionRequest) (portal.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.course(courseID); !ok {
		return portal.Suggestion{}, errNotFound
	}
	return s.addSuggestion(courseID, req), nil
}

func (s *Store) addSuggestion(courseID string, req portal.CreateSuggestionRequest) portal.Suggestion {
	sg := &portal.SuggestionDetail{
		Suggestion: portal.Suggestion{
			ID:        uuid.NewString(),
			CourseID:  courseID,
			OwnerID:   req.OwnerID,
			Source:    req.Source,
			Text:      req.Text,
			Status:    portal.SuggestionNew,
			Priority:  req.Priority,
			CreatedAt: s.clock.Now().UTC(),
		},
		Actions: []portal.SuggestionAction{},
	}
	s.suggestions = append(s.suggestions, sg)
	return sg.Suggestion
}

func (s *Store) suggestion(id string) (*portal.SuggestionDetail, bool) {
	for _, sg := range s.suggestions {
		if sg.ID == id {
			return sg, true
		}
	}
	return nil, false
}

func (s *Store) Suggestion(id string) (portal.SuggestionDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.suggestion(id)
	if !ok {
		return portal.SuggestionDetail{}, false
	}
	out := *sg
	out.Actions = append([]portal.SuggestionAction{}, sg.Actions...)
	return out, true
}

func (s *Store) CourseSuggestions(courseID string, filter portal.SuggestionFilter) ([]portal.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.course(courseID); !ok {
		return nil, errNotFound
	}
	out := []portal.Suggestion{}
	for _, sg := range s.suggestions {
		if sg.CourseID != courseID {
			continue
		}
		if filter.Status != "" && sg.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && sg.Priority != filter.Priority {
			continue
		}
		if filter.OwnerID != "" && sg.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, sg.Suggestion)
	}
	return out, nil
}

// GenerateSuggestions creates a suggestion for each assessment of the course that has no submissions
// and for a course without learning outcomes. It returns the new suggestions.
func (s *Store) GenerateSuggestions(courseID, ownerID string) ([]portal.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.course(courseID)
	if !ok {
		return nil, errNotFound
	}
	created := []portal.Suggestion{}
	if c.CLOs == "" || c.CLOs == "[]" {
		created = append(created, s.addSuggestion(courseID, portal.CreateSuggestionRequest{
			OwnerID:  ownerID,
			Text:     "Define course learning outcomes for " + c.CourseCode,
			Priority: portal.PriorityHigh,
			Source:   "auto",
		}))
	}
	for _, a := range s.assessments {
		if a.CourseID == courseID && len(s.submissions[a.ID]) == 0 {
			created = append(created, s.addSuggestion(courseID, portal.CreateSuggestionRequest{
				OwnerID:  ownerID,
				Text:     "Upload submissions for " + a.Title,
				Priority: portal.PriorityMedium,
				Source:   "auto",
			}))
		}
	}
	return created, nil
}

func (s *Store) UpdateSuggestion(id string, req portal.UpdateSuggestionRequest) (portal.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.suggestion(id)
	if !ok {
		return portal.Suggestion{}, errNotFound
	}
	if req.Status != nil {
		sg.Status = *req.Status
	}
	if req.Priority != nil {
		sg.Priority = *req.Priority
	}
	if req.Text != nil {
		sg.Text = *req.Text
	}
	return sg.Suggestion, nil
}

func (s *Store) AddSuggestionAction(id, userID string, req portal.AddActionRequest) (portal.SuggestionAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.suggestion(id)
	if !ok {
		return portal.SuggestionAction{}, errNotFound
	}
	action := portal.SuggestionAction{
		ID:          uuid.NewString(),
		UserID:      userID,
		ActionType:  req.ActionType,
		Notes:       req.Notes,
		EvidenceURL: req.EvidenceURL,
		CreatedAt:   s.clock.Now().UTC(),
	}
	sg.Actions = append(sg.Actions, action)
	return action, nil
}

type suggestionStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
}

// SuggestionStats counts suggestions, optionally restricted to one course
func (s *Store) SuggestionStats(courseID string) suggestionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := suggestionStats{
		ByStatus:   make(map[string]int),
		ByPriority: make(map[string]int),
	}
	for _, sg := range s.suggestions {
		if courseID != "" && sg.CourseID != courseID {
			continue
		}
		stats.Total++
		stats.ByStatus[sg.Status]++
		stats.ByPriority[sg.Priority]++
	}
	return stats
}

// reminders

func (s *Store) AddReminder(r portal.Reminder) portal.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = "sent"
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock.Now().UTC()
	}
	s.reminders = append(s.reminders, &r)
	return r
}

// Inbox returns at most limit unacknowledged reminders addressed to role
func (s *Store) Inbox(role string, limit int) []portal.Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []portal.Reminder{}
	for _, r := range s.reminders {
		if len(out) >= limit {
			break
		}
		if r.AckedAt == nil && strings.EqualFold(r.AudienceRole, role) {
			out = append(out, *r)
		}
	}
	return out
}

func (s *Store) AckReminder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reminders {
		if r.ID == id {
			if r.AckedAt == nil {
				now := s.clock.Now().UTC()
				r.AckedAt = &now
				r.Status = "acked"
			}
			return nil
		}
	}
	return errNotFound
}
