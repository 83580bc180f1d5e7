package mockapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/airqa/qaportal/internal/portal"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.store.Courses())
}

type qualityScore struct {
	CourseID       string  `json:"course_id"`
	Score          float64 `json:"score"`
	CLOCount       int     `json:"clo_count"`
	Assessments    int     `json:"assessments"`
	Implemented    int     `json:"suggestions_implemented"`
	OpenSuggestion int     `json:"suggestions_open"`
}

// handleQualityScore derives a 0-100 score from defined outcomes, assessments and resolved suggestions
func (s *Server) handleQualityScore(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	course, ok := s.store.Course(courseID)
	if !ok {
		RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return
	}
	assessments, _ := s.store.CourseAssessments(courseID)
	stats := s.store.SuggestionStats(courseID)

	var clos []portal.CLO
	_ = json.Unmarshal([]byte(course.CLOs), &clos)

	score := 0.0
	if len(clos) > 0 {
		score += 40
	}
	if len(assessments) > 0 {
		score += 30
	}
	if stats.Total == 0 {
		score += 30
	} else {
		score += 30 * float64(stats.ByStatus[portal.SuggestionImplemented]) / float64(stats.Total)
	}

	RespondWithJSON(w, http.StatusOK, qualityScore{
		CourseID:       courseID,
		Score:          score,
		CLOCount:       len(clos),
		Assessments:    len(assessments),
		Implemented:    stats.ByStatus[portal.SuggestionImplemented],
		OpenSuggestion: stats.Total - stats.ByStatus[portal.SuggestionImplemented] - stats.ByStatus[portal.SuggestionIgnored],
	})
}

type weekProgress struct {
	WeekNo      int    `json:"week_no"`
	Uploads     int    `json:"uploads"`
	Assessments int    `json:"assessments"`
	Status      string `json:"status"`
}

// handleWeeklyProgress groups assessments by ISO week, counting course uploads against the current week
func (s *Server) handleWeeklyProgress(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	assessments, err := s.store.CourseAssessments(courseID)
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return
	}

	byWeek := map[int]*weekProgress{}
	var order []int
	week := func(n int) *weekProgress {
		if wp, ok := byWeek[n]; ok {
			return wp
		}
		wp := &weekProgress{WeekNo: n, Status: "pending"}
		byWeek[n] = wp
		order = append(order, n)
		return wp
	}
	for _, a := range assessments {
		_, n := a.Date.ISOWeek()
		week(n).Assessments++
	}
	if uploads := s.store.Uploads(courseID); len(uploads) > 0 {
		_, n := s.cfg.Clock.Now().ISOWeek()
		week(n).Uploads += len(uploads)
	}

	weeks := make([]weekProgress, 0, len(order))
	for _, n := range order {
		wp := byWeek[n]
		if wp.Uploads > 0 {
			wp.Status = "complete"
		}
		weeks = append(weeks, *wp)
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"course_id": courseID,
		"weeks":     weeks,
	})
}

func validateAssessment(req portal.AssessmentRequest) []ValidationIssue {
	var check fieldChecker
	check.required("type", req.Type)
	check.oneOf("type", req.Type, portal.AssessmentQuiz, portal.AssessmentAssignment, portal.AssessmentMidterm, portal.AssessmentFinal)
	check.required("title", strings.TrimSpace(req.Title))
	check.nonNegative("max_marks", req.MaxMarks)
	check.nonNegative("weightage", req.Weightage)
	if req.Date.IsZero() {
		check.required("date", "")
	}
	return check.issues
}

func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	assessments, err := s.store.CourseAssessments(chi.URLParam(r, "courseID"))
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, assessments)
}

func (s *Server) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req portal.AssessmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := validateAssessment(req); len(issues) > 0 {
		RespondWithValidationErrors(w, r, issues)
		return
	}

	user, _ := ContextUser(r.Context())
	a, err := s.store.AddAssessment(chi.URLParam(r, "courseID"), user.ID, req)
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return
	}
	RespondWithJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.Assessment(chi.URLParam(r, "assessmentID"))
	if !ok {
		RespondWithError(w, r, http.StatusNotFound, "Assessment not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, portal.AssessmentDetail{
		Assessment:   a,
		Files:        json.RawMessage(`[]`),
		Expected:     json.RawMessage(`null`),
		CLOAlignment: json.RawMessage(`null`),
	})
}

func (s *Server) handleUpdateAssessment(w http.ResponseWriter, r *http.Request) {
	var req portal.AssessmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if issues := validateAssessment(req); len(issues) > 0 {
		RespondWithValidationErrors(w, r, issues)
		return
	}

	a, err := s.store.UpdateAssessment(chi.URLParam(r, "assessmentID"), req)
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Assessment not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, a)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.Submissions(chi.URLParam(r, "assessmentID"))
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Assessment not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, subs)
}

func (s *Server) handleRunGradingAudit(w http.ResponseWriter, r *http.Request) {
	audit, err := s.store.RunGradingAudit(chi.URLParam(r, "assessmentID"))
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Assessment not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, audit)
}

func (s *Server) handleGetGradingAudit(w http.ResponseWriter, r *http.Request) {
	audit, ok := s.store.GradingAudit(chi.URLParam(r, "assessmentID"))
	if !ok {
		RespondWithError(w, r, http.StatusNotFound, "No grading audit found for this assessment")
		return
	}
	RespondWithJSON(w, http.StatusOK, audit)
}

// uploads

type uploadResponse struct {
	OK    bool           `json:"ok"`
	Files []uploadRecord `json:"files"`
}

// formFiles parses the multipart body and returns the files sent under field.
// It writes the error response itself and returns false when the form is unusable.
func formFiles(w http.ResponseWriter, r *http.Request, field string) ([]*multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			RespondWithError(w, r, http.StatusRequestEntityTooLarge, "Upload too large")
			return nil, false
		}
		RespondWithError(w, r, http.StatusBadRequest, "Expected a multipart/form-data body")
		return nil, false
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		RespondWithValidationErrors(w, r, []ValidationIssue{{Loc: []any{"body", field}, Msg: "Field required", Type: "missing"}})
		return nil, false
	}
	return files, true
}

// fileSize reads the upload through to confirm it is intact
func fileSize(fh *multipart.FileHeader) (int64, error) {
	f, err := fh.Open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(io.Discard, f)
}

func (s *Server) recordUploads(w http.ResponseWriter, r *http.Request, courseID, category string, files []*multipart.FileHeader) {
	res := uploadResponse{OK: true}
	for _, fh := range files {
		n, err := fileSize(fh)
		if err != nil {
			RespondWithError(w, r, http.StatusBadRequest, "Could not read uploaded file")
			return
		}
		rec := uploadRecord{CourseID: courseID, Category: category, Filename: filepath.Base(fh.Filename), Bytes: n}
		s.store.AddUpload(rec)
		res.Files = append(res.Files, rec)
	}
	RespondWithJSON(w, http.StatusOK, res)
}

func (s *Server) handleBulkUploadMarks(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.Assessment(chi.URLParam(r, "assessmentID"))
	if !ok {
		RespondWithError(w, r, http.StatusNotFound, "Assessment not found")
		return
	}
	files, ok := formFiles(w, r, "file")
	if !ok {
		return
	}
	s.recordUploads(w, r, a.CourseID, "marks", files[:1])
}

func (s *Server) handleUploadSolution(w http.ResponseWriter, r *http.Request) {
	assessmentID := chi.URLParam(r, "assessmentID")
	if _, ok := s.store.Assessment(assessmentID); !ok {
		RespondWithError(w, r, http.StatusNotFound, "Assessment not found")
		return
	}
	files, ok := formFiles(w, r, "file")
	if !ok {
		return
	}
	regNo := strings.TrimSpace(r.FormValue("reg_no"))
	if regNo == "" {
		RespondWithValidationErrors(w, r, []ValidationIssue{{Loc: []any{"body", "reg_no"}, Msg: "Field required", Type: "missing"}})
		return
	}
	if _, err := fileSize(files[0]); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Could not read uploaded file")
		return
	}

	sub, err := s.store.AddSubmission(assessmentID, regNo)
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Assessment not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, sub)
}

func (s *Server) handleUploadZip(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.Assessment(chi.URLParam(r, "assessmentID"))
	if !ok {
		RespondWithError(w, r, http.StatusNotFound, "Assessment not found")
		return
	}
	files, ok := formFiles(w, r, "file")
	if !ok {
		return
	}
	if !strings.EqualFold(filepath.Ext(files[0].Filename), ".zip") {
		RespondWithJSON(w, http.StatusBadRequest, errorResponse{Detail: map[string]string{
			"field":   "file",
			"message": "Only .zip archives are accepted",
		}})
		return
	}
	s.recordUploads(w, r, a.CourseID, "submissions", files[:1])
}

// handleUploadCourseFiles takes several "files" parts, or a single "file" part when a category is in the path
func (s *Server) handleUploadCourseFiles(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	if _, ok := s.store.Course(courseID); !ok {
		RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return
	}
	category := chi.URLParam(r, "category")
	field := "files"
	if category != "" {
		field = "file"
	}
	files, ok := formFiles(w, r, field)
	if !ok {
		return
	}
	s.recordUploads(w, r, courseID, category, files)
}
