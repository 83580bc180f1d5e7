package mockapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/airqa/qaportal/internal/apiclient"
	"github.com/airqa/qaportal/internal/portal"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.store.UsersByRole(strings.TrimSpace(r.URL.Query().Get("role"))))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req portal.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var check fieldChecker
	check.required("full_name", strings.TrimSpace(req.FullName))
	check.required("username", strings.TrimSpace(req.Username))
	check.required("email", strings.TrimSpace(req.Email))
	check.required("password", req.Password)
	if check.respond(w, r) {
		return
	}

	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role != portal.RoleInstructor && role != portal.RoleCourseLead {
		RespondWithError(w, r, http.StatusBadRequest, "Role must be instructor or course_lead")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		RespondWithError(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	profile := apiclient.UserProfile{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     role,
	}
	if req.Department != nil {
		profile.Department = *req.Department
	}

	user, err := s.store.AddUser(profile, hash)
	if errors.Is(err, errDuplicate) {
		RespondWithError(w, r, http.StatusBadRequest, "Email/username already registered")
		return
	}
	if err != nil {
		RespondWithError(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	RespondWithJSON(w, http.StatusCreated, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req portal.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var hash string
	if req.Password != "" {
		var err error
		if hash, err = HashPassword(req.Password); err != nil {
			RespondWithError(w, r, http.StatusInternalServerError, "Internal Server Error")
			return
		}
	}

	user, err := s.store.UpdateUser(chi.URLParam(r, "userID"), req, hash)
	switch {
	case errors.Is(err, errNotFound):
		RespondWithError(w, r, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, errDuplicate):
		RespondWithError(w, r, http.StatusBadRequest, "Email/username already registered")
		return
	case err != nil:
		RespondWithError(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	RespondWithJSON(w, http.StatusOK, struct {
		OK   bool                  `json:"ok"`
		User apiclient.UserProfile `json:"user"`
	}{OK: true, User: user})
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req portal.CreateCourseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var check fieldChecker
	check.required("course_code", strings.TrimSpace(req.CourseCode))
	check.required("course_name", strings.TrimSpace(req.CourseName))
	if check.respond(w, r) {
		return
	}

	RespondWithJSON(w, http.StatusCreated, s.store.AddCourse(req))
}

func (s *Server) handleAssignStaff(w http.ResponseWriter, r *http.Request) {
	var req portal.AssignStaffRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var check fieldChecker
	check.required("user_id", req.UserID)
	if check.respond(w, r) {
		return
	}

	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role != portal.StaffInstructor && role != portal.StaffCourseLead {
		RespondWithError(w, r, http.StatusBadRequest, "Role must be INSTRUCTOR or COURSE_LEAD")
		return
	}

	err := s.store.AssignStaff(chi.URLParam(r, "courseID"), req.UserID, role)
	switch {
	case errors.Is(err, errNotFound):
		RespondWithError(w, r, http.StatusNotFound, "Course or user not found")
		return
	case errors.Is(err, errCourseLeadTaken):
		RespondWithError(w, r, http.StatusBadRequest, "Course already has a course lead")
		return
	case err != nil:
		RespondWithError(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	RespondWithJSON(w, http.StatusOK, portal.Ack{OK: true})
}

func (s *Server) handleCourseStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := s.store.Staff(chi.URLParam(r, "courseID"))
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, staff)
}

func (s *Server) handleUpdateCLOs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CLOs []portal.CLO `json:"clos"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var check fieldChecker
	for i, c := range req.CLOs {
		if strings.TrimSpace(c.Code) == "" {
			check.issues = append(check.issues, ValidationIssue{
				Loc:  []any{"body", "clos", i, "code"},
				Msg:  "String should have at least 1 character",
				Type: "string_too_short",
			})
		}
	}
	if check.respond(w, r) {
		return
	}

	course, err := s.store.SetCourseCLOs(chi.URLParam(r, "courseID"), req.CLOs)
	if err != nil {
		RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, course)
}
