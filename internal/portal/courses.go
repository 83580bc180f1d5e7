package portal

import (
	"context"
	"encoding/json"
	"strings"
)

// Staff roles accepted by the course assignment endpoint
const (
	StaffInstructor = "INSTRUCTOR"
	StaffCourseLead = "COURSE_LEAD"
)

type Course struct {
	ID         string `json:"id" example:"b3c1e0a2-5f4e-4d7a-9c61-0e2a9b8d7f10"`
	CourseCode string `json:"course_code" example:"CS101"`
	CourseName string `json:"course_name" example:"Introduction to Programming"`
	Semester   string `json:"semester" example:"Fall"`
	Year       string `json:"year" example:"2026"`
	Instructor string `json:"instructor"`
	Department string `json:"department" example:"Computer Science"`
	CLOs       string `json:"clos"` // JSON encoded list, stored as text by the backend
}

type CreateCourseRequest struct {
	CourseCode string `json:"course_code"`
	CourseName string `json:"course_name"`
	Semester   string `json:"semester"`
	Year       string `json:"year"`
	Instructor string `json:"instructor"`
	Department string `json:"department"`
	CLOs       string `json:"clos"`
}

type AssignStaffRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enums:"INSTRUCTOR,COURSE_LEAD"`
}

// CLO is a course learning outcome
type CLO struct {
	Code        string `json:"code" example:"CLO1"`
	Description string `json:"description" example:"Apply basic control structures"`
}

type CourseStaff struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	User       StaffUser `json:"user"`
	AssignedAt string    `json:"assigned_at"`
}

type StaffUser struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// ListCourses returns the courses visible to the logged in user
func (p *Portal) ListCourses(ctx context.Context) ([]Course, error) {
	var courses []Course
	if err := p.api.Get(ctx, "/courses", &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// CreateCourse creates a course (admin only). An empty CLOs list is sent as "[]".
func (p *Portal) CreateCourse(ctx context.Context, req CreateCourseRequest) (*Course, error) {
	if strings.TrimSpace(req.CLOs) == "" {
		req.CLOs = "[]"
	}
	var course Course
	if err := p.api.Post(ctx, "/admin/courses", req, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

// AssignCourseStaff assigns a user to a course as instructor or course lead.
// A course has at most one course lead, assigning a new one replaces the old.
func (p *Portal) AssignCourseStaff(ctx context.Context, courseID string, req AssignStaffRequest) error {
	if err := requireID("course_id", courseID); err != nil {
		return err
	}
	var ack Ack
	return p.api.Post(ctx, pathf("/admin/courses/%s/assign", courseID), req, &ack)
}

// CourseStaffList returns the users assigned to a course
func (p *Portal) CourseStaffList(ctx context.Context, courseID string) ([]CourseStaff, error) {
	if err := requireID("course_id", courseID); err != nil {
		return nil, err
	}
	var staff []CourseStaff
	if err := p.api.Get(ctx, pathf("/admin/courses/%s/staff", courseID), &staff); err != nil {
		return nil, err
	}
	return staff, nil
}

// UpdateCourseCLOs replaces the learning outcomes of a course.
// Entries without both a code and a description are dropped before sending.
func (p *Portal) UpdateCourseCLOs(ctx context.Context, courseID string, clos []CLO) error {
	if err := requireID("course_id", courseID); err != nil {
		return err
	}
	cleaned := make([]CLO, 0, len(clos))
	for _, c := range clos {
		c.Code = strings.TrimSpace(c.Code)
		c.Description = strings.TrimSpace(c.Description)
		if c.Code != "" && c.Description != "" {
			cleaned = append(cleaned, c)
		}
	}
	body := struct {
		CLOs []CLO `json:"clos"`
	}{CLOs: cleaned}
	return p.api.Put(ctx, pathf("/admin/courses/%s/clos", courseID), body, nil)
}

// CourseQualityScore returns the backend's quality score breakdown for a course
func (p *Portal) CourseQualityScore(ctx context.Context, courseID string) (json.RawMessage, error) {
	if err := requireID("course_id", courseID); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := p.api.Get(ctx, pathf("/courses/%s/quality-score", courseID), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// WeeklyProgress returns the week by week upload progress of a course
func (p *Portal) WeeklyProgress(ctx context.Context, courseID string) (json.RawMessage, error) {
	if err := requireID("course_id", courseID); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := p.api.Get(ctx, pathf("/courses/%s/weekly-progress", courseID), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
