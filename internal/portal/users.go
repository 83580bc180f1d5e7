package portal

import (
	"context"
	"net/url"
	"strings"

	"github.com/airqa/qaportal/internal/apiclient"
)

// Roles an administrator can create accounts for
const (
	RoleInstructor = "instructor"
	RoleCourseLead = "course_lead"
)

type CreateUserRequest struct {
	FullName   string  `json:"full_name"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	Department *string `json:"department"`
	Role       string  `json:"role" enums:"instructor,course_lead"`
	Password   string  `json:"password"`
}

// UpdateUserRequest changes only the fields that are set, an empty password keeps the old one
type UpdateUserRequest struct {
	FullName   *string `json:"full_name,omitempty"`
	Username   string  `json:"username,omitempty"`
	Email      string  `json:"email,omitempty"`
	Department *string `json:"department,omitempty"`
	Password   string  `json:"password,omitempty"`
}

type updateUserResponse struct {
	OK   bool                  `json:"ok"`
	User apiclient.UserProfile `json:"user"`
}

// ListUsersByRole returns the accounts with the given role, all accounts when role is empty
func (p *Portal) ListUsersByRole(ctx context.Context, role string) ([]apiclient.UserProfile, error) {
	var q url.Values
	if role != "" {
		q = url.Values{"role": {role}}
	}
	var users []apiclient.UserProfile
	if err := p.api.Get(ctx, "/admin/users", &users, withQuery(q)...); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser creates an instructor or course lead account
func (p *Portal) CreateUser(ctx context.Context, req CreateUserRequest) (*apiclient.UserProfile, error) {
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if req.Role != RoleInstructor && req.Role != RoleCourseLead {
		return nil, apiclient.NewValidationError(apiclient.FieldError{Field: "role", Message: "role must be instructor or course_lead"})
	}
	if req.Department != nil && *req.Department == "" {
		req.Department = nil
	}

	var user apiclient.UserProfile
	if err := p.api.Post(ctx, "/admin/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser edits an instructor or course lead account and returns the updated user
func (p *Portal) UpdateUser(ctx context.Context, userID string, req UpdateUserRequest) (*apiclient.UserProfile, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	var res updateUserResponse
	if err := p.api.Put(ctx, pathf("/admin/users/%s", userID), req, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}
