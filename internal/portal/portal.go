// Package portal holds the typed calls made by the QA portal's pages: courses, assessments,
// submissions, grading audits, suggestions, reminders and user administration.
//
// Every function here is a single call on the apiclient verbs, so authentication, error
// normalization and session invalidation behave the same for all of them.
// Payloads the backend computes (audits, statistics, quality scores) are returned as
// json.RawMessage and are not modelled here.
package portal

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/airqa/qaportal/internal/apiclient"
)

// API is the subset of *apiclient.Client used by the portal calls
type API interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
	Put(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
	PostForm(ctx context.Context, path string, form *apiclient.Form, out any, opts ...apiclient.RequestOption) error
}

// Portal issues the portal's backend calls through one shared API client
type Portal struct {
	api API
}

func New(api API) *Portal {
	return &Portal{api: api}
}

// File is an upload taken from disk or memory
type File struct {
	Name    string
	Content io.Reader
}

// Ack is the {"ok": true} acknowledgement returned by several admin endpoints
type Ack struct {
	OK bool `json:"ok"`
}

// pathf builds a request path, escaping each identifier as a single path segment
func pathf(format string, ids ...string) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id)
	}
	return fmt.Sprintf(format, args...)
}

// requireID returns a local validation error when an identifier is blank, so that no
// request is sent to a malformed path
func requireID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apiclient.NewValidationError(apiclient.FieldError{Field: field, Message: field + " is required"})
	}
	return nil
}

func requireFile(field string, f File) error {
	if f.Content == nil || strings.TrimSpace(f.Name) == "" {
		return apiclient.NewValidationError(apiclient.FieldError{Field: field, Message: "a file is required"})
	}
	return nil
}

func withQuery(q url.Values) []apiclient.RequestOption {
	if len(q) == 0 {
		return nil
	}
	return []apiclient.RequestOption{apiclient.WithQuery(q)}
}
