package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind int

const (
	KindNetwork    Kind = iota // no response received
	KindAuth                   // credentials missing, invalid or expired (401)
	KindValidation             // payload rejected (400, 422) or invalid local input
	KindServer                 // any other non-2xx status
	KindInternal               // the request could not be built or the response could not be decoded
)

var kindNames = []string{"NetworkError", "AuthError", "ValidationError", "ServerError", "InternalError"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// FieldError is one entry of a structured validation response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the single shape every failed call is converted into before it reaches a caller.
//
// StatusCode 0 = no response was received, >0 = HTTP response received.
// Message is always a displayable string, LogMessage carries the technical detail.
type Error struct {
	Kind        Kind         `json:"kind"`
	StatusCode  int          `json:"status_code"`
	Message     string       `json:"message"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
	LogMessage  string       `json:"log_message"`
	Cause       error        `json:"-"`

	// serverMessage is true when Message came from the backend payload rather than a fallback
	serverMessage bool
}

func (e *Error) Error() string {
	return e.LogMessage
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// UserError returns the user-friendly message
func (e *Error) UserError() string {
	return e.Message
}

// ErrSessionSuperseded is returned by Login and Profile when a logout or forced
// invalidation happened while the call was in flight. The result was discarded.
var ErrSessionSuperseded = errors.New("session changed while the request was in flight")

const (
	msgNetwork            = "Unable to connect. Please check your internet connection and try again."
	msgInternal           = "An error occurred. Please try again later."
	msgGeneric            = "An error occurred. Please try again."
	msgSessionExpired     = "Your session has expired. Please log in again."
	msgNotLoggedIn        = "You are not logged in."
	msgForbidden          = "You don't have permission to access this resource."
	msgInvalidRequest     = "Invalid request. Please check your input and try again."
	msgNotFound           = "The requested resource was not found."
	msgConflict           = "The request conflicts with the current state of the resource."
	msgTooLarge           = "The upload is too large."
	msgTooManyRequests    = "Too many requests. Please try again in a few moments."
	msgUnavailable        = "The service is temporarily unavailable. Please try again later."
	msgInvalidCredentials = "Invalid username/email or password"
	msgLoginFailed        = "Login failed"
	msgNoToken            = "No token returned by server"
)

// newNetworkError creates an Error for calls that never received a response
func newNetworkError(err error) *Error {
	return &Error{
		Kind:       KindNetwork,
		StatusCode: 0,
		Message:    msgNetwork,
		LogMessage: fmt.Sprintf("network error: %v", err),
		Cause:      err,
	}
}

// newInternalError creates an Error for local failures, supply the error and an explanation of what was being done when the error occurred
func newInternalError(err error, while string) *Error {
	return &Error{
		Kind:       KindInternal,
		StatusCode: 0,
		Message:    msgInternal,
		LogMessage: fmt.Sprintf("internal error: %v while %v", err, while),
		Cause:      err,
	}
}

// newInputError reports invalid arguments detected before any request was sent
func newInputError(fieldErrors []FieldError) *Error {
	msgs := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		msgs = append(msgs, fe.Message)
	}
	return &Error{
		Kind:        KindValidation,
		StatusCode:  0,
		Message:     strings.Join(msgs, ", "),
		FieldErrors: fieldErrors,
		LogMessage:  fmt.Sprintf("invalid input: %s", strings.Join(msgs, ", ")),
	}
}

// NewValidationError lets callers reject input locally with the same error shape the backend's
// validation failures produce
func NewValidationError(fieldErrors ...FieldError) *Error {
	return newInputError(fieldErrors)
}

// errorPayload covers the error bodies the backend is known to send:
// FastAPI style {"detail": "..."} or {"detail": [{"loc": [...], "msg": "..."}]},
// and {"error_code": "...", "message": "..."}.
type errorPayload struct {
	Detail    json.RawMessage `json:"detail"`
	Message   json.RawMessage `json:"message"`
	ErrorCode string          `json:"error_code"`
}

type detailEntry struct {
	Loc     []any  `json:"loc"`
	Msg     string `json:"msg"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// newAPIError creates an Error from a non-2xx response status and its (possibly empty or non-JSON) body
func newAPIError(statusCode int, body []byte) *Error {
	e := &Error{
		Kind:       kindForStatus(statusCode),
		StatusCode: statusCode,
	}

	message, fieldErrors, errorCode := parseErrorBody(body)

	if len(fieldErrors) == 0 && message != "" && e.Kind == KindValidation {
		fieldErrors = []FieldError{{Field: "", Message: message}}
	}
	e.FieldErrors = fieldErrors

	if message != "" {
		e.Message = message
		e.serverMessage = true
	} else {
		e.Message = fallbackMessage(statusCode)
	}

	logMsg := fmt.Sprintf("api status %d", statusCode)
	if errorCode != "" {
		logMsg += fmt.Sprintf(" [%s]", errorCode)
	}
	if message != "" {
		logMsg += fmt.Sprintf(" - %s", message)
	}
	e.LogMessage = logMsg

	return e
}

func kindForStatus(statusCode int) Kind {
	switch statusCode {
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindServer
	}
}

func fallbackMessage(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return msgSessionExpired
	case http.StatusForbidden:
		return msgForbidden
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return msgInvalidRequest
	case http.StatusNotFound:
		return msgNotFound
	case http.StatusConflict:
		return msgConflict
	case http.StatusRequestEntityTooLarge:
		return msgTooLarge
	case http.StatusTooManyRequests:
		return msgTooManyRequests
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return msgUnavailable
	default:
		return msgGeneric
	}
}

// parseErrorBody extracts a message and field errors from an error response body.
// Anything it cannot understand is ignored, the caller falls back to a status based message.
func parseErrorBody(body []byte) (string, []FieldError, string) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", nil, ""
	}

	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil, ""
	}

	if fieldErrors := parseDetailList(payload.Detail); len(fieldErrors) > 0 {
		msgs := make([]string, 0, len(fieldErrors))
		for _, fe := range fieldErrors {
			if fe.Message != "" {
				msgs = append(msgs, fe.Message)
			}
		}
		return strings.Join(msgs, ", "), fieldErrors, payload.ErrorCode
	}

	if s := rawString(payload.Detail); s != "" {
		return s, nil, payload.ErrorCode
	}

	return rawString(payload.Message), nil, payload.ErrorCode
}

func parseDetailList(raw json.RawMessage) []FieldError {
	if len(raw) == 0 {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		// a single object is treated as a list of one
		var entry detailEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil
		}
		if fe, ok := entry.fieldError(); ok {
			return []FieldError{fe}
		}
		return nil
	}

	var fieldErrors []FieldError
	for _, item := range items {
		if s := rawString(item); s != "" {
			fieldErrors = append(fieldErrors, FieldError{Message: s})
			continue
		}
		var entry detailEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		if fe, ok := entry.fieldError(); ok {
			fieldErrors = append(fieldErrors, fe)
		}
	}
	return fieldErrors
}

func (d detailEntry) fieldError() (FieldError, bool) {
	message := strings.TrimSpace(d.Msg)
	if message == "" {
		message = strings.TrimSpace(d.Message)
	}
	field := d.Field
	if field == "" {
		field = locToField(d.Loc)
	}
	if message == "" && field == "" {
		return FieldError{}, false
	}
	return FieldError{Field: field, Message: message}, true
}

// locToField turns a FastAPI location such as ["body", "course", "title"] into "course.title"
func locToField(loc []any) string {
	if len(loc) == 0 {
		return ""
	}
	if first, ok := loc[0].(string); ok {
		switch first {
		case "body", "query", "path", "header", "cookie":
			loc = loc[1:]
		}
	}
	parts := make([]string, 0, len(loc))
	for _, p := range loc {
		switch v := p.(type) {
		case string:
			parts = append(parts, v)
		case float64:
			parts = append(parts, fmt.Sprintf("%d", int(v)))
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, ".")
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsAuthError reports whether err is a credential rejection.
func IsAuthError(err error) bool {
	return IsKind(err, KindAuth)
}

// IsNetworkError reports whether err means no response was received.
func IsNetworkError(err error) bool {
	return IsKind(err, KindNetwork)
}

// IsValidationError reports whether err is a rejected payload.
func IsValidationError(err error) bool {
	return IsKind(err, KindValidation)
}
