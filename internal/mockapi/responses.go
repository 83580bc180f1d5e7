package mockapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ValidationIssue is one entry of a 422 response, in the shape FastAPI produces
type ValidationIssue struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

type errorResponse struct {
	Detail any `json:"detail"`
}

// RespondWithError writes {"detail": message} with the given status
func RespondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	ContextRequestLogger(r.Context()).Warn("error response",
		slog.Int("status", statusCode),
		slog.String("detail", message),
	)
	RespondWithJSON(w, statusCode, errorResponse{Detail: message})
}

// RespondWithValidationErrors writes a 422 listing every rejected field
func RespondWithValidationErrors(w http.ResponseWriter, r *http.Request, issues []ValidationIssue) {
	ContextRequestLogger(r.Context()).Warn("validation failed", slog.Int("issues", len(issues)))
	RespondWithJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: issues})
}

func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	dat, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Internal Server Error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(dat)
}

// decodeJSON decodes the request body into dst and writes a 422 when it is not valid JSON
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		RespondWithValidationErrors(w, r, []ValidationIssue{{
			Loc:  []any{"body"},
			Msg:  "JSON decode error",
			Type: "json_invalid",
		}})
		return false
	}
	return true
}

// fieldChecker collects missing or invalid body fields for a single 422 response
type fieldChecker struct {
	issues []ValidationIssue
}

func (c *fieldChecker) required(field, value string) {
	if value == "" {
		c.issues = append(c.issues, ValidationIssue{Loc: []any{"body", field}, Msg: "Field required", Type: "missing"})
	}
}

func (c *fieldChecker) nonNegative(field string, value int) {
	if value < 0 {
		c.issues = append(c.issues, ValidationIssue{
			Loc:  []any{"body", field},
			Msg:  "Input should be greater than or equal to 0",
			Type: "greater_than_equal",
		})
	}
}

func (c *fieldChecker) oneOf(field, value string, allowed ...string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	c.issues = append(c.issues, ValidationIssue{Loc: []any{"body", field}, Msg: "Input should be one of the allowed values", Type: "literal_error"})
}

// respond writes the 422 if any check failed and reports whether it did
func (c *fieldChecker) respond(w http.ResponseWriter, r *http.Request) bool {
	if len(c.issues) == 0 {
		return false
	}
	RespondWithValidationErrors(w, r, c.issues)
	return true
}
