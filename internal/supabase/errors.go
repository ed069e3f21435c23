package supabase

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const (
	// CodeNoRows is PostgREST's code for a single-object request that matched nothing.
	CodeNoRows = "PGRST116"
	// CodeUniqueViolation is Postgres' unique_violation SQLSTATE.
	CodeUniqueViolation = "23505"
)

// Error represents a backend API error. Message is the backend's free text.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Hint       string `json:"hint,omitempty"`
	StatusCode int    `json:"status_code"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// NewError creates a new backend error.
func NewError(code, message string, statusCode int) *Error {
	return &Error{Code: code, Message: message, StatusCode: statusCode}
}

// parseError decodes the error body of PostgREST, GoTrue or Storage.
func parseError(body []byte, statusCode int) error {
	var errResp struct {
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Details          string `json:"details"`
		Hint             string `json:"hint"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		StatusCode       string `json:"statusCode"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return &Error{Code: "unknown", Message: msg, StatusCode: statusCode}
	}

	code := errResp.ErrorCode
	if s, ok := errResp.Code.(string); ok && s != "" {
		code = s
	}

	msg := errResp.Message
	for _, alt := range []string{errResp.Msg, errResp.ErrorDescription, errResp.Error} {
		if msg == "" {
			msg = alt
		}
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	return &Error{
		Code:       code,
		Message:    msg,
		Details:    errResp.Details,
		Hint:       errResp.Hint,
		StatusCode: statusCode,
	}
}

// AsError extracts a backend error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsNoRows reports whether err is PostgREST's "no rows" for a single-object request.
func IsNoRows(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.Code == CodeNoRows || (e.Code == "" && e.StatusCode == http.StatusNotAcceptable)
}

// IsUniqueViolation reports whether err is a duplicate-key conflict.
func IsUniqueViolation(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.Code == CodeUniqueViolation || e.StatusCode == http.StatusConflict
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	e, ok := AsError(err)
	return ok && e.StatusCode == http.StatusUnauthorized
}
