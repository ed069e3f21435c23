package httputil

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/waypoint-tourism/directory/internal/logging"
)

// MaxJSONBody bounds JSON request bodies.
const MaxJSONBody = 1 << 20

// DecodeJSON decodes the request body into v and writes a 400 on failure.
// It reports whether the handler should continue.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := DecodeJSONBody(r, MaxJSONBody, v); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		WriteErrorResponse(w, r, status, "BAD_REQUEST", "invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

// RequireUserID returns the authenticated user id or writes a 401.
func RequireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := logging.GetUserID(r.Context())
	if userID == "" {
		Unauthorized(w, "")
		return "", false
	}
	return userID, true
}

// QueryInt parses a non-negative integer query parameter, returning def when
// it is absent and clamping it to max when max > 0.
func QueryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}
