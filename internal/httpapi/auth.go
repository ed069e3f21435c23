package httpapi

import (
	"net/http"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/httputil"
	"github.com/waypoint-tourism/directory/internal/session"
)

type credentialsInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type refreshInput struct {
	RefreshToken string `json:"refresh_token"`
}

type resetInput struct {
	Email string `json:"email"`
}

// sessionResponse is returned by every endpoint that yields a session.
type sessionResponse struct {
	User                 *domain.Identity `json:"user"`
	Session              *session.Tokens  `json:"session,omitempty"`
	Profile              *domain.Profile  `json:"profile,omitempty"`
	ProfileError         string           `json:"profile_error,omitempty"`
	ConfirmationRequired bool             `json:"confirmation_required,omitempty"`
}

func (rs *requestSession) response() sessionResponse {
	resp := sessionResponse{User: rs.store.Identity(), Session: rs.store.Tokens()}
	p, err := rs.tracker.Profile()
	resp.Profile = p
	if err != nil {
		resp.ProfileError = err.Error()
	}
	return resp
}

// =============================================================================
// Auth handlers
// =============================================================================

// handleSignUp registers an account. Without email confirmation the new
// session is returned together with the bootstrapped profile.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var input credentialsInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	rs := s.newSession()
	res, err := rs.account.SignUp(r.Context(), input.Email, input.Password, input.FullName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := rs.response()
	if res.ConfirmationRequired {
		resp = sessionResponse{User: res.Identity, ConfirmationRequired: true}
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var input credentialsInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	rs := s.newSession()
	if err := rs.account.SignIn(r.Context(), input.Email, input.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rs.response())
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}

	rs := s.sessionFromRequest(r)
	if err := rs.account.SignOut(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh exchanges a refresh token. It needs no bearer token since
// the access token may already have expired.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var input refreshInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.RefreshToken == "" {
		httputil.BadRequest(w, "refresh_token is required")
		return
	}

	rs := s.newSession()
	rs.store.Seed(nil, &session.Tokens{RefreshToken: input.RefreshToken})
	if err := rs.account.Refresh(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse{User: rs.store.Identity(), Session: rs.store.Tokens()})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var input resetInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	if err := s.newSession().account.ResetPassword(r.Context(), input.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// =============================================================================
// Profile handlers
// =============================================================================

// handleGetMe returns the caller's profile, creating it on first sight.
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}

	p, err := s.currentProfile(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// handleUpdateMe applies a partial update. Role and status are not part of
// the accepted body, so they are rejected as unknown fields.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}

	var update domain.ProfileUpdate
	if !httputil.DecodeJSON(w, r, &update) {
		return
	}

	p, err := s.sessionFromRequest(r).account.UpdateProfile(r.Context(), update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 20, 100)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if s.feed == nil {
		httputil.WriteJSON(w, http.StatusOK, []any{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.feed.Recent(userID, limit))
}
