package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/httputil"
	"github.com/waypoint-tourism/directory/internal/moderation"
)

type actionInput struct {
	Reason string `json:"reason,omitempty"`
}

// requireAdmin loads the caller's profile. Role checks happen in the
// moderation service.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (*domain.Profile, bool) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return nil, false
	}
	actor, err := s.currentProfile(r)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return actor, true
}

func (s *Server) handleAdminActions(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	set, err := s.moderation.Actions(r.Context(), actor, moderation.Kind(vars["kind"]), vars["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, set)
}

// handleAdminPerform runs one status action. The body is optional and only
// carries a reason.
func (s *Server) handleAdminPerform(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	var input actionInput
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSONBody(r, httputil.MaxJSONBody, &input); err != nil && !errors.Is(err, io.EOF) {
			httputil.BadRequest(w, "invalid request body: "+err.Error())
			return
		}
	}

	kind := moderation.Kind(vars["kind"])
	row, err := s.moderation.Perform(r.Context(), actor, moderation.Request{
		Kind:   kind,
		ID:     vars["id"],
		Action: vars["action"],
		Reason: input.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Role and status live on the cached profile; drop it so the next
	// request sees the change.
	if kind == moderation.KindUser {
		s.profiles.Invalidate(r.Context(), vars["id"])
	}
	httputil.WriteJSON(w, http.StatusOK, row)
}

func (s *Server) handleAdminFlags(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	flags, err := s.moderation.Flags(r.Context(), actor, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if flags == nil {
		flags = []domain.Flag{}
	}
	httputil.WriteJSON(w, http.StatusOK, flags)
}
