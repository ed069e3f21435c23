package httpapi

import (
	stderrors "errors"
	"net/http"

	"github.com/waypoint-tourism/directory/internal/account"
	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/errors"
	"github.com/waypoint-tourism/directory/internal/httputil"
	"github.com/waypoint-tourism/directory/internal/moderation"
	"github.com/waypoint-tourism/directory/internal/onboarding"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

// toServiceError maps domain and backend errors onto API errors. Backend
// messages pass through verbatim.
func toServiceError(err error) *errors.ServiceError {
	if se := errors.GetServiceError(err); se != nil {
		return se
	}

	switch {
	case stderrors.Is(err, account.ErrNotSignedIn):
		return errors.Unauthorized(err.Error())
	case stderrors.Is(err, account.ErrMissingCredentials), stderrors.Is(err, account.ErrMissingEmail):
		return errors.BadRequest(err.Error())
	case stderrors.Is(err, moderation.ErrForbidden), stderrors.Is(err, onboarding.ErrForbidden):
		return errors.Forbidden(err.Error())
	case stderrors.Is(err, moderation.ErrUnknownAction):
		return apiError(errors.CodeNotFound, http.StatusNotFound, err.Error(), err)
	case stderrors.Is(err, database.ErrNotFound):
		return apiError(errors.CodeNotFound, http.StatusNotFound, err.Error(), err)
	case stderrors.Is(err, database.ErrInvalidInput):
		return apiError(errors.CodeBadRequest, http.StatusBadRequest, err.Error(), err)
	case stderrors.Is(err, database.ErrInvalidTransition):
		return errors.InvalidTransition(err.Error())
	case stderrors.Is(err, database.ErrConflict):
		return errors.Conflict(database.BackendMessage(err))
	}

	if be, ok := supabase.AsError(err); ok {
		switch {
		case be.StatusCode == http.StatusUnauthorized:
			return apiError(errors.CodeUnauthorized, http.StatusUnauthorized, be.Message, err)
		case be.StatusCode == http.StatusForbidden:
			return apiError(errors.CodeForbidden, http.StatusForbidden, be.Message, err)
		case be.StatusCode == http.StatusTooManyRequests:
			return apiError(errors.CodeRateLimited, http.StatusTooManyRequests, be.Message, err)
		case be.StatusCode >= 400 && be.StatusCode < 500:
			return apiError(errors.CodeBadRequest, be.StatusCode, be.Message, err)
		}
		return errors.Upstream(be.Message, err)
	}
	return errors.Internal("internal server error", err)
}

func apiError(code errors.ErrorCode, status int, message string, err error) *errors.ServiceError {
	return &errors.ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// writeError writes err as an ErrorResponse. Server-side failures are logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	se := toServiceError(err)
	entry := s.logger.WithContext(r.Context()).WithError(err).WithField("status", se.HTTPStatus)
	if se.HTTPStatus >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	httputil.WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}
