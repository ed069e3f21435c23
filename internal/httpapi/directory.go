package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/errors"
	"github.com/waypoint-tourism/directory/internal/httputil"
	"github.com/waypoint-tourism/directory/internal/logging"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, err := httputil.QueryInt(r, "limit", defaultLimit, maxLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return 0, 0, false
	}
	offset, err = httputil.QueryInt(r, "offset", 0, 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return 0, 0, false
	}
	return limit, offset, true
}

// ownsOperator reports whether the caller owns operatorID.
func (s *Server) ownsOperator(r *http.Request, operatorID string) (bool, error) {
	userID := logging.GetUserID(r.Context())
	if userID == "" || operatorID == "" {
		return false, nil
	}
	op, err := s.repo.GetOperator(r.Context(), operatorID)
	if err != nil {
		if database.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return op.OwnerID == userID, nil
}

// =============================================================================
// Listings
// =============================================================================

// handleListListings lists public listings. An operator reading its own
// listings (operator_id it owns) sees every status and may filter by one.
func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := domain.ListingFilter{
		Category:   q.Get("category"),
		Region:     q.Get("region"),
		Search:     q.Get("search"),
		OperatorID: q.Get("operator_id"),
		Limit:      limit,
		Offset:     offset,
		Statuses:   domain.PublicListingStatuses,
	}
	if filter.Category != "" && !domain.Contains(domain.ListingCategories, filter.Category) {
		httputil.BadRequest(w, "unknown category "+filter.Category)
		return
	}
	for name, dst := range map[string]**float64{"min_price": &filter.MinPrice, "max_price": &filter.MaxPrice} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			s.writeError(w, r, errors.InvalidFormat(name, "must be a non-negative number"))
			return
		}
		*dst = &v
	}

	own, err := s.ownsOperator(r, filter.OperatorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if own {
		filter.Statuses = nil
	}
	if status := q.Get("status"); status != "" {
		if !domain.Contains(filter.Statuses, status) && !(own && domain.Contains(domain.ListingStatuses, status)) {
			httputil.BadRequest(w, "status "+status+" is not visible")
			return
		}
		filter.Statuses = []string{status}
	}

	listings, err := s.repo.ListListings(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	httputil.WriteJSON(w, http.StatusOK, listings)
}

// handleGetListing returns one listing and records a view. Listings that are
// not public are only visible to their operator.
func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	listing, err := s.repo.GetListing(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !domain.Contains(domain.PublicListingStatuses, listing.Status) {
		own, err := s.ownsOperator(r, listing.OperatorID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !own {
			httputil.NotFound(w, "listing not found")
			return
		}
	} else if err := s.analytics.RecordView(r.Context(), id); err != nil {
		s.logger.WithContext(r.Context()).WithError(err).WithField("listing_id", id).Warn("record listing view")
	}

	httputil.WriteJSON(w, http.StatusOK, listing)
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}

	var input domain.ListingCreate
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	own, err := s.ownsOperator(r, input.OperatorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !own {
		httputil.Forbidden(w, "you do not manage this operator")
		return
	}

	listing, err := s.repo.CreateListing(r.Context(), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, listing)
}

// handleListingViews returns the view series of a listing to its operator
// or an admin.
func (s *Server) handleListingViews(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}
	id := mux.Vars(r)["id"]

	listing, err := s.repo.GetListing(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	own, err := s.ownsOperator(r, listing.OperatorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !own {
		actor, err := s.currentProfile(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !actor.IsAdmin() {
			httputil.Forbidden(w, "")
			return
		}
	}

	q := r.URL.Query()
	var from, to time.Time
	for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, r, errors.InvalidFormat(name, "must be an RFC 3339 timestamp"))
			return
		}
		*dst = t
	}

	series, err := s.analytics.ListingViews(r.Context(), id, from, to, q.Get("bucket"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, series)
}

// =============================================================================
// Reviews
// =============================================================================

type reviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	reviews, err := s.repo.ListReviews(r.Context(), mux.Vars(r)["id"], limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	httputil.WriteJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	var input reviewInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	review, err := s.repo.CreateReview(r.Context(), domain.ReviewCreate{
		ListingID: mux.Vars(r)["id"],
		UserID:    userID,
		Rating:    input.Rating,
		Comment:   strings.TrimSpace(input.Comment),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, review)
}

// =============================================================================
// Points of interest
// =============================================================================

func (s *Server) handleListPOIs(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	pois, err := s.repo.ListPOIs(r.Context(), domain.POIFilter{
		Category: q.Get("category"),
		Region:   q.Get("region"),
		Search:   q.Get("search"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if pois == nil {
		pois = []domain.PointOfInterest{}
	}
	httputil.WriteJSON(w, http.StatusOK, pois)
}

func (s *Server) handleGetPOI(w http.ResponseWriter, r *http.Request) {
	poi, err := s.repo.GetPOI(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, poi)
}

// =============================================================================
// Flags
// =============================================================================

type flagInput struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Reason     string `json:"reason"`
}

func (s *Server) handleCreateFlag(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	var input flagInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	flag, err := s.repo.CreateFlag(r.Context(), domain.FlagCreate{
		EntityType: input.EntityType,
		EntityID:   input.EntityID,
		ReporterID: userID,
		Reason:     strings.TrimSpace(input.Reason),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, flag)
}
