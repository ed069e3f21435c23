package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

// =============================================================================
// Points of interest
// =============================================================================

// ListPOIs returns active points of interest matching filter.
func (r *Repository) ListPOIs(ctx context.Context, filter domain.POIFilter) ([]domain.PointOfInterest, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	limit, offset := page(filter.Limit, filter.Offset)
	q := r.from(ctx, TablePOIs).Select("*").Eq("status", "active")
	if filter.Category != "" {
		q = q.Eq("category", filter.Category)
	}
	if filter.Region != "" {
		q = q.Eq("region", filter.Region)
	}
	if term := searchTerm(filter.Search); term != "" {
		q = q.ILike("name", "*"+term+"*")
	}

	var pois []domain.PointOfInterest
	if err := q.Order("name").Limit(limit).Offset(offset).ExecuteInto(ctx, &pois); err != nil {
		return nil, classify("list points of interest", err)
	}
	return pois, nil
}

// GetPOI fetches one point of interest.
func (r *Repository) GetPOI(ctx context.Context, id string) (*domain.PointOfInterest, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}

	var pois []domain.PointOfInterest
	if err := r.from(ctx, TablePOIs).Select("*").Eq("id", id).Limit(1).ExecuteInto(ctx, &pois); err != nil {
		return nil, classify("get point of interest", err)
	}
	return firstRow(pois, "point_of_interest", id)
}

// =============================================================================
// Reviews
// =============================================================================

// CreateReview inserts a published review.
func (r *Repository) CreateReview(ctx context.Context, create domain.ReviewCreate) (*domain.Review, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if create.ListingID == "" || create.UserID == "" {
		return nil, fmt.Errorf("%w: listing_id and user_id are required", ErrInvalidInput)
	}
	if create.Rating < 1 || create.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	create.Status = domain.ReviewPublished

	var rows []domain.Review
	if err := r.from(ctx, TableReviews).Insert(create).ExecuteInto(ctx, &rows); err != nil {
		return nil, classify("create review", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: create review returned empty response", ErrDatabaseError)
	}
	return &rows[0], nil
}

// ListReviews returns a listing's published reviews, newest first.
func (r *Repository) ListReviews(ctx context.Context, listingID string, limit, offset int) ([]domain.Review, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(listingID) == "" {
		return nil, fmt.Errorf("%w: listing_id cannot be empty", ErrInvalidInput)
	}

	limit, offset = page(limit, offset)
	var reviews []domain.Review
	err := r.from(ctx, TableReviews).
		Select("*").
		Eq("listing_id", listingID).
		Eq("status", domain.ReviewPublished).
		Order("created_at", supabase.OrderDesc).
		Limit(limit).
		Offset(offset).
		ExecuteInto(ctx, &reviews)
	if err != nil {
		return nil, classify("list reviews", err)
	}
	return reviews, nil
}

// =============================================================================
// Flagged content
// =============================================================================

// CreateFlag inserts a pending report.
func (r *Repository) CreateFlag(ctx context.Context, create domain.FlagCreate) (*domain.Flag, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if !domain.Contains(domain.FlaggableEntities, create.EntityType) {
		return nil, fmt.Errorf("%w: unknown entity_type %q", ErrInvalidInput, create.EntityType)
	}
	if create.EntityID == "" || create.ReporterID == "" || strings.TrimSpace(create.Reason) == "" {
		return nil, fmt.Errorf("%w: entity_id, reporter_id and reason are required", ErrInvalidInput)
	}
	create.Status = domain.FlagPending

	var rows []domain.Flag
	if err := r.from(ctx, TableFlags).Insert(create).ExecuteInto(ctx, &rows); err != nil {
		return nil, classify("create flag", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: create flag returned empty response", ErrDatabaseError)
	}
	return &rows[0], nil
}

// ListFlags returns reports, optionally narrowed to one status, oldest first.
func (r *Repository) ListFlags(ctx context.Context, status string, limit, offset int) ([]domain.Flag, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	limit, offset = page(limit, offset)
	q := r.from(ctx, TableFlags).Select("*")
	if status != "" {
		if err := ValidateStatus(status, domain.FlagStatuses); err != nil {
			return nil, err
		}
		q = q.Eq("status", status)
	}

	var flags []domain.Flag
	if err := q.Order("created_at").Limit(limit).Offset(offset).ExecuteInto(ctx, &flags); err != nil {
		return nil, classify("list flags", err)
	}
	return flags, nil
}
