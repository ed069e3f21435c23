package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

// ListListings returns listings matching filter, featured first, newest next.
func (r *Repository) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	for _, status := range filter.Statuses {
		if err := ValidateStatus(status, domain.ListingStatuses); err != nil {
			return nil, err
		}
	}
	if filter.Category != "" {
		if !domain.Contains(domain.ListingCategories, filter.Category) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, filter.Category)
		}
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return nil, fmt.Errorf("%w: min price is above max price", ErrInvalidInput)
	}

	limit, offset := page(filter.Limit, filter.Offset)
	q := r.from(ctx, TableListings).Select("*")
	if len(filter.Statuses) > 0 {
		q = q.In("status", filter.Statuses)
	}
	if filter.Category != "" {
		q = q.Eq("category", filter.Category)
	}
	if filter.Region != "" {
		q = q.Eq("region", filter.Region)
	}
	if filter.OperatorID != "" {
		q = q.Eq("operator_id", filter.OperatorID)
	}
	if filter.MinPrice != nil {
		q = q.Gte("price_from", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		q = q.Lte("price_from", *filter.MaxPrice)
	}
	if term := searchTerm(filter.Search); term != "" {
		q = q.Or("title.ilike.*" + term + "*,description.ilike.*" + term + "*")
	}

	var listings []domain.Listing
	err := q.Order("is_featured", supabase.OrderDesc).
		Order("created_at", supabase.OrderDesc).
		Limit(limit).
		Offset(offset).
		ExecuteInto(ctx, &listings)
	if err != nil {
		return nil, classify("list listings", err)
	}
	return listings, nil
}

// GetListing fetches one listing.
func (r *Repository) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}

	var listings []domain.Listing
	if err := r.from(ctx, TableListings).Select("*").Eq("id", id).Limit(1).ExecuteInto(ctx, &listings); err != nil {
		return nil, classify("get listing", err)
	}
	return firstRow(listings, "listing", id)
}

// CreateListing inserts a listing. New listings always start pending.
func (r *Repository) CreateListing(ctx context.Context, create domain.ListingCreate) (*domain.Listing, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(create.OperatorID) == "" || strings.TrimSpace(create.Title) == "" {
		return nil, fmt.Errorf("%w: operator_id and title are required", ErrInvalidInput)
	}
	if !domain.Contains(domain.ListingCategories, create.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, create.Category)
	}
	if create.PriceFrom != nil && *create.PriceFrom < 0 {
		return nil, fmt.Errorf("%w: price_from cannot be negative", ErrInvalidInput)
	}
	create.Status = domain.ListingPending

	var rows []domain.Listing
	if err := r.from(ctx, TableListings).Insert(create).ExecuteInto(ctx, &rows); err != nil {
		return nil, classify("create listing", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: create listing returned empty response", ErrDatabaseError)
	}
	return &rows[0], nil
}

// searchTerm strips characters that carry meaning inside an or=() group.
func searchTerm(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '"', '*', '\\':
			return -1
		}
		return r
	}, s))
}
