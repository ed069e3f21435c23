package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/waypoint-tourism/directory/internal/domain"
)

// profileInsert leaves the timestamps to column defaults.
type profileInsert struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	DisplayName      string   `json:"display_name"`
	AvatarURL        *string  `json:"avatar_url,omitempty"`
	Role             string   `json:"role"`
	Status           string   `json:"status"`
	Interests        []string `json:"interests"`
	PreferredRegions []string `json:"preferred_regions"`
	TravelStyles     []string `json:"travel_styles"`
}

// GetProfile fetches a profile by identity id. A missing row is ErrNotFound.
func (r *Repository) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}

	var profile domain.Profile
	err := r.from(ctx, TableProfiles).
		Select("*").
		Eq("id", id).
		Single().
		ExecuteInto(ctx, &profile)
	if err != nil {
		return nil, classify("get profile", err)
	}
	return &profile, nil
}

// CreateProfile inserts a profile. A concurrent insert of the same id
// yields ErrConflict.
func (r *Repository) CreateProfile(ctx context.Context, profile domain.Profile) (*domain.Profile, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(profile.ID) == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}
	if err := ValidateStatus(profile.Role, domain.Roles); err != nil {
		return nil, err
	}

	insert := profileInsert{
		ID:               profile.ID,
		Email:            profile.Email,
		DisplayName:      profile.DisplayName,
		AvatarURL:        profile.AvatarURL,
		Role:             profile.Role,
		Status:           profile.Status,
		Interests:        nonNil(profile.Interests),
		PreferredRegions: nonNil(profile.PreferredRegions),
		TravelStyles:     nonNil(profile.TravelStyles),
	}

	var rows []domain.Profile
	if err := r.from(ctx, TableProfiles).Insert(insert).ExecuteInto(ctx, &rows); err != nil {
		return nil, classify("create profile", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: create profile returned empty response", ErrDatabaseError)
	}
	return &rows[0], nil
}

// UpdateProfile applies a partial update; only the set fields are sent.
func (r *Repository) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}
	if update.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}

	var rows []domain.Profile
	if err := r.from(ctx, TableProfiles).Update(update).Eq("id", id).ExecuteInto(ctx, &rows); err != nil {
		return nil, classify("update profile", err)
	}
	return firstRow(rows, "profile", id)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
