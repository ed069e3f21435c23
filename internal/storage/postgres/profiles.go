// Package postgres stores profiles directly in Postgres. It is used instead
// of PostgREST when the service is given a DATABASE_URL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
)

const uniqueViolation = "23505"

// ProfileStore implements database.ProfileRepository over sqlx.
type ProfileStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ database.ProfileRepository = (*ProfileStore)(nil)

// NewProfileStore creates a store using the provided handle.
func NewProfileStore(db *sqlx.DB) *ProfileStore {
	return &ProfileStore{db: db, now: time.Now}
}

type profileRow struct {
	ID               string         `db:"id"`
	Email            string         `db:"email"`
	DisplayName      string         `db:"display_name"`
	AvatarURL        sql.NullString `db:"avatar_url"`
	Role             string         `db:"role"`
	Status           string         `db:"status"`
	Interests        pq.StringArray `db:"interests"`
	PreferredRegions pq.StringArray `db:"preferred_regions"`
	TravelStyles     pq.StringArray `db:"travel_styles"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r profileRow) toDomain() *domain.Profile {
	p := &domain.Profile{
		ID:               r.ID,
		Email:            r.Email,
		DisplayName:      r.DisplayName,
		Role:             r.Role,
		Status:           r.Status,
		Interests:        nonNil(r.Interests),
		PreferredRegions: nonNil(r.PreferredRegions),
		TravelStyles:     nonNil(r.TravelStyles),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.AvatarURL.Valid {
		url := r.AvatarURL.String
		p.AvatarURL = &url
	}
	return p
}

const profileColumns = `id, email, display_name, avatar_url, role, status,
	interests, preferred_regions, travel_styles, created_at, updated_at`

// GetProfile fetches a profile by id.
func (s *ProfileStore) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.NewNotFoundError("profile", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get profile: %w", database.ErrDatabaseError, err)
	}
	return row.toDomain(), nil
}

// CreateProfile inserts a profile; a duplicate id yields database.ErrConflict.
func (s *ProfileStore) CreateProfile(ctx context.Context, profile domain.Profile) (*domain.Profile, error) {
	now := s.now().UTC()
	row := profileRow{
		ID:               profile.ID,
		Email:            profile.Email,
		DisplayName:      profile.DisplayName,
		Role:             profile.Role,
		Status:           profile.Status,
		Interests:        pq.StringArray(nonNil(profile.Interests)),
		PreferredRegions: pq.StringArray(nonNil(profile.PreferredRegions)),
		TravelStyles:     pq.StringArray(nonNil(profile.TravelStyles)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if profile.AvatarURL != nil {
		row.AvatarURL = sql.NullString{String: *profile.AvatarURL, Valid: true}
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (:id, :email, :display_name, :avatar_url, :role, :status,
			:interests, :preferred_regions, :travel_styles, :created_at, :updated_at)
	`, row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, fmt.Errorf("%w: create profile: %w", database.ErrConflict, err)
		}
		return nil, fmt.Errorf("%w: create profile: %w", database.ErrDatabaseError, err)
	}
	return row.toDomain(), nil
}

// UpdateProfile applies a partial update; only the set columns are written.
func (s *ProfileStore) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error) {
	if update.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", database.ErrInvalidInput)
	}

	sets := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.DisplayName != nil {
		add("display_name", *update.DisplayName)
	}
	if update.AvatarURL != nil {
		add("avatar_url", *update.AvatarURL)
	}
	if update.Interests != nil {
		add("interests", pq.StringArray(*update.Interests))
	}
	if update.PreferredRegions != nil {
		add("preferred_regions", pq.StringArray(*update.PreferredRegions))
	}
	if update.TravelStyles != nil {
		add("travel_styles", pq.StringArray(*update.TravelStyles))
	}
	add("updated_at", s.now().UTC())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE profiles SET %s WHERE id = $%d RETURNING `+profileColumns,
		strings.Join(sets, ", "), len(args))

	var row profileRow
	err := s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.NewNotFoundError("profile", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update profile: %w", database.ErrDatabaseError, err)
	}
	return row.toDomain(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
