package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
)

func newStore(t *testing.T) (*ProfileStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewProfileStore(sqlx.NewDb(db, "postgres"))
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	return store, mock
}

var columns = []string{"id", "email", "display_name", "avatar_url", "role", "status",
	"interests", "preferred_regions", "travel_styles", "created_at", "updated_at"}

func TestGetProfile(t *testing.T) {
	store, mock := newStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("u1", "a@b.c", "Ana", nil, "user", "active", "{hiking,food}", "{}", "{}", now, now))

	p, err := store.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.DisplayName)
	assert.Equal(t, []string{"hiking", "food"}, p.Interests)
	assert.Equal(t, []string{}, p.PreferredRegions)
	assert.Nil(t, p.AvatarURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_NotFound(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery("FROM profiles").WithArgs("missing").WillReturnRows(sqlmock.NewRows(columns))

	_, err := store.GetProfile(context.Background(), "missing")
	assert.True(t, database.IsNotFound(err), "got %v", err)
}

func TestCreateProfile_UniqueViolationIsConflict(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("INSERT INTO profiles").
		WillReturnError(&pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "profiles_pkey"`})

	_, err := store.CreateProfile(context.Background(), domain.NewDefaultProfile(domain.Identity{ID: "u1", Email: "a@b.c"}))
	assert.True(t, database.IsConflict(err), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProfile_OtherErrors(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("INSERT INTO profiles").WillReturnError(errors.New("connection reset"))

	_, err := store.CreateProfile(context.Background(), domain.NewDefaultProfile(domain.Identity{ID: "u1"}))
	assert.ErrorIs(t, err, database.ErrDatabaseError)
	assert.False(t, database.IsConflict(err))
}

func TestUpdateProfile_OnlySetColumns(t *testing.T) {
	store, mock := newStore(t)
	now := time.Now().UTC()
	name := "Bea"

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE profiles SET display_name = $1, updated_at = $2 WHERE id = $3")).
		WithArgs("Bea", sqlmock.AnyArg(), "u1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("u1", "a@b.c", "Bea", nil, "user", "active", "{}", "{}", "{}", now, now))

	p, err := store.UpdateProfile(context.Background(), "u1", domain.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Bea", p.DisplayName)
	require.NoError(t, mock.ExpectationsWereMet())
}
