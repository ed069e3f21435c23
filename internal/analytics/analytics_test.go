package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

func TestListingViews_CallsFunction(t *testing.T) {
	var gotPath string
	var gotParams map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotParams)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"bucket":"2025-03-01T00:00:00+00:00","views":4},
			{"bucket":"2025-03-02T00:00:00+00:00","views":"6"}
		]`))
	}))
	defer srv.Close()

	client, err := supabase.New(supabase.Config{URL: srv.URL, AnonKey: "anon"})
	require.NoError(t, err)
	svc := NewService(database.NewRepository(client))

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(72 * time.Hour)
	series, err := svc.ListingViews(context.Background(), "l1", from, to, "")
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/rpc/listing_views_timeseries", gotPath)
	assert.Equal(t, map[string]any{
		"p_listing_id": "l1",
		"p_from":       "2025-03-01T00:00:00Z",
		"p_to":         "2025-03-04T00:00:00Z",
		"p_bucket":     "day",
	}, gotParams)

	require.Len(t, series.Points, 2)
	assert.Equal(t, int64(10), series.Total)
	assert.Equal(t, from.Add(24*time.Hour), series.Points[1].Bucket)
}

func TestListingViews_DefaultsAndValidation(t *testing.T) {
	repo := database.NewMockRepository()
	repo.SetRPCResult("listing_views_timeseries", json.RawMessage(`[]`))
	svc := NewService(repo)
	now := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	series, err := svc.ListingViews(context.Background(), "l1", time.Time{}, time.Time{}, "week")
	require.NoError(t, err)
	assert.Equal(t, now.Add(-DefaultWindow), series.From)
	assert.Equal(t, now, series.To)
	assert.Empty(t, series.Points)

	_, err = svc.ListingViews(context.Background(), "", time.Time{}, time.Time{}, "")
	assert.ErrorIs(t, err, database.ErrInvalidInput)
	_, err = svc.ListingViews(context.Background(), "l1", time.Time{}, time.Time{}, "minute")
	assert.ErrorIs(t, err, database.ErrInvalidInput)
	_, err = svc.ListingViews(context.Background(), "l1", now, now.Add(-time.Hour), "day")
	assert.ErrorIs(t, err, database.ErrInvalidInput)
}

func TestListingViews_BadRow(t *testing.T) {
	repo := database.NewMockRepository()
	repo.SetRPCResult("listing_views_timeseries", json.RawMessage(`[{"bucket":"yesterday","views":1}]`))

	_, err := NewService(repo).ListingViews(context.Background(), "l1", time.Time{}, time.Time{}, "")
	assert.ErrorIs(t, err, database.ErrDatabaseError)
}

func TestRecordView(t *testing.T) {
	repo := database.NewMockRepository()
	svc := NewService(repo)
	require.NoError(t, svc.RecordView(context.Background(), "l1"))
	assert.Error(t, svc.RecordView(context.Background(), " "))
}
