// Package analytics reads listing view statistics through database
// functions. The functions are opaque to this package; only their names,
// parameters and row shape are known.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
)

const (
	fnTimeseries = "listing_views_timeseries"
	fnRecordView = "record_listing_view"

	// DefaultWindow is the range used when from is zero.
	DefaultWindow = 30 * 24 * time.Hour
)

// Buckets accepted by the time-series function.
var Buckets = []string{"hour", "day", "week", "month"}

// Point is one bucket of a series.
type Point struct {
	Bucket time.Time `json:"bucket"`
	Views  int64     `json:"views"`
}

// Series is the view count of one listing over a window.
type Series struct {
	ListingID string    `json:"listing_id"`
	Bucket    string    `json:"bucket"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Total     int64     `json:"total"`
	Points    []Point   `json:"points"`
}

// Service calls the analytics functions.
type Service struct {
	rpc database.RPCCaller
	now func() time.Time
}

// NewService creates a Service over rpc.
func NewService(rpc database.RPCCaller) *Service {
	return &Service{rpc: rpc, now: time.Now}
}

// ListingViews returns the views of listingID between from and to grouped
// by bucket. A zero to means now; a zero from means DefaultWindow before to;
// an empty bucket means "day".
func (s *Service) ListingViews(ctx context.Context, listingID string, from, to time.Time, bucket string) (*Series, error) {
	if strings.TrimSpace(listingID) == "" {
		return nil, fmt.Errorf("%w: listing id is required", database.ErrInvalidInput)
	}
	if bucket == "" {
		bucket = "day"
	}
	if !domain.Contains(Buckets, bucket) {
		return nil, fmt.Errorf("%w: bucket must be one of %s", database.ErrInvalidInput, strings.Join(Buckets, ", "))
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-DefaultWindow)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", database.ErrInvalidInput)
	}

	raw, err := s.rpc.CallRPC(ctx, fnTimeseries, map[string]any{
		"p_listing_id": listingID,
		"p_from":       from.UTC().Format(time.RFC3339),
		"p_to":         to.UTC().Format(time.RFC3339),
		"p_bucket":     bucket,
	})
	if err != nil {
		return nil, err
	}

	series := &Series{
		ListingID: listingID,
		Bucket:    bucket,
		From:      from.UTC(),
		To:        to.UTC(),
		Points:    []Point{},
	}
	var parseErr error
	gjson.ParseBytes(raw).ForEach(func(_, row gjson.Result) bool {
		ts, err := time.Parse(time.RFC3339, row.Get("bucket").String())
		if err != nil {
			parseErr = fmt.Errorf("%w: bad bucket %q: %v", database.ErrDatabaseError, row.Get("bucket").String(), err)
			return false
		}
		p := Point{Bucket: ts.UTC(), Views: row.Get("views").Int()}
		series.Points = append(series.Points, p)
		series.Total += p.Views
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return series, nil
}

// RecordView counts one view of listingID.
func (s *Service) RecordView(ctx context.Context, listingID string) error {
	if strings.TrimSpace(listingID) == "" {
		return fmt.Errorf("%w: listing id is required", database.ErrInvalidInput)
	}
	_, err := s.rpc.CallRPC(ctx, fnRecordView, map[string]any{"p_listing_id": listingID})
	return err
}
