// Package database provides the directory's data access over PostgREST.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

// Table names.
const (
	TableProfiles         = "profiles"
	TableListings         = "listings"
	TableOperators        = "operators"
	TablePOIs             = "points_of_interest"
	TableReviews          = "reviews"
	TableFlags            = "flagged_content"
	TableGalleryMedia     = "operator_gallery_media"
	TableVerificationDocs = "operator_verification_documents"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ProfileRepository reads and writes profiles.
type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	CreateProfile(ctx context.Context, profile domain.Profile) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error)
}

// ListingRepository reads and writes listings.
type ListingRepository interface {
	ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error)
	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	CreateListing(ctx context.Context, create domain.ListingCreate) (*domain.Listing, error)
}

// OperatorRepository reads and writes operators and their uploads.
type OperatorRepository interface {
	CreateOperator(ctx context.Context, create domain.OperatorCreate) (*domain.Operator, error)
	GetOperator(ctx context.Context, id string) (*domain.Operator, error)
	ListOperatorsByOwner(ctx context.Context, ownerID string) ([]domain.Operator, error)
	SetOperatorAsset(ctx context.Context, operatorID, column, url string) error
	AddGalleryMedia(ctx context.Context, media domain.OperatorMedia) error
	AddVerificationDocument(ctx context.Context, doc domain.OperatorDocument) error
	ListVerificationDocuments(ctx context.Context, operatorID string) ([]domain.OperatorDocument, error)
}

// POIRepository reads points of interest.
type POIRepository interface {
	ListPOIs(ctx context.Context, filter domain.POIFilter) ([]domain.PointOfInterest, error)
	GetPOI(ctx context.Context, id string) (*domain.PointOfInterest, error)
}

// ReviewRepository reads and writes reviews.
type ReviewRepository interface {
	CreateReview(ctx context.Context, create domain.ReviewCreate) (*domain.Review, error)
	ListReviews(ctx context.Context, listingID string, limit, offset int) ([]domain.Review, error)
}

// FlagRepository reads and writes moderation reports.
type FlagRepository interface {
	CreateFlag(ctx context.Context, create domain.FlagCreate) (*domain.Flag, error)
	ListFlags(ctx context.Context, status string, limit, offset int) ([]domain.Flag, error)
}

// StatusUpdater applies guarded single-row updates.
type StatusUpdater interface {
	// UpdateGuarded patches exactly fields on table/id if the row's current
	// status is one of allowedFrom. It returns ErrNotFound when the row does
	// not exist and ErrInvalidTransition when its status is not allowed.
	UpdateGuarded(ctx context.Context, table, id string, fields map[string]any, allowedFrom []string) (json.RawMessage, error)
	// CurrentStatus returns the status of table/id or ErrNotFound.
	CurrentStatus(ctx context.Context, table, id string) (string, error)
}

// RPCCaller calls database functions.
type RPCCaller interface {
	CallRPC(ctx context.Context, fn string, params map[string]any) (json.RawMessage, error)
}

// RepositoryInterface is everything the directory stores.
type RepositoryInterface interface {
	ProfileRepository
	ListingRepository
	OperatorRepository
	POIRepository
	ReviewRepository
	FlagRepository
	StatusUpdater
	RPCCaller
}

var _ RepositoryInterface = (*Repository)(nil)

// Repository implements RepositoryInterface over PostgREST. Calls run as the
// user whose access token is on the context (see WithAccessToken), so
// row-level security applies; an AsAdmin copy uses the service key instead.
type Repository struct {
	client *supabase.Client
	admin  bool
	now    func() time.Time
}

// NewRepository creates a repository.
func NewRepository(client *supabase.Client) *Repository {
	return &Repository{client: client, now: time.Now}
}

// AsAdmin returns a copy of r that authorizes with the service key.
func (r *Repository) AsAdmin() *Repository {
	cp := *r
	cp.admin = true
	return &cp
}

type accessTokenKey struct{}

// WithAccessToken attaches the caller's access token to ctx.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the access token attached to ctx.
func AccessToken(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

func (r *Repository) ready() error {
	if r == nil || r.client == nil {
		return fmt.Errorf("%w: repository not initialized", ErrInvalidInput)
	}
	return nil
}

func (r *Repository) from(ctx context.Context, table string) *supabase.QueryBuilder {
	q := r.client.From(table)
	if r.admin {
		return q.WithServiceKey()
	}
	return q.WithToken(AccessToken(ctx))
}

// CallRPC calls a database function as the context's user.
func (r *Repository) CallRPC(ctx context.Context, fn string, params map[string]any) (json.RawMessage, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	data, err := r.client.Database().RPC(ctx, fn, params, AccessToken(ctx))
	if err != nil {
		return nil, classify("rpc "+fn, err)
	}
	return json.RawMessage(data), nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func firstRow[T any](data []T, resource, id string) (*T, error) {
	if len(data) == 0 {
		return nil, NewNotFoundError(resource, id)
	}
	return &data[0], nil
}
