package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waypoint-tourism/directory/internal/domain"
)

// Patch is one update recorded by MockRepository.
type Patch struct {
	Table  string
	ID     string
	Fields map[string]any
}

// MockRepository is an in-memory implementation of RepositoryInterface for testing.
type MockRepository struct {
	mu sync.RWMutex

	profiles  map[string]*domain.Profile
	listings  map[string]*domain.Listing
	operators map[string]*domain.Operator
	pois      map[string]*domain.PointOfInterest
	reviews   map[string]*domain.Review
	flags     map[string]*domain.Flag
	gallery   []domain.OperatorMedia
	documents []domain.OperatorDocument
	patches   []Patch
	rpc       map[string]json.RawMessage

	// ErrorOnNextCall is returned (once) by the next call.
	ErrorOnNextCall error
	// FailAssetColumn makes SetOperatorAsset fail for that column.
	FailAssetColumn string
}

var _ RepositoryInterface = (*MockRepository)(nil)

// NewMockRepository creates a new mock repository for testing.
func NewMockRepository() *MockRepository {
	m := &MockRepository{}
	m.Reset()
	return m
}

// checkError returns and clears any injected error.
func (m *MockRepository) checkError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrorOnNextCall != nil {
		err := m.ErrorOnNextCall
		m.ErrorOnNextCall = nil
		return err
	}
	return nil
}

// Reset clears all data in the mock repository.
func (m *MockRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = make(map[string]*domain.Profile)
	m.listings = make(map[string]*domain.Listing)
	m.operators = make(map[string]*domain.Operator)
	m.pois = make(map[string]*domain.PointOfInterest)
	m.reviews = make(map[string]*domain.Review)
	m.flags = make(map[string]*domain.Flag)
	m.gallery = nil
	m.documents = nil
	m.patches = nil
	m.rpc = make(map[string]json.RawMessage)
	m.ErrorOnNextCall = nil
}

// =============================================================================
// Seeding and inspection
// =============================================================================

// PutProfile stores a profile as-is.
func (m *MockRepository) PutProfile(p domain.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = &p
}

// PutListing stores a listing as-is.
func (m *MockRepository) PutListing(l domain.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = &l
}

// PutOperator stores an operator as-is.
func (m *MockRepository) PutOperator(o domain.Operator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operators[o.ID] = &o
}

// PutPOI stores a point of interest as-is.
func (m *MockRepository) PutPOI(p domain.PointOfInterest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pois[p.ID] = &p
}

// PutFlag stores a flag as-is.
func (m *MockRepository) PutFlag(f domain.Flag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[f.ID] = &f
}

// SetRPCResult fixes the result of a database function.
func (m *MockRepository) SetRPCResult(fn string, result json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rpc[fn] = result
}

// ProfileCount returns the number of stored profiles.
func (m *MockRepository) ProfileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}

// Patches returns every recorded update in order.
func (m *MockRepository) Patches() []Patch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Patch(nil), m.patches...)
}

// Gallery returns the stored gallery rows.
func (m *MockRepository) Gallery() []domain.OperatorMedia {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.OperatorMedia(nil), m.gallery...)
}

// Documents returns the stored verification document rows.
func (m *MockRepository) Documents() []domain.OperatorDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.OperatorDocument(nil), m.documents...)
}

// =============================================================================
// Profiles
// =============================================================================

func (m *MockRepository) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, NewNotFoundError("profile", id)
	}
	cp := *p
	return &cp, nil
}

func (m *MockRepository) CreateProfile(ctx context.Context, profile domain.Profile) (*domain.Profile, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.profiles[profile.ID]; exists {
		return nil, fmt.Errorf("%w: profile %s", ErrConflict, profile.ID)
	}
	now := time.Now().UTC()
	profile.CreatedAt, profile.UpdatedAt = now, now
	m.profiles[profile.ID] = &profile
	cp := profile
	return &cp, nil
}

func (m *MockRepository) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, NewNotFoundError("profile", id)
	}
	update.Apply(p)
	p.UpdatedAt = time.Now().UTC()

	var fields map[string]any
	raw, _ := json.Marshal(update)
	_ = json.Unmarshal(raw, &fields)
	m.patches = append(m.patches, Patch{Table: TableProfiles, ID: id, Fields: fields})

	cp := *p
	return &cp, nil
}

// =============================================================================
// Listings
// =============================================================================

func (m *MockRepository) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	term := strings.ToLower(searchTerm(filter.Search))
	var out []domain.Listing
	for _, l := range m.listings {
		if len(filter.Statuses) > 0 && !domain.Contains(filter.Statuses, l.Status) {
			continue
		}
		if filter.Category != "" && l.Category != filter.Category {
			continue
		}
		if filter.Region != "" && l.Region != filter.Region {
			continue
		}
		if filter.OperatorID != "" && l.OperatorID != filter.OperatorID {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(l.Title+" "+l.Description), term) {
			continue
		}
		if !inPriceRange(l.PriceFrom, filter.MinPrice, filter.MaxPrice) {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFeatured != out[j].IsFeatured {
			return out[i].IsFeatured
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	limit, offset := page(filter.Limit, filter.Offset)
	return paginate(out, limit, offset), nil
}

func inPriceRange(price, lo, hi *float64) bool {
	if lo == nil && hi == nil {
		return true
	}
	if price == nil {
		return false
	}
	return (lo == nil || *price >= *lo) && (hi == nil || *price <= *hi)
}

func (m *MockRepository) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, NewNotFoundError("listing", id)
	}
	cp := *l
	return &cp, nil
}

func (m *MockRepository) CreateListing(ctx context.Context, create domain.ListingCreate) (*domain.Listing, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	if !domain.Contains(domain.ListingCategories, create.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, create.Category)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	l := &domain.Listing{
		ID:          uuid.New().String(),
		OperatorID:  create.OperatorID,
		Title:       create.Title,
		Description: create.Description,
		Category:    create.Category,
		Region:      create.Region,
		PriceFrom:   create.PriceFrom,
		Status:      domain.ListingPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.listings[l.ID] = l
	cp := *l
	return &cp, nil
}

// =============================================================================
// Operators
// =============================================================================

func (m *MockRepository) CreateOperator(ctx context.Context, create domain.OperatorCreate) (*domain.Operator, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	o := &domain.Operator{
		ID:           uuid.New().String(),
		OwnerID:      create.OwnerID,
		BusinessName: create.BusinessName,
		Description:  create.Description,
		ContactEmail: create.ContactEmail,
		ContactPhone: create.ContactPhone,
		Website:      create.Website,
		Region:       create.Region,
		Status:       domain.OperatorPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.operators[o.ID] = o
	cp := *o
	return &cp, nil
}

func (m *MockRepository) GetOperator(ctx context.Context, id string) (*domain.Operator, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.operators[id]
	if !ok {
		return nil, NewNotFoundError("operator", id)
	}
	cp := *o
	return &cp, nil
}

func (m *MockRepository) ListOperatorsByOwner(ctx context.Context, ownerID string) ([]domain.Operator, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Operator
	for _, o := range m.operators {
		if o.OwnerID == ownerID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockRepository) SetOperatorAsset(ctx context.Context, operatorID, column, url string) error {
	if err := m.checkError(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if column == m.FailAssetColumn {
		return fmt.Errorf("%w: set operator %s: injected failure", ErrDatabaseError, column)
	}
	o, ok := m.operators[operatorID]
	if !ok {
		return NewNotFoundError("operator", operatorID)
	}
	value := url
	switch column {
	case OperatorLogoColumn:
		o.LogoURL = &value
	case OperatorCoverColumn:
		o.CoverURL = &value
	default:
		return fmt.Errorf("%w: unknown asset column %q", ErrInvalidInput, column)
	}
	m.patches = append(m.patches, Patch{Table: TableOperators, ID: operatorID, Fields: map[string]any{column: url}})
	return nil
}

func (m *MockRepository) AddGalleryMedia(ctx context.Context, media domain.OperatorMedia) error {
	if err := m.checkError(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	media.ID = uuid.New().String()
	m.gallery = append(m.gallery, media)
	return nil
}

func (m *MockRepository) AddVerificationDocument(ctx context.Context, doc domain.OperatorDocument) error {
	if err := m.checkError(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.ID = uuid.New().String()
	m.documents = append(m.documents, doc)
	return nil
}

func (m *MockRepository) ListVerificationDocuments(ctx context.Context, operatorID string) ([]domain.OperatorDocument, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []domain.OperatorDocument
	for _, d := range m.documents {
		if d.OperatorID == operatorID {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

// =============================================================================
// Points of interest, reviews, flags
// =============================================================================

func (m *MockRepository) ListPOIs(ctx context.Context, filter domain.POIFilter) ([]domain.PointOfInterest, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	term := strings.ToLower(searchTerm(filter.Search))
	var out []domain.PointOfInterest
	for _, p := range m.pois {
		if p.Status != "active" {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Region != "" && p.Region != filter.Region {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	limit, offset := page(filter.Limit, filter.Offset)
	return paginate(out, limit, offset), nil
}

func (m *MockRepository) GetPOI(ctx context.Context, id string) (*domain.PointOfInterest, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pois[id]
	if !ok {
		return nil, NewNotFoundError("point_of_interest", id)
	}
	cp := *p
	return &cp, nil
}

func (m *MockRepository) CreateReview(ctx context.Context, create domain.ReviewCreate) (*domain.Review, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	if create.Rating < 1 || create.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &domain.Review{
		ID:        uuid.New().String(),
		ListingID: create.ListingID,
		UserID:    create.UserID,
		Rating:    create.Rating,
		Comment:   create.Comment,
		Status:    domain.ReviewPublished,
		CreatedAt: time.Now().UTC(),
	}
	m.reviews[r.ID] = r
	cp := *r
	return &cp, nil
}

func (m *MockRepository) ListReviews(ctx context.Context, listingID string, limit, offset int) ([]domain.Review, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Review
	for _, r := range m.reviews {
		if r.ListingID == listingID && r.Status == domain.ReviewPublished {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit, offset = page(limit, offset)
	return paginate(out, limit, offset), nil
}

func (m *MockRepository) CreateFlag(ctx context.Context, create domain.FlagCreate) (*domain.Flag, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	if !domain.Contains(domain.FlaggableEntities, create.EntityType) {
		return nil, fmt.Errorf("%w: unknown entity_type %q", ErrInvalidInput, create.EntityType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f := &domain.Flag{
		ID:         uuid.New().String(),
		EntityType: create.EntityType,
		EntityID:   create.EntityID,
		ReporterID: create.ReporterID,
		Reason:     create.Reason,
		Status:     domain.FlagPending,
		CreatedAt:  time.Now().UTC(),
	}
	m.flags[f.ID] = f
	cp := *f
	return &cp, nil
}

func (m *MockRepository) ListFlags(ctx context.Context, status string, limit, offset int) ([]domain.Flag, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Flag
	for _, f := range m.flags {
		if status == "" || f.Status == status {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	limit, offset = page(limit, offset)
	return paginate(out, limit, offset), nil
}

// =============================================================================
// Guarded updates and RPC
// =============================================================================

func (m *MockRepository) UpdateGuarded(ctx context.Context, table, id string, fields map[string]any, allowedFrom []string) (json.RawMessage, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var target any
	var status string
	switch table {
	case TableListings:
		if l, ok := m.listings[id]; ok {
			target, status = l, l.Status
		}
	case TableOperators:
		if o, ok := m.operators[id]; ok {
			target, status = o, o.Status
		}
	case TableFlags:
		if f, ok := m.flags[id]; ok {
			target, status = f, f.Status
		}
	case TableProfiles:
		if p, ok := m.profiles[id]; ok {
			target, status = p, p.Status
		}
	case TableReviews:
		if r, ok := m.reviews[id]; ok {
			target, status = r, r.Status
		}
	default:
		return nil, fmt.Errorf("%w: unknown table %q", ErrInvalidInput, table)
	}
	if target == nil {
		return nil, NewNotFoundError(table, id)
	}
	if len(allowedFrom) > 0 && !domain.Contains(allowedFrom, status) {
		return nil, fmt.Errorf("%w: %s %s is %q", ErrInvalidTransition, table, id, status)
	}

	// Apply through the JSON form so only the named columns change.
	raw, err := json.Marshal(target)
	if err != nil {
		return nil, err
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	for k, v := range fields {
		row[k] = v
	}
	merged, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(merged, target); err != nil {
		return nil, fmt.Errorf("%w: apply fields: %v", ErrInvalidInput, err)
	}

	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	m.patches = append(m.patches, Patch{Table: table, ID: id, Fields: copied})

	out, _ := json.Marshal(target)
	return out, nil
}

func (m *MockRepository) CurrentStatus(ctx context.Context, table, id string) (string, error) {
	if err := m.checkError(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := false
	var status string
	switch table {
	case TableListings:
		if l, ok := m.listings[id]; ok {
			found, status = true, l.Status
		}
	case TableOperators:
		if o, ok := m.operators[id]; ok {
			found, status = true, o.Status
		}
	case TableFlags:
		if f, ok := m.flags[id]; ok {
			found, status = true, f.Status
		}
	case TableProfiles:
		if p, ok := m.profiles[id]; ok {
			found, status = true, p.Status
		}
	case TableReviews:
		if r, ok := m.reviews[id]; ok {
			found, status = true, r.Status
		}
	default:
		return "", fmt.Errorf("%w: unknown table %q", ErrInvalidInput, table)
	}
	if !found {
		return "", NewNotFoundError(table, id)
	}
	return status, nil
}

func (m *MockRepository) CallRPC(ctx context.Context, fn string, params map[string]any) (json.RawMessage, error) {
	if err := m.checkError(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if result, ok := m.rpc[fn]; ok {
		return result, nil
	}
	return json.RawMessage(`null`), nil
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
