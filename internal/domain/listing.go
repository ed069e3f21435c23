package domain

import "time"

// Listing categories.
const (
	CategoryActivity      = "activity"
	CategoryDining        = "dining"
	CategoryAccommodation = "accommodation"
	CategoryTour          = "tour"
	CategoryTransport     = "transport"
	CategoryEvent         = "event"
)

// ListingCategories lists every valid category.
var ListingCategories = []string{
	CategoryActivity, CategoryDining, CategoryAccommodation,
	CategoryTour, CategoryTransport, CategoryEvent,
}

// Listing statuses.
const (
	ListingPending     = "pending"
	ListingApproved    = "approved"
	ListingRejected    = "rejected"
	ListingFeatured    = "featured"
	ListingUnpublished = "unpublished"
)

// ListingStatuses lists every valid listing status.
var ListingStatuses = []string{
	ListingPending, ListingApproved, ListingRejected, ListingFeatured, ListingUnpublished,
}

// PublicListingStatuses are the statuses visible to anonymous readers.
var PublicListingStatuses = []string{ListingApproved, ListingFeatured}

// Listing is a bookable or viewable offering.
type Listing struct {
	ID              string    `json:"id"`
	OperatorID      string    `json:"operator_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Region          string    `json:"region"`
	PriceFrom       *float64  `json:"price_from"`
	Status          string    `json:"status"`
	IsFeatured      bool      `json:"is_featured"`
	RejectionReason *string   `json:"rejection_reason"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListingCreate is the insert payload for a new listing.
type ListingCreate struct {
	OperatorID  string   `json:"operator_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Region      string   `json:"region"`
	PriceFrom   *float64 `json:"price_from,omitempty"`
	Status      string   `json:"status"`
}

// ListingFilter narrows listing queries.
type ListingFilter struct {
	Category   string
	Region     string
	Statuses   []string
	OperatorID string
	Search     string
	// MinPrice and MaxPrice bound price_from inclusively. Listings without
	// a price never match a bound.
	MinPrice *float64
	MaxPrice *float64
	Limit    int
	Offset   int
}
