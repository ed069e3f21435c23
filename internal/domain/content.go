package domain

import "time"

// PointOfInterest is a mapped place.
type PointOfInterest struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Region      string    `json:"region"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// POIFilter narrows point-of-interest queries.
type POIFilter struct {
	Category string
	Region   string
	Search   string
	Limit    int
	Offset   int
}

// Review statuses.
const (
	ReviewPublished = "published"
	ReviewHidden    = "hidden"
)

// Review is a user's rating of a listing.
type Review struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewCreate is the insert payload for a review.
type ReviewCreate struct {
	ListingID string `json:"listing_id"`
	UserID    string `json:"user_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	Status    string `json:"status"`
}

// Flag statuses.
const (
	FlagPending   = "pending"
	FlagResolved  = "resolved"
	FlagDismissed = "dismissed"
)

// FlagStatuses lists every valid flag status.
var FlagStatuses = []string{FlagPending, FlagResolved, FlagDismissed}

// Entity types that can be flagged.
const (
	EntityListing  = "listing"
	EntityOperator = "operator"
	EntityReview   = "review"
	EntityPOI      = "poi"
	EntityProfile  = "profile"
)

// FlaggableEntities lists every valid entity_type.
var FlaggableEntities = []string{EntityListing, EntityOperator, EntityReview, EntityPOI, EntityProfile}

// Flag is a moderation report about another record.
type Flag struct {
	ID         string     `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	ReporterID string     `json:"reporter_id"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ResolvedBy *string    `json:"resolved_by"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// FlagCreate is the insert payload for a report.
type FlagCreate struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	ReporterID string `json:"reporter_id"`
	Reason     string `json:"reason"`
	Status     string `json:"status"`
}

// Contains reports whether v is in set.
func Contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
