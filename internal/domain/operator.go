package domain

import "time"

// Operator statuses.
const (
	OperatorPending   = "pending"
	OperatorApproved  = "approved"
	OperatorRejected  = "rejected"
	OperatorSuspended = "suspended"
)

// OperatorStatuses lists every valid operator status.
var OperatorStatuses = []string{OperatorPending, OperatorApproved, OperatorRejected, OperatorSuspended}

// Operator is a business onboarded to publish listings.
type Operator struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	BusinessName string     `json:"business_name"`
	Description  string     `json:"description"`
	ContactEmail string     `json:"contact_email"`
	ContactPhone string     `json:"contact_phone"`
	Website      string     `json:"website"`
	Region       string     `json:"region"`
	LogoURL      *string    `json:"logo_url"`
	CoverURL     *string    `json:"cover_url"`
	Status       string     `json:"status"`
	VerifiedAt   *time.Time `json:"verified_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// OperatorCreate is the insert payload for a new operator.
type OperatorCreate struct {
	OwnerID      string `json:"owner_id"`
	BusinessName string `json:"business_name"`
	Description  string `json:"description"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone,omitempty"`
	Website      string `json:"website,omitempty"`
	Region       string `json:"region"`
	Status       string `json:"status"`
}

// OperatorMedia is one gallery item.
type OperatorMedia struct {
	ID          string    `json:"id,omitempty"`
	OperatorID  string    `json:"operator_id"`
	StoragePath string    `json:"storage_path"`
	PublicURL   string    `json:"public_url"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Verification document types.
const (
	DocumentBusinessLicense = "business_license"
	DocumentInsurance       = "insurance"
	DocumentIdentity        = "identity"
	DocumentOther           = "other"
)

// OperatorDocument is one verification document. Documents live in a
// private bucket; only the storage path is kept.
type OperatorDocument struct {
	ID           string    `json:"id,omitempty"`
	OperatorID   string    `json:"operator_id"`
	DocumentType string    `json:"document_type"`
	StoragePath  string    `json:"storage_path"`
	ContentType  string    `json:"content_type"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}
