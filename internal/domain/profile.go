// Package domain holds the directory's record types and the rules that do
// not depend on where the records are stored.
package domain

import (
	"strings"
	"time"
)

// Profile roles.
const (
	RoleUser     = "user"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Profile statuses.
const (
	ProfileStatusActive    = "active"
	ProfileStatusSuspended = "suspended"
)

// Roles lists every assignable role.
var Roles = []string{RoleUser, RoleOperator, RoleAdmin}

// Identity is the auth service's view of a user.
type Identity struct {
	ID            string         `json:"id" yaml:"id"`
	Email         string         `json:"email" yaml:"email"`
	EmailVerified bool           `json:"email_verified" yaml:"email_verified"`
	Metadata      map[string]any `json:"user_metadata,omitempty" yaml:"user_metadata,omitempty"`
}

// Profile is the application-level record keyed by identity id.
type Profile struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	DisplayName      string    `json:"display_name"`
	AvatarURL        *string   `json:"avatar_url"`
	Role             string    `json:"role"`
	Status           string    `json:"status"`
	Interests        []string  `json:"interests"`
	PreferredRegions []string  `json:"preferred_regions"`
	TravelStyles     []string  `json:"travel_styles"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// IsAdmin reports whether the profile may run moderation actions.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin && p.Status == ProfileStatusActive
}

// NewDefaultProfile builds the profile inserted on first sign-in.
func NewDefaultProfile(id Identity) Profile {
	return Profile{
		ID:               id.ID,
		Email:            id.Email,
		DisplayName:      DefaultDisplayName(id),
		Role:             RoleUser,
		Status:           ProfileStatusActive,
		Interests:        []string{},
		PreferredRegions: []string{},
		TravelStyles:     []string{},
	}
}

// DefaultDisplayName prefers the full_name metadata, then the local part of
// the email address.
func DefaultDisplayName(id Identity) string {
	if name, ok := id.Metadata["full_name"].(string); ok {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	local, _, _ := strings.Cut(id.Email, "@")
	return local
}

// ProfileUpdate is a partial profile update. Nil fields are not sent.
// Role and status are deliberately absent; they change only through
// moderation.
type ProfileUpdate struct {
	DisplayName      *string   `json:"display_name,omitempty"`
	AvatarURL        *string   `json:"avatar_url,omitempty"`
	Interests        *[]string `json:"interests,omitempty"`
	PreferredRegions *[]string `json:"preferred_regions,omitempty"`
	TravelStyles     *[]string `json:"travel_styles,omitempty"`
}

// IsEmpty reports whether no field is set.
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.AvatarURL == nil && u.Interests == nil &&
		u.PreferredRegions == nil && u.TravelStyles == nil
}

// Apply copies the set fields onto p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.AvatarURL != nil {
		p.AvatarURL = u.AvatarURL
	}
	if u.Interests != nil {
		p.Interests = *u.Interests
	}
	if u.PreferredRegions != nil {
		p.PreferredRegions = *u.PreferredRegions
	}
	if u.TravelStyles != nil {
		p.TravelStyles = *u.TravelStyles
	}
}
