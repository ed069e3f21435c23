// Package supabase is a client for the hosted backend: PostgREST for data,
// GoTrue for auth, Storage for files and Realtime for push notifications.
package supabase

import (
	"net/http"
	"time"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds client configuration.
type Config struct {
	// URL is the project URL (e.g. https://xyz.supabase.co).
	URL string
	// AnonKey is the public anon key. It is sent as the apikey header on every
	// request and as the bearer token when no user token is supplied.
	AnonKey string
	// ServiceKey is the service-role key; it bypasses row-level security and
	// is only used for admin operations.
	ServiceKey string
	// Timeout for HTTP requests. Defaults to 30s.
	Timeout time.Duration
	// HTTPClient overrides the HTTP client. Retry and circuit breaking are
	// layered on its transport when Resilience is set.
	HTTPClient *http.Client
	// Resilience enables retries and the circuit breaker.
	Resilience *ResilienceConfig
	// DefaultHeaders are added to every request.
	DefaultHeaders map[string]string
}

// ResilienceConfig groups the retry and circuit breaker settings.
type ResilienceConfig struct {
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
	// OnRetry is called before each retry attempt.
	OnRetry func(method string, attempt int, reason string)
}

// =============================================================================
// Auth Types
// =============================================================================

// User is the identity record issued by the auth service.
type User struct {
	ID               string         `json:"id"`
	Aud              string         `json:"aud,omitempty"`
	Role             string         `json:"role,omitempty"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	Phone            string         `json:"phone,omitempty"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// EmailVerified reports whether the user confirmed their email address.
func (u *User) EmailVerified() bool {
	return u != nil && u.EmailConfirmedAt != nil && !u.EmailConfirmedAt.IsZero()
}

// Session is an auth session as returned by the token endpoints.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// Expiry returns the absolute expiry time of the access token.
func (s *Session) Expiry(issuedAt time.Time) time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	return issuedAt.Add(time.Duration(s.ExpiresIn) * time.Second)
}

// SignUpRequest for user registration.
type SignUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// =============================================================================
// Database Types
// =============================================================================

// FilterOperator for query filters.
type FilterOperator string

const (
	OpEq    FilterOperator = "eq"
	OpGte   FilterOperator = "gte"
	OpLte   FilterOperator = "lte"
	OpILike FilterOperator = "ilike"
	OpIn    FilterOperator = "in"
)

// OrderDirection for sorting.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// =============================================================================
// Storage Types
// =============================================================================

// UploadOptions for file uploads.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

// SignedUpload is a one-shot upload URL for a single object path.
type SignedUpload struct {
	URL   string `json:"url"`
	Token string `json:"token"`
	Path  string `json:"path"`
}
