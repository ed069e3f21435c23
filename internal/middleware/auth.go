// Package middleware provides HTTP middleware for the directory API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/errors"
	internalhttputil "github.com/waypoint-tourism/directory/internal/httputil"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

// Claims are the claims of a Supabase access token.
type Claims struct {
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// UserLookup resolves an access token remotely. It is used when no JWT
// secret is configured.
type UserLookup interface {
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

type claimsKey struct{}

// AuthMiddleware authenticates requests carrying a Supabase bearer token.
type AuthMiddleware struct {
	secret    []byte
	lookup    UserLookup
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates the middleware. With a secret, tokens are
// verified locally as HS256 JWTs; otherwise lookup asks the auth server.
func NewAuthMiddleware(secret []byte, lookup UserLookup, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		secret:    secret,
		lookup:    lookup,
		logger:    logger,
		skipPaths: skip,
	}
}

// Handler requires a valid token.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return m.wrap(next, true)
}

// Optional authenticates when a token is present and lets anonymous
// requests through. An invalid token is still rejected.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return m.wrap(next, false)
}

func (m *AuthMiddleware) wrap(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if required {
				m.respondError(w, r, errors.Unauthorized("Missing Authorization header"))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}
		tokenString := parts[1]

		claims, err := m.verify(r.Context(), tokenString)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.UserID())
		if claims.Role != "" {
			ctx = logging.WithRole(ctx, claims.Role)
		}
		ctx = database.WithAccessToken(ctx, tokenString)
		ctx = context.WithValue(ctx, claimsKey{}, claims)

		m.logger.WithContext(ctx).Debug("Authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) verify(ctx context.Context, tokenString string) (*Claims, error) {
	if len(m.secret) > 0 {
		return m.validateToken(tokenString)
	}
	if m.lookup == nil {
		return nil, errors.Internal("no token verifier configured", nil)
	}

	user, err := m.lookup.GetUser(ctx, tokenString)
	if err != nil {
		if supabase.IsUnauthorized(err) {
			return nil, errors.InvalidToken(err)
		}
		return nil, errors.Upstream("could not verify token", err)
	}
	return &Claims{
		Email:        user.Email,
		Role:         user.Role,
		AppMetadata:  user.AppMetadata,
		UserMetadata: user.UserMetadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.ID,
		},
	}, nil
}

// validateToken checks an HS256 token against the project secret.
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "token has no subject")
	}
	return claims, nil
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetClaims returns the verified claims, or nil for anonymous requests.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// RequireUserID middleware ensures user ID is present in context
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			internalhttputil.Unauthorized(w, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
