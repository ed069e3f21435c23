package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// AuthClient talks to the auth (GoTrue) endpoints.
type AuthClient struct {
	client *Client
}

// call sends payload (if any) to path and decodes the response into out
// (if any). accessToken "" means the anon key.
func (a *AuthClient) call(ctx context.Context, method, path string, payload any, accessToken string, out any) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	respBody, status, err := a.client.request(ctx, method, a.client.authURL+path, body, nil, accessToken)
	if err != nil {
		return err
	}
	if status >= 400 {
		return parseError(respBody, status)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// SignUp creates a new user. Depending on project settings the returned
// session has no access token until the email is confirmed.
func (a *AuthClient) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	var raw json.RawMessage
	if err := a.call(ctx, http.MethodPost, "/signup", req, "", &raw); err != nil {
		return nil, err
	}

	// With email confirmation enabled the endpoint returns the bare user.
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if session.User == nil {
		var user User
		if err := json.Unmarshal(raw, &user); err == nil && user.ID != "" {
			session.User = &user
		}
	}
	return &session, nil
}

// SignInWithPassword authenticates a user with email/password.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return a.token(ctx, "password", map[string]string{"email": email, "password": password})
}

// RefreshToken exchanges a refresh token for a new session.
func (a *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	return a.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (a *AuthClient) token(ctx context.Context, grantType string, payload map[string]string) (*Session, error) {
	var session Session
	if err := a.call(ctx, http.MethodPost, "/token?grant_type="+url.QueryEscape(grantType), payload, "", &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetUser retrieves the user owning accessToken.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := a.call(ctx, http.MethodGet, "/user", nil, accessToken, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SignOut revokes the session owning accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	return a.call(ctx, http.MethodPost, "/logout", nil, accessToken, nil)
}

// ResetPasswordForEmail sends a password reset email.
func (a *AuthClient) ResetPasswordForEmail(ctx context.Context, email string) error {
	return a.call(ctx, http.MethodPost, "/recover", map[string]string{"email": email}, "", nil)
}
