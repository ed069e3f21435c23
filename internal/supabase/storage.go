package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// StorageClient talks to the Storage API. Paths are bucket-relative.
type StorageClient struct {
	client *Client
}

// objectURL joins the storage endpoint, a route prefix and bucket/path,
// escaping each path segment.
func (s *StorageClient) objectURL(route, bucket, path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.client.storageURL + "/object" + route + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// exchange sends one request and decodes a JSON reply into out when out
// is non-nil.
func (s *StorageClient) exchange(ctx context.Context, method, endpoint string, body []byte, headers map[string]string, accessToken string, out any) error {
	respBody, status, err := s.client.request(ctx, method, endpoint, body, headers, accessToken)
	if err != nil {
		return err
	}
	if status >= 400 {
		return parseError(respBody, status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Upload stores data at bucket/path through a signed upload: the caller's
// token mints a one-shot upload URL and the bytes go to that URL. It
// returns the object key.
func (s *StorageClient) Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions, accessToken string) (string, error) {
	signed, err := s.CreateSignedUploadURL(ctx, bucket, path, accessToken)
	if err != nil {
		return "", fmt.Errorf("sign upload: %w", err)
	}
	return s.UploadToSignedURL(ctx, bucket, path, signed.Token, data, opts)
}

// CreateSignedUploadURL mints a one-shot upload URL for bucket/path.
func (s *StorageClient) CreateSignedUploadURL(ctx context.Context, bucket, path, accessToken string) (*SignedUpload, error) {
	var reply struct {
		URL string `json:"url"`
	}
	if err := s.exchange(ctx, http.MethodPost, s.objectURL("/upload/sign", bucket, path), nil, nil, accessToken, &reply); err != nil {
		return nil, err
	}

	signed := &SignedUpload{URL: s.client.storageURL + reply.URL, Path: path}
	if u, err := url.Parse(reply.URL); err == nil {
		signed.Token = u.Query().Get("token")
	}
	if signed.Token == "" {
		return nil, fmt.Errorf("signed upload url for %s/%s carries no token", bucket, path)
	}
	return signed, nil
}

// UploadToSignedURL sends data with a token from CreateSignedUploadURL.
// The token authorizes the write, so no bearer token is attached.
func (s *StorageClient) UploadToSignedURL(ctx context.Context, bucket, path, token string, data []byte, opts UploadOptions) (string, error) {
	headers := map[string]string{"Content-Type": "application/octet-stream"}
	if opts.ContentType != "" {
		headers["Content-Type"] = opts.ContentType
	}
	if opts.CacheControl != "" {
		headers["Cache-Control"] = opts.CacheControl
	}
	if opts.Upsert {
		headers["x-upsert"] = "true"
	}

	var reply struct {
		Key string `json:"Key"`
	}
	endpoint := s.objectURL("/upload/sign", bucket, path) + "?token=" + url.QueryEscape(token)
	if err := s.exchange(ctx, http.MethodPut, endpoint, data, headers, "", &reply); err != nil {
		return "", err
	}
	return reply.Key, nil
}

// Remove deletes objects from a bucket.
func (s *StorageClient) Remove(ctx context.Context, bucket string, paths []string, accessToken string) error {
	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return s.exchange(ctx, http.MethodDelete, s.client.storageURL+"/object/"+url.PathEscape(bucket), body, nil, accessToken, nil)
}

// GetPublicURL returns the URL of an object in a public bucket. No request
// is made.
func (s *StorageClient) GetPublicURL(bucket, path string) string {
	return s.objectURL("/public", bucket, path)
}

// CreateSignedURL returns a download URL for a private object that stays
// valid for expiresIn seconds.
func (s *StorageClient) CreateSignedURL(ctx context.Context, bucket, path string, expiresIn int, accessToken string) (string, error) {
	body, err := json.Marshal(map[string]int{"expiresIn": expiresIn})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var reply struct {
		SignedURL string `json:"signedURL"`
	}
	if err := s.exchange(ctx, http.MethodPost, s.objectURL("/sign", bucket, path), body, nil, accessToken, &reply); err != nil {
		return "", err
	}
	return s.client.storageURL + reply.SignedURL, nil
}
