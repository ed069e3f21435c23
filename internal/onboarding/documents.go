package onboarding

import (
	"context"
	"errors"
	"time"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
)

// ErrForbidden is returned when the caller neither owns the operator nor
// is an admin.
var ErrForbidden = errors.New("only the operator's owner or an admin may view its documents")

// DocumentLink is a verification document with a time-limited download URL.
type DocumentLink struct {
	domain.OperatorDocument
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Documents returns signed links to an operator's verification documents.
// Documents sit in a private bucket, so every link expires after LinkTTL.
func (s *Service) Documents(ctx context.Context, actor *domain.Profile, operatorID string) ([]DocumentLink, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	op, err := s.repo.GetOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if op.OwnerID != actor.ID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	docs, err := s.repo.ListVerificationDocuments(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	bucket := s.cfg.Buckets.For(PurposeDocument)
	expiresAt := time.Now().Add(s.cfg.LinkTTL).UTC()
	links := make([]DocumentLink, 0, len(docs))
	for _, doc := range docs {
		url, err := s.storage.CreateSignedURL(ctx, bucket, doc.StoragePath, int(s.cfg.LinkTTL/time.Second), database.AccessToken(ctx))
		if err != nil {
			return nil, err
		}
		links = append(links, DocumentLink{OperatorDocument: doc, URL: url, ExpiresAt: expiresAt})
	}
	return links, nil
}
