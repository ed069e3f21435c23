package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

// Operator asset columns settable by SetOperatorAsset.
const (
	OperatorLogoColumn  = "logo_url"
	OperatorCoverColumn = "cover_url"
)

// CreateOperator inserts an operator in pending status.
func (r *Repository) CreateOperator(ctx context.Context, create domain.OperatorCreate) (*domain.Operator, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(create.OwnerID) == "" || strings.TrimSpace(create.BusinessName) == "" {
		return nil, fmt.Errorf("%w: owner_id and business_name are required", ErrInvalidInput)
	}
	create.Status = domain.OperatorPending

	var rows []domain.Operator
	if err := r.from(ctx, TableOperators).Insert(create).ExecuteInto(ctx, &rows); err != nil {
		return nil, classify("create operator", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: create operator returned empty response", ErrDatabaseError)
	}
	return &rows[0], nil
}

// GetOperator fetches one operator.
func (r *Repository) GetOperator(ctx context.Context, id string) (*domain.Operator, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}

	var rows []domain.Operator
	if err := r.from(ctx, TableOperators).Select("*").Eq("id", id).Limit(1).ExecuteInto(ctx, &rows); err != nil {
		return nil, classify("get operator", err)
	}
	return firstRow(rows, "operator", id)
}

// ListOperatorsByOwner returns every operator owned by ownerID regardless of status.
func (r *Repository) ListOperatorsByOwner(ctx context.Context, ownerID string) ([]domain.Operator, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner_id cannot be empty", ErrInvalidInput)
	}

	var rows []domain.Operator
	err := r.from(ctx, TableOperators).
		Select("*").
		Eq("owner_id", ownerID).
		Order("created_at", supabase.OrderDesc).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, classify("list operators", err)
	}
	return rows, nil
}

// SetOperatorAsset stores one uploaded asset URL. Only that column is sent.
func (r *Repository) SetOperatorAsset(ctx context.Context, operatorID, column, url string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if column != OperatorLogoColumn && column != OperatorCoverColumn {
		return fmt.Errorf("%w: unknown asset column %q", ErrInvalidInput, column)
	}

	var rows []domain.Operator
	if err := r.from(ctx, TableOperators).Update(map[string]string{column: url}).Eq("id", operatorID).ExecuteInto(ctx, &rows); err != nil {
		return classify("set operator "+column, err)
	}
	if len(rows) == 0 {
		return NewNotFoundError("operator", operatorID)
	}
	return nil
}

// AddGalleryMedia records one uploaded gallery item.
func (r *Repository) AddGalleryMedia(ctx context.Context, media domain.OperatorMedia) error {
	if err := r.ready(); err != nil {
		return err
	}
	if media.OperatorID == "" || media.StoragePath == "" {
		return fmt.Errorf("%w: operator_id and storage_path are required", ErrInvalidInput)
	}
	row := map[string]string{
		"operator_id":  media.OperatorID,
		"storage_path": media.StoragePath,
		"public_url":   media.PublicURL,
		"content_type": media.ContentType,
	}
	if _, err := r.from(ctx, TableGalleryMedia).Insert(row).Execute(ctx); err != nil {
		return classify("add gallery media", err)
	}
	return nil
}

// AddVerificationDocument records one uploaded verification document.
func (r *Repository) AddVerificationDocument(ctx context.Context, doc domain.OperatorDocument) error {
	if err := r.ready(); err != nil {
		return err
	}
	if doc.OperatorID == "" || doc.StoragePath == "" {
		return fmt.Errorf("%w: operator_id and storage_path are required", ErrInvalidInput)
	}
	row := map[string]string{
		"operator_id":   doc.OperatorID,
		"document_type": doc.DocumentType,
		"storage_path":  doc.StoragePath,
		"content_type":  doc.ContentType,
	}
	if _, err := r.from(ctx, TableVerificationDocs).Insert(row).Execute(ctx); err != nil {
		return classify("add verification document", err)
	}
	return nil
}

// ListVerificationDocuments returns the document rows of one operator,
// oldest first.
func (r *Repository) ListVerificationDocuments(ctx context.Context, operatorID string) ([]domain.OperatorDocument, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(operatorID) == "" {
		return nil, fmt.Errorf("%w: operator_id cannot be empty", ErrInvalidInput)
	}

	var docs []domain.OperatorDocument
	err := r.from(ctx, TableVerificationDocs).
		Select("*").
		Eq("operator_id", operatorID).
		Order("created_at").
		ExecuteInto(ctx, &docs)
	if err != nil {
		return nil, classify("list verification documents", err)
	}
	return docs, nil
}
