package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// UpdateGuarded patches exactly fields on table/id when the row's status is
// one of allowedFrom. The guard travels with the PATCH as a status filter so
// the database evaluates it atomically.
func (r *Repository) UpdateGuarded(ctx context.Context, table, id string, fields map[string]any, allowedFrom []string) (json.RawMessage, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}

	q := r.from(ctx, table).Update(fields).Eq("id", id)
	if len(allowedFrom) > 0 {
		q = q.In("status", allowedFrom)
	}

	var rows []json.RawMessage
	if err := q.ExecuteInto(ctx, &rows); err != nil {
		return nil, classify("update "+table, err)
	}
	if len(rows) > 0 {
		return rows[0], nil
	}

	// Nothing matched: tell a missing row apart from a disallowed source status.
	status, err := r.CurrentStatus(ctx, table, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s %s is %q", ErrInvalidTransition, table, id, status)
}

// CurrentStatus reads the status column of table/id.
func (r *Repository) CurrentStatus(ctx context.Context, table, id string) (string, error) {
	if err := r.ready(); err != nil {
		return "", err
	}
	var current []struct {
		Status string `json:"status"`
	}
	if err := r.from(ctx, table).Select("status").Eq("id", id).Limit(1).ExecuteInto(ctx, &current); err != nil {
		return "", classify("read "+table, err)
	}
	if len(current) == 0 {
		return "", NewNotFoundError(table, id)
	}
	return current[0].Status, nil
}
