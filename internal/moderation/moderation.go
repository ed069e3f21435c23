// Package moderation runs the admin status actions. Each action is a single
// guarded PATCH that writes only the fields the action declares.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/metrics"
	"github.com/waypoint-tourism/directory/internal/notify"
)

var (
	// ErrForbidden is returned when the actor is not an active admin.
	ErrForbidden = errors.New("admin role required")
	// ErrUnknownAction is returned for an unknown kind/action pair.
	ErrUnknownAction = errors.New("unknown moderation action")
)

// Store is what moderation needs from the repository.
type Store interface {
	database.StatusUpdater
	ListFlags(ctx context.Context, status string, limit, offset int) ([]domain.Flag, error)
}

// Service performs admin actions.
type Service struct {
	store    Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewService creates a moderation service.
func NewService(store Store, notifier notify.Notifier, m *metrics.Metrics, logger *logging.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, notifier: notifier, metrics: m, logger: logger, now: time.Now}
}

// Request names one action on one row.
type Request struct {
	Kind   Kind
	ID     string
	Action string
	Reason string
}

// Perform runs req on behalf of actor and returns the updated row.
func (s *Service) Perform(ctx context.Context, actor *domain.Profile, req Request) (json.RawMessage, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	t, ok := Lookup(req.Kind, req.Action)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownAction, req.Kind, req.Action)
	}
	if strings.TrimSpace(req.ID) == "" {
		return nil, fmt.Errorf("%w: id is required", database.ErrInvalidInput)
	}

	fields := t.Fields(Params{Reason: strings.TrimSpace(req.Reason), ActorID: actor.ID, Now: s.now()})
	row, err := s.store.UpdateGuarded(ctx, req.Kind.Table(), req.ID, fields, t.From)

	log := s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"kind":   req.Kind,
		"id":     req.ID,
		"action": req.Action,
		"admin":  actor.ID,
	})
	s.metrics.RecordModeration(string(req.Kind), req.Action, err == nil)
	if err != nil {
		log.WithError(err).Warn("moderation action failed")
		s.notifier.Notify(ctx, notify.Error("Action failed", database.BackendMessage(err)))
		return nil, err
	}

	log.Info("moderation action applied")
	s.notifier.Notify(ctx, notify.Success("Updated", fmt.Sprintf("%s %s: %s", req.Kind, req.ID, req.Action)))
	return row, nil
}

// Flags lists flagged content for admins.
func (s *Service) Flags(ctx context.Context, actor *domain.Profile, status string, limit, offset int) ([]domain.Flag, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if status != "" {
		if err := database.ValidateStatus(status, domain.FlagStatuses); err != nil {
			return nil, err
		}
	}
	return s.store.ListFlags(ctx, status, limit, offset)
}

// ActionSet is the row's current status and the actions it allows.
type ActionSet struct {
	Kind    Kind     `json:"kind"`
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Actions []string `json:"actions"`
}

// Actions reports which actions an admin may run on kind/id right now.
func (s *Service) Actions(ctx context.Context, actor *domain.Profile, kind Kind, id string) (*ActionSet, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	table := kind.Table()
	if table == "" {
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownAction, kind)
	}
	status, err := s.store.CurrentStatus(ctx, table, id)
	if err != nil {
		return nil, err
	}
	actions := AvailableActions(kind, status)
	if actions == nil {
		actions = []string{}
	}
	return &ActionSet{Kind: kind, ID: id, Status: status, Actions: actions}, nil
}
