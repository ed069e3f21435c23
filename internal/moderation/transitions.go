package moderation

import (
	"sort"
	"time"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
)

// Kind is a moderated entity type.
type Kind string

const (
	KindListing  Kind = "listing"
	KindOperator Kind = "operator"
	KindFlag     Kind = "flag"
	KindUser     Kind = "user"
)

// Kinds lists every moderated entity type.
var Kinds = []Kind{KindListing, KindOperator, KindFlag, KindUser}

// Table returns the backing table for k, or "".
func (k Kind) Table() string {
	switch k {
	case KindListing:
		return database.TableListings
	case KindOperator:
		return database.TableOperators
	case KindFlag:
		return database.TableFlags
	case KindUser:
		return database.TableProfiles
	}
	return ""
}

// Params carries the caller-supplied parts of an action.
type Params struct {
	Reason  string
	ActorID string
	Now     time.Time
}

// Transition is one admin action: the statuses it may start from and the
// fields it writes. Fields returns exactly what is sent.
type Transition struct {
	Action string
	From   []string
	Fields func(p Params) map[string]any
}

func set(status string) func(Params) map[string]any {
	return func(Params) map[string]any { return map[string]any{"status": status} }
}

var transitions = map[Kind][]Transition{
	KindListing: {
		{Action: "approve", From: []string{domain.ListingPending, domain.ListingRejected, domain.ListingUnpublished}, Fields: set(domain.ListingApproved)},
		// A reject without a reason leaves any earlier rejection_reason on
		// the row; approve does not clear it either.
		{Action: "reject", From: []string{domain.ListingPending, domain.ListingApproved}, Fields: func(p Params) map[string]any {
			f := map[string]any{"status": domain.ListingRejected}
			if p.Reason != "" {
				f["rejection_reason"] = p.Reason
			}
			return f
		}},
		{Action: "feature", From: []string{domain.ListingApproved}, Fields: func(Params) map[string]any {
			return map[string]any{"status": domain.ListingFeatured, "is_featured": true}
		}},
		{Action: "unfeature", From: []string{domain.ListingFeatured}, Fields: func(Params) map[string]any {
			return map[string]any{"status": domain.ListingApproved, "is_featured": false}
		}},
		{Action: "unpublish", From: []string{domain.ListingApproved, domain.ListingFeatured}, Fields: func(Params) map[string]any {
			return map[string]any{"status": domain.ListingUnpublished, "is_featured": false}
		}},
	},
	KindOperator: {
		{Action: "approve", From: []string{domain.OperatorPending, domain.OperatorRejected}, Fields: func(p Params) map[string]any {
			return map[string]any{"status": domain.OperatorApproved, "verified_at": p.Now.UTC().Format(time.RFC3339)}
		}},
		{Action: "reject", From: []string{domain.OperatorPending}, Fields: set(domain.OperatorRejected)},
		{Action: "suspend", From: []string{domain.OperatorApproved}, Fields: set(domain.OperatorSuspended)},
		{Action: "reinstate", From: []string{domain.OperatorSuspended}, Fields: set(domain.OperatorApproved)},
	},
	KindFlag: {
		{Action: "resolve", From: []string{domain.FlagPending}, Fields: resolveFlag(domain.FlagResolved)},
		{Action: "dismiss", From: []string{domain.FlagPending}, Fields: resolveFlag(domain.FlagDismissed)},
	},
	KindUser: {
		{Action: "suspend", From: []string{domain.ProfileStatusActive}, Fields: set(domain.ProfileStatusSuspended)},
		{Action: "activate", From: []string{domain.ProfileStatusSuspended}, Fields: set(domain.ProfileStatusActive)},
		{Action: "make_admin", From: []string{domain.ProfileStatusActive}, Fields: role(domain.RoleAdmin)},
		{Action: "make_operator", From: []string{domain.ProfileStatusActive}, Fields: role(domain.RoleOperator)},
		{Action: "make_user", From: []string{domain.ProfileStatusActive, domain.ProfileStatusSuspended}, Fields: role(domain.RoleUser)},
	},
}

func resolveFlag(status string) func(Params) map[string]any {
	return func(p Params) map[string]any {
		f := map[string]any{"status": status, "resolved_at": p.Now.UTC().Format(time.RFC3339)}
		if p.ActorID != "" {
			f["resolved_by"] = p.ActorID
		}
		return f
	}
}

func role(r string) func(Params) map[string]any {
	return func(Params) map[string]any { return map[string]any{"role": r} }
}

// Lookup finds the transition for kind/action.
func Lookup(kind Kind, action string) (Transition, bool) {
	for _, t := range transitions[kind] {
		if t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

// AvailableActions returns the actions that may run on a kind in status,
// sorted by name.
func AvailableActions(kind Kind, status string) []string {
	var actions []string
	for _, t := range transitions[kind] {
		if domain.Contains(t.From, status) {
			actions = append(actions, t.Action)
		}
	}
	sort.Strings(actions)
	return actions
}
