package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-tourism/directory/internal/cache"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/moderation"
)

func seedAdmin(h *harness) {
	h.repo.PutProfile(domain.Profile{ID: "admin", Email: "admin@example.com", Role: domain.RoleAdmin, Status: domain.ProfileStatusActive})
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	h := newHarness(t)
	seedListings(h)

	rec := h.do(t, http.MethodPost, "/admin/listing/l-pending/approve", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/admin/listing/l-pending/approve", "u1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/admin/flags", "u1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Empty(t, h.repo.Patches())
}

func TestAdmin_PerformSendsOnlyActionFields(t *testing.T) {
	h := newHarness(t)
	seedListings(h)
	seedAdmin(h)

	rec := h.do(t, http.MethodPost, "/admin/listing/l-approved/feature", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	listing := decode[domain.Listing](t, rec)
	assert.Equal(t, domain.ListingFeatured, listing.Status)
	assert.Equal(t, "Kayak tour", listing.Title)

	rec = h.do(t, http.MethodPost, "/admin/listing/l-pending/reject", "admin", actionInput{Reason: "missing photos"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	patches := h.repo.Patches()
	require.Len(t, patches, 2)
	assert.Equal(t, map[string]any{"status": "featured", "is_featured": true}, patches[0].Fields)
	assert.Equal(t, map[string]any{"status": "rejected", "rejection_reason": "missing photos"}, patches[1].Fields)
}

func TestAdmin_PerformErrors(t *testing.T) {
	h := newHarness(t)
	seedListings(h)
	seedAdmin(h)

	rec := h.do(t, http.MethodPost, "/admin/listing/l-pending/unfeature", "admin", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/admin/listing/missing/approve", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/admin/listing/l-pending/delete", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/admin/listing/l-pending/reject", "admin", `{"status":"approved"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, h.repo.Patches())
}

func TestAdmin_ActionsAndFlags(t *testing.T) {
	h := newHarness(t)
	seedListings(h)
	seedAdmin(h)
	h.repo.PutFlag(domain.Flag{ID: "f1", EntityType: domain.EntityListing, EntityID: "l-approved", Reason: "spam", Status: domain.FlagPending})

	rec := h.do(t, http.MethodGet, "/admin/listing/l-approved/actions", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	set := decode[moderation.ActionSet](t, rec)
	assert.Equal(t, domain.ListingApproved, set.Status)
	assert.Equal(t, []string{"feature", "reject", "unpublish"}, set.Actions)

	rec = h.do(t, http.MethodGet, "/admin/flags?status=pending", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Flag](t, rec), 1)

	rec = h.do(t, http.MethodGet, "/admin/flags?status=bogus", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/admin/flag/f1/resolve", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.FlagResolved, decode[domain.Flag](t, rec).Status)
}

func TestAdmin_UserActionsReachCachedProfiles(t *testing.T) {
	h := newCachedHarness(t, cache.NewMemory())
	seedListings(h)
	seedAdmin(h)
	h.repo.PutProfile(domain.Profile{ID: "admin2", Email: "admin2@example.com", Role: domain.RoleAdmin, Status: domain.ProfileStatusActive})

	// Warm the cache with admin2's active admin profile.
	rec := h.do(t, http.MethodGet, "/admin/flags", "admin2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/admin/user/admin2/suspend", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/admin/listing/l-pending/approve", "admin2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/me", "admin2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[domain.Profile](t, rec)
	assert.Equal(t, domain.ProfileStatusSuspended, me.Status)

	rec = h.do(t, http.MethodPost, "/admin/user/admin2/make_user", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodGet, "/me", "admin2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.RoleUser, decode[domain.Profile](t, rec).Role)

	require.Len(t, h.repo.Patches(), 2)
}
