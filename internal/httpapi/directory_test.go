package httpapi

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/onboarding"
)

func seedListings(h *harness) {
	h.repo.PutOperator(domain.Operator{ID: "op1", OwnerID: "owner", BusinessName: "Blue Kayaks", Status: domain.OperatorApproved})
	h.repo.PutListing(domain.Listing{ID: "l-approved", OperatorID: "op1", Title: "Kayak tour", Category: domain.CategoryTour, Status: domain.ListingApproved})
	h.repo.PutListing(domain.Listing{ID: "l-featured", OperatorID: "op1", Title: "Sunset paddle", Category: domain.CategoryActivity, Status: domain.ListingFeatured, IsFeatured: true})
	h.repo.PutListing(domain.Listing{ID: "l-pending", OperatorID: "op1", Title: "Night dive", Category: domain.CategoryActivity, Status: domain.ListingPending})
}

func TestListListings_PublicSeesApprovedAndFeatured(t *testing.T) {
	h := newHarness(t)
	seedListings(h)

	rec := h.do(t, http.MethodGet, "/listings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listings := decode[[]domain.Listing](t, rec)
	require.Len(t, listings, 2)
	assert.Equal(t, "l-featured", listings[0].ID)

	rec = h.do(t, http.MethodGet, "/listings?status=pending", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/listings?category=spaceflight", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListListings_OperatorSeesOwnRows(t *testing.T) {
	h := newHarness(t)
	seedListings(h)

	rec := h.do(t, http.MethodGet, "/listings?operator_id=op1", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Listing](t, rec), 3)

	rec = h.do(t, http.MethodGet, "/listings?operator_id=op1&status=pending", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listings := decode[[]domain.Listing](t, rec)
	require.Len(t, listings, 1)
	assert.Equal(t, "l-pending", listings[0].ID)

	rec = h.do(t, http.MethodGet, "/listings?operator_id=op1", "someone-else", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Listing](t, rec), 2)
}

func TestGetListing(t *testing.T) {
	h := newHarness(t)
	seedListings(h)

	rec := h.do(t, http.MethodGet, "/listings/l-approved", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Kayak tour", decode[domain.Listing](t, rec).Title)

	rec = h.do(t, http.MethodGet, "/listings/l-pending", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/listings/l-pending", "owner", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/listings/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateListing(t *testing.T) {
	h := newHarness(t)
	seedListings(h)
	body := domain.ListingCreate{OperatorID: "op1", Title: "Reef snorkel", Category: domain.CategoryActivity, Region: "coast"}

	rec := h.do(t, http.MethodPost, "/listings", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/listings", "someone-else", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/listings", "owner", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.ListingPending, decode[domain.Listing](t, rec).Status)
}

func TestReviews(t *testing.T) {
	h := newHarness(t)
	seedListings(h)

	rec := h.do(t, http.MethodPost, "/listings/l-approved/reviews", "u1", reviewInput{Rating: 6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/listings/l-approved/reviews", "u1", reviewInput{Rating: 5, Comment: " Great guides "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	review := decode[domain.Review](t, rec)
	assert.Equal(t, "u1", review.UserID)
	assert.Equal(t, "Great guides", review.Comment)

	rec = h.do(t, http.MethodGet, "/listings/l-approved/reviews", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Review](t, rec), 1)

	rec = h.do(t, http.MethodGet, "/listings/l-approved/reviews?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListingViews_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	seedListings(h)
	h.repo.SetRPCResult("listing_views_timeseries", []byte(`[{"bucket":"2025-03-01T00:00:00Z","views":4},{"bucket":"2025-03-02T00:00:00Z","views":6}]`))

	rec := h.do(t, http.MethodGet, "/listings/l-approved/views", "someone-else", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/listings/l-approved/views?from=yesterday", "owner", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/listings/l-approved/views?bucket=day", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	series := decode[map[string]any](t, rec)
	assert.EqualValues(t, 10, series["total"])
}

func TestPOIs(t *testing.T) {
	h := newHarness(t)
	h.repo.PutPOI(domain.PointOfInterest{ID: "p1", Name: "Lighthouse", Region: "coast", Status: "active"})

	rec := h.do(t, http.MethodGet, "/pois?region=coast", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.PointOfInterest](t, rec), 1)

	rec = h.do(t, http.MethodGet, "/pois/p1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/pois/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateFlag(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/flags", "u1", flagInput{EntityType: "planet", EntityID: "x", Reason: "spam"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/flags", "u1", flagInput{EntityType: domain.EntityReview, EntityID: "r1", Reason: "spam"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	flag := decode[domain.Flag](t, rec)
	assert.Equal(t, domain.FlagPending, flag.Status)
	assert.Equal(t, "u1", flag.ReporterID)
}

func TestOnboard_Multipart(t *testing.T) {
	h := newHarness(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("business_name", "Blue Kayaks"))
	require.NoError(t, mw.WriteField("contact_email", "hi@bluekayaks.example"))
	require.NoError(t, mw.WriteField("region", "coast"))
	require.NoError(t, mw.WriteField("document_types", domain.DocumentInsurance))

	part, err := mw.CreateFormFile("logo", "logo.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n0000logo"))
	part, err = mw.CreateFormFile("gallery", "bay.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n0000bay"))
	part, err = mw.CreateFormFile("documents", "policy.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 policy"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/operators/onboard", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, "owner"))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[onboarding.Result](t, rec)
	require.NotNil(t, res.Operator)
	assert.Equal(t, "owner", res.Operator.OwnerID)
	assert.Equal(t, domain.OperatorPending, res.Operator.Status)
	assert.NotEmpty(t, res.LogoURL)
	assert.Len(t, res.Gallery, 1)
	require.Len(t, h.repo.Documents(), 1)
	assert.Equal(t, domain.DocumentInsurance, h.repo.Documents()[0].DocumentType)
	assert.Empty(t, res.Warnings)

	rec = h.do(t, http.MethodGet, "/operators/mine", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Operator](t, rec), 1)

	docsPath := "/operators/" + res.Operator.ID + "/documents"
	rec = h.do(t, http.MethodGet, docsPath, "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	links := decode[[]onboarding.DocumentLink](t, rec)
	require.Len(t, links, 1)
	assert.Equal(t, domain.DocumentInsurance, links[0].DocumentType)
	assert.Contains(t, links[0].URL, "/operator-documents/")

	rec = h.do(t, http.MethodGet, docsPath, "stranger", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOnboard_RequiresAuthAndValidForm(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/operators/onboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/operators/onboard", "owner", `{"business_name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListListings_PriceRange(t *testing.T) {
	h := newHarness(t)
	cheap, dear := 25.0, 180.0
	h.repo.PutListing(domain.Listing{ID: "cheap", Title: "Harbour walk", Category: domain.CategoryTour, Status: domain.ListingApproved, PriceFrom: &cheap})
	h.repo.PutListing(domain.Listing{ID: "dear", Title: "Heli tour", Category: domain.CategoryTour, Status: domain.ListingApproved, PriceFrom: &dear})

	rec := h.do(t, http.MethodGet, "/listings?max_price=100", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	listings := decode[[]domain.Listing](t, rec)
	require.Len(t, listings, 1)
	assert.Equal(t, "cheap", listings[0].ID)

	rec = h.do(t, http.MethodGet, "/listings?min_price=cheap", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/listings?min_price=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
