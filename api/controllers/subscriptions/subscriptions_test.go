package subscriptions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/denthubhq/denthub-backend/api/middleware"
	subsvc "github.com/denthubhq/denthub-backend/internal/subscriptions"
	"github.com/denthubhq/denthub-backend/pkg/db/models"
	"github.com/denthubhq/denthub-backend/pkg/enums"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
)

type testSubscriptionService struct {
	subsvc.Service

	lastCreate subsvc.CreateInput
	lastCancel subsvc.CancelInput
	lastChange subsvc.ModuleChangeInput
	lastQuery  subsvc.ListQuery
	lastID     uuid.UUID
	lastOrgID  uuid.UUID
	lastCabID  uuid.UUID
	lastModule string
	sub        *models.Subscription
	listResult []models.Subscription
	listCursor string
	license    *subsvc.LicenseResult
	err        error
}

func (s *testSubscriptionService) Create(ctx context.Context, input subsvc.CreateInput) (*models.Subscription, error) {
	s.lastCreate = input
	return s.sub, s.err
}

func (s *testSubscriptionService) Get(ctx context.Context, organizationID, id uuid.UUID) (*models.Subscription, error) {
	s.lastOrgID, s.lastID = organizationID, id
	return s.sub, s.err
}

func (s *testSubscriptionService) List(ctx context.Context, organizationID uuid.UUID, query subsvc.ListQuery) ([]models.Subscription, string, error) {
	s.lastOrgID, s.lastQuery = organizationID, query
	return s.listResult, s.listCursor, s.err
}

func (s *testSubscriptionService) Cancel(ctx context.Context, organizationID, id uuid.UUID, input subsvc.CancelInput) (*models.Subscription, error) {
	s.lastOrgID, s.lastID, s.lastCancel = organizationID, id, input
	return s.sub, s.err
}

func (s *testSubscriptionService) AddModules(ctx context.Context, organizationID, id uuid.UUID, input subsvc.ModuleChangeInput) (*models.Subscription, error) {
	s.lastOrgID, s.lastID, s.lastChange = organizationID, id, input
	return s.sub, s.err
}

func (s *testSubscriptionService) RemoveModules(ctx context.Context, organizationID, id uuid.UUID, input subsvc.ModuleChangeInput) (*models.Subscription, error) {
	s.lastOrgID, s.lastID, s.lastChange = organizationID, id, input
	return s.sub, s.err
}

func (s *testSubscriptionService) ValidateLicense(ctx context.Context, organizationID, cabinetID uuid.UUID, moduleCode string) (*subsvc.LicenseResult, error) {
	s.lastOrgID, s.lastCabID, s.lastModule = organizationID, cabinetID, moduleCode
	return s.license, s.err
}

func sampleSubscription() *models.Subscription {
	trialEnd := time.Now().UTC().Add(14 * 24 * time.Hour)
	return &models.Subscription{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		CabinetID:      uuid.New(),
		Status:         enums.SubscriptionStatusTrial,
		BillingCycle:   enums.BillingCycleMonthly,
		TrialEndsAt:    &trialEnd,
		TotalPrice:     decimal.NewFromInt(176),
	}
}

func withOrg(req *http.Request, organizationID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithOrganizationID(req.Context(), organizationID.String()))
}

func withRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestCreateRequiresOrganizationContext(t *testing.T) {
	handler := Create(&testSubscriptionService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	handler(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without organization context, got %d", resp.Code)
	}
}

func TestCreateReturns201AndSetsOrganization(t *testing.T) {
	orgID := uuid.New()
	sub := sampleSubscription()
	sub.OrganizationID = orgID
	service := &testSubscriptionService{sub: sub}

	body := `{"cabinet_id":"` + sub.CabinetID.String() + `","billing_cycle":"monthly","addon_codes":["imaging"]}`
	req := withOrg(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(body)), orgID)
	resp := httptest.NewRecorder()
	Create(service, nil)(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.lastCreate.OrganizationID != orgID {
		t.Fatalf("expected organization id injected from context, got %s", service.lastCreate.OrganizationID)
	}
	if service.lastCreate.CabinetID != sub.CabinetID {
		t.Fatalf("cabinet id not forwarded")
	}
	if len(service.lastCreate.AddonCodes) != 1 || service.lastCreate.AddonCodes[0] != "imaging" {
		t.Fatalf("addon codes not forwarded: %v", service.lastCreate.AddonCodes)
	}

	var envelope struct {
		Data subsvc.View `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != sub.ID {
		t.Fatalf("unexpected subscription id %s", envelope.Data.ID)
	}
	if envelope.Data.Status != enums.SubscriptionStatusTrial {
		t.Fatalf("unexpected status %s", envelope.Data.Status)
	}
}

func TestCreateRejectsUnknownFields(t *testing.T) {
	req := withOrg(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"bogus":true}`)), uuid.New())
	resp := httptest.NewRecorder()
	Create(&testSubscriptionService{}, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.Code)
	}
}

func TestListParsesFilters(t *testing.T) {
	orgID := uuid.New()
	service := &testSubscriptionService{
		listResult: []models.Subscription{*sampleSubscription()},
		listCursor: "next-page",
	}

	req := withOrg(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions?limit=5&status=trial&cursor=abc", nil), orgID)
	resp := httptest.NewRecorder()
	List(service, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.lastOrgID != orgID {
		t.Fatalf("organization id not forwarded")
	}
	if service.lastQuery.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", service.lastQuery.Limit)
	}
	if service.lastQuery.Cursor != "abc" {
		t.Fatalf("cursor not forwarded")
	}
	if service.lastQuery.Status == nil || *service.lastQuery.Status != enums.SubscriptionStatusTrial {
		t.Fatalf("status filter not forwarded")
	}

	var envelope struct {
		Data subsvc.ListView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.NextCursor != "next-page" {
		t.Fatalf("expected next cursor forwarded, got %q", envelope.Data.NextCursor)
	}
	if len(envelope.Data.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(envelope.Data.Items))
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	req := withOrg(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions?status=bogus", nil), uuid.New())
	resp := httptest.NewRecorder()
	List(&testSubscriptionService{}, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", resp.Code)
	}
}

func TestFetchRejectsMalformedID(t *testing.T) {
	req := withOrg(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/not-a-uuid", nil), uuid.New())
	req = withRouteParam(req, "subscriptionId", "not-a-uuid")
	resp := httptest.NewRecorder()
	Fetch(&testSubscriptionService{}, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad uuid, got %d", resp.Code)
	}
}

func TestFetchPropagatesNotFound(t *testing.T) {
	service := &testSubscriptionService{err: pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")}
	id := uuid.New()
	req := withOrg(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/"+id.String(), nil), uuid.New())
	req = withRouteParam(req, "subscriptionId", id.String())
	resp := httptest.NewRecorder()
	Fetch(service, nil)(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if service.lastID != id {
		t.Fatalf("subscription id not forwarded")
	}
}

func TestCancelForwardsReason(t *testing.T) {
	sub := sampleSubscription()
	sub.Status = enums.SubscriptionStatusCancelled
	service := &testSubscriptionService{sub: sub}

	req := withOrg(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/"+sub.ID.String()+"/cancel",
		strings.NewReader(`{"reason":"closing the practice","immediate":true}`)), sub.OrganizationID)
	req = withRouteParam(req, "subscriptionId", sub.ID.String())
	resp := httptest.NewRecorder()
	Cancel(service, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.lastCancel.Reason != "closing the practice" {
		t.Fatalf("reason not forwarded: %q", service.lastCancel.Reason)
	}
	if !service.lastCancel.Immediate {
		t.Fatalf("immediate flag not forwarded")
	}
}

func TestCancelMapsStateConflict(t *testing.T) {
	service := &testSubscriptionService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "invalid transition")}
	id := uuid.New()
	req := withOrg(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/"+id.String()+"/cancel",
		strings.NewReader(`{"reason":"closing the practice"}`)), uuid.New())
	req = withRouteParam(req, "subscriptionId", id.String())
	resp := httptest.NewRecorder()
	Cancel(service, nil)(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for state conflict, got %d", resp.Code)
	}
}

func TestModulesAddForwardsCodes(t *testing.T) {
	sub := sampleSubscription()
	service := &testSubscriptionService{sub: sub}

	req := withOrg(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/"+sub.ID.String()+"/modules",
		strings.NewReader(`{"module_codes":["imaging","lab_orders"]}`)), sub.OrganizationID)
	req = withRouteParam(req, "subscriptionId", sub.ID.String())
	resp := httptest.NewRecorder()
	ModulesAdd(service, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(service.lastChange.Codes) != 2 {
		t.Fatalf("module codes not forwarded: %v", service.lastChange.Codes)
	}
}

func TestModulesRemoveRequiresCodes(t *testing.T) {
	id := uuid.New()
	req := withOrg(httptest.NewRequest(http.MethodDelete, "/api/v1/subscriptions/"+id.String()+"/modules",
		strings.NewReader(`{"module_codes":[]}`)), uuid.New())
	req = withRouteParam(req, "subscriptionId", id.String())
	resp := httptest.NewRecorder()
	ModulesRemove(&testSubscriptionService{}, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty codes, got %d", resp.Code)
	}
}

func TestLicenseValidateReturnsVerdict(t *testing.T) {
	orgID := uuid.New()
	cabID := uuid.New()
	days := 9
	service := &testSubscriptionService{
		license: &subsvc.LicenseResult{
			HasAccess:     true,
			Reason:        "ok",
			ModuleCode:    "imaging",
			DaysRemaining: &days,
		},
	}

	req := withOrg(httptest.NewRequest(http.MethodGet,
		"/api/v1/subscriptions/cabinet/"+cabID.String()+"/license/imaging", nil), orgID)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("cabinetId", cabID.String())
	routeCtx.URLParams.Add("moduleCode", "imaging")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	resp := httptest.NewRecorder()
	LicenseValidate(service, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.lastCabID != cabID {
		t.Fatalf("cabinet id not forwarded")
	}
	if service.lastModule != "imaging" {
		t.Fatalf("module code not forwarded: %q", service.lastModule)
	}

	var envelope struct {
		Data subsvc.LicenseResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.HasAccess {
		t.Fatalf("expected access granted")
	}
	if envelope.Data.DaysRemaining == nil || *envelope.Data.DaysRemaining != 9 {
		t.Fatalf("days remaining not forwarded")
	}
}
