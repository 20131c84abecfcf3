package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/denthubhq/denthub-backend/pkg/auth"
	"github.com/denthubhq/denthub-backend/pkg/config"
	"github.com/denthubhq/denthub-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "denthub-test",
		ExpirationMinutes: 15,
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	handler := Auth(testJWTConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run without credentials")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthRejectsGarbageToken(t *testing.T) {
	handler := Auth(testJWTConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run with a bad token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthSeedsContextFromClaims(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()
	orgID := uuid.New()

	token, err := pkgAuth.MintAccessToken(cfg, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           enums.StaffRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	var gotUser, gotRole, gotOrg string
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		gotOrg = OrganizationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if gotUser != userID.String() {
		t.Fatalf("user id not seeded, got %q", gotUser)
	}
	if gotRole != string(enums.StaffRoleAdmin) {
		t.Fatalf("role not seeded, got %q", gotRole)
	}
	if gotOrg != orgID.String() {
		t.Fatalf("organization id not seeded, got %q", gotOrg)
	}
}

func TestRequireRoleBlocksOtherRoles(t *testing.T) {
	handler := RequireRole(nil, "owner", "admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run for a front desk user")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.StaffRoleFrontDesk)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestRequireRoleAllowsListedRole(t *testing.T) {
	ran := false
	handler := RequireRole(nil, "owner", "admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.StaffRoleOwner)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if !ran {
		t.Fatalf("expected handler to run for owner, got %d", resp.Code)
	}
}
