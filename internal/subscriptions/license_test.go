package subscriptions

import (
	"testing"
	"time"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	"github.com/denthubhq/denthub-backend/pkg/enums"
)

func licensedSubscription(status enums.SubscriptionStatus, trialEndsAt *time.Time) *models.Subscription {
	return &models.Subscription{
		Status:      status,
		TrialEndsAt: trialEndsAt,
		Modules: []models.SubscriptionModule{
			{Code: "patients", IsActive: true, IsCore: true},
			{Code: "imaging", IsActive: true},
			{Code: "inventory", IsActive: false},
		},
	}
}

func TestCheckAccessNoSubscription(t *testing.T) {
	result := CheckAccess(nil, "patients", time.Now())
	if result.HasAccess {
		t.Fatal("nil subscription must not grant access")
	}
	if result.Reason != LicenseReasonNoSubscription {
		t.Fatalf("reason = %s, want %s", result.Reason, LicenseReasonNoSubscription)
	}
}

func TestCheckAccessActive(t *testing.T) {
	sub := licensedSubscription(enums.SubscriptionStatusActive, nil)
	now := time.Now()

	result := CheckAccess(sub, "imaging", now)
	if !result.HasAccess || result.Reason != LicenseReasonOK {
		t.Fatalf("expected access, got %+v", result)
	}
	if result.DaysRemaining != nil {
		t.Fatal("active subscription should not report days remaining")
	}

	result = CheckAccess(sub, "teledentistry", now)
	if result.HasAccess || result.Reason != LicenseReasonModuleNotLicensed {
		t.Fatalf("expected module_not_licensed, got %+v", result)
	}

	result = CheckAccess(sub, "inventory", now)
	if result.HasAccess || result.Reason != LicenseReasonModuleInactive {
		t.Fatalf("expected module_inactive, got %+v", result)
	}
}

func TestCheckAccessTrial(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	ends := now.Add(72 * time.Hour)
	sub := licensedSubscription(enums.SubscriptionStatusTrial, &ends)
	result := CheckAccess(sub, "patients", now)
	if !result.HasAccess {
		t.Fatalf("trial within window should grant access, got %+v", result)
	}
	if result.DaysRemaining == nil || *result.DaysRemaining != 3 {
		t.Fatalf("days remaining = %v, want 3", result.DaysRemaining)
	}

	// One hour left still counts as one day.
	ends = now.Add(time.Hour)
	sub = licensedSubscription(enums.SubscriptionStatusTrial, &ends)
	result = CheckAccess(sub, "patients", now)
	if result.DaysRemaining == nil || *result.DaysRemaining != 1 {
		t.Fatalf("days remaining = %v, want 1", result.DaysRemaining)
	}

	ends = now.Add(-time.Minute)
	sub = licensedSubscription(enums.SubscriptionStatusTrial, &ends)
	result = CheckAccess(sub, "patients", now)
	if result.HasAccess || result.Reason != LicenseReasonSubscriptionStatus {
		t.Fatalf("lapsed trial must deny, got %+v", result)
	}

	sub = licensedSubscription(enums.SubscriptionStatusTrial, nil)
	result = CheckAccess(sub, "patients", now)
	if result.HasAccess {
		t.Fatal("trial without end date must deny")
	}
}

func TestCheckAccessSuspendedGraceWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	graceEnds := now.Add(72 * time.Hour)
	sub := licensedSubscription(enums.SubscriptionStatusSuspended, nil)
	sub.GracePeriodEndsAt = &graceEnds

	result := CheckAccess(sub, "patients", now)
	if !result.HasAccess {
		t.Fatalf("suspended within grace window should grant access, got %+v", result)
	}
	if result.DaysRemaining == nil || *result.DaysRemaining != 3 {
		t.Fatalf("days remaining = %v, want 3", result.DaysRemaining)
	}

	// Inactive modules stay blocked even during the grace window.
	result = CheckAccess(sub, "inventory", now)
	if result.HasAccess || result.Reason != LicenseReasonModuleInactive {
		t.Fatalf("expected module_inactive, got %+v", result)
	}

	graceEnds = now.Add(-time.Minute)
	result = CheckAccess(sub, "patients", now)
	if result.HasAccess || result.Reason != LicenseReasonSubscriptionStatus {
		t.Fatalf("lapsed grace window must deny, got %+v", result)
	}

	sub.GracePeriodEndsAt = nil
	result = CheckAccess(sub, "patients", now)
	if result.HasAccess {
		t.Fatal("suspended without grace window must deny")
	}
}

func TestCheckAccessDeniedStatuses(t *testing.T) {
	now := time.Now()
	for _, status := range []enums.SubscriptionStatus{
		enums.SubscriptionStatusExpired,
		enums.SubscriptionStatusCancelled,
	} {
		sub := licensedSubscription(status, nil)
		result := CheckAccess(sub, "patients", now)
		if result.HasAccess {
			t.Fatalf("status %s must deny access", status)
		}
		if result.Reason != LicenseReasonSubscriptionStatus {
			t.Fatalf("status %s reason = %s, want %s", status, result.Reason, LicenseReasonSubscriptionStatus)
		}
		if result.Status != status {
			t.Fatalf("result status = %s, want %s", result.Status, status)
		}
	}
}
