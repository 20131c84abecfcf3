package subscriptions

import (
	"strings"
	"time"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	"github.com/denthubhq/denthub-backend/pkg/enums"
)

// License denial reasons. Stable strings so clients can branch on them.
const (
	LicenseReasonOK                 = "ok"
	LicenseReasonNoSubscription     = "no_subscription"
	LicenseReasonSubscriptionStatus = "subscription_status"
	LicenseReasonModuleNotLicensed  = "module_not_licensed"
	LicenseReasonModuleInactive     = "module_inactive"
)

// LicenseResult is the outcome of a module access check.
type LicenseResult struct {
	HasAccess     bool                     `json:"has_access"`
	Reason        string                   `json:"reason"`
	ModuleCode    string                   `json:"module_code"`
	Status        enums.SubscriptionStatus `json:"subscription_status,omitempty"`
	DaysRemaining *int                     `json:"days_remaining,omitempty"`
}

// CheckAccess decides whether a subscription grants access to a module at
// the given instant. Pure function, no I/O. Trials grant access until
// trial_ends_at, suspended subscriptions until grace_period_ends_at;
// expired and cancelled subscriptions grant nothing.
func CheckAccess(sub *models.Subscription, moduleCode string, now time.Time) LicenseResult {
	moduleCode = strings.TrimSpace(moduleCode)
	result := LicenseResult{ModuleCode: moduleCode, Reason: LicenseReasonNoSubscription}

	if sub == nil {
		return result
	}
	result.Status = sub.Status

	switch sub.Status {
	case enums.SubscriptionStatusTrial:
		if sub.TrialEndsAt == nil || !now.Before(*sub.TrialEndsAt) {
			result.Reason = LicenseReasonSubscriptionStatus
			return result
		}
		result.DaysRemaining = daysUntil(now, *sub.TrialEndsAt)
	case enums.SubscriptionStatusActive:
		// ok
	case enums.SubscriptionStatusSuspended:
		if sub.GracePeriodEndsAt == nil || !now.Before(*sub.GracePeriodEndsAt) {
			result.Reason = LicenseReasonSubscriptionStatus
			return result
		}
		result.DaysRemaining = daysUntil(now, *sub.GracePeriodEndsAt)
	default:
		result.Reason = LicenseReasonSubscriptionStatus
		return result
	}

	module := findModule(sub, moduleCode)
	if module == nil {
		result.Reason = LicenseReasonModuleNotLicensed
		return result
	}
	if !module.IsActive {
		result.Reason = LicenseReasonModuleInactive
		return result
	}

	result.HasAccess = true
	result.Reason = LicenseReasonOK
	return result
}

func findModule(sub *models.Subscription, code string) *models.SubscriptionModule {
	for i := range sub.Modules {
		if sub.Modules[i].Code == code {
			return &sub.Modules[i]
		}
	}
	return nil
}

// daysUntil rounds up so a trial ending in one hour still reports one day.
func daysUntil(now, deadline time.Time) *int {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		zero := 0
		return &zero
	}
	days := int((remaining + 24*time.Hour - time.Nanosecond) / (24 * time.Hour))
	return &days
}
