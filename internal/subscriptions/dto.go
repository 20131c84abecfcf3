package subscriptions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	"github.com/denthubhq/denthub-backend/pkg/enums"
)

// CreateInput starts a subscription for a cabinet. AddonCodes may name
// non-core modules to include from day one; core modules are always added.
// AutoStartTrial defaults to true; when false the subscription starts
// active immediately with no trial window.
type CreateInput struct {
	OrganizationID   uuid.UUID `json:"-"`
	CabinetID        uuid.UUID `json:"cabinet_id" validate:"required"`
	BillingCycle     string    `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
	AddonCodes       []string  `json:"addon_codes" validate:"omitempty,dive,required"`
	AutoStartTrial   *bool     `json:"auto_start_trial" validate:"omitempty"`
	StripeCustomerID *string   `json:"stripe_customer_id" validate:"omitempty"`
}

// UpdateBillingCycleInput switches a subscription between monthly and yearly.
type UpdateBillingCycleInput struct {
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
}

// ActivateInput converts a trial to a paying subscription.
type ActivateInput struct {
	StripeCustomerID     *string `json:"stripe_customer_id" validate:"omitempty"`
	StripeSubscriptionID *string `json:"stripe_subscription_id" validate:"omitempty"`
}

// CancelInput closes a subscription. Immediate cancellation takes effect
// now; otherwise the subscription is flagged to lapse at period end.
type CancelInput struct {
	Reason    string `json:"reason" validate:"required"`
	Immediate bool   `json:"immediate"`
}

// ModuleChangeInput names the modules to add or remove.
type ModuleChangeInput struct {
	Codes  []string `json:"module_codes" validate:"required,min=1,dive,required"`
	Reason string   `json:"reason" validate:"omitempty"`
}

// ModuleView is the wire shape for one subscription module row.
type ModuleView struct {
	Code          string          `json:"code"`
	IsActive      bool            `json:"is_active"`
	IsCore        bool            `json:"is_core"`
	Price         decimal.Decimal `json:"price"`
	ActivatedAt   time.Time       `json:"activated_at"`
	DeactivatedAt *time.Time      `json:"deactivated_at,omitempty"`
}

// View is the wire shape for a subscription.
type View struct {
	ID                 uuid.UUID                `json:"id"`
	OrganizationID     uuid.UUID                `json:"organization_id"`
	CabinetID          uuid.UUID                `json:"cabinet_id"`
	Status             enums.SubscriptionStatus `json:"status"`
	BillingCycle       enums.BillingCycle       `json:"billing_cycle"`
	TrialStartsAt      *time.Time               `json:"trial_starts_at,omitempty"`
	TrialEndsAt        *time.Time               `json:"trial_ends_at,omitempty"`
	CurrentPeriodStart *time.Time               `json:"current_period_start,omitempty"`
	RenewsAt           *time.Time               `json:"renews_at,omitempty"`
	CancelAtPeriodEnd  bool                     `json:"cancel_at_period_end"`
	CancelledAt        *time.Time               `json:"cancelled_at,omitempty"`
	GracePeriodEndsAt  *time.Time               `json:"grace_period_ends_at,omitempty"`
	TotalPrice         decimal.Decimal          `json:"total_price"`
	Modules            []ModuleView             `json:"modules"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// ListView wraps a page of subscriptions plus the cursor for the next page.
type ListView struct {
	Items      []View `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ToView maps a subscription row to its wire shape.
func ToView(sub *models.Subscription) View {
	view := View{
		ID:                 sub.ID,
		OrganizationID:     sub.OrganizationID,
		CabinetID:          sub.CabinetID,
		Status:             sub.Status,
		BillingCycle:       sub.BillingCycle,
		TrialStartsAt:      sub.TrialStartsAt,
		TrialEndsAt:        sub.TrialEndsAt,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		RenewsAt:           sub.RenewsAt,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CancelledAt:        sub.CancelledAt,
		GracePeriodEndsAt:  sub.GracePeriodEndsAt,
		TotalPrice:         sub.TotalPrice,
		Modules:            make([]ModuleView, 0, len(sub.Modules)),
		CreatedAt:          sub.CreatedAt,
		UpdatedAt:          sub.UpdatedAt,
	}
	for _, module := range sub.Modules {
		view.Modules = append(view.Modules, ModuleView{
			Code:          module.Code,
			IsActive:      module.IsActive,
			IsCore:        module.IsCore,
			Price:         module.Price,
			ActivatedAt:   module.ActivatedAt,
			DeactivatedAt: module.DeactivatedAt,
		})
	}
	return view
}

// ToListView maps a page of subscriptions to its wire shape.
func ToListView(subs []models.Subscription, nextCursor string) ListView {
	items := make([]View, 0, len(subs))
	for i := range subs {
		items = append(items, ToView(&subs[i]))
	}
	return ListView{Items: items, NextCursor: nextCursor}
}
