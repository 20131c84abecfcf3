package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/denthubhq/denthub-backend/pkg/enums"
)

// Subscription persists the billing state for one cabinet. The composite
// unique index keeps at most one subscription per (organization, cabinet).
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID       uuid.UUID                `gorm:"column:organization_id;type:uuid;not null;uniqueIndex:idx_subscriptions_org_cabinet"`
	CabinetID            uuid.UUID                `gorm:"column:cabinet_id;type:uuid;not null;uniqueIndex:idx_subscriptions_org_cabinet"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'trial'"`
	BillingCycle         enums.BillingCycle       `gorm:"column:billing_cycle;type:billing_cycle;not null;default:'monthly'"`
	TrialStartsAt        *time.Time               `gorm:"column:trial_starts_at"`
	TrialEndsAt          *time.Time               `gorm:"column:trial_ends_at"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	RenewsAt             *time.Time               `gorm:"column:renews_at"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CancellationReason   *string                  `gorm:"column:cancellation_reason"`
	CancelledAt          *time.Time               `gorm:"column:cancelled_at"`
	GracePeriodEndsAt    *time.Time               `gorm:"column:grace_period_ends_at"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id;index"`
	TotalPrice           decimal.Decimal          `gorm:"column:total_price;type:numeric(10,2);not null;default:0"`
	Modules              []SubscriptionModule     `gorm:"foreignKey:SubscriptionID"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
