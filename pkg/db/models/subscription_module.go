package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionModule joins a subscription to a catalog module. Rows are
// soft-deactivated on removal so activation history stays auditable. Price is
// a snapshot taken at activation time for the subscription's billing cycle.
type SubscriptionModule struct {
	ID                 uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID     uuid.UUID       `gorm:"column:subscription_id;type:uuid;not null;uniqueIndex:idx_subscription_modules_pair"`
	ModuleID           uuid.UUID       `gorm:"column:module_id;type:uuid;not null;uniqueIndex:idx_subscription_modules_pair"`
	Code               string          `gorm:"column:code;not null;index"`
	IsActive           bool            `gorm:"column:is_active;not null;default:true"`
	IsCore             bool            `gorm:"column:is_core;not null;default:false"`
	Price              decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null;default:0"`
	ActivatedAt        time.Time       `gorm:"column:activated_at;not null"`
	DeactivatedAt      *time.Time      `gorm:"column:deactivated_at"`
	DeactivationReason *string         `gorm:"column:deactivation_reason"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
