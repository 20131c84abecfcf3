package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// FeatureModule is a catalog row describing a sellable feature of the
// platform. Core modules ship with every subscription and are immutable
// members of it. Dependencies lists the codes of modules this one requires.
type FeatureModule struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code         string          `gorm:"column:code;not null;uniqueIndex"`
	Name         string          `gorm:"column:name;not null"`
	Description  string          `gorm:"column:description"`
	IsCore       bool            `gorm:"column:is_core;not null;default:false"`
	MonthlyPrice decimal.Decimal `gorm:"column:monthly_price;type:numeric(10,2);not null"`
	YearlyPrice  decimal.Decimal `gorm:"column:yearly_price;type:numeric(10,2);not null"`
	Dependencies pq.StringArray  `gorm:"column:dependencies;type:text[];default:ARRAY[]::text[]"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
