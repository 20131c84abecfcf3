package models

import (
	"time"

	"github.com/google/uuid"
)

// Cabinet is a single practice location within an organization.
type Cabinet struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID `gorm:"column:organization_id;type:uuid;not null;index"`
	Name           string    `gorm:"column:name;not null"`
	Timezone       string    `gorm:"column:timezone;not null;default:'UTC'"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
