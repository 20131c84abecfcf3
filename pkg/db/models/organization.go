package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the top-level billing tenant. A dental group owning one or
// more cabinets subscribes per cabinet under a single organization.
type Organization struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
