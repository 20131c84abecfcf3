package cabinets

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
)

// Repository reads cabinet rows.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cabinet, error)
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]models.Cabinet, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cabinet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cabinet, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var cabinet models.Cabinet
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&cabinet).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cabinet, nil
}

func (r *repository) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]models.Cabinet, error) {
	var cabinets []models.Cabinet
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at ASC").
		Find(&cabinets).Error; err != nil {
		return nil, err
	}
	return cabinets, nil
}
