package catalog

import (
	"context"

	"gorm.io/gorm"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
)

// Repository reads the feature module catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	List(ctx context.Context) ([]models.FeatureModule, error)
	ListCore(ctx context.Context) ([]models.FeatureModule, error)
	ListByCodes(ctx context.Context, codes []string) ([]models.FeatureModule, error)
	FindByCode(ctx context.Context, code string) (*models.FeatureModule, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) List(ctx context.Context) ([]models.FeatureModule, error) {
	var modules []models.FeatureModule
	if err := r.db.WithContext(ctx).
		Order("is_core DESC, code ASC").
		Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *repository) ListCore(ctx context.Context) ([]models.FeatureModule, error) {
	var modules []models.FeatureModule
	if err := r.db.WithContext(ctx).
		Where("is_core = ?", true).
		Order("code ASC").
		Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *repository) ListByCodes(ctx context.Context, codes []string) ([]models.FeatureModule, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var modules []models.FeatureModule
	if err := r.db.WithContext(ctx).
		Where("code IN (?)", codes).
		Order("code ASC").
		Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.FeatureModule, error) {
	if code == "" {
		return nil, nil
	}
	var module models.FeatureModule
	if err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&module).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &module, nil
}
