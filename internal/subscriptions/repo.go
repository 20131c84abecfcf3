package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	"github.com/denthubhq/denthub-backend/pkg/enums"
	"github.com/denthubhq/denthub-backend/pkg/pagination"
)

// ListQuery filters a subscription listing for one organization.
type ListQuery struct {
	Status *enums.SubscriptionStatus
	Limit  int
	Cursor string
}

// Repository persists subscriptions and their module rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	Save(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByCabinet(ctx context.Context, organizationID, cabinetID uuid.UUID) (*models.Subscription, error)
	FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	List(ctx context.Context, organizationID uuid.UUID, query ListQuery) ([]models.Subscription, string, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	ListDeferredCancellations(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	CreateModules(ctx context.Context, rows []models.SubscriptionModule) error
	SaveModule(ctx context.Context, row *models.SubscriptionModule) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// Save persists subscription columns only. Module rows are managed through
// CreateModules/SaveModule so associations are never implicitly upserted.
func (r *repository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Save(sub).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return r.findOne(ctx, r.db, "id = ?", id)
}

// FindByIDForUpdate locks the subscription row for the current transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	locked := r.db.Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findOne(ctx, locked, "id = ?", id)
}

func (r *repository) FindByCabinet(ctx context.Context, organizationID, cabinetID uuid.UUID) (*models.Subscription, error) {
	return r.findOne(ctx, r.db, "organization_id = ? AND cabinet_id = ?", organizationID, cabinetID)
}

func (r *repository) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, nil
	}
	return r.findOne(ctx, r.db, "stripe_subscription_id = ?", stripeSubscriptionID)
}

func (r *repository) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.WithContext(ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_core DESC, code ASC")
		}).
		Where(query, args...).
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// List pages subscriptions for one organization with a created_at/id cursor.
// Returns the page plus the cursor for the next page, empty when exhausted.
func (r *repository) List(ctx context.Context, organizationID uuid.UUID, query ListQuery) ([]models.Subscription, string, error) {
	limit := pagination.NormalizeLimit(query.Limit)

	tx := r.db.WithContext(ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_core DESC, code ASC")
		}).
		Where("organization_id = ?", organizationID)

	if query.Status != nil {
		tx = tx.Where("status = ?", *query.Status)
	}

	cursor, err := pagination.ParseCursor(query.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		tx = tx.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var subs []models.Subscription
	if err := tx.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&subs).Error; err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(subs) > limit {
		subs = subs[:limit]
		last := subs[len(subs)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return subs, nextCursor, nil
}

// ListExpirable returns subscriptions the expiry job should close out:
// trials past trial_ends_at and suspended rows past grace_period_ends_at.
func (r *repository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where(
			"(status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at <= ?) OR "+
				"(status = ? AND grace_period_ends_at IS NOT NULL AND grace_period_ends_at <= ?)",
			enums.SubscriptionStatusTrial, now,
			enums.SubscriptionStatusSuspended, now,
		).
		Order("created_at ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// ListDeferredCancellations returns active subscriptions flagged to cancel
// at period end whose renewal date has passed.
func (r *repository) ListDeferredCancellations(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where(
			"status = ? AND cancel_at_period_end = ? AND renews_at IS NOT NULL AND renews_at <= ?",
			enums.SubscriptionStatusActive, true, now,
		).
		Order("created_at ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) CreateModules(ctx context.Context, rows []models.SubscriptionModule) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repository) SaveModule(ctx context.Context, row *models.SubscriptionModule) error {
	return r.db.WithContext(ctx).Save(row).Error
}
