package subscriptions

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	"github.com/denthubhq/denthub-backend/pkg/enums"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
)

// AddModules attaches the requested add-on modules plus their transitive
// dependencies. Previously removed rows are reactivated in place so the
// (subscription, module) uniqueness constraint holds. Already active
// modules are skipped, making the call idempotent.
func (s *service) AddModules(ctx context.Context, organizationID, id uuid.UUID, input ModuleChangeInput) (*models.Subscription, error) {
	if len(input.Codes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "module codes are required")
	}

	var updated *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.lockOwned(ctx, repo, organizationID, id)
		if err != nil {
			return err
		}
		if err := ensureModifiable(sub); err != nil {
			return err
		}

		resolved, err := s.catalog.ResolveDependencies(ctx, input.Codes)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		existingByCode := map[string]*models.SubscriptionModule{}
		for i := range sub.Modules {
			existingByCode[sub.Modules[i].Code] = &sub.Modules[i]
		}

		var inserts []models.SubscriptionModule
		changed := false
		for _, module := range resolved {
			if row, ok := existingByCode[module.Code]; ok {
				if row.IsActive {
					continue
				}
				row.IsActive = true
				row.Price = priceFor(module, sub.BillingCycle)
				row.ActivatedAt = now
				row.DeactivatedAt = nil
				row.DeactivationReason = nil
				if err := repo.SaveModule(ctx, row); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reactivating module")
				}
				changed = true
				continue
			}
			inserts = append(inserts, models.SubscriptionModule{
				SubscriptionID: sub.ID,
				ModuleID:       module.ID,
				Code:           module.Code,
				IsActive:       true,
				IsCore:         module.IsCore,
				Price:          priceFor(module, sub.BillingCycle),
				ActivatedAt:    now,
			})
		}
		if len(inserts) > 0 {
			if err := repo.CreateModules(ctx, inserts); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating modules")
			}
			changed = true
		}

		if !changed {
			updated = sub
			return nil
		}
		return s.recomputeAndReload(ctx, repo, sub.ID, &updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveModules soft-deactivates the requested modules plus every active
// module that depends on them. Core modules can never be removed.
func (s *service) RemoveModules(ctx context.Context, organizationID, id uuid.UUID, input ModuleChangeInput) (*models.Subscription, error) {
	if len(input.Codes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "module codes are required")
	}

	var updated *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.lockOwned(ctx, repo, organizationID, id)
		if err != nil {
			return err
		}
		if err := ensureModifiable(sub); err != nil {
			return err
		}

		requested, err := s.catalog.ResolveDependencies(ctx, input.Codes)
		if err != nil {
			return err
		}
		var coreCodes []string
		for _, code := range input.Codes {
			for _, module := range requested {
				if module.Code == code && module.IsCore {
					coreCodes = append(coreCodes, code)
				}
			}
		}
		if len(coreCodes) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "core modules cannot be removed").
				WithDetails(map[string]any{"module_codes": coreCodes})
		}

		removeSet := map[string]bool{}
		for _, code := range input.Codes {
			removeSet[strings.TrimSpace(code)] = true
		}

		// Cascade to active dependents so no licensed module is left with
		// a missing dependency.
		dependents, err := s.catalog.FindDependents(ctx, input.Codes)
		if err != nil {
			return err
		}
		activeByCode := map[string]bool{}
		for _, row := range sub.Modules {
			if row.IsActive {
				activeByCode[row.Code] = true
			}
		}
		for _, module := range dependents {
			if activeByCode[module.Code] {
				removeSet[module.Code] = true
			}
		}

		now := s.now().UTC()
		reason := strings.TrimSpace(input.Reason)
		changed := false
		for i := range sub.Modules {
			row := &sub.Modules[i]
			if !removeSet[row.Code] || !row.IsActive {
				continue
			}
			row.IsActive = false
			row.DeactivatedAt = &now
			if reason != "" {
				row.DeactivationReason = &reason
			}
			if err := repo.SaveModule(ctx, row); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivating module")
			}
			changed = true
		}

		if !changed {
			updated = sub
			return nil
		}
		return s.recomputeAndReload(ctx, repo, sub.ID, &updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ensureModifiable rejects module changes on terminal subscriptions.
func ensureModifiable(sub *models.Subscription) error {
	switch sub.Status {
	case enums.SubscriptionStatusTrial, enums.SubscriptionStatusActive:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription does not accept module changes").
			WithDetails(map[string]any{"status": sub.Status.String()})
	}
}

// recomputeAndReload rebuilds total_price from active rows and reloads.
func (s *service) recomputeAndReload(ctx context.Context, repo Repository, id uuid.UUID, out **models.Subscription) error {
	sub, err := repo.FindByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}

	total := decimal.Zero
	for _, row := range sub.Modules {
		if row.IsActive {
			total = total.Add(row.Price)
		}
	}
	sub.TotalPrice = total
	if err := repo.Save(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving subscription total")
	}
	*out = sub
	return nil
}
