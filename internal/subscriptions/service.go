package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/denthubhq/denthub-backend/pkg/config"
	"github.com/denthubhq/denthub-backend/pkg/db"
	"github.com/denthubhq/denthub-backend/pkg/db/models"
	"github.com/denthubhq/denthub-backend/pkg/enums"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
	"github.com/denthubhq/denthub-backend/pkg/logger"
)

// Service is the subscription lifecycle surface.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Subscription, error)
	Get(ctx context.Context, organizationID, id uuid.UUID) (*models.Subscription, error)
	GetByCabinet(ctx context.Context, organizationID, cabinetID uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, organizationID uuid.UUID, query ListQuery) ([]models.Subscription, string, error)
	Activate(ctx context.Context, organizationID, id uuid.UUID, input ActivateInput) (*models.Subscription, error)
	UpdateBillingCycle(ctx context.Context, organizationID, id uuid.UUID, input UpdateBillingCycleInput) (*models.Subscription, error)
	Cancel(ctx context.Context, organizationID, id uuid.UUID, input CancelInput) (*models.Subscription, error)
	Suspend(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error)
	Resume(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error)
	AddModules(ctx context.Context, organizationID, id uuid.UUID, input ModuleChangeInput) (*models.Subscription, error)
	RemoveModules(ctx context.Context, organizationID, id uuid.UUID, input ModuleChangeInput) (*models.Subscription, error)
	ValidateLicense(ctx context.Context, organizationID, cabinetID uuid.UUID, moduleCode string) (*LicenseResult, error)
	FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error)
	CompleteCancellation(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error)
}

type catalogResolver interface {
	ListCore(ctx context.Context) ([]models.FeatureModule, error)
	ResolveDependencies(ctx context.Context, codes []string) ([]models.FeatureModule, error)
	FindDependents(ctx context.Context, codes []string) ([]models.FeatureModule, error)
}

type cabinetRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cabinet, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the subscription service dependencies.
type ServiceParams struct {
	Repo     Repository
	Catalog  catalogResolver
	Cabinets cabinetRepository
	Tx       txRunner
	Billing  config.BillingConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	catalog  catalogResolver
	cabinets cabinetRepository
	tx       txRunner
	billing  config.BillingConfig
	logg     *logger.Logger
	now      func() time.Time
}

// NewService validates dependencies and builds the subscription service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository is required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog resolver is required")
	}
	if params.Cabinets == nil {
		return nil, fmt.Errorf("cabinet repository is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:     params.Repo,
		catalog:  params.Catalog,
		cabinets: params.Cabinets,
		tx:       params.Tx,
		billing:  params.Billing,
		logg:     params.Logger,
		now:      params.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Subscription, error) {
	cycle, err := enums.ParseBillingCycle(input.BillingCycle)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	if input.OrganizationID == uuid.Nil || input.CabinetID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization and cabinet are required")
	}

	cabinet, err := s.cabinets.FindByID(ctx, input.CabinetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cabinet")
	}
	if cabinet == nil || cabinet.OrganizationID != input.OrganizationID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cabinet not found")
	}

	now := s.now().UTC()
	startTrial := input.AutoStartTrial == nil || *input.AutoStartTrial

	var created *models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindByCabinet(ctx, input.OrganizationID, input.CabinetID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking existing subscription")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "cabinet already has a subscription").
				WithDetails(map[string]any{"subscription_id": existing.ID})
		}

		modules, err := s.initialModules(ctx, input.AddonCodes)
		if err != nil {
			return err
		}

		sub := &models.Subscription{
			OrganizationID:   input.OrganizationID,
			CabinetID:        input.CabinetID,
			BillingCycle:     cycle,
			StripeCustomerID: input.StripeCustomerID,
		}
		if startTrial {
			trialEnds := now.Add(s.billing.TrialWindow())
			sub.Status = enums.SubscriptionStatusTrial
			sub.TrialStartsAt = &now
			sub.TrialEndsAt = &trialEnds
		} else {
			renews := periodEnd(cycle, now)
			sub.Status = enums.SubscriptionStatusActive
			sub.CurrentPeriodStart = &now
			sub.RenewsAt = &renews
		}
		if err := repo.Create(ctx, sub); err != nil {
			// Concurrent creates race past the existence check and land on
			// the unique pair constraint instead.
			if db.IsUniqueViolation(err, "idx_subscriptions_org_cabinet") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cabinet already has a subscription")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating subscription")
		}

		rows := make([]models.SubscriptionModule, 0, len(modules))
		total := decimal.Zero
		for _, module := range modules {
			price := priceFor(module, cycle)
			total = total.Add(price)
			rows = append(rows, models.SubscriptionModule{
				SubscriptionID: sub.ID,
				ModuleID:       module.ID,
				Code:           module.Code,
				IsActive:       true,
				IsCore:         module.IsCore,
				Price:          price,
				ActivatedAt:    now,
			})
		}
		if err := repo.CreateModules(ctx, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating subscription modules")
		}

		sub.TotalPrice = total
		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving subscription total")
		}

		created, err = repo.FindByID(ctx, sub.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"subscription_id": created.ID,
			"cabinet_id":      created.CabinetID,
		}), "subscription created")
	}
	return created, nil
}

// initialModules returns all core modules plus the resolved addon closure,
// deduplicated by code.
func (s *service) initialModules(ctx context.Context, addonCodes []string) ([]models.FeatureModule, error) {
	core, err := s.catalog.ListCore(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.FeatureModule, 0, len(core)+len(addonCodes))
	seen := map[string]bool{}
	for _, module := range core {
		out = append(out, module)
		seen[module.Code] = true
	}

	if len(addonCodes) > 0 {
		addons, err := s.catalog.ResolveDependencies(ctx, addonCodes)
		if err != nil {
			return nil, err
		}
		for _, module := range addons {
			if seen[module.Code] {
				continue
			}
			out = append(out, module)
			seen[module.Code] = true
		}
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, organizationID, id uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	if sub == nil || sub.OrganizationID != organizationID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

func (s *service) GetByCabinet(ctx context.Context, organizationID, cabinetID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByCabinet(ctx, organizationID, cabinetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

func (s *service) List(ctx context.Context, organizationID uuid.UUID, query ListQuery) ([]models.Subscription, string, error) {
	subs, next, err := s.repo.List(ctx, organizationID, query)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing subscriptions")
	}
	return subs, next, nil
}

func (s *service) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	sub, err := s.repo.FindByStripeSubscriptionID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	return sub, nil
}

// Activate converts a trial subscription into a paying one. The first
// billing period starts now; trial timestamps are kept for history.
func (s *service) Activate(ctx context.Context, organizationID, id uuid.UUID, input ActivateInput) (*models.Subscription, error) {
	return s.mutate(ctx, &organizationID, id, func(sub *models.Subscription) error {
		if err := ensureTransition(sub.Status, enums.SubscriptionStatusActive); err != nil {
			return err
		}
		now := s.now().UTC()
		renews := periodEnd(sub.BillingCycle, now)

		sub.Status = enums.SubscriptionStatusActive
		sub.CurrentPeriodStart = &now
		sub.RenewsAt = &renews
		if input.StripeCustomerID != nil {
			sub.StripeCustomerID = input.StripeCustomerID
		}
		if input.StripeSubscriptionID != nil {
			sub.StripeSubscriptionID = input.StripeSubscriptionID
		}
		return nil
	})
}

// UpdateBillingCycle switches the cycle and reprices every active module
// from the current catalog. Idempotent when the cycle is unchanged.
func (s *service) UpdateBillingCycle(ctx context.Context, organizationID, id uuid.UUID, input UpdateBillingCycleInput) (*models.Subscription, error) {
	cycle, err := enums.ParseBillingCycle(input.BillingCycle)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	var updated *models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.lockOwned(ctx, repo, organizationID, id)
		if err != nil {
			return err
		}
		if sub.BillingCycle == cycle {
			updated = sub
			return nil
		}
		if IsTerminal(sub.Status) {
			return transitionError(sub.Status, sub.Status)
		}

		codes := make([]string, 0, len(sub.Modules))
		for _, row := range sub.Modules {
			codes = append(codes, row.Code)
		}
		catalogModules, err := s.catalog.ResolveDependencies(ctx, codes)
		if err != nil {
			return err
		}
		priceByCode := map[string]decimal.Decimal{}
		for _, module := range catalogModules {
			priceByCode[module.Code] = priceFor(module, cycle)
		}

		total := decimal.Zero
		for i := range sub.Modules {
			row := &sub.Modules[i]
			if price, ok := priceByCode[row.Code]; ok {
				row.Price = price
			}
			if row.IsActive {
				total = total.Add(row.Price)
			}
			if err := repo.SaveModule(ctx, row); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "repricing module")
			}
		}

		sub.BillingCycle = cycle
		sub.TotalPrice = total
		if sub.RenewsAt != nil && sub.CurrentPeriodStart != nil {
			renews := periodEnd(cycle, *sub.CurrentPeriodStart)
			sub.RenewsAt = &renews
		}
		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving subscription")
		}
		updated, err = repo.FindByID(ctx, sub.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel closes a subscription now or flags it to lapse at period end.
func (s *service) Cancel(ctx context.Context, organizationID, id uuid.UUID, input CancelInput) (*models.Subscription, error) {
	reason := strings.TrimSpace(input.Reason)
	// A deferred cancel sticks around until period end, so the reason has
	// to carry enough signal for the retention follow-up.
	if !input.Immediate && len(reason) < s.billing.MinCancelReasonLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason too short").
			WithDetails(map[string]any{"min_length": s.billing.MinCancelReasonLen})
	}

	return s.mutate(ctx, &organizationID, id, func(sub *models.Subscription) error {
		if !input.Immediate {
			if sub.CancelAtPeriodEnd {
				return nil
			}
			if IsTerminal(sub.Status) {
				return transitionError(sub.Status, enums.SubscriptionStatusCancelled)
			}
			sub.CancelAtPeriodEnd = true
			sub.CancellationReason = &reason
			return nil
		}

		if err := ensureTransition(sub.Status, enums.SubscriptionStatusCancelled); err != nil {
			return err
		}
		now := s.now().UTC()
		sub.Status = enums.SubscriptionStatusCancelled
		if reason != "" {
			sub.CancellationReason = &reason
		}
		sub.CancelledAt = &now
		sub.CancelAtPeriodEnd = false
		sub.RenewsAt = nil
		sub.GracePeriodEndsAt = nil
		return nil
	})
}

// Suspend moves an active subscription into its grace period. Driven by
// payment failures, so it is not organization scoped.
func (s *service) Suspend(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error) {
	return s.mutate(ctx, nil, id, func(sub *models.Subscription) error {
		if err := ensureTransition(sub.Status, enums.SubscriptionStatusSuspended); err != nil {
			return err
		}
		graceEnds := now.UTC().Add(s.billing.GraceWindow())
		sub.Status = enums.SubscriptionStatusSuspended
		sub.GracePeriodEndsAt = &graceEnds
		return nil
	})
}

// Resume lifts a suspension after payment recovers and starts a fresh
// billing period.
func (s *service) Resume(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error) {
	return s.mutate(ctx, nil, id, func(sub *models.Subscription) error {
		if err := ensureTransition(sub.Status, enums.SubscriptionStatusActive); err != nil {
			return err
		}
		start := now.UTC()
		renews := periodEnd(sub.BillingCycle, start)
		sub.Status = enums.SubscriptionStatusActive
		sub.GracePeriodEndsAt = nil
		sub.CurrentPeriodStart = &start
		sub.RenewsAt = &renews
		return nil
	})
}

// MarkExpired closes out a lapsed trial or an exhausted grace period.
// CompleteCancellation closes out a subscription that was flagged to
// cancel at period end once its renewal date has passed. Driven by the
// cancellation sweep, so it is keyed by id only.
func (s *service) CompleteCancellation(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error) {
	return s.mutate(ctx, nil, id, func(sub *models.Subscription) error {
		if !sub.CancelAtPeriodEnd {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not flagged for cancellation")
		}
		if err := ensureTransition(sub.Status, enums.SubscriptionStatusCancelled); err != nil {
			return err
		}
		ts := now.UTC()
		sub.Status = enums.SubscriptionStatusCancelled
		sub.CancelledAt = &ts
		sub.CancelAtPeriodEnd = false
		sub.RenewsAt = nil
		sub.GracePeriodEndsAt = nil
		return nil
	})
}

func (s *service) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error) {
	return s.mutate(ctx, nil, id, func(sub *models.Subscription) error {
		if err := ensureTransition(sub.Status, enums.SubscriptionStatusExpired); err != nil {
			return err
		}
		sub.Status = enums.SubscriptionStatusExpired
		sub.RenewsAt = nil
		return nil
	})
}

// ValidateLicense answers whether a cabinet can use a module right now.
// A missing subscription is a denial, not an error.
func (s *service) ValidateLicense(ctx context.Context, organizationID, cabinetID uuid.UUID, moduleCode string) (*LicenseResult, error) {
	if strings.TrimSpace(moduleCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "module code is required")
	}
	sub, err := s.repo.FindByCabinet(ctx, organizationID, cabinetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	result := CheckAccess(sub, moduleCode, s.now().UTC())
	return &result, nil
}

// mutate loads the subscription under a row lock, applies fn and saves.
// A nil organizationID skips the ownership check for internal callers.
func (s *service) mutate(ctx context.Context, organizationID *uuid.UUID, id uuid.UUID, fn func(sub *models.Subscription) error) (*models.Subscription, error) {
	var updated *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var sub *models.Subscription
		var err error
		if organizationID != nil {
			sub, err = s.lockOwned(ctx, repo, *organizationID, id)
		} else {
			sub, err = repo.FindByIDForUpdate(ctx, id)
			if err == nil && sub == nil {
				err = pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
			}
		}
		if err != nil {
			return err
		}

		if err := fn(sub); err != nil {
			return err
		}
		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving subscription")
		}
		updated, err = repo.FindByID(ctx, sub.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) lockOwned(ctx context.Context, repo Repository, organizationID, id uuid.UUID) (*models.Subscription, error) {
	sub, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	if sub == nil || sub.OrganizationID != organizationID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

// priceFor snapshots the catalog price for the given cycle.
func priceFor(module models.FeatureModule, cycle enums.BillingCycle) decimal.Decimal {
	if cycle == enums.BillingCycleYearly {
		return module.YearlyPrice
	}
	return module.MonthlyPrice
}

// periodEnd computes the renewal instant for one billing period.
func periodEnd(cycle enums.BillingCycle, from time.Time) time.Time {
	if cycle == enums.BillingCycleYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
