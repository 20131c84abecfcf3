package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
	"github.com/denthubhq/denthub-backend/pkg/logger"
)

type deferredCancellationLister interface {
	ListDeferredCancellations(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
}

type subscriptionCanceller interface {
	CompleteCancellation(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error)
}

// SubscriptionCancelJobParams configures the deferred cancellation sweep.
type SubscriptionCancelJobParams struct {
	Logger        *logger.Logger
	Repo          deferredCancellationLister
	Subscriptions subscriptionCanceller
	BatchLimit    int
}

// NewSubscriptionCancelJob constructs the cron job that finalizes
// cancel-at-period-end requests once the paid period has run out.
func NewSubscriptionCancelJob(params SubscriptionCancelJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	limit := params.BatchLimit
	if limit <= 0 {
		limit = defaultExpireBatchLimit
	}
	return &subscriptionCancelJob{
		logg:          params.Logger,
		repo:          params.Repo,
		subscriptions: params.Subscriptions,
		batchLimit:    limit,
		now:           time.Now,
	}, nil
}

type subscriptionCancelJob struct {
	logg          *logger.Logger
	repo          deferredCancellationLister
	subscriptions subscriptionCanceller
	batchLimit    int
	now           func() time.Time
}

func (j *subscriptionCancelJob) Name() string { return "subscription-cancel" }

func (j *subscriptionCancelJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	subs, err := j.repo.ListDeferredCancellations(ctx, now, j.batchLimit)
	if err != nil {
		return fmt.Errorf("query deferred cancellations: %w", err)
	}

	var errs []error
	cancelled := 0
	skipped := 0
	for _, sub := range subs {
		if _, err := j.subscriptions.CompleteCancellation(ctx, sub.ID, now); err != nil {
			// A payment failure or manual cancel moved the row first.
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
				skipped++
				continue
			}
			errs = append(errs, fmt.Errorf("cancel subscription %s: %w", sub.ID, err))
			continue
		}
		cancelled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(subs),
		"cancelled":  cancelled,
		"skipped":    skipped,
		"failed":     len(errs),
	})
	j.logg.Info(logCtx, "deferred cancellation sweep complete")
	return multierr.Combine(errs...)
}
