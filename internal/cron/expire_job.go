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

const defaultExpireBatchLimit = 250

type expirableLister interface {
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
}

type subscriptionExpirer interface {
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error)
}

// SubscriptionExpireJobParams configures the scheduled expiry sweep.
type SubscriptionExpireJobParams struct {
	Logger        *logger.Logger
	Repo          expirableLister
	Subscriptions subscriptionExpirer
	BatchLimit    int
}

// NewSubscriptionExpireJob constructs the subscription expiry cron job.
// It closes out trials past trial_ends_at and suspended subscriptions
// whose grace period has run out.
func NewSubscriptionExpireJob(params SubscriptionExpireJobParams) (Job, error) {
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
	return &subscriptionExpireJob{
		logg:          params.Logger,
		repo:          params.Repo,
		subscriptions: params.Subscriptions,
		batchLimit:    limit,
		now:           time.Now,
	}, nil
}

type subscriptionExpireJob struct {
	logg          *logger.Logger
	repo          expirableLister
	subscriptions subscriptionExpirer
	batchLimit    int
	now           func() time.Time
}

func (j *subscriptionExpireJob) Name() string { return "subscription-expire" }

func (j *subscriptionExpireJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	subs, err := j.repo.ListExpirable(ctx, now, j.batchLimit)
	if err != nil {
		return fmt.Errorf("query expirable subscriptions: %w", err)
	}

	var errs []error
	expired := 0
	skipped := 0
	for _, sub := range subs {
		if _, err := j.subscriptions.MarkExpired(ctx, sub.ID, now); err != nil {
			// A concurrent payment or cancellation moved the row first.
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
				skipped++
				continue
			}
			errs = append(errs, fmt.Errorf("expire subscription %s: %w", sub.ID, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(subs),
		"expired":    expired,
		"skipped":    skipped,
		"failed":     len(errs),
	})
	j.logg.Info(logCtx, "subscription expiry sweep complete")
	return multierr.Combine(errs...)
}
