package cron

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
	"github.com/denthubhq/denthub-backend/pkg/logger"
)

type fakeExpirableLister struct {
	subs  []models.Subscription
	limit int
}

func (f *fakeExpirableLister) ListExpirable(_ context.Context, _ time.Time, limit int) ([]models.Subscription, error) {
	f.limit = limit
	return f.subs, nil
}

type fakeExpirer struct {
	expired []uuid.UUID
	errs    map[uuid.UUID]error
}

func (f *fakeExpirer) MarkExpired(_ context.Context, id uuid.UUID, _ time.Time) (*models.Subscription, error) {
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	f.expired = append(f.expired, id)
	return &models.Subscription{ID: id}, nil
}

func newExpireJob(t *testing.T, lister *fakeExpirableLister, expirer *fakeExpirer) *subscriptionExpireJob {
	t.Helper()
	jobIface, err := NewSubscriptionExpireJob(SubscriptionExpireJobParams{
		Logger:        logger.New(logger.Options{ServiceName: "test"}),
		Repo:          lister,
		Subscriptions: expirer,
		BatchLimit:    50,
	})
	if err != nil {
		t.Fatalf("NewSubscriptionExpireJob: %v", err)
	}
	job, ok := jobIface.(*subscriptionExpireJob)
	if !ok {
		t.Fatalf("expected subscriptionExpireJob, got %T", jobIface)
	}
	return job
}

func TestSubscriptionExpireJobExpiresCandidates(t *testing.T) {
	subs := []models.Subscription{
		{ID: uuid.New()},
		{ID: uuid.New()},
	}
	lister := &fakeExpirableLister{subs: subs}
	expirer := &fakeExpirer{}
	job := newExpireJob(t, lister, expirer)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(expirer.expired) != 2 {
		t.Fatalf("expected 2 expired, got %d", len(expirer.expired))
	}
	if lister.limit != 50 {
		t.Fatalf("batch limit = %d, want 50", lister.limit)
	}
}

func TestSubscriptionExpireJobSkipsStateConflicts(t *testing.T) {
	racedID := uuid.New()
	okID := uuid.New()
	lister := &fakeExpirableLister{subs: []models.Subscription{{ID: racedID}, {ID: okID}}}
	expirer := &fakeExpirer{errs: map[uuid.UUID]error{
		racedID: pkgerrors.New(pkgerrors.CodeStateConflict, "subscription status transition disallowed"),
	}}
	job := newExpireJob(t, lister, expirer)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("state conflicts must not fail the sweep: %v", err)
	}
	if len(expirer.expired) != 1 || expirer.expired[0] != okID {
		t.Fatalf("expected only %s expired, got %v", okID, expirer.expired)
	}
}

func TestSubscriptionExpireJobCollectsFailures(t *testing.T) {
	badID := uuid.New()
	okID := uuid.New()
	lister := &fakeExpirableLister{subs: []models.Subscription{{ID: badID}, {ID: okID}}}
	expirer := &fakeExpirer{errs: map[uuid.UUID]error{
		badID: fmt.Errorf("db down"),
	}}
	job := newExpireJob(t, lister, expirer)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	// The sweep continues past failures.
	if len(expirer.expired) != 1 {
		t.Fatalf("expected remaining candidate expired, got %d", len(expirer.expired))
	}
}

func TestSubscriptionExpireJobName(t *testing.T) {
	job := newExpireJob(t, &fakeExpirableLister{}, &fakeExpirer{})
	if job.Name() != "subscription-expire" {
		t.Fatalf("name = %s", job.Name())
	}
}
