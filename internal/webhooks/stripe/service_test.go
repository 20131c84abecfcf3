package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	"github.com/denthubhq/denthub-backend/pkg/enums"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
	"github.com/denthubhq/denthub-backend/pkg/logger"
)

type fakeLifecycle struct {
	subs      map[string]*models.Subscription
	suspended []uuid.UUID
	resumed   []uuid.UUID
	expired   []uuid.UUID
	cancelled []uuid.UUID
	err       error
}

func (f *fakeLifecycle) FindByStripeSubscriptionID(_ context.Context, id string) (*models.Subscription, error) {
	return f.subs[id], nil
}

func (f *fakeLifecycle) Suspend(_ context.Context, id uuid.UUID, _ time.Time) (*models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.suspended = append(f.suspended, id)
	return &models.Subscription{ID: id}, nil
}

func (f *fakeLifecycle) Resume(_ context.Context, id uuid.UUID, _ time.Time) (*models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.resumed = append(f.resumed, id)
	return &models.Subscription{ID: id}, nil
}

func (f *fakeLifecycle) MarkExpired(_ context.Context, id uuid.UUID, _ time.Time) (*models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.expired = append(f.expired, id)
	return &models.Subscription{ID: id}, nil
}

func (f *fakeLifecycle) CompleteCancellation(_ context.Context, id uuid.UUID, _ time.Time) (*models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.cancelled = append(f.cancelled, id)
	return &models.Subscription{ID: id}, nil
}

func newTestService(t *testing.T, lifecycle *fakeLifecycle) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:        logger.New(logger.Options{ServiceName: "test"}),
		Subscriptions: lifecycle,
		Now:           func() time.Time { return time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func invoiceEvent(eventType stripe.EventType, stripeSubID string) *stripe.Event {
	return &stripe.Event{
		Type: eventType,
		Data: &stripe.EventData{
			Object: map[string]any{"subscription": stripeSubID},
		},
	}
}

func TestHandleEventPaymentFailedSuspends(t *testing.T) {
	subID := uuid.New()
	lifecycle := &fakeLifecycle{subs: map[string]*models.Subscription{
		"sub_abc": {ID: subID, Status: enums.SubscriptionStatusActive},
	}}
	svc := newTestService(t, lifecycle)

	if err := svc.HandleEvent(context.Background(), invoiceEvent(stripe.EventTypeInvoicePaymentFailed, "sub_abc")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(lifecycle.suspended) != 1 || lifecycle.suspended[0] != subID {
		t.Fatalf("expected suspend for %s, got %v", subID, lifecycle.suspended)
	}
}

func TestHandleEventInvoicePaidResumesSuspended(t *testing.T) {
	subID := uuid.New()
	lifecycle := &fakeLifecycle{subs: map[string]*models.Subscription{
		"sub_abc": {ID: subID, Status: enums.SubscriptionStatusSuspended},
	}}
	svc := newTestService(t, lifecycle)

	if err := svc.HandleEvent(context.Background(), invoiceEvent(stripe.EventTypeInvoicePaid, "sub_abc")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(lifecycle.resumed) != 1 || lifecycle.resumed[0] != subID {
		t.Fatalf("expected resume for %s, got %v", subID, lifecycle.resumed)
	}
}

func TestHandleEventInvoicePaidActiveIsNoOp(t *testing.T) {
	lifecycle := &fakeLifecycle{subs: map[string]*models.Subscription{
		"sub_abc": {ID: uuid.New(), Status: enums.SubscriptionStatusActive},
	}}
	svc := newTestService(t, lifecycle)

	if err := svc.HandleEvent(context.Background(), invoiceEvent(stripe.EventTypeInvoicePaid, "sub_abc")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(lifecycle.resumed) != 0 {
		t.Fatalf("active subscription should not be resumed, got %v", lifecycle.resumed)
	}
}

func TestHandleEventUnknownSubscriptionAcknowledged(t *testing.T) {
	lifecycle := &fakeLifecycle{subs: map[string]*models.Subscription{}}
	svc := newTestService(t, lifecycle)

	if err := svc.HandleEvent(context.Background(), invoiceEvent(stripe.EventTypeInvoicePaymentFailed, "sub_missing")); err != nil {
		t.Fatalf("unknown subscription must be acknowledged: %v", err)
	}
	if len(lifecycle.suspended) != 0 {
		t.Fatalf("nothing should be suspended, got %v", lifecycle.suspended)
	}
}

func TestHandleEventSwallowsStateConflicts(t *testing.T) {
	lifecycle := &fakeLifecycle{
		subs: map[string]*models.Subscription{
			"sub_abc": {ID: uuid.New(), Status: enums.SubscriptionStatusTrial},
		},
		err: pkgerrors.New(pkgerrors.CodeStateConflict, "subscription status transition disallowed"),
	}
	svc := newTestService(t, lifecycle)

	if err := svc.HandleEvent(context.Background(), invoiceEvent(stripe.EventTypeInvoicePaymentFailed, "sub_abc")); err != nil {
		t.Fatalf("state conflicts must be swallowed: %v", err)
	}
}

func deletedEvent(t *testing.T, stripeSubID string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"id": stripeSubID})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &stripe.Event{
		Type: stripe.EventTypeCustomerSubscriptionDeleted,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventSubscriptionDeletedExpires(t *testing.T) {
	subID := uuid.New()
	lifecycle := &fakeLifecycle{subs: map[string]*models.Subscription{
		"sub_abc": {ID: subID, Status: enums.SubscriptionStatusSuspended},
	}}
	svc := newTestService(t, lifecycle)

	if err := svc.HandleEvent(context.Background(), deletedEvent(t, "sub_abc")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(lifecycle.expired) != 1 || lifecycle.expired[0] != subID {
		t.Fatalf("expected expiry for %s, got %v", subID, lifecycle.expired)
	}
}

func TestHandleEventSubscriptionDeletedFinalizesPendingCancel(t *testing.T) {
	subID := uuid.New()
	lifecycle := &fakeLifecycle{subs: map[string]*models.Subscription{
		"sub_abc": {ID: subID, Status: enums.SubscriptionStatusActive, CancelAtPeriodEnd: true},
	}}
	svc := newTestService(t, lifecycle)

	if err := svc.HandleEvent(context.Background(), deletedEvent(t, "sub_abc")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(lifecycle.cancelled) != 1 || lifecycle.cancelled[0] != subID {
		t.Fatalf("expected cancellation for %s, got %v", subID, lifecycle.cancelled)
	}
	if len(lifecycle.expired) != 0 {
		t.Fatalf("flagged active subscription must not be expired, got %v", lifecycle.expired)
	}
}

func TestHandleEventIgnoresUnrelatedTypes(t *testing.T) {
	lifecycle := &fakeLifecycle{}
	svc := newTestService(t, lifecycle)

	event := &stripe.Event{
		Type: stripe.EventTypeChargeSucceeded,
		Data: &stripe.EventData{Object: map[string]any{}},
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
}

func TestInvoiceSubscriptionIDNestedParent(t *testing.T) {
	object := map[string]any{
		"parent": map[string]any{
			"subscription_details": map[string]any{
				"subscription": "sub_nested",
			},
		},
	}
	if got := invoiceSubscriptionID(object); got != "sub_nested" {
		t.Fatalf("got %q, want sub_nested", got)
	}
	if got := invoiceSubscriptionID(map[string]any{}); got != "" {
		t.Fatalf("expected empty for bare object, got %q", got)
	}
}
