package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	"github.com/denthubhq/denthub-backend/pkg/enums"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
	"github.com/denthubhq/denthub-backend/pkg/logger"
)

// subscriptionLifecycle is the slice of the subscription service the
// webhook consumer needs.
type subscriptionLifecycle interface {
	FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	Suspend(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error)
	Resume(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error)
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error)
	CompleteCancellation(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error)
}

// ServiceParams wires the stripe webhook consumer.
type ServiceParams struct {
	Logger        *logger.Logger
	Subscriptions subscriptionLifecycle
	Now           func() time.Time
}

// Service applies Stripe billing events to local subscriptions. Payment
// failure suspends, payment recovery resumes, remote deletion closes the
// subscription out.
type Service struct {
	logg          *logger.Logger
	subscriptions subscriptionLifecycle
	now           func() time.Time
}

// NewService validates dependencies and builds the webhook consumer.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription service required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		logg:          params.Logger,
		subscriptions: params.Subscriptions,
		now:           params.Now,
	}, nil
}

// HandleEvent processes one verified Stripe event. Unknown event types
// and events for subscriptions we do not track are acknowledged without
// action so Stripe stops retrying them.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeInvoicePaymentFailed:
		return s.onInvoiceEvent(ctx, event, s.suspend)
	case stripe.EventTypeInvoicePaid:
		return s.onInvoiceEvent(ctx, event, s.resume)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		return s.withLocalSubscription(ctx, stripeSub.ID, s.close)
	default:
		return nil
	}
}

func (s *Service) onInvoiceEvent(ctx context.Context, event *stripe.Event, apply func(context.Context, *models.Subscription) error) error {
	subscriptionID := invoiceSubscriptionID(event.Data.Object)
	if subscriptionID == "" {
		// One-off invoices carry no subscription. Nothing to do.
		return nil
	}
	return s.withLocalSubscription(ctx, subscriptionID, apply)
}

func (s *Service) withLocalSubscription(ctx context.Context, stripeSubscriptionID string, apply func(context.Context, *models.Subscription) error) error {
	sub, err := s.subscriptions.FindByStripeSubscriptionID(ctx, stripeSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		logCtx := s.logg.WithField(ctx, "stripe_subscription_id", stripeSubscriptionID)
		s.logg.Warn(logCtx, "stripe event for unknown subscription")
		return nil
	}
	return swallowStateConflict(apply(ctx, sub))
}

func (s *Service) suspend(ctx context.Context, sub *models.Subscription) error {
	_, err := s.subscriptions.Suspend(ctx, sub.ID, s.now())
	return err
}

func (s *Service) resume(ctx context.Context, sub *models.Subscription) error {
	if sub.Status != enums.SubscriptionStatusSuspended {
		// Regular renewals on an active subscription need no transition.
		return nil
	}
	_, err := s.subscriptions.Resume(ctx, sub.ID, s.now())
	return err
}

// close maps a remote deletion onto the matching local transition. Stripe
// deletes a subscription when a cancel-at-period-end runs out, so a flagged
// active row becomes cancelled; lapsed trials and exhausted grace periods
// expire as usual.
func (s *Service) close(ctx context.Context, sub *models.Subscription) error {
	if sub.Status == enums.SubscriptionStatusActive && sub.CancelAtPeriodEnd {
		_, err := s.subscriptions.CompleteCancellation(ctx, sub.ID, s.now())
		return err
	}
	_, err := s.subscriptions.MarkExpired(ctx, sub.ID, s.now())
	return err
}

// invoiceSubscriptionID digs the subscription id out of an invoice object.
// Older API versions expose it top level, newer ones nest it under
// parent.subscription_details.
func invoiceSubscriptionID(object map[string]any) string {
	if object == nil {
		return ""
	}
	if id, ok := object["subscription"].(string); ok && id != "" {
		return id
	}
	parent, ok := object["parent"].(map[string]any)
	if !ok {
		return ""
	}
	details, ok := parent["subscription_details"].(map[string]any)
	if !ok {
		return ""
	}
	if id, ok := details["subscription"].(string); ok {
		return id
	}
	return ""
}

// swallowStateConflict turns out-of-order event races into no-ops. Stripe
// does not guarantee delivery order, so a stale transition is expected.
func swallowStateConflict(err error) error {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
		return nil
	}
	return err
}
