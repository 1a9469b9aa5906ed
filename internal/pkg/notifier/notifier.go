package notifier

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
)

// Kind identifies a user-facing billing event. Delivery (push, e-mail) is an
// external concern; the core only emits these.
type Kind string

const (
	KindUsageLimitReached      Kind = "usage.limit-reached"
	KindPaymentConfirmed       Kind = "payment.confirmed"
	KindPurchaseCreated        Kind = "purchase.created"
	KindPlanChanged            Kind = "plan.changed"
	KindAddonCanceled          Kind = "addon.canceled"
	KindSubscriptionExpiring   Kind = "subscription.expiring-soon"
	KindSubscriptionLastCall   Kind = "subscription.final-warning"
	KindSubscriptionExpired    Kind = "subscription.expired"
	KindSubscriptionNonpayment Kind = "subscription.canceled-nonpayment"
	KindSubscriptionCanceled   Kind = "subscription.canceled"
)

// Notifier delivers a billing event to the organization's owner. Calls are
// fire-and-forget: failures are logged by the caller, never propagated into
// the billing decision that triggered them.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, organizationID uint, context map[string]string) error
}

// LogNotifier writes events to the application log only. Used when no push
// provider is configured and as the fallback in tests.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, kind Kind, organizationID uint, _ map[string]string) error {
	log.Infof("[Notifier] event %s for org %d", kind, organizationID)
	return nil
}

// Message returns the default user-facing text for an event kind.
func Message(kind Kind) string {
	switch kind {
	case KindUsageLimitReached:
		return "Your organization reached its monthly request limit."
	case KindPaymentConfirmed:
		return "Payment confirmed. Thank you!"
	case KindPurchaseCreated:
		return "Add-on purchase registered. An invoice was generated."
	case KindPlanChanged:
		return "Your subscription plan was changed."
	case KindAddonCanceled:
		return "An add-on was canceled."
	case KindSubscriptionExpiring:
		return "Your subscription expires in 3 days."
	case KindSubscriptionLastCall:
		return "Your subscription expires tomorrow."
	case KindSubscriptionExpired:
		return "Your subscription expired and access was blocked."
	case KindSubscriptionNonpayment:
		return "Your subscription was canceled due to an unpaid invoice."
	case KindSubscriptionCanceled:
		return "Your subscription was canceled."
	default:
		return string(kind)
	}
}
