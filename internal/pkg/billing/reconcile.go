package billing

import (
	"context"
	"errors"
	"time"

	"github.com/consultix/consultix/app/models"
	"github.com/consultix/consultix/internal/pkg/apperrors"
	"github.com/consultix/consultix/internal/pkg/ledger"
	"github.com/consultix/consultix/internal/pkg/notifier"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// paidPeriodDays is the length of the period granted by a confirmed payment.
const paidPeriodDays = 30

// Reconciler applies gateway webhook events to the ledger. All transitions
// run under a row lock on the invoice, and replays of an already-applied
// event report success without touching anything, so the gateway can retry
// deliveries as often as it likes.
type Reconciler struct {
	repo     ledger.Repository
	notifier notifier.Notifier
	now      func() time.Time
}

func NewReconciler(repo ledger.Repository, n notifier.Notifier) *Reconciler {
	if n == nil {
		n = notifier.LogNotifier{}
	}
	return &Reconciler{repo: repo, notifier: n, now: time.Now}
}

// ProcessWebhook dispatches one authenticated gateway payload. The caller has
// already verified the signature; unknown invoices surface as NotFoundError.
func (r *Reconciler) ProcessWebhook(ctx context.Context, payload WebhookPayload) (*WebhookResult, error) {
	switch payload.PaymentStatus {
	case PaymentStatusPending:
		// The gateway echoes intermediate states; nothing to reconcile yet.
		if _, err := r.repo.InvoiceByUUID(payload.ExternalInvoiceCode); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NewNotFound("no invoice with code %s", payload.ExternalInvoiceCode)
			}
			return nil, err
		}
		return &WebhookResult{InvoiceUUID: payload.ExternalInvoiceCode, Status: models.InvoiceStatusPending, Ignored: true}, nil
	case PaymentStatusApproved:
		return r.settle(ctx, payload)
	case PaymentStatusCanceled, PaymentStatusRefunded:
		return r.cancel(ctx, payload)
	default:
		return nil, apperrors.NewValidation("unknown payment status %q", payload.PaymentStatus)
	}
}

// settle moves a collectible invoice to PAID and applies the subscription
// side effects: a trialing subscription converts to a paid one, and a renewal
// payment extends the period and clears any overdue flag.
func (r *Reconciler) settle(ctx context.Context, payload WebhookPayload) (*WebhookResult, error) {
	var (
		result    WebhookResult
		notifyOrg uint
	)

	err := r.repo.InTransaction(func(tx ledger.Repository) error {
		inv, err := tx.InvoiceByUUIDForUpdate(payload.ExternalInvoiceCode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("no invoice with code %s", payload.ExternalInvoiceCode)
			}
			return err
		}
		result.InvoiceUUID = inv.UUID

		if inv.Status == models.InvoiceStatusPaid {
			result.Status = inv.Status
			result.Duplicate = true
			return nil
		}
		if !inv.IsCollectible() {
			return apperrors.NewConflict("invoice %s is %s and cannot be paid", inv.UUID, inv.Status)
		}

		now := r.now()
		inv.Status = models.InvoiceStatusPaid
		inv.PaidAt = &now
		if payload.PaymentID != "" {
			inv.ExternalPaymentID = payload.PaymentID
		}
		if err := tx.SaveInvoice(inv); err != nil {
			return err
		}
		result.Status = inv.Status

		if inv.SubscriptionID != nil {
			if err := r.applyPaidCascade(tx, inv, now); err != nil {
				return err
			}
		}
		notifyOrg = inv.OrganizationID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if notifyOrg != 0 {
		if nerr := r.notifier.Notify(ctx, notifier.KindPaymentConfirmed, notifyOrg, map[string]string{
			"invoice": result.InvoiceUUID,
		}); nerr != nil {
			log.Warnf("[Billing] payment confirmation notify failed for org %d: %v", notifyOrg, nerr)
		}
	}
	return &result, nil
}

// applyPaidCascade updates the owning subscription after an invoice settles.
// Trial conversion lands on the cheapest paid plan; a renewal payment grants
// a fresh 30-day period and restores entitlement if the subscription had
// slipped to OVERDUE.
func (r *Reconciler) applyPaidCascade(tx ledger.Repository, inv *models.Invoice, now time.Time) error {
	sub, err := tx.SubscriptionByOrganizationForUpdate(inv.OrganizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] invoice %s references subscription %d which no longer exists", inv.UUID, *inv.SubscriptionID)
			return nil
		}
		return err
	}

	switch {
	case sub.Status == models.SubscriptionStatusTrialing:
		plan, err := tx.PlanByTier(models.PlanTierBasic)
		if err != nil {
			return err
		}
		sub.PlanID = plan.ID
		sub.Status = models.SubscriptionStatusActive
		sub.CurrentPeriodEnd = now.Add(paidPeriodDays * 24 * time.Hour)
	case inv.Kind == models.InvoiceKindRenewal:
		sub.Status = models.SubscriptionStatusActive
		sub.CurrentPeriodEnd = now.Add(paidPeriodDays * 24 * time.Hour)
	case sub.Status == models.SubscriptionStatusOverdue:
		sub.Status = models.SubscriptionStatusActive
	default:
		// Proration and addon payments leave the period untouched.
		return nil
	}
	return tx.SaveSubscription(sub)
}

// cancel voids an open invoice. A paid invoice stays paid; refund money
// movement is the gateway's business, we only record that the charge ended.
func (r *Reconciler) cancel(_ context.Context, payload WebhookPayload) (*WebhookResult, error) {
	var result WebhookResult

	err := r.repo.InTransaction(func(tx ledger.Repository) error {
		inv, err := tx.InvoiceByUUIDForUpdate(payload.ExternalInvoiceCode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("no invoice with code %s", payload.ExternalInvoiceCode)
			}
			return err
		}
		result.InvoiceUUID = inv.UUID
		result.Status = inv.Status

		switch inv.Status {
		case models.InvoiceStatusCanceled:
			result.Duplicate = true
			return nil
		case models.InvoiceStatusPaid:
			log.Warnf("[Billing] gateway reported %s for paid invoice %s, keeping it paid", payload.PaymentStatus, inv.UUID)
			result.Ignored = true
			return nil
		}

		inv.Status = models.InvoiceStatusCanceled
		if payload.PaymentID != "" && inv.ExternalPaymentID == "" {
			inv.ExternalPaymentID = payload.PaymentID
		}
		if err := tx.SaveInvoice(inv); err != nil {
			return err
		}
		result.Status = inv.Status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
