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

const trialDays = 7

// Service bundles the account-facing billing operations: starting a
// subscription, buying and canceling addons, switching plans and producing
// payment links. Each mutation runs in one transaction with the
// organization's subscription row locked.
type Service struct {
	repo     ledger.Repository
	engine   *Engine
	gateway  PaymentGateway
	notifier notifier.Notifier
	now      func() time.Time
}

func NewService(repo ledger.Repository, engine *Engine, gateway PaymentGateway, n notifier.Notifier) *Service {
	if n == nil {
		n = notifier.LogNotifier{}
	}
	return &Service{repo: repo, engine: engine, gateway: gateway, notifier: n, now: time.Now}
}

// StartSubscription creates the organization's subscription on the given
// plan. Trial-eligible plans start TRIALING with a seven-day window; paid
// plans start ACTIVE with a thirty-day period and an invoice due in a week.
func (s *Service) StartSubscription(ctx context.Context, organizationID uint, planUUID string) (*models.Subscription, error) {
	var sub *models.Subscription

	err := s.repo.InTransaction(func(tx ledger.Repository) error {
		if _, err := tx.OrganizationByID(organizationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("organization %d not found", organizationID)
			}
			return err
		}
		if _, err := tx.SubscriptionByOrganization(organizationID); err == nil {
			return apperrors.NewConflict("organization %d already has a subscription", organizationID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		plan, err := tx.PlanByUUID(planUUID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("plan %s not found", planUUID)
			}
			return err
		}

		now := s.now()
		next := &models.Subscription{
			OrganizationID: organizationID,
			PlanID:         plan.ID,
			StartedAt:      now,
		}
		if plan.TrialEligible {
			trialEnd := now.Add(trialDays * 24 * time.Hour)
			next.Status = models.SubscriptionStatusTrialing
			next.CurrentPeriodEnd = trialEnd
			next.TrialEndsAt = &trialEnd
		} else {
			next.Status = models.SubscriptionStatusActive
			next.CurrentPeriodEnd = now.Add(paidPeriodDays * 24 * time.Hour)
		}
		if err := tx.CreateSubscription(next); err != nil {
			return err
		}

		if !plan.TrialEligible {
			inv := &models.Invoice{
				OrganizationID: organizationID,
				SubscriptionID: &next.ID,
				Amount:         plan.Price,
				Status:         models.InvoiceStatusPending,
				Kind:           models.InvoiceKindRenewal,
				DueDate:        now.Add(addonDueDays * 24 * time.Hour),
			}
			if err := tx.CreateInvoice(inv); err != nil {
				return err
			}
		}
		sub = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// PurchaseAddon accumulates quantity units onto the organization's addon row
// and raises the matching invoice atomically.
func (s *Service) PurchaseAddon(ctx context.Context, organizationID uint, addonType string, quantity int) (*models.Addon, *models.Invoice, error) {
	if !models.IsValidAddonType(addonType) {
		return nil, nil, apperrors.NewValidation("unknown addon type %q", addonType)
	}
	if quantity < 1 {
		return nil, nil, apperrors.NewValidation("addon quantity must be at least 1")
	}

	var (
		addon   *models.Addon
		invoice *models.Invoice
	)
	err := s.repo.InTransaction(func(tx ledger.Repository) error {
		sub, err := s.lockEntitled(tx, organizationID)
		if err != nil {
			return err
		}

		invoice, err = s.engine.GenerateAddonInvoice(tx, sub, addonType, quantity)
		if err != nil {
			return err
		}
		addon, err = tx.UpsertAddonPurchase(organizationID, addonType, quantity, models.AddonUnitPrice(addonType))
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if nerr := s.notifier.Notify(ctx, notifier.KindPurchaseCreated, organizationID, map[string]string{
		"addon":   addonType,
		"invoice": invoice.UUID,
	}); nerr != nil {
		log.Warnf("[Billing] purchase notify failed for org %d: %v", organizationID, nerr)
	}
	return addon, invoice, nil
}

// CancelAddon removes the addon row. An EXTRA_IP cancellation is refused
// while the freed slots are still occupied by authorized addresses.
func (s *Service) CancelAddon(ctx context.Context, organizationID uint, addonUUID string) error {
	var canceledType string

	err := s.repo.InTransaction(func(tx ledger.Repository) error {
		sub, err := s.lockEntitled(tx, organizationID)
		if err != nil {
			return err
		}

		addon, err := tx.AddonByUUID(organizationID, addonUUID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("addon %s not found", addonUUID)
			}
			return err
		}

		if addon.Type == models.AddonTypeExtraIP {
			plan, err := tx.PlanByID(sub.PlanID)
			if err != nil {
				return err
			}
			used, err := tx.CountIPs(organizationID)
			if err != nil {
				return err
			}
			if used > int64(plan.MaxIPs) {
				return apperrors.NewConflict("remove %d authorized addresses before canceling the extra IP addon", used-int64(plan.MaxIPs))
			}
		}

		canceledType = addon.Type
		return tx.DeleteAddon(addon.ID)
	})
	if err != nil {
		return err
	}

	if nerr := s.notifier.Notify(ctx, notifier.KindAddonCanceled, organizationID, map[string]string{
		"addon": canceledType,
	}); nerr != nil {
		log.Warnf("[Billing] addon cancel notify failed for org %d: %v", organizationID, nerr)
	}
	return nil
}

// ChangePlan switches the subscription to the given plan. Upgrades take
// effect immediately and charge the prorated difference; downgrades take
// effect immediately without a refund. Changing the plan of a CANCELED
// subscription re-opens it: the plan is set and a fresh invoice is raised,
// but entitlement only returns when that invoice is paid.
func (s *Service) ChangePlan(ctx context.Context, organizationID uint, planUUID string) (*models.Invoice, error) {
	var invoice *models.Invoice

	err := s.repo.InTransaction(func(tx ledger.Repository) error {
		sub, err := tx.SubscriptionByOrganizationForUpdate(organizationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("organization %d has no subscription", organizationID)
			}
			return err
		}
		newPlan, err := tx.PlanByUUID(planUUID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("plan %s not found", planUUID)
			}
			return err
		}
		if sub.PlanID == newPlan.ID {
			return apperrors.NewConflict("subscription is already on plan %s", newPlan.Name)
		}
		if newPlan.TrialEligible {
			return apperrors.NewValidation("cannot change to the trial plan")
		}
		oldPlan, err := tx.PlanByID(sub.PlanID)
		if err != nil {
			return err
		}

		if sub.Status == models.SubscriptionStatusCanceled {
			inv := &models.Invoice{
				OrganizationID: organizationID,
				SubscriptionID: &sub.ID,
				Amount:         newPlan.Price,
				Status:         models.InvoiceStatusPending,
				Kind:           models.InvoiceKindRenewal,
				DueDate:        s.now().Add(addonDueDays * 24 * time.Hour),
			}
			if err := tx.CreateInvoice(inv); err != nil {
				return err
			}
			invoice = inv
		} else {
			invoice, err = s.engine.GenerateProrationInvoice(tx, sub, oldPlan, newPlan)
			if err != nil {
				return err
			}
		}

		sub.PlanID = newPlan.ID
		return tx.SaveSubscription(sub)
	})
	if err != nil {
		return nil, err
	}

	if nerr := s.notifier.Notify(ctx, notifier.KindPlanChanged, organizationID, nil); nerr != nil {
		log.Warnf("[Billing] plan change notify failed for org %d: %v", organizationID, nerr)
	}
	return invoice, nil
}

// CancelSubscription ends the subscription immediately. Open invoices stay
// collectible; nothing is refunded.
func (s *Service) CancelSubscription(ctx context.Context, organizationID uint) error {
	err := s.repo.InTransaction(func(tx ledger.Repository) error {
		sub, err := tx.SubscriptionByOrganizationForUpdate(organizationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("organization %d has no subscription", organizationID)
			}
			return err
		}
		if sub.Status == models.SubscriptionStatusCanceled {
			return apperrors.NewConflict("subscription is already canceled")
		}
		sub.Status = models.SubscriptionStatusCanceled
		return tx.SaveSubscription(sub)
	})
	if err != nil {
		return err
	}

	if nerr := s.notifier.Notify(ctx, notifier.KindSubscriptionCanceled, organizationID, nil); nerr != nil {
		log.Warnf("[Billing] cancel notify failed for org %d: %v", organizationID, nerr)
	}
	return nil
}

// PaymentLink returns the earliest pending invoice with a usable payment
// URL, creating the charge at the gateway on first call. A gateway timeout
// leaves the invoice PENDING without a link and surfaces an
// ExternalServiceError so the caller retries; the invoice UUID doubles as
// the gateway idempotency key, so retrying can never double-charge.
func (s *Service) PaymentLink(ctx context.Context, organizationID uint, payer *models.User, clientIP string) (*models.Invoice, error) {
	inv, err := s.engine.FindPendingInvoice(organizationID)
	if err != nil {
		return nil, err
	}
	if inv.PaymentURL != "" {
		return inv, nil
	}

	resp, err := s.gateway.CreatePixPayment(ctx, CreatePaymentParams{
		AmountCents: inv.Amount,
		InvoiceUUID: inv.UUID,
		Customer: Customer{
			Name:     payer.Name,
			Email:    payer.Email,
			Document: payer.Document,
			Phone:    payer.Phone,
			IP:       clientIP,
		},
	})
	if err != nil {
		return nil, err
	}

	inv.PaymentURL = resp.PaymentURL
	if inv.ExternalPaymentID == "" {
		inv.ExternalPaymentID = resp.PaymentID
	}
	if err := s.repo.SaveInvoice(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// lockEntitled fetches the subscription under lock and requires it to still
// grant access.
func (s *Service) lockEntitled(tx ledger.Repository, organizationID uint) (*models.Subscription, error) {
	sub, err := tx.SubscriptionByOrganizationForUpdate(organizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("organization %d has no subscription", organizationID)
		}
		return nil, err
	}
	if !sub.IsEntitled() {
		return nil, apperrors.NewForbidden("organization %d does not have an active subscription", organizationID)
	}
	return sub, nil
}
