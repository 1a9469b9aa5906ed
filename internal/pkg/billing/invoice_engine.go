package billing

import (
	"errors"
	"math"
	"time"

	"github.com/consultix/consultix/app/models"
	"github.com/consultix/consultix/internal/pkg/apperrors"
	"github.com/consultix/consultix/internal/pkg/ledger"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const (
	prorationBasisDays = 30
	addonDueDays       = 7
)

// Engine creates invoices. It never mutates subscriptions; settling an
// invoice and its side effects belong to the Reconciler.
type Engine struct {
	repo ledger.Repository
	loc  *time.Location
	now  func() time.Time
}

// NewEngine returns an Engine using loc for due-date arithmetic on
// organizations that carry no timezone of their own.
func NewEngine(repo ledger.Repository, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{repo: repo, loc: loc, now: time.Now}
}

func (e *Engine) location(org *models.Organization) *time.Location {
	if org != nil {
		if l := org.Location(); l != nil {
			return l
		}
	}
	return e.loc
}

// RenewalAmount is the recurring monthly charge: the plan price plus every
// purchased addon unit at its recorded unit price.
func RenewalAmount(plan *models.Plan, addons []models.Addon) int64 {
	total := plan.Price
	for _, a := range addons {
		total += int64(a.Amount) * a.UnitPrice
	}
	return total
}

// renewalDueDate is midnight on the first day of the month following the
// subscription's current period, in the organization's local time.
func (e *Engine) renewalDueDate(org *models.Organization, sub *models.Subscription) time.Time {
	loc := e.location(org)
	end := sub.CurrentPeriodEnd.In(loc)
	return time.Date(end.Year(), end.Month()+1, 1, 0, 0, 0, 0, loc)
}

// GenerateRenewalInvoice creates the next period's renewal charge for the
// given organization. Calling it again for the same period finds the existing
// invoice and returns it with created=false, so the monthly job can be re-run
// after a partial failure without double billing anyone.
func (e *Engine) GenerateRenewalInvoice(organizationID uint) (*models.Invoice, bool, error) {
	var (
		invoice *models.Invoice
		created bool
	)

	err := e.repo.InTransaction(func(tx ledger.Repository) error {
		// Lock before any plain read: concurrent generators serialize on the
		// subscription row, and the due-date existence check below must see
		// the winner's committed invoice, not a pre-lock snapshot.
		sub, err := tx.SubscriptionByOrganizationForUpdate(organizationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("organization %d has no subscription", organizationID)
			}
			return err
		}
		org, err := tx.OrganizationByID(organizationID)
		if err != nil {
			return err
		}
		if sub.Status != models.SubscriptionStatusActive {
			return apperrors.NewConflict("subscription %s is %s, renewals apply to ACTIVE only", sub.UUID, sub.Status)
		}
		plan, err := tx.PlanByID(sub.PlanID)
		if err != nil {
			return err
		}
		addons, err := tx.ListAddons(organizationID)
		if err != nil {
			return err
		}

		due := e.renewalDueDate(org, sub)
		exists, err := tx.InvoiceExistsForDueDate(organizationID, due)
		if err != nil {
			return err
		}
		if exists {
			log.Infof("[Billing] renewal invoice for org %d due %s already exists, skipping", organizationID, due.Format("2006-01-02"))
			invoice, err = tx.EarliestPendingInvoice(organizationID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return nil
		}

		inv := &models.Invoice{
			OrganizationID: organizationID,
			SubscriptionID: &sub.ID,
			Amount:         RenewalAmount(plan, addons),
			Status:         models.InvoiceStatusPending,
			Kind:           models.InvoiceKindRenewal,
			DueDate:        due,
		}
		if err := tx.CreateInvoice(inv); err != nil {
			return err
		}
		invoice = inv
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return invoice, created, nil
}

// ProrationAmount approximates the cost of finishing the current period on a
// pricier plan: the daily-rate difference on a 30-day basis, times the days
// left in the period, rounded to the nearest minor unit. Non-positive results
// mean nothing to charge.
func ProrationAmount(oldPrice, newPrice int64, daysRemaining int) int64 {
	if daysRemaining < 1 {
		daysRemaining = 1
	}
	perDay := (float64(newPrice) - float64(oldPrice)) / prorationBasisDays
	return int64(math.Round(perDay * float64(daysRemaining)))
}

// DaysRemaining counts whole days from now until the period end, with a floor
// of one so a same-day upgrade still pays for the day it is used.
func DaysRemaining(now, periodEnd time.Time) int {
	if !periodEnd.After(now) {
		return 1
	}
	days := int(math.Ceil(periodEnd.Sub(now).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days
}

// GenerateProrationInvoice charges the price difference for upgrading to
// newPlan mid-period. Downgrades and zero-difference changes produce no
// invoice. Must be called inside the same transaction that switches the
// subscription's plan, with tx holding the subscription lock.
func (e *Engine) GenerateProrationInvoice(tx ledger.Repository, sub *models.Subscription, oldPlan, newPlan *models.Plan) (*models.Invoice, error) {
	if models.PlanTierRank(newPlan.Tier) <= models.PlanTierRank(oldPlan.Tier) {
		return nil, nil
	}
	amount := ProrationAmount(oldPlan.Price, newPlan.Price, DaysRemaining(e.now(), sub.CurrentPeriodEnd))
	if amount <= 0 {
		return nil, nil
	}

	if err := e.ensureNoConflictingPending(tx, sub.OrganizationID, amount); err != nil {
		return nil, err
	}

	inv := &models.Invoice{
		OrganizationID: sub.OrganizationID,
		SubscriptionID: &sub.ID,
		Amount:         amount,
		Status:         models.InvoiceStatusPending,
		Kind:           models.InvoiceKindProration,
		DueDate:        e.now().Add(addonDueDays * 24 * time.Hour),
	}
	if err := tx.CreateInvoice(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// GenerateAddonInvoice charges for an addon purchase of the given quantity.
// Must be called inside the transaction that records the purchase.
func (e *Engine) GenerateAddonInvoice(tx ledger.Repository, sub *models.Subscription, addonType string, quantity int) (*models.Invoice, error) {
	if quantity < 1 {
		return nil, apperrors.NewValidation("addon quantity must be at least 1")
	}
	unit := models.AddonUnitPrice(addonType)
	if unit == 0 {
		return nil, apperrors.NewValidation("unknown addon type %q", addonType)
	}
	amount := unit * int64(quantity)

	if err := e.ensureNoConflictingPending(tx, sub.OrganizationID, amount); err != nil {
		return nil, err
	}

	inv := &models.Invoice{
		OrganizationID: sub.OrganizationID,
		SubscriptionID: &sub.ID,
		Amount:         amount,
		Status:         models.InvoiceStatusPending,
		Kind:           models.InvoiceKindAddon,
		DueDate:        e.now().Add(addonDueDays * 24 * time.Hour),
	}
	if err := tx.CreateInvoice(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ensureNoConflictingPending guards one-off charges: an open invoice for a
// different amount means the organization has unfinished business and a new
// charge would be ambiguous to reconcile. An open invoice for the same amount
// is treated as the charge already being in flight.
func (e *Engine) ensureNoConflictingPending(tx ledger.Repository, organizationID uint, amount int64) error {
	pending, err := tx.EarliestPendingInvoice(organizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if pending.Kind == models.InvoiceKindRenewal {
		// A queued renewal never blocks mid-period purchases.
		return nil
	}
	if pending.Amount != amount {
		return apperrors.NewConflict("organization %d has a pending invoice of %d, cannot create a charge of %d", organizationID, pending.Amount, amount)
	}
	return apperrors.NewConflict("an identical charge for organization %d is already awaiting payment", organizationID)
}

// FindPendingInvoice returns the earliest-due open invoice, or a NotFoundError
// when the organization owes nothing.
func (e *Engine) FindPendingInvoice(organizationID uint) (*models.Invoice, error) {
	inv, err := e.repo.EarliestPendingInvoice(organizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("organization %d has no pending invoice", organizationID)
		}
		return nil, err
	}
	return inv, nil
}
