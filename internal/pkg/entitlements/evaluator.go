package entitlements

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

// Evaluator is the single decision point for "may organization O perform
// action A now". Mutating checks (AddIP, ChangeIP, RemoveIP) run their
// read-check-write sequence inside one transaction with the organization's
// subscription row locked, so two concurrent calls cannot both observe a free
// slot. Locks are always scoped to one organization; tenants never contend
// with each other.
type Evaluator struct {
	repo     ledger.Repository
	meter    *Meter
	notifier notifier.Notifier
	now      func() time.Time
}

func NewEvaluator(repo ledger.Repository, meter *Meter, n notifier.Notifier) *Evaluator {
	if n == nil {
		n = notifier.LogNotifier{}
	}
	return &Evaluator{repo: repo, meter: meter, notifier: n, now: time.Now}
}

// lockEntitled loads the organization's subscription with a row lock and its
// plan. A missing or non-entitled subscription yields a denial, not an error.
func (e *Evaluator) lockEntitled(tx ledger.Repository, organizationID uint) (*models.Subscription, *models.Plan, *Decision) {
	sub, err := tx.SubscriptionByOrganizationForUpdate(organizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			d := Denied(DenyNoActiveSubscription, "Organization does not have an active subscription.")
			return nil, nil, &d
		}
		log.Errorf("[Entitlements] subscription lookup failed for org %d: %v", organizationID, err)
		d := Denied(DenyNoActiveSubscription, "Organization does not have an active subscription.")
		return nil, nil, &d
	}
	if !sub.IsEntitled() {
		d := Denied(DenyNoActiveSubscription, "Organization does not have an active subscription.")
		return nil, nil, &d
	}
	plan, err := tx.PlanByID(sub.PlanID)
	if err != nil {
		log.Errorf("[Entitlements] plan %d missing for subscription %d: %v", sub.PlanID, sub.ID, err)
		d := Denied(DenyNoActiveSubscription, "Organization does not have an active subscription.")
		return nil, nil, &d
	}
	return sub, plan, nil
}

// ConsumeRequest answers whether the organization may consume one metered
// request right now and, on allow, records the usage event in the same
// transaction as the check. The quota ceiling combines the plan limit with
// purchased EXTRA_REQUESTS units.
func (e *Evaluator) ConsumeRequest(ctx context.Context, organizationID uint, category string) (Decision, error) {
	var decision Decision

	err := e.repo.InTransaction(func(tx ledger.Repository) error {
		// The subscription lock must be the transaction's first statement:
		// under REPEATABLE READ a plain read before it would pin a snapshot
		// that cannot see a concurrent consume's committed usage row.
		_, plan, deny := e.lockEntitled(tx, organizationID)
		if deny != nil {
			decision = *deny
			return nil
		}

		org, err := tx.OrganizationByID(organizationID)
		if err != nil {
			return err
		}

		extra, err := tx.SumAddonAmount(organizationID, models.AddonTypeExtraRequests)
		if err != nil {
			return err
		}
		limit := plan.MaxRequests + extra

		used, err := tx.CountQueryLogsSince(organizationID, e.meter.StartOfCurrentMonth(org), "")
		if err != nil {
			return err
		}
		if used >= int64(limit) {
			decision = Denied(DenyQuotaExceeded,
				"Monthly request limit reached (%d of %d). Upgrade your plan or purchase an EXTRA_REQUESTS add-on.",
				used, limit)
			decision.Current = int(used)
			decision.Limit = limit
			return nil
		}

		if err := e.meter.RecordEvent(tx, organizationID, category, models.QueryOutcomeSuccess); err != nil {
			return err
		}
		decision = Allowed()
		decision.Current = int(used) + 1
		decision.Limit = limit
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	if !decision.Allowed && decision.Reason == DenyQuotaExceeded {
		// Best effort: a failed push must never mask the denial.
		if nerr := e.notifier.Notify(ctx, notifier.KindUsageLimitReached, organizationID, nil); nerr != nil {
			log.Errorf("[Entitlements] limit-reached notification failed for org %d: %v", organizationID, nerr)
		}
	}
	return decision, nil
}

// AddIP authorizes a new IP when a slot is free. The allowance combines the
// plan ceiling with purchased EXTRA_IP units; denial messages report both the
// current count and the computed maximum.
func (e *Evaluator) AddIP(ctx context.Context, organizationID uint, address, name string) (Decision, *models.IPAddress, error) {
	var (
		decision Decision
		created  *models.IPAddress
	)

	err := e.repo.InTransaction(func(tx ledger.Repository) error {
		_, plan, deny := e.lockEntitled(tx, organizationID)
		if deny != nil {
			decision = *deny
			return nil
		}

		extra, err := tx.SumAddonAmount(organizationID, models.AddonTypeExtraIP)
		if err != nil {
			return err
		}
		allowance := plan.MaxIPs + extra

		current, err := tx.CountIPs(organizationID)
		if err != nil {
			return err
		}
		if current >= int64(allowance) {
			decision = Denied(DenyIPLimitExceeded,
				"You have reached the maximum limit of %d IPs for your organization (currently %d). Remove an existing IP or purchase an extra IP add-on.",
				allowance, current)
			decision.Current = int(current)
			decision.Limit = allowance
			return nil
		}

		ip := &models.IPAddress{
			OrganizationID: organizationID,
			Address:        address,
			Name:           name,
			LastChangedAt:  e.now(),
		}
		if err := tx.CreateIP(ip); err != nil {
			return err
		}
		created = ip
		decision = Allowed()
		return nil
	})
	if err != nil {
		return Decision{}, nil, err
	}
	return decision, created, nil
}

// ChangeIP rewrites an authorized IP. Free once the plan cooldown since the
// last change has elapsed; inside the cooldown it costs one EARLY_IP_CHANGE
// unit, decremented atomically. With no units left the denial names the
// moment the change becomes free.
func (e *Evaluator) ChangeIP(ctx context.Context, organizationID uint, ipUUID, newAddress, newName string) (Decision, *models.IPAddress, error) {
	var (
		decision Decision
		updated  *models.IPAddress
	)

	err := e.repo.InTransaction(func(tx ledger.Repository) error {
		_, plan, deny := e.lockEntitled(tx, organizationID)
		if deny != nil {
			decision = *deny
			return nil
		}

		ip, err := tx.IPByUUID(organizationID, ipUUID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("IP address not found or does not belong to this organization.")
			}
			return err
		}

		cooldown := time.Duration(plan.IPChangeCooldownHours) * time.Hour
		nextFree := ip.LastChangedAt.Add(cooldown)
		if e.now().Before(nextFree) {
			consumed, err := tx.DecrementAddonAmount(organizationID, models.AddonTypeEarlyIPChange)
			if err != nil {
				return err
			}
			if !consumed {
				decision = Denied(DenyCooldownActive,
					"You must wait until %s to change this IP, or purchase an early IP change add-on.",
					nextFree.Format("2006-01-02 15:04"))
				decision.RetryAt = &nextFree
				return nil
			}
		}

		ip.Address = newAddress
		if newName != "" {
			ip.Name = newName
		}
		ip.LastChangedAt = e.now()
		if err := tx.SaveIP(ip); err != nil {
			return err
		}
		updated = ip
		decision = Allowed()
		return nil
	})
	if err != nil {
		return Decision{}, nil, err
	}
	return decision, updated, nil
}

// RemoveIP deletes an authorized IP unless that would leave an organization
// whose total allowance is exactly one with no IP at all. The floor rule
// applies regardless of subscription status so a lapsed tenant cannot lock
// itself out of ever serving traffic again.
func (e *Evaluator) RemoveIP(ctx context.Context, organizationID uint, ipUUID string) (Decision, error) {
	var decision Decision

	err := e.repo.InTransaction(func(tx ledger.Repository) error {
		sub, err := tx.SubscriptionByOrganizationForUpdate(organizationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				decision = Denied(DenyNoActiveSubscription, "Organization does not have an active subscription.")
				return nil
			}
			return err
		}
		plan, err := tx.PlanByID(sub.PlanID)
		if err != nil {
			return err
		}

		ip, err := tx.IPByUUID(organizationID, ipUUID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("IP address not found or does not belong to this organization.")
			}
			return err
		}

		extra, err := tx.SumAddonAmount(organizationID, models.AddonTypeExtraIP)
		if err != nil {
			return err
		}
		allowance := plan.MaxIPs + extra

		current, err := tx.CountIPs(organizationID)
		if err != nil {
			return err
		}
		if current == 1 && allowance == 1 {
			decision = Denied(DenyFloorViolation, "This organization requires at least one registered IP.")
			return nil
		}

		if !sub.IsEntitled() {
			decision = Denied(DenyNoActiveSubscription, "Organization does not have an active subscription.")
			return nil
		}

		if err := tx.DeleteIP(ip.ID); err != nil {
			return err
		}
		decision = Allowed()
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// RequestUsage reports the current window's consumption without recording
// anything. Used by the request-limit endpoint.
func (e *Evaluator) RequestUsage(organizationID uint) (used int64, limit int, err error) {
	org, err := e.repo.OrganizationByID(organizationID)
	if err != nil {
		return 0, 0, err
	}
	sub, err := e.repo.SubscriptionByOrganization(organizationID)
	if err != nil {
		return 0, 0, err
	}
	plan, err := e.repo.PlanByID(sub.PlanID)
	if err != nil {
		return 0, 0, err
	}
	extra, err := e.repo.SumAddonAmount(organizationID, models.AddonTypeExtraRequests)
	if err != nil {
		return 0, 0, err
	}
	used, err = e.meter.CountThisMonth(e.repo, org, "")
	if err != nil {
		return 0, 0, err
	}
	return used, plan.MaxRequests + extra, nil
}
