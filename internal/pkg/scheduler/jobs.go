package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/consultix/consultix/app/models"
	"github.com/consultix/consultix/internal/pkg/billing"
	"github.com/consultix/consultix/internal/pkg/env"
	"github.com/consultix/consultix/internal/pkg/ledger"
	"github.com/consultix/consultix/internal/pkg/notifier"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const usageRetentionDays = 90

// Jobs holds the three periodic maintenance tasks. Every job is idempotent:
// re-running one after a crash or overlapping deploy repeats reads, not side
// effects (invoice generation dedupes on due date, cancellations check status
// first, notifications dedupe per organization and day).
type Jobs struct {
	repo      ledger.Repository
	engine    *billing.Engine
	notifier  notifier.Notifier
	loc       *time.Location
	graceDays int
	now       func() time.Time
}

func NewJobs(repo ledger.Repository, engine *billing.Engine, n notifier.Notifier, loc *time.Location, graceDays int) *Jobs {
	if n == nil {
		n = notifier.LogNotifier{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if graceDays < 0 {
		graceDays = 0
	}
	return &Jobs{repo: repo, engine: engine, notifier: n, loc: loc, graceDays: graceDays, now: time.Now}
}

// OverdueGraceDays reads BILLING_OVERDUE_GRACE_DAYS, the number of days a
// pending invoice may sit past its due date before the sweep cancels the
// subscription.
func OverdueGraceDays() int {
	raw := env.GetEnv("BILLING_OVERDUE_GRACE_DAYS", "0")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		log.Warnf("[Scheduler] invalid BILLING_OVERDUE_GRACE_DAYS %q, using 0", raw)
		return 0
	}
	return n
}

// RunExpirySweep walks every live subscription once: warns at three days and
// one day before the period ends, cancels expired ones, and cancels
// subscriptions whose pending invoices have sat past due beyond the grace
// window. Organizations are independent; one failure never aborts the batch.
func (j *Jobs) RunExpirySweep(ctx context.Context) error {
	subs, err := j.repo.SubscriptionsByStatus(
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusActive,
		models.SubscriptionStatusOverdue,
	)
	if err != nil {
		return err
	}

	failed := 0
	for _, sub := range subs {
		if err := j.sweepOrganization(ctx, sub.OrganizationID); err != nil {
			failed++
			log.Errorf("[Scheduler] expiry sweep failed for org %d: %v", sub.OrganizationID, err)
		}
	}
	log.Infof("[Scheduler] expiry sweep finished: %d subscriptions checked, %d failed", len(subs), failed)
	if failed > 0 {
		return fmt.Errorf("expiry sweep: %d of %d organizations failed", failed, len(subs))
	}
	return nil
}

// sweepOrganization applies the sweep rules to one organization inside a
// transaction holding its subscription lock, then delivers any notification
// after commit. The nonpayment check runs first: a canceled subscription
// gets no expiry countdown.
func (j *Jobs) sweepOrganization(ctx context.Context, organizationID uint) error {
	var kind notifier.Kind
	var kindCtx map[string]string

	err := j.repo.InTransaction(func(tx ledger.Repository) error {
		org, err := tx.OrganizationByID(organizationID)
		if err != nil {
			return err
		}
		sub, err := tx.SubscriptionByOrganizationForUpdate(organizationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if sub.Status == models.SubscriptionStatusCanceled {
			// Another run or a webhook already settled this one.
			return nil
		}

		loc := j.loc
		if l := org.Location(); l != nil {
			loc = l
		}
		now := j.now().In(loc)

		lapsedKind, err := j.applyNonpayment(tx, sub, now)
		if err != nil {
			return err
		}
		if lapsedKind != "" || sub.Status == models.SubscriptionStatusOverdue {
			kind = lapsedKind
			return nil
		}

		switch days := daysUntil(now, sub.CurrentPeriodEnd.In(loc)); {
		case days == 3:
			kind = notifier.KindSubscriptionExpiring
			kindCtx = map[string]string{"days": "3"}
		case days == 1:
			kind = notifier.KindSubscriptionLastCall
			kindCtx = map[string]string{"days": "1"}
		case days <= 0:
			sub.Status = models.SubscriptionStatusCanceled
			if err := tx.SaveSubscription(sub); err != nil {
				return err
			}
			kind = notifier.KindSubscriptionExpired
		}
		return nil
	})
	if err != nil {
		return err
	}

	if kind != "" {
		if nerr := j.notifier.Notify(ctx, kind, organizationID, kindCtx); nerr != nil {
			log.Warnf("[Scheduler] %s notify failed for org %d: %v", kind, organizationID, nerr)
		}
	}
	return nil
}

// applyNonpayment drives the nonpayment leg of the state machine. Invoices
// sitting past due go OVERDUE and take the subscription's entitlement with
// them; once the oldest overdue invoice also exceeds the grace window the
// subscription is canceled for good. Returns the notification to send, if any.
func (j *Jobs) applyNonpayment(tx ledger.Repository, sub *models.Subscription, now time.Time) (notifier.Kind, error) {
	graceCutoff := now.AddDate(0, 0, -j.graceDays)
	invoices, err := tx.ListPendingInvoicesDueBefore(sub.OrganizationID, now)
	if err != nil {
		return "", err
	}

	lapsed, pastGrace := len(invoices) > 0, false
	for i := range invoices {
		inv := &invoices[i]
		if inv.Status == models.InvoiceStatusPending {
			inv.Status = models.InvoiceStatusOverdue
			if err := tx.SaveInvoice(inv); err != nil {
				return "", err
			}
		}
		if inv.DueDate.Before(graceCutoff) {
			pastGrace = true
		}
	}
	if !lapsed {
		if sub.Status == models.SubscriptionStatusOverdue {
			// Every overdue invoice was settled or voided; restore entitlement.
			sub.Status = models.SubscriptionStatusActive
			if err := tx.SaveSubscription(sub); err != nil {
				return "", err
			}
		}
		return "", nil
	}

	if pastGrace {
		sub.Status = models.SubscriptionStatusCanceled
		if err := tx.SaveSubscription(sub); err != nil {
			return "", err
		}
		log.Infof("[Scheduler] canceled subscription %s for nonpayment", sub.UUID)
		return notifier.KindSubscriptionNonpayment, nil
	}
	if sub.Status != models.SubscriptionStatusOverdue {
		sub.Status = models.SubscriptionStatusOverdue
		if err := tx.SaveSubscription(sub); err != nil {
			return "", err
		}
		log.Infof("[Scheduler] subscription %s is overdue, grace of %d days running", sub.UUID, j.graceDays)
	}
	return "", nil
}

// daysUntil counts calendar days between now and the deadline, comparing
// local midnights so a period ending at 09:00 still reads as "today".
func daysUntil(now, deadline time.Time) int {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	d := deadline.In(loc)
	end := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return int(math.Round(end.Sub(today).Hours() / 24))
}

// RunMonthlyInvoiceGeneration creates the next renewal invoice for every
// ACTIVE subscription. The engine's due-date dedupe makes re-runs harmless.
func (j *Jobs) RunMonthlyInvoiceGeneration(ctx context.Context) error {
	subs, err := j.repo.SubscriptionsByStatus(models.SubscriptionStatusActive)
	if err != nil {
		return err
	}

	created, failed := 0, 0
	for _, sub := range subs {
		inv, isNew, err := j.engine.GenerateRenewalInvoice(sub.OrganizationID)
		if err != nil {
			failed++
			log.Errorf("[Scheduler] renewal generation failed for org %d: %v", sub.OrganizationID, err)
			continue
		}
		if isNew {
			created++
			if nerr := j.notifier.Notify(ctx, notifier.KindPurchaseCreated, sub.OrganizationID, map[string]string{
				"invoice": inv.UUID,
			}); nerr != nil {
				log.Warnf("[Scheduler] renewal notify failed for org %d: %v", sub.OrganizationID, nerr)
			}
		}
	}
	log.Infof("[Scheduler] monthly invoice generation finished: %d created, %d skipped, %d failed", created, len(subs)-created-failed, failed)
	if failed > 0 {
		return fmt.Errorf("monthly invoice generation: %d of %d subscriptions failed", failed, len(subs))
	}
	return nil
}

// RunUsageCleanup purges usage records older than the retention window.
func (j *Jobs) RunUsageCleanup(_ context.Context) error {
	cutoff := j.now().AddDate(0, 0, -usageRetentionDays)
	removed, err := j.repo.DeleteQueryLogsBefore(cutoff)
	if err != nil {
		return err
	}
	log.Infof("[Scheduler] usage cleanup removed %d records older than %s", removed, cutoff.Format("2006-01-02"))
	return nil
}
