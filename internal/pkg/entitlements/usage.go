package entitlements

import (
	"time"

	"github.com/consultix/consultix/app/models"
	"github.com/consultix/consultix/internal/pkg/ledger"
)

// Meter counts resource-access events per organization per billing window.
// The monthly window opens at the start of the current calendar month in the
// organization's configured time zone, not at UTC midnight: a request at
// 23:30 local / 02:30 UTC must count against the local month.
type Meter struct {
	defaultLoc *time.Location
	now        func() time.Time
}

func NewMeter(defaultLoc *time.Location) *Meter {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Meter{defaultLoc: defaultLoc, now: time.Now}
}

// StartOfCurrentMonth resolves the billing-window start for an organization.
func (m *Meter) StartOfCurrentMonth(org *models.Organization) time.Time {
	loc := org.Location()
	if loc == nil {
		loc = m.defaultLoc
	}
	t := m.now().In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// RecordEvent appends one usage record through the given repository handle.
// Callers pass their transaction so the record commits or rolls back together
// with the action being metered.
func (m *Meter) RecordEvent(tx ledger.Repository, organizationID uint, category, outcome string) error {
	return tx.CreateQueryLog(&models.QueryLog{
		OrganizationID: organizationID,
		Category:       category,
		Outcome:        outcome,
		CreatedAt:      m.now(),
	})
}

// CountThisMonth returns the number of events recorded in the organization's
// current billing window, optionally filtered by category.
func (m *Meter) CountThisMonth(repo ledger.Repository, org *models.Organization, category string) (int64, error) {
	return repo.CountQueryLogsSince(org.ID, m.StartOfCurrentMonth(org), category)
}
