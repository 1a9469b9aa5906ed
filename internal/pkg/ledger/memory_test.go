package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultix/consultix/app/models"
)

func TestUpsertAddonPurchaseAccumulatesOnOneRow(t *testing.T) {
	repo := NewMemoryRepository()
	org := repo.AddOrganization(models.Organization{Name: "Acme", Slug: "acme"})

	first, err := repo.UpsertAddonPurchase(org.ID, models.AddonTypeExtraIP, 2, 1000)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Amount)
	assert.Equal(t, int64(2000), first.Price)

	second, err := repo.UpsertAddonPurchase(org.ID, models.AddonTypeExtraIP, 3, 1000)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Amount)
	assert.Equal(t, int64(5000), second.Price)

	addons, err := repo.ListAddons(org.ID)
	require.NoError(t, err)
	assert.Len(t, addons, 1)
}

func TestDecrementAddonAmountStopsAtZero(t *testing.T) {
	repo := NewMemoryRepository()
	org := repo.AddOrganization(models.Organization{Name: "Acme", Slug: "acme"})
	_, err := repo.UpsertAddonPurchase(org.ID, models.AddonTypeEarlyIPChange, 1, 500)
	require.NoError(t, err)

	consumed, err := repo.DecrementAddonAmount(org.ID, models.AddonTypeEarlyIPChange)
	require.NoError(t, err)
	assert.True(t, consumed)

	consumed, err = repo.DecrementAddonAmount(org.ID, models.AddonTypeEarlyIPChange)
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestInTransactionRollsBackAllWrites(t *testing.T) {
	repo := NewMemoryRepository()
	org := repo.AddOrganization(models.Organization{Name: "Acme", Slug: "acme"})

	boom := errors.New("boom")
	err := repo.InTransaction(func(tx Repository) error {
		if _, err := tx.UpsertAddonPurchase(org.ID, models.AddonTypeExtraIP, 1, 1000); err != nil {
			return err
		}
		if err := tx.CreateInvoice(&models.Invoice{OrganizationID: org.ID, Amount: 1000, Status: models.InvoiceStatusPending}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	addons, err := repo.ListAddons(org.ID)
	require.NoError(t, err)
	assert.Empty(t, addons)

	invoices, err := repo.ListInvoices(org.ID)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestHasPendingInvoiceDueBeforeIncludesOverdue(t *testing.T) {
	repo := NewMemoryRepository()
	org := repo.AddOrganization(models.Organization{Name: "Acme", Slug: "acme"})
	now := time.Now()

	repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusOverdue,
		DueDate:        now.AddDate(0, 0, -2),
	})

	blocked, err := repo.HasPendingInvoiceDueBefore(org.ID, now)
	require.NoError(t, err)
	assert.True(t, blocked)

	// Paid invoices never block.
	other := repo.AddOrganization(models.Organization{Name: "Beta", Slug: "beta"})
	repo.AddInvoice(models.Invoice{
		OrganizationID: other.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusPaid,
		DueDate:        now.AddDate(0, 0, -2),
	})
	blocked, err = repo.HasPendingInvoiceDueBefore(other.ID, now)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestListPendingInvoicesDueBeforeReturnsUnsettledPastDue(t *testing.T) {
	repo := NewMemoryRepository()
	org := repo.AddOrganization(models.Organization{Name: "Acme", Slug: "acme"})
	other := repo.AddOrganization(models.Organization{Name: "Beta", Slug: "beta"})
	now := time.Now()

	older := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusOverdue,
		DueDate:        now.AddDate(0, 0, -10),
	})
	newer := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		Amount:         2000,
		Status:         models.InvoiceStatusPending,
		DueDate:        now.AddDate(0, 0, -1),
	})
	// Settled, not yet due, and foreign invoices stay out.
	repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		Amount:         500,
		Status:         models.InvoiceStatusPaid,
		DueDate:        now.AddDate(0, 0, -5),
	})
	repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusPending,
		DueDate:        now.AddDate(0, 0, 3),
	})
	repo.AddInvoice(models.Invoice{
		OrganizationID: other.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusPending,
		DueDate:        now.AddDate(0, 0, -2),
	})

	out, err := repo.ListPendingInvoicesDueBefore(org.ID, now)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, older.UUID, out[0].UUID)
	assert.Equal(t, newer.UUID, out[1].UUID)
}
