package billing

import (
	"context"
	"testing"
	"time"

	"github.com/consultix/consultix/app/models"
	"github.com/consultix/consultix/internal/pkg/apperrors"
	"github.com/consultix/consultix/internal/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	resp  *CreatePaymentResponse
	err   error
	calls int
}

func (f *fakeGateway) CreatePixPayment(_ context.Context, _ CreatePaymentParams) (*CreatePaymentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestService(repo *ledger.MemoryRepository, gw PaymentGateway) *Service {
	return NewService(repo, NewEngine(repo, time.UTC), gw, nil)
}

func TestStartSubscriptionTrial(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := repo.AddOrganization(models.Organization{Name: "Acme", Slug: "acme"})
	trial, err := repo.PlanByTier(models.PlanTierTrial)
	require.NoError(t, err)

	svc := newTestService(repo, nil)
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return started }

	sub, err := svc.StartSubscription(context.Background(), org.ID, trial.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEndsAt)
	assert.True(t, sub.TrialEndsAt.Equal(started.Add(7*24*time.Hour)))
	assert.True(t, sub.CurrentPeriodEnd.Equal(started.Add(7*24*time.Hour)))

	// No invoice for a trial.
	invoices, err := repo.ListInvoices(org.ID)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	// A second subscription is refused.
	_, err = svc.StartSubscription(context.Background(), org.ID, trial.UUID)
	var conflict *apperrors.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestStartSubscriptionPaidPlanBillsImmediately(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := repo.AddOrganization(models.Organization{Name: "Acme", Slug: "acme"})
	basic, err := repo.PlanByTier(models.PlanTierBasic)
	require.NoError(t, err)

	svc := newTestService(repo, nil)
	sub, err := svc.StartSubscription(context.Background(), org.ID, basic.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Nil(t, sub.TrialEndsAt)

	invoices, err := repo.ListInvoices(org.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, basic.Price, invoices[0].Amount)
}

func seedServiceOrg(t *testing.T, repo *ledger.MemoryRepository, tier string) models.Organization {
	t.Helper()
	plan, err := repo.PlanByTier(tier)
	require.NoError(t, err)
	org := repo.AddOrganization(models.Organization{Name: "Acme", Slug: "acme"})
	repo.AddSubscription(models.Subscription{
		OrganizationID:   org.ID,
		PlanID:           plan.ID,
		Status:           models.SubscriptionStatusActive,
		StartedAt:        time.Now().AddDate(0, -1, 0),
		CurrentPeriodEnd: time.Now().AddDate(0, 0, 15),
	})
	return org
}

func TestPurchaseAddonAccumulates(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := seedServiceOrg(t, repo, models.PlanTierBasic)
	svc := newTestService(repo, nil)

	addon, inv, err := svc.PurchaseAddon(context.Background(), org.ID, models.AddonTypeExtraIP, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, addon.Amount)
	assert.Equal(t, int64(2000), inv.Amount)

	// Settle the first invoice, then buy again: the row accumulates.
	stored, err := repo.InvoiceByUUID(inv.UUID)
	require.NoError(t, err)
	stored.Status = models.InvoiceStatusPaid
	require.NoError(t, repo.SaveInvoice(stored))

	addon, _, err = svc.PurchaseAddon(context.Background(), org.ID, models.AddonTypeExtraIP, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, addon.Amount)

	addons, err := repo.ListAddons(org.ID)
	require.NoError(t, err)
	assert.Len(t, addons, 1, "purchases accumulate on one row per type")
}

func TestPurchaseAddonRollsBackOnConflict(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := seedServiceOrg(t, repo, models.PlanTierBasic)
	svc := newTestService(repo, nil)

	_, _, err := svc.PurchaseAddon(context.Background(), org.ID, models.AddonTypeExtraIP, 1)
	require.NoError(t, err)

	// Second purchase while the first invoice is unpaid conflicts, and must
	// not leave a half-applied addon increment behind.
	_, _, err = svc.PurchaseAddon(context.Background(), org.ID, models.AddonTypeExtraIP, 5)
	var conflict *apperrors.ConflictError
	require.ErrorAs(t, err, &conflict)

	sum, err := repo.SumAddonAmount(org.ID, models.AddonTypeExtraIP)
	require.NoError(t, err)
	assert.Equal(t, 1, sum)
}

func TestCancelAddonBlockedWhileSlotsInUse(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := seedServiceOrg(t, repo, models.PlanTierBasic) // MaxIPs 1
	addon, err := repo.UpsertAddonPurchase(org.ID, models.AddonTypeExtraIP, 1, models.AddonUnitPrice(models.AddonTypeExtraIP))
	require.NoError(t, err)

	repo.AddIP(models.IPAddress{OrganizationID: org.ID, Address: "203.0.113.1"})
	repo.AddIP(models.IPAddress{OrganizationID: org.ID, Address: "203.0.113.2"})

	svc := newTestService(repo, nil)
	err = svc.CancelAddon(context.Background(), org.ID, addon.UUID)
	var conflict *apperrors.ConflictError
	require.ErrorAs(t, err, &conflict)

	// Freeing the slot unblocks the cancellation.
	ips, err := repo.ListIPs(org.ID)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteIP(ips[1].ID))
	require.NoError(t, svc.CancelAddon(context.Background(), org.ID, addon.UUID))

	addons, err := repo.ListAddons(org.ID)
	require.NoError(t, err)
	assert.Empty(t, addons)
}

func TestChangePlanUpgradeCharges(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := seedServiceOrg(t, repo, models.PlanTierBasic)
	pro, err := repo.PlanByTier(models.PlanTierProfessional)
	require.NoError(t, err)

	svc := newTestService(repo, nil)
	inv, err := svc.ChangePlan(context.Background(), org.ID, pro.UUID)
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, models.InvoiceKindProration, inv.Kind)
	assert.Positive(t, inv.Amount)

	sub, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	assert.Equal(t, pro.ID, sub.PlanID)
}

func TestChangePlanDowngradeIsFree(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := seedServiceOrg(t, repo, models.PlanTierProfessional)
	basic, err := repo.PlanByTier(models.PlanTierBasic)
	require.NoError(t, err)

	svc := newTestService(repo, nil)
	inv, err := svc.ChangePlan(context.Background(), org.ID, basic.UUID)
	require.NoError(t, err)
	assert.Nil(t, inv)

	sub, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	assert.Equal(t, basic.ID, sub.PlanID)
}

func TestChangePlanReopensCanceledSubscription(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := seedServiceOrg(t, repo, models.PlanTierBasic)
	sub, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	sub.Status = models.SubscriptionStatusCanceled
	require.NoError(t, repo.SaveSubscription(sub))

	pro, err := repo.PlanByTier(models.PlanTierProfessional)
	require.NoError(t, err)

	svc := newTestService(repo, nil)
	inv, err := svc.ChangePlan(context.Background(), org.ID, pro.UUID)
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, pro.Price, inv.Amount)

	// Entitlement returns only once the invoice is paid.
	after, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, after.Status)
	assert.Equal(t, pro.ID, after.PlanID)
}

func TestCancelSubscription(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := seedServiceOrg(t, repo, models.PlanTierBasic)
	svc := newTestService(repo, nil)

	require.NoError(t, svc.CancelSubscription(context.Background(), org.ID))

	sub, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)

	var conflict *apperrors.ConflictError
	require.ErrorAs(t, svc.CancelSubscription(context.Background(), org.ID), &conflict)
}

func TestPaymentLinkCreatesChargeOnce(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := seedServiceOrg(t, repo, models.PlanTierBasic)
	payerID := repo.AddUser(models.User{Name: "Owner", Email: "owner@acme.test"})
	payer, err := repo.UserByID(payerID)
	require.NoError(t, err)

	inv := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusPending,
		Kind:           models.InvoiceKindRenewal,
		DueDate:        time.Now().Add(72 * time.Hour),
	})

	gw := &fakeGateway{resp: &CreatePaymentResponse{PaymentID: "mgf-1", PaymentURL: "https://pay.example/abc"}}
	svc := newTestService(repo, gw)

	got, err := svc.PaymentLink(context.Background(), org.ID, payer, "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, inv.UUID, got.UUID)
	assert.Equal(t, "https://pay.example/abc", got.PaymentURL)

	// Second call reuses the stored link without touching the gateway again.
	_, err = svc.PaymentLink(context.Background(), org.ID, payer, "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, 1, gw.calls)
}

func TestPaymentLinkGatewayFailureLeavesInvoicePending(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org := seedServiceOrg(t, repo, models.PlanTierBasic)
	payerID := repo.AddUser(models.User{Name: "Owner", Email: "owner@acme.test"})
	payer, err := repo.UserByID(payerID)
	require.NoError(t, err)

	inv := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusPending,
		Kind:           models.InvoiceKindRenewal,
		DueDate:        time.Now().Add(72 * time.Hour),
	})

	gw := &fakeGateway{err: apperrors.NewExternal(context.DeadlineExceeded, "mangofy payment request failed")}
	svc := newTestService(repo, gw)

	_, err = svc.PaymentLink(context.Background(), org.ID, payer, "203.0.113.9")
	var external *apperrors.ExternalServiceError
	require.ErrorAs(t, err, &external)

	got, err := repo.InvoiceByUUID(inv.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPending, got.Status)
	assert.Empty(t, got.PaymentURL)
}
