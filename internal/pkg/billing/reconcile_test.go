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

func seedTrialOrg(t *testing.T, repo *ledger.MemoryRepository) (models.Organization, models.Subscription) {
	t.Helper()
	trial, err := repo.PlanByTier(models.PlanTierTrial)
	require.NoError(t, err)

	org := repo.AddOrganization(models.Organization{Name: "Acme Consultas", Slug: "acme"})
	trialEnd := time.Now().Add(7 * 24 * time.Hour)
	sub := repo.AddSubscription(models.Subscription{
		OrganizationID:   org.ID,
		PlanID:           trial.ID,
		Status:           models.SubscriptionStatusTrialing,
		StartedAt:        time.Now(),
		CurrentPeriodEnd: trialEnd,
		TrialEndsAt:      &trialEnd,
	})
	return org, sub
}

func TestProcessWebhookApprovedConvertsTrial(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org, sub := seedTrialOrg(t, repo)
	inv := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		SubscriptionID: &sub.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusPending,
		Kind:           models.InvoiceKindRenewal,
		DueDate:        time.Now().Add(72 * time.Hour),
	})

	r := NewReconciler(repo, nil)
	paidAt := time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return paidAt }

	res, err := r.ProcessWebhook(context.Background(), WebhookPayload{
		ExternalInvoiceCode: inv.UUID,
		PaymentStatus:       PaymentStatusApproved,
		PaymentID:           "mgf-123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, res.Status)
	assert.False(t, res.Duplicate)

	got, err := repo.InvoiceByUUID(inv.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)
	assert.Equal(t, "mgf-123", got.ExternalPaymentID)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(paidAt))

	basic, err := repo.PlanByTier(models.PlanTierBasic)
	require.NoError(t, err)
	after, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, after.Status)
	assert.Equal(t, basic.ID, after.PlanID)
	assert.True(t, after.CurrentPeriodEnd.Equal(paidAt.Add(30*24*time.Hour)))
}

func TestProcessWebhookApprovedIsIdempotent(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org, sub := seedTrialOrg(t, repo)
	inv := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		SubscriptionID: &sub.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusPending,
		Kind:           models.InvoiceKindRenewal,
		DueDate:        time.Now().Add(72 * time.Hour),
	})

	r := NewReconciler(repo, nil)
	payload := WebhookPayload{ExternalInvoiceCode: inv.UUID, PaymentStatus: PaymentStatusApproved, PaymentID: "mgf-123"}

	first, err := r.ProcessWebhook(context.Background(), payload)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	subAfterFirst, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)

	second, err := r.ProcessWebhook(context.Background(), payload)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, models.InvoiceStatusPaid, second.Status)

	subAfterSecond, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	assert.True(t, subAfterFirst.CurrentPeriodEnd.Equal(subAfterSecond.CurrentPeriodEnd), "replay must not extend the period again")
}

func TestProcessWebhookRenewalRecoversOverdue(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org, sub := seedTrialOrg(t, repo)

	stored, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	stored.Status = models.SubscriptionStatusOverdue
	require.NoError(t, repo.SaveSubscription(stored))

	inv := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		SubscriptionID: &sub.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusOverdue,
		Kind:           models.InvoiceKindRenewal,
		DueDate:        time.Now().Add(-48 * time.Hour),
	})

	r := NewReconciler(repo, nil)
	res, err := r.ProcessWebhook(context.Background(), WebhookPayload{
		ExternalInvoiceCode: inv.UUID,
		PaymentStatus:       PaymentStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, res.Status)

	after, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, after.Status)
}

func TestProcessWebhookAddonPaymentKeepsPeriod(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	basic, err := repo.PlanByTier(models.PlanTierBasic)
	require.NoError(t, err)

	org := repo.AddOrganization(models.Organization{Name: "Acme", Slug: "acme"})
	periodEnd := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	sub := repo.AddSubscription(models.Subscription{
		OrganizationID:   org.ID,
		PlanID:           basic.ID,
		Status:           models.SubscriptionStatusActive,
		StartedAt:        periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd: periodEnd,
	})
	inv := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		SubscriptionID: &sub.ID,
		Amount:         2000,
		Status:         models.InvoiceStatusPending,
		Kind:           models.InvoiceKindAddon,
		DueDate:        time.Now().Add(72 * time.Hour),
	})

	r := NewReconciler(repo, nil)
	_, err = r.ProcessWebhook(context.Background(), WebhookPayload{
		ExternalInvoiceCode: inv.UUID,
		PaymentStatus:       PaymentStatusApproved,
	})
	require.NoError(t, err)

	after, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	assert.True(t, after.CurrentPeriodEnd.Equal(periodEnd), "addon payments must not extend the period")
	assert.Equal(t, basic.ID, after.PlanID)
}

func TestProcessWebhookUnknownInvoice(t *testing.T) {
	r := NewReconciler(ledger.NewMemoryRepository(), nil)
	_, err := r.ProcessWebhook(context.Background(), WebhookPayload{
		ExternalInvoiceCode: "11111111-2222-4333-8444-555555555555",
		PaymentStatus:       PaymentStatusApproved,
	})
	var notFound *apperrors.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestProcessWebhookCancel(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org, sub := seedTrialOrg(t, repo)
	inv := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		SubscriptionID: &sub.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusPending,
		Kind:           models.InvoiceKindRenewal,
		DueDate:        time.Now().Add(72 * time.Hour),
	})

	r := NewReconciler(repo, nil)
	res, err := r.ProcessWebhook(context.Background(), WebhookPayload{
		ExternalInvoiceCode: inv.UUID,
		PaymentStatus:       PaymentStatusCanceled,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusCanceled, res.Status)

	// Cancellation has no subscription side effect.
	after, err := repo.SubscriptionByOrganization(org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusTrialing, after.Status)

	// Replay reports success without touching the row again.
	res, err = r.ProcessWebhook(context.Background(), WebhookPayload{
		ExternalInvoiceCode: inv.UUID,
		PaymentStatus:       PaymentStatusCanceled,
	})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestProcessWebhookRefundOnPaidIsIgnored(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org, sub := seedTrialOrg(t, repo)
	paidAt := time.Now()
	inv := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		SubscriptionID: &sub.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusPaid,
		Kind:           models.InvoiceKindRenewal,
		DueDate:        time.Now().Add(-24 * time.Hour),
		PaidAt:         &paidAt,
	})

	r := NewReconciler(repo, nil)
	res, err := r.ProcessWebhook(context.Background(), WebhookPayload{
		ExternalInvoiceCode: inv.UUID,
		PaymentStatus:       PaymentStatusRefunded,
	})
	require.NoError(t, err)
	assert.True(t, res.Ignored)

	got, err := repo.InvoiceByUUID(inv.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)
}

func TestProcessWebhookPendingEcho(t *testing.T) {
	repo := ledger.NewMemoryRepository()
	org, sub := seedTrialOrg(t, repo)
	inv := repo.AddInvoice(models.Invoice{
		OrganizationID: org.ID,
		SubscriptionID: &sub.ID,
		Amount:         47000,
		Status:         models.InvoiceStatusPending,
		Kind:           models.InvoiceKindRenewal,
		DueDate:        time.Now().Add(72 * time.Hour),
	})

	r := NewReconciler(repo, nil)
	res, err := r.ProcessWebhook(context.Background(), WebhookPayload{
		ExternalInvoiceCode: inv.UUID,
		PaymentStatus:       PaymentStatusPending,
	})
	require.NoError(t, err)
	assert.True(t, res.Ignored)
}
