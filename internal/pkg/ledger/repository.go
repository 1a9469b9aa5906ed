package ledger

import (
	"time"

	"github.com/consultix/consultix/app/models"
)

// Repository is the transactional store every billing component reads and
// writes through. It is the only shared mutable resource in the system; no
// component keeps an in-process cache of subscription or quota state.
//
// Methods with a ForUpdate suffix take a row-level lock and are only
// meaningful inside InTransaction. Lookups return gorm.ErrRecordNotFound
// when the row does not exist, regardless of backing store.
type Repository interface {
	// InTransaction runs fn against a transaction-scoped repository and
	// commits when fn returns nil. Locks taken inside are held to commit.
	InTransaction(fn func(tx Repository) error) error

	// Organizations and accounts.
	OrganizationByID(id uint) (*models.Organization, error)
	OrganizationBySlug(slug string) (*models.Organization, error)
	UserByID(id uint) (*models.User, error)
	UserByAPIKeyHash(hash string) (*models.User, error)
	TouchAPIKeyUsage(userID uint) error
	MemberRole(organizationID, userID uint) (string, error)

	// Plan catalog.
	PlanByID(id uint) (*models.Plan, error)
	PlanByUUID(planUUID string) (*models.Plan, error)
	PlanByTier(tier string) (*models.Plan, error)
	ListPlans() ([]models.Plan, error)

	// Subscriptions. One row per organization, enforced by unique index.
	SubscriptionByOrganization(organizationID uint) (*models.Subscription, error)
	SubscriptionByOrganizationForUpdate(organizationID uint) (*models.Subscription, error)
	CreateSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error
	SubscriptionsByStatus(statuses ...string) ([]models.Subscription, error)

	// Addons. One row per (organization, type), purchases accumulate.
	AddonByType(organizationID uint, addonType string) (*models.Addon, error)
	AddonByUUID(organizationID uint, addonUUID string) (*models.Addon, error)
	ListAddons(organizationID uint) ([]models.Addon, error)
	SumAddonAmount(organizationID uint, addonType string) (int, error)
	UpsertAddonPurchase(organizationID uint, addonType string, amount int, unitPrice int64) (*models.Addon, error)
	DecrementAddonAmount(organizationID uint, addonType string) (bool, error)
	DeleteAddon(id uint) error

	// Authorized IP addresses.
	CountIPs(organizationID uint) (int64, error)
	ListIPs(organizationID uint) ([]models.IPAddress, error)
	IPByUUID(organizationID uint, ipUUID string) (*models.IPAddress, error)
	CreateIP(ip *models.IPAddress) error
	SaveIP(ip *models.IPAddress) error
	DeleteIP(id uint) error

	// Usage events. Append-only.
	CreateQueryLog(entry *models.QueryLog) error
	CountQueryLogsSince(organizationID uint, since time.Time, category string) (int64, error)
	DeleteQueryLogsBefore(cutoff time.Time) (int64, error)

	// Invoices.
	CreateInvoice(inv *models.Invoice) error
	SaveInvoice(inv *models.Invoice) error
	InvoiceByUUID(invoiceUUID string) (*models.Invoice, error)
	InvoiceByUUIDForUpdate(invoiceUUID string) (*models.Invoice, error)
	InvoiceExistsForDueDate(organizationID uint, due time.Time) (bool, error)
	EarliestPendingInvoice(organizationID uint) (*models.Invoice, error)
	ListInvoices(organizationID uint) ([]models.Invoice, error)
	ListPendingInvoicesDueBefore(organizationID uint, cutoff time.Time) ([]models.Invoice, error)
	HasPendingInvoiceDueBefore(organizationID uint, cutoff time.Time) (bool, error)
}
