package ledger

import (
	"time"

	"github.com/consultix/consultix/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) InTransaction(fn func(tx Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) OrganizationByID(id uint) (*models.Organization, error) {
	return models.FindOrganizationByID(r.db, id)
}

func (r *gormRepository) OrganizationBySlug(slug string) (*models.Organization, error) {
	return models.FindOrganizationBySlug(r.db, slug)
}

func (r *gormRepository) UserByID(id uint) (*models.User, error) {
	return models.FindUserByID(r.db, id)
}

func (r *gormRepository) UserByAPIKeyHash(hash string) (*models.User, error) {
	return models.FindUserByAPIKeyHash(r.db, hash)
}

func (r *gormRepository) TouchAPIKeyUsage(userID uint) error {
	now := time.Now()
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("api_key_last_used_at", &now).Error
}

func (r *gormRepository) MemberRole(organizationID, userID uint) (string, error) {
	return models.FindMemberRole(r.db, organizationID, userID)
}

func (r *gormRepository) PlanByID(id uint) (*models.Plan, error) {
	return models.FindPlanByID(r.db, id)
}

func (r *gormRepository) PlanByUUID(planUUID string) (*models.Plan, error) {
	return models.FindPlanByUUID(r.db, planUUID)
}

func (r *gormRepository) PlanByTier(tier string) (*models.Plan, error) {
	return models.FindPlanByTier(r.db, tier)
}

func (r *gormRepository) ListPlans() ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Order("price ASC").Find(&plans).Error
	return plans, err
}

func (r *gormRepository) SubscriptionByOrganization(organizationID uint) (*models.Subscription, error) {
	return models.FindSubscriptionByOrganization(r.db, organizationID)
}

func (r *gormRepository) SubscriptionByOrganizationForUpdate(organizationID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ?", organizationID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) SubscriptionsByStatus(statuses ...string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("status IN ?", statuses).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) AddonByType(organizationID uint, addonType string) (*models.Addon, error) {
	var addon models.Addon
	err := r.db.Where("organization_id = ? AND type = ?", organizationID, addonType).
		First(&addon).Error
	if err != nil {
		return nil, err
	}
	return &addon, nil
}

func (r *gormRepository) AddonByUUID(organizationID uint, addonUUID string) (*models.Addon, error) {
	var addon models.Addon
	err := r.db.Where("organization_id = ? AND uuid = ?", organizationID, addonUUID).
		First(&addon).Error
	if err != nil {
		return nil, err
	}
	return &addon, nil
}

func (r *gormRepository) ListAddons(organizationID uint) ([]models.Addon, error) {
	var addons []models.Addon
	err := r.db.Where("organization_id = ?", organizationID).Find(&addons).Error
	return addons, err
}

func (r *gormRepository) SumAddonAmount(organizationID uint, addonType string) (int, error) {
	var total int64
	err := r.db.Model(&models.Addon{}).
		Where("organization_id = ? AND type = ?", organizationID, addonType).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *gormRepository) UpsertAddonPurchase(organizationID uint, addonType string, amount int, unitPrice int64) (*models.Addon, error) {
	addon := &models.Addon{
		OrganizationID: organizationID,
		Type:           addonType,
		Amount:         amount,
		UnitPrice:      unitPrice,
		Price:          unitPrice * int64(amount),
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "organization_id"},
			{Name: "type"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount": gorm.Expr("amount + ?", amount),
			"price":  gorm.Expr("price + ?", unitPrice*int64(amount)),
		}),
	}).Create(addon).Error
	if err != nil {
		return nil, err
	}

	// Re-read to return the accumulated row after an upsert hit.
	return r.AddonByType(organizationID, addonType)
}

func (r *gormRepository) DecrementAddonAmount(organizationID uint, addonType string) (bool, error) {
	res := r.db.Model(&models.Addon{}).
		Where("organization_id = ? AND type = ? AND amount > 0", organizationID, addonType).
		Update("amount", gorm.Expr("amount - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) DeleteAddon(id uint) error {
	return r.db.Delete(&models.Addon{}, id).Error
}

func (r *gormRepository) CountIPs(organizationID uint) (int64, error) {
	return models.CountIPAddresses(r.db, organizationID)
}

func (r *gormRepository) ListIPs(organizationID uint) ([]models.IPAddress, error) {
	var ips []models.IPAddress
	err := r.db.Where("organization_id = ?", organizationID).Order("created_at ASC").Find(&ips).Error
	return ips, err
}

func (r *gormRepository) IPByUUID(organizationID uint, ipUUID string) (*models.IPAddress, error) {
	var ip models.IPAddress
	err := r.db.Where("organization_id = ? AND uuid = ?", organizationID, ipUUID).
		First(&ip).Error
	if err != nil {
		return nil, err
	}
	return &ip, nil
}

func (r *gormRepository) CreateIP(ip *models.IPAddress) error {
	return r.db.Create(ip).Error
}

func (r *gormRepository) SaveIP(ip *models.IPAddress) error {
	return r.db.Save(ip).Error
}

func (r *gormRepository) DeleteIP(id uint) error {
	return r.db.Delete(&models.IPAddress{}, id).Error
}

func (r *gormRepository) CreateQueryLog(entry *models.QueryLog) error {
	return r.db.Create(entry).Error
}

func (r *gormRepository) CountQueryLogsSince(organizationID uint, since time.Time, category string) (int64, error) {
	q := r.db.Model(&models.QueryLog{}).
		Where("organization_id = ? AND created_at >= ?", organizationID, since)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

func (r *gormRepository) DeleteQueryLogsBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&models.QueryLog{})
	return res.RowsAffected, res.Error
}

func (r *gormRepository) CreateInvoice(inv *models.Invoice) error {
	return r.db.Create(inv).Error
}

func (r *gormRepository) SaveInvoice(inv *models.Invoice) error {
	return r.db.Save(inv).Error
}

func (r *gormRepository) InvoiceByUUID(invoiceUUID string) (*models.Invoice, error) {
	return models.FindInvoiceByUUID(r.db, invoiceUUID)
}

func (r *gormRepository) InvoiceByUUIDForUpdate(invoiceUUID string) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uuid = ?", invoiceUUID).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) InvoiceExistsForDueDate(organizationID uint, due time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).
		Where("organization_id = ? AND kind = ? AND due_date >= ? AND due_date < ?",
			organizationID, models.InvoiceKindRenewal, due, due.Add(24*time.Hour)).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) EarliestPendingInvoice(organizationID uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.Where("organization_id = ? AND status = ?", organizationID, models.InvoiceStatusPending).
		Order("due_date ASC").
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) ListInvoices(organizationID uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("organization_id = ?", organizationID).
		Order("due_date DESC").
		Find(&invoices).Error
	return invoices, err
}

// ListPendingInvoicesDueBefore returns the organization's unsettled
// (PENDING or OVERDUE) invoices already past due at cutoff.
func (r *gormRepository) ListPendingInvoicesDueBefore(organizationID uint, cutoff time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("organization_id = ? AND status IN ? AND due_date < ?",
		organizationID, []string{models.InvoiceStatusPending, models.InvoiceStatusOverdue}, cutoff).
		Order("due_date ASC").
		Find(&invoices).Error
	return invoices, err
}

func (r *gormRepository) HasPendingInvoiceDueBefore(organizationID uint, cutoff time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).
		Where("organization_id = ? AND status IN ? AND due_date < ?",
			organizationID, []string{models.InvoiceStatusPending, models.InvoiceStatusOverdue}, cutoff).
		Count(&count).Error
	return count > 0, err
}
