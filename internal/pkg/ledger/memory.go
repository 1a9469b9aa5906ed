package ledger

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/consultix/consultix/app/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MemoryRepository is an in-memory Repository used by unit tests and local
// development. It is not safe for concurrent use outside InTransaction; the
// real deployment always runs on the GORM implementation.
type MemoryRepository struct {
	mu sync.Mutex

	Users         []models.User
	Organizations []models.Organization
	Members       []models.OrganizationMember
	Plans         []models.Plan
	Subscriptions []models.Subscription
	Addons        []models.Addon
	IPs           []models.IPAddress
	QueryLogs     []models.QueryLog
	Invoices      []models.Invoice

	nextID uint
}

// NewMemoryRepository returns an empty in-memory repository with the default
// plan catalog pre-seeded.
func NewMemoryRepository() *MemoryRepository {
	m := &MemoryRepository{}
	for _, plan := range models.DefaultPlanCatalog() {
		p := plan
		p.ID = m.newID()
		p.UUID = uuid.New().String()
		m.Plans = append(m.Plans, p)
	}
	return m
}

func (m *MemoryRepository) newID() uint {
	m.nextID++
	return m.nextID
}

// InTransaction serializes access and rolls the whole state back when fn
// returns an error, mirroring the all-or-nothing behavior of the SQL store.
func (m *MemoryRepository) InTransaction(fn func(tx Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	users   []models.User
	orgs    []models.Organization
	members []models.OrganizationMember
	plans   []models.Plan
	subs    []models.Subscription
	addons  []models.Addon
	ips     []models.IPAddress
	logs    []models.QueryLog
	invs    []models.Invoice
	nextID  uint
}

func (m *MemoryRepository) snapshot() memSnapshot {
	return memSnapshot{
		users:   append([]models.User(nil), m.Users...),
		orgs:    append([]models.Organization(nil), m.Organizations...),
		members: append([]models.OrganizationMember(nil), m.Members...),
		plans:   append([]models.Plan(nil), m.Plans...),
		subs:    append([]models.Subscription(nil), m.Subscriptions...),
		addons:  append([]models.Addon(nil), m.Addons...),
		ips:     append([]models.IPAddress(nil), m.IPs...),
		logs:    append([]models.QueryLog(nil), m.QueryLogs...),
		invs:    append([]models.Invoice(nil), m.Invoices...),
		nextID:  m.nextID,
	}
}

func (m *MemoryRepository) restore(s memSnapshot) {
	m.Users = s.users
	m.Organizations = s.orgs
	m.Members = s.members
	m.Plans = s.plans
	m.Subscriptions = s.subs
	m.Addons = s.addons
	m.IPs = s.ips
	m.QueryLogs = s.logs
	m.Invoices = s.invs
	m.nextID = s.nextID
}

// AddUser inserts a user and returns its assigned ID.
func (m *MemoryRepository) AddUser(user models.User) uint {
	user.ID = m.newID()
	m.Users = append(m.Users, user)
	return user.ID
}

// AddOrganization inserts an organization, assigning ID and UUID.
func (m *MemoryRepository) AddOrganization(org models.Organization) models.Organization {
	org.ID = m.newID()
	if org.UUID == "" {
		org.UUID = uuid.New().String()
	}
	m.Organizations = append(m.Organizations, org)
	return org
}

// AddMember inserts an organization membership.
func (m *MemoryRepository) AddMember(organizationID, userID uint, role string) {
	m.Members = append(m.Members, models.OrganizationMember{
		ID:             m.newID(),
		OrganizationID: organizationID,
		UserID:         userID,
		Role:           role,
	})
}

// AddSubscription inserts a subscription, assigning ID and UUID.
func (m *MemoryRepository) AddSubscription(sub models.Subscription) models.Subscription {
	sub.ID = m.newID()
	if sub.UUID == "" {
		sub.UUID = uuid.New().String()
	}
	m.Subscriptions = append(m.Subscriptions, sub)
	return sub
}

// AddIP inserts an authorized IP, assigning ID and UUID.
func (m *MemoryRepository) AddIP(ip models.IPAddress) models.IPAddress {
	ip.ID = m.newID()
	if ip.UUID == "" {
		ip.UUID = uuid.New().String()
	}
	m.IPs = append(m.IPs, ip)
	return ip
}

// AddInvoice inserts an invoice, assigning ID and UUID.
func (m *MemoryRepository) AddInvoice(inv models.Invoice) models.Invoice {
	inv.ID = m.newID()
	if inv.UUID == "" {
		inv.UUID = uuid.New().String()
	}
	m.Invoices = append(m.Invoices, inv)
	return inv
}

func (m *MemoryRepository) OrganizationByID(id uint) (*models.Organization, error) {
	for i := range m.Organizations {
		if m.Organizations[i].ID == id {
			org := m.Organizations[i]
			return &org, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) OrganizationBySlug(slug string) (*models.Organization, error) {
	for i := range m.Organizations {
		if m.Organizations[i].Slug == slug {
			org := m.Organizations[i]
			return &org, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) UserByID(id uint) (*models.User, error) {
	for i := range m.Users {
		if m.Users[i].ID == id {
			user := m.Users[i]
			return &user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) UserByAPIKeyHash(hash string) (*models.User, error) {
	for i := range m.Users {
		if m.Users[i].APIKeyHash != "" && m.Users[i].APIKeyHash == hash {
			user := m.Users[i]
			return &user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) TouchAPIKeyUsage(userID uint) error {
	now := time.Now()
	for i := range m.Users {
		if m.Users[i].ID == userID {
			m.Users[i].APIKeyLastUsedAt = &now
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MemoryRepository) MemberRole(organizationID, userID uint) (string, error) {
	for i := range m.Members {
		if m.Members[i].OrganizationID == organizationID && m.Members[i].UserID == userID {
			return m.Members[i].Role, nil
		}
	}
	return "", gorm.ErrRecordNotFound
}

func (m *MemoryRepository) PlanByID(id uint) (*models.Plan, error) {
	for i := range m.Plans {
		if m.Plans[i].ID == id {
			plan := m.Plans[i]
			return &plan, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) PlanByUUID(planUUID string) (*models.Plan, error) {
	for i := range m.Plans {
		if m.Plans[i].UUID == planUUID {
			plan := m.Plans[i]
			return &plan, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) PlanByTier(tier string) (*models.Plan, error) {
	for i := range m.Plans {
		if strings.EqualFold(m.Plans[i].Tier, tier) {
			plan := m.Plans[i]
			return &plan, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) ListPlans() ([]models.Plan, error) {
	return append([]models.Plan(nil), m.Plans...), nil
}

func (m *MemoryRepository) SubscriptionByOrganization(organizationID uint) (*models.Subscription, error) {
	for i := range m.Subscriptions {
		if m.Subscriptions[i].OrganizationID == organizationID {
			sub := m.Subscriptions[i]
			return &sub, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) SubscriptionByOrganizationForUpdate(organizationID uint) (*models.Subscription, error) {
	return m.SubscriptionByOrganization(organizationID)
}

func (m *MemoryRepository) CreateSubscription(sub *models.Subscription) error {
	if _, err := m.SubscriptionByOrganization(sub.OrganizationID); err == nil {
		return gorm.ErrDuplicatedKey
	}
	sub.ID = m.newID()
	if sub.UUID == "" {
		sub.UUID = uuid.New().String()
	}
	m.Subscriptions = append(m.Subscriptions, *sub)
	return nil
}

func (m *MemoryRepository) SaveSubscription(sub *models.Subscription) error {
	for i := range m.Subscriptions {
		if m.Subscriptions[i].ID == sub.ID {
			m.Subscriptions[i] = *sub
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MemoryRepository) SubscriptionsByStatus(statuses ...string) ([]models.Subscription, error) {
	var out []models.Subscription
	for i := range m.Subscriptions {
		for _, status := range statuses {
			if m.Subscriptions[i].Status == status {
				out = append(out, m.Subscriptions[i])
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryRepository) AddonByType(organizationID uint, addonType string) (*models.Addon, error) {
	for i := range m.Addons {
		if m.Addons[i].OrganizationID == organizationID && m.Addons[i].Type == addonType {
			addon := m.Addons[i]
			return &addon, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) AddonByUUID(organizationID uint, addonUUID string) (*models.Addon, error) {
	for i := range m.Addons {
		if m.Addons[i].OrganizationID == organizationID && m.Addons[i].UUID == addonUUID {
			addon := m.Addons[i]
			return &addon, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) ListAddons(organizationID uint) ([]models.Addon, error) {
	var out []models.Addon
	for i := range m.Addons {
		if m.Addons[i].OrganizationID == organizationID {
			out = append(out, m.Addons[i])
		}
	}
	return out, nil
}

func (m *MemoryRepository) SumAddonAmount(organizationID uint, addonType string) (int, error) {
	total := 0
	for i := range m.Addons {
		if m.Addons[i].OrganizationID == organizationID && m.Addons[i].Type == addonType {
			total += m.Addons[i].Amount
		}
	}
	return total, nil
}

func (m *MemoryRepository) UpsertAddonPurchase(organizationID uint, addonType string, amount int, unitPrice int64) (*models.Addon, error) {
	for i := range m.Addons {
		if m.Addons[i].OrganizationID == organizationID && m.Addons[i].Type == addonType {
			m.Addons[i].Amount += amount
			m.Addons[i].Price += unitPrice * int64(amount)
			addon := m.Addons[i]
			return &addon, nil
		}
	}
	addon := models.Addon{
		ID:             m.newID(),
		UUID:           uuid.New().String(),
		OrganizationID: organizationID,
		Type:           addonType,
		Amount:         amount,
		UnitPrice:      unitPrice,
		Price:          unitPrice * int64(amount),
	}
	m.Addons = append(m.Addons, addon)
	return &addon, nil
}

func (m *MemoryRepository) DecrementAddonAmount(organizationID uint, addonType string) (bool, error) {
	for i := range m.Addons {
		if m.Addons[i].OrganizationID == organizationID && m.Addons[i].Type == addonType && m.Addons[i].Amount > 0 {
			m.Addons[i].Amount--
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) DeleteAddon(id uint) error {
	for i := range m.Addons {
		if m.Addons[i].ID == id {
			m.Addons = append(m.Addons[:i], m.Addons[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MemoryRepository) CountIPs(organizationID uint) (int64, error) {
	var count int64
	for i := range m.IPs {
		if m.IPs[i].OrganizationID == organizationID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryRepository) ListIPs(organizationID uint) ([]models.IPAddress, error) {
	var out []models.IPAddress
	for i := range m.IPs {
		if m.IPs[i].OrganizationID == organizationID {
			out = append(out, m.IPs[i])
		}
	}
	return out, nil
}

func (m *MemoryRepository) IPByUUID(organizationID uint, ipUUID string) (*models.IPAddress, error) {
	for i := range m.IPs {
		if m.IPs[i].OrganizationID == organizationID && m.IPs[i].UUID == ipUUID {
			ip := m.IPs[i]
			return &ip, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) CreateIP(ip *models.IPAddress) error {
	ip.ID = m.newID()
	if ip.UUID == "" {
		ip.UUID = uuid.New().String()
	}
	if ip.LastChangedAt.IsZero() {
		ip.LastChangedAt = time.Now()
	}
	m.IPs = append(m.IPs, *ip)
	return nil
}

func (m *MemoryRepository) SaveIP(ip *models.IPAddress) error {
	for i := range m.IPs {
		if m.IPs[i].ID == ip.ID {
			m.IPs[i] = *ip
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MemoryRepository) DeleteIP(id uint) error {
	for i := range m.IPs {
		if m.IPs[i].ID == id {
			m.IPs = append(m.IPs[:i], m.IPs[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MemoryRepository) CreateQueryLog(entry *models.QueryLog) error {
	entry.ID = m.newID()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.QueryLogs = append(m.QueryLogs, *entry)
	return nil
}

func (m *MemoryRepository) CountQueryLogsSince(organizationID uint, since time.Time, category string) (int64, error) {
	var count int64
	for i := range m.QueryLogs {
		entry := &m.QueryLogs[i]
		if entry.OrganizationID != organizationID || entry.CreatedAt.Before(since) {
			continue
		}
		if category != "" && entry.Category != category {
			continue
		}
		count++
	}
	return count, nil
}

func (m *MemoryRepository) DeleteQueryLogsBefore(cutoff time.Time) (int64, error) {
	var kept []models.QueryLog
	var removed int64
	for i := range m.QueryLogs {
		if m.QueryLogs[i].CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, m.QueryLogs[i])
	}
	m.QueryLogs = kept
	return removed, nil
}

func (m *MemoryRepository) CreateInvoice(inv *models.Invoice) error {
	inv.ID = m.newID()
	if inv.UUID == "" {
		inv.UUID = uuid.New().String()
	}
	m.Invoices = append(m.Invoices, *inv)
	return nil
}

func (m *MemoryRepository) SaveInvoice(inv *models.Invoice) error {
	for i := range m.Invoices {
		if m.Invoices[i].ID == inv.ID {
			m.Invoices[i] = *inv
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MemoryRepository) InvoiceByUUID(invoiceUUID string) (*models.Invoice, error) {
	for i := range m.Invoices {
		if m.Invoices[i].UUID == invoiceUUID {
			inv := m.Invoices[i]
			return &inv, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) InvoiceByUUIDForUpdate(invoiceUUID string) (*models.Invoice, error) {
	return m.InvoiceByUUID(invoiceUUID)
}

func (m *MemoryRepository) InvoiceExistsForDueDate(organizationID uint, due time.Time) (bool, error) {
	windowEnd := due.Add(24 * time.Hour)
	for i := range m.Invoices {
		inv := &m.Invoices[i]
		if inv.OrganizationID == organizationID && inv.Kind == models.InvoiceKindRenewal &&
			!inv.DueDate.Before(due) && inv.DueDate.Before(windowEnd) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) EarliestPendingInvoice(organizationID uint) (*models.Invoice, error) {
	var found *models.Invoice
	for i := range m.Invoices {
		inv := &m.Invoices[i]
		if inv.OrganizationID != organizationID || inv.Status != models.InvoiceStatusPending {
			continue
		}
		if found == nil || inv.DueDate.Before(found.DueDate) {
			found = inv
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	inv := *found
	return &inv, nil
}

func (m *MemoryRepository) ListInvoices(organizationID uint) ([]models.Invoice, error) {
	var out []models.Invoice
	for i := range m.Invoices {
		if m.Invoices[i].OrganizationID == organizationID {
			out = append(out, m.Invoices[i])
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListPendingInvoicesDueBefore(organizationID uint, cutoff time.Time) ([]models.Invoice, error) {
	var out []models.Invoice
	for i := range m.Invoices {
		inv := m.Invoices[i]
		if inv.OrganizationID != organizationID || inv.IsTerminal() || !inv.DueDate.Before(cutoff) {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *MemoryRepository) HasPendingInvoiceDueBefore(organizationID uint, cutoff time.Time) (bool, error) {
	for i := range m.Invoices {
		inv := &m.Invoices[i]
		if inv.OrganizationID != organizationID || inv.IsTerminal() {
			continue
		}
		if inv.DueDate.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}
