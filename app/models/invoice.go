package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	InvoiceStatusPending  = "PENDING"
	InvoiceStatusPaid     = "PAID"
	InvoiceStatusOverdue  = "OVERDUE"
	InvoiceStatusCanceled = "CANCELED"
)

// Invoice tracks a single charge. Status is mutated only by payment
// reconciliation and the expiry sweep; read paths never touch it.
// PAID and CANCELED are terminal, OVERDUE can still move to PAID when a late
// gateway confirmation arrives.
type Invoice struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UUID              string     `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	OrganizationID    uint       `gorm:"not null;index:idx_invoices_org_due,priority:1" json:"organization_id"`
	SubscriptionID    *uint      `gorm:"index;default:null" json:"subscription_id,omitempty"`
	Amount            int64      `gorm:"not null" json:"amount"`
	Status            string     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status" validate:"oneof=PENDING PAID OVERDUE CANCELED"`
	Kind              string     `gorm:"type:varchar(20);not null;default:'RENEWAL'" json:"kind"`
	DueDate           time.Time  `gorm:"not null;index:idx_invoices_org_due,priority:2" json:"due_date"`
	PaidAt            *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	ExternalPaymentID string     `gorm:"type:varchar(191);default:''" json:"external_payment_id"`
	PaymentURL        string     `gorm:"type:varchar(500);default:''" json:"payment_url"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	InvoiceKindRenewal   = "RENEWAL"
	InvoiceKindProration = "PRORATION"
	InvoiceKindAddon     = "ADDON"
)

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == "" {
		i.UUID = uuid.New().String()
	}
	return nil
}

// IsTerminal reports whether the invoice status admits no further transition.
func (i *Invoice) IsTerminal() bool {
	return i.Status == InvoiceStatusPaid || i.Status == InvoiceStatusCanceled
}

// IsCollectible reports whether a payment confirmation may still settle it.
func (i *Invoice) IsCollectible() bool {
	return i.Status == InvoiceStatusPending || i.Status == InvoiceStatusOverdue
}

func FindInvoiceByUUID(db *gorm.DB, invoiceUUID string) (*Invoice, error) {
	var inv Invoice
	if err := db.Where("uuid = ?", invoiceUUID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}
