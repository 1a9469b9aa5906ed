package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IPAddress is an authorized network address bound to an organization.
// LastChangedAt drives the IP-change cooldown enforced by the entitlement
// evaluator; EARLY_IP_CHANGE addon units override the cooldown.
type IPAddress struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UUID           string    `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	Address        string    `gorm:"type:varchar(45);not null" json:"address"`
	Name           string    `gorm:"type:varchar(100);default:''" json:"name"`
	LastChangedAt  time.Time `gorm:"not null" json:"last_changed_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ip *IPAddress) BeforeCreate(tx *gorm.DB) error {
	if ip.UUID == "" {
		ip.UUID = uuid.New().String()
	}
	if ip.LastChangedAt.IsZero() {
		ip.LastChangedAt = time.Now()
	}
	return nil
}

func CountIPAddresses(db *gorm.DB, organizationID uint) (int64, error) {
	var count int64
	err := db.Model(&IPAddress{}).Where("organization_id = ?", organizationID).Count(&count).Error
	return count, err
}
