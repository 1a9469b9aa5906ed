package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AddonTypeExtraIP       = "EXTRA_IP"
	AddonTypeExtraRequests = "EXTRA_REQUESTS"
	AddonTypeEarlyIPChange = "EARLY_IP_CHANGE"
)

// Addon is a purchasable increment on top of a plan's base allowance. The
// unique index on (organization_id, type) keeps one row per addon type;
// repeat purchases accumulate amount and price on the existing row.
type Addon struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UUID           string    `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	OrganizationID uint      `gorm:"not null;index:ux_addons_org_type,unique,priority:1" json:"organization_id"`
	Type           string    `gorm:"type:varchar(20);not null;index:ux_addons_org_type,unique,priority:2" json:"type" validate:"oneof=EXTRA_IP EXTRA_REQUESTS EARLY_IP_CHANGE"`
	Amount         int       `gorm:"not null;default:0" json:"amount"`
	UnitPrice      int64     `gorm:"not null" json:"unit_price"`
	Price          int64     `gorm:"not null;default:0" json:"price"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Addon) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == "" {
		a.UUID = uuid.New().String()
	}
	return nil
}

// AddonUnitPrice returns the catalog price per unit in minor currency units.
func AddonUnitPrice(addonType string) int64 {
	switch addonType {
	case AddonTypeExtraIP:
		return 1000
	case AddonTypeExtraRequests:
		return 2
	case AddonTypeEarlyIPChange:
		return 500
	default:
		return 0
	}
}

// IsValidAddonType reports whether the given type is part of the catalog.
func IsValidAddonType(addonType string) bool {
	return AddonUnitPrice(addonType) > 0
}
