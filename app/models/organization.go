package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization is the tenant root. Every billing-relevant row (subscription,
// addons, invoices, IPs, query logs) hangs off an organization.
type Organization struct {
	ID                        uint       `gorm:"primaryKey" json:"id"`
	UUID                      string     `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	Name                      string     `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=3,max=150"`
	Slug                      string     `gorm:"type:varchar(150);uniqueIndex;not null" json:"slug"`
	Domain                    *string    `gorm:"type:varchar(200);uniqueIndex;default:null" json:"domain,omitempty"`
	OwnerID                   uint       `gorm:"not null;index" json:"owner_id"`
	ShouldAttachUsersByDomain bool       `gorm:"default:false" json:"should_attach_users_by_domain"`
	Timezone                  string     `gorm:"type:varchar(64);default:''" json:"timezone"`
	CreatedAt                 time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.UUID == "" {
		o.UUID = uuid.New().String()
	}
	return nil
}

// Location resolves the organization's configured time zone. Returns nil when
// none is configured or the name does not parse; callers fall back to the
// deployment default.
func (o *Organization) Location() *time.Location {
	if o == nil || o.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

func FindOrganizationBySlug(db *gorm.DB, slug string) (*Organization, error) {
	var org Organization
	if err := db.Where("slug = ?", slug).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func FindOrganizationByID(db *gorm.DB, id uint) (*Organization, error) {
	var org Organization
	if err := db.First(&org, id).Error; err != nil {
		return nil, err
	}
	return &org, nil
}
