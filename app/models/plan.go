package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	PlanTierTrial        = "TRIAL"
	PlanTierBasic        = "BASIC"
	PlanTierProfessional = "PROFESSIONAL"
	PlanTierBusiness     = "BUSINESS"
)

// Plan is an immutable catalog entry. Exactly one plan exists per tier;
// SeedDefaultPlans enforces that with an upsert keyed on the tier column.
// Prices are integer minor-currency units (centavos).
type Plan struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UUID                  string    `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	Name                  string    `gorm:"type:varchar(100);not null" json:"name"`
	Tier                  string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"tier" validate:"oneof=TRIAL BASIC PROFESSIONAL BUSINESS"`
	Price                 int64     `gorm:"not null" json:"price"`
	MaxOrganizations      int       `gorm:"not null;default:1" json:"max_organizations"`
	MaxIPs                int       `gorm:"not null" json:"max_ips"`
	MaxRequests           int       `gorm:"not null" json:"max_requests"`
	IPChangeCooldownHours int       `gorm:"not null;default:24" json:"ip_change_cooldown_hours"`
	TrialEligible         bool      `gorm:"default:false" json:"trial_eligible"`
	SupportLevel          string    `gorm:"type:varchar(100)" json:"support_level"`
	Description           string    `gorm:"type:text" json:"description"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Plan) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	return nil
}

// PlanTierRank orders tiers so upgrades can be told apart from downgrades.
func PlanTierRank(tier string) int {
	switch tier {
	case PlanTierBusiness:
		return 3
	case PlanTierProfessional:
		return 2
	case PlanTierBasic:
		return 1
	case PlanTierTrial:
		return 0
	default:
		return -1
	}
}

func FindPlanByID(db *gorm.DB, id uint) (*Plan, error) {
	var plan Plan
	if err := db.First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func FindPlanByUUID(db *gorm.DB, planUUID string) (*Plan, error) {
	var plan Plan
	if err := db.Where("uuid = ?", planUUID).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func FindPlanByTier(db *gorm.DB, tier string) (*Plan, error) {
	var plan Plan
	if err := db.Where("tier = ?", tier).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// DefaultPlanCatalog returns the seeded plan catalog.
func DefaultPlanCatalog() []Plan {
	return []Plan{
		{
			Name:                  "Trial",
			Tier:                  PlanTierTrial,
			Price:                 0,
			MaxOrganizations:      1,
			MaxIPs:                1,
			MaxRequests:           100,
			IPChangeCooldownHours: 24,
			TrialEligible:         true,
			SupportLevel:          "E-mail",
			Description:           "7-day evaluation plan",
		},
		{
			Name:                  "Pro",
			Tier:                  PlanTierBasic,
			Price:                 47000,
			MaxOrganizations:      1,
			MaxIPs:                1,
			MaxRequests:           500000,
			IPChangeCooldownHours: 24,
			SupportLevel:          "E-mail",
			Description:           "Full dashboard, multiple APIs, IP control, 24h monitoring",
		},
		{
			Name:                  "Scale",
			Tier:                  PlanTierProfessional,
			Price:                 67000,
			MaxOrganizations:      1,
			MaxIPs:                2,
			MaxRequests:           2000000,
			IPChangeCooldownHours: 24,
			SupportLevel:          "E-mail, WhatsApp",
			Description:           "Everything in Pro plus real-time notifications and priority support",
		},
		{
			Name:                  "Enterprise",
			Tier:                  PlanTierBusiness,
			Price:                 120000,
			MaxOrganizations:      1,
			MaxIPs:                4,
			MaxRequests:           5000000,
			IPChangeCooldownHours: 24,
			SupportLevel:          "E-mail, WhatsApp, Priority",
			Description:           "Everything in Scale plus custom reports, dedicated SLA and on-demand IPs",
		},
	}
}

// SeedDefaultPlans upserts the plan catalog. Existing rows are left untouched
// so manual price adjustments survive restarts.
func SeedDefaultPlans(db *gorm.DB) error {
	for _, plan := range DefaultPlanCatalog() {
		p := plan
		p.UUID = uuid.New().String()
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tier"}},
			DoNothing: true,
		}).Create(&p).Error; err != nil {
			return err
		}
	}
	return nil
}
