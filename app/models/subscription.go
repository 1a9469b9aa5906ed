package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionStatusTrialing = "TRIALING"
	SubscriptionStatusActive   = "ACTIVE"
	SubscriptionStatusOverdue  = "OVERDUE"
	SubscriptionStatusCanceled = "CANCELED"
)

// Subscription binds an organization to a plan. The unique index on
// organization_id guarantees at most one subscription row per organization.
// CANCELED is terminal for the record; reactivation goes through the plan
// change API, never by flipping the status back.
type Subscription struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UUID               string     `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	OrganizationID     uint       `gorm:"not null;uniqueIndex" json:"organization_id"`
	PlanID             uint       `gorm:"not null;index" json:"plan_id"`
	Status             string     `gorm:"type:varchar(20);not null;default:'TRIALING';index" json:"status" validate:"oneof=TRIALING ACTIVE OVERDUE CANCELED"`
	StartedAt          time.Time  `gorm:"not null" json:"started_at"`
	CurrentPeriodEnd   time.Time  `gorm:"not null" json:"current_period_end"`
	TrialEndsAt        *time.Time `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == "" {
		s.UUID = uuid.New().String()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	return nil
}

// IsEntitled reports whether the subscription grants access to metered
// resources. OVERDUE subscriptions keep their record but lose entitlement.
func (s *Subscription) IsEntitled() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}

func FindSubscriptionByOrganization(db *gorm.DB, organizationID uint) (*Subscription, error) {
	var sub Subscription
	err := db.Where("organization_id = ?", organizationID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
