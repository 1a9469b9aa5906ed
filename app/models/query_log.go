package models

import "time"

const (
	QueryOutcomeSuccess = "success"
	QueryOutcomeFailed  = "failed"
)

// QueryLog is an append-only usage event. Rows are only ever inserted and
// later purged by the retention cleanup job; quota checks count them within
// the current billing window.
type QueryLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index:idx_query_logs_org_created,priority:1" json:"organization_id"`
	Category       string    `gorm:"type:varchar(50);not null;default:''" json:"category"`
	Outcome        string    `gorm:"type:varchar(10);not null" json:"outcome" validate:"oneof=success failed"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_query_logs_org_created,priority:2" json:"created_at"`
}
