package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleOwner   = "OWNER"
	RoleAdmin   = "ADMIN"
	RoleMember  = "MEMBER"
	RoleBilling = "BILLING"
)

// OrganizationMember binds a user to an organization with a role. Roles form
// a strict hierarchy used by capability checks: OWNER > ADMIN > MEMBER > BILLING.
type OrganizationMember struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index:ux_org_members_org_user,unique,priority:1" json:"organization_id"`
	UserID         uint      `gorm:"not null;index:ux_org_members_org_user,unique,priority:2" json:"user_id"`
	Role           string    `gorm:"type:varchar(20);not null;default:'MEMBER'" json:"role" validate:"oneof=OWNER ADMIN MEMBER BILLING"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RoleRank orders roles for hierarchy comparisons. Unknown roles rank lowest.
func RoleRank(role string) int {
	switch role {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	case RoleBilling:
		return 0
	default:
		return -1
	}
}

func FindMemberRole(db *gorm.DB, organizationID, userID uint) (string, error) {
	var member OrganizationMember
	err := db.Where("organization_id = ? AND user_id = ?", organizationID, userID).
		First(&member).Error
	if err != nil {
		return "", err
	}
	return member.Role, nil
}
