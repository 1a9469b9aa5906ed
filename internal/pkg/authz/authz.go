package authz

import (
	"errors"

	"github.com/consultix/consultix/app/models"
	"github.com/consultix/consultix/internal/pkg/apperrors"
	"github.com/consultix/consultix/internal/pkg/ledger"
	"gorm.io/gorm"
)

// Checker answers role questions for one organization before mutating
// actions run. Checks hit the ledger directly every time; membership is
// never cached.
type Checker struct {
	repo ledger.Repository
}

func NewChecker(repo ledger.Repository) *Checker {
	return &Checker{repo: repo}
}

func (c *Checker) role(organizationID, userID uint) (string, error) {
	role, err := c.repo.MemberRole(organizationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.NewForbidden("user %d is not a member of organization %d", userID, organizationID)
		}
		return "", err
	}
	return role, nil
}

// RequireOwner passes only for the organization owner.
func (c *Checker) RequireOwner(organizationID, userID uint) error {
	role, err := c.role(organizationID, userID)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return apperrors.NewForbidden("action requires the OWNER role")
	}
	return nil
}

// RequireAdminOrOwner passes for admins and the owner.
func (c *Checker) RequireAdminOrOwner(organizationID, userID uint) error {
	role, err := c.role(organizationID, userID)
	if err != nil {
		return err
	}
	if models.RoleRank(role) < models.RoleRank(models.RoleAdmin) {
		return apperrors.NewForbidden("action requires the ADMIN or OWNER role")
	}
	return nil
}

// RequireMember passes for any member of the organization.
func (c *Checker) RequireMember(organizationID, userID uint) error {
	_, err := c.role(organizationID, userID)
	return err
}
