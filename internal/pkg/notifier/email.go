package notifier

import (
	"context"
	"fmt"

	"github.com/consultix/consultix/internal/pkg/env"
	"github.com/consultix/consultix/internal/pkg/ledger"
	"github.com/consultix/consultix/internal/pkg/mail"
)

// EmailNotifier mails billing events to the organization owner. It stays
// silent when no SMTP relay is configured so deployments without email
// still work with push-only delivery.
type EmailNotifier struct {
	repo    ledger.Repository
	enabled bool
	subject string
}

// NewEmailNotifierFromEnv builds an email notifier. Delivery is enabled
// only when SMTP_HOST is set.
func NewEmailNotifierFromEnv(repo ledger.Repository) *EmailNotifier {
	return &EmailNotifier{
		repo:    repo,
		enabled: env.GetEnv("SMTP_HOST", "") != "",
		subject: env.GetEnv("MAIL_SUBJECT_PREFIX", "[Consultix]"),
	}
}

func (e *EmailNotifier) Notify(_ context.Context, kind Kind, organizationID uint, eventCtx map[string]string) error {
	if !e.enabled {
		return nil
	}

	org, err := e.repo.OrganizationByID(organizationID)
	if err != nil {
		return fmt.Errorf("email: organization %d lookup failed: %w", organizationID, err)
	}
	owner, err := e.repo.UserByID(org.OwnerID)
	if err != nil {
		return fmt.Errorf("email: owner lookup for org %d failed: %w", organizationID, err)
	}
	if owner.Email == "" {
		return nil
	}

	body := Message(kind)
	if extra, ok := eventCtx["detail"]; ok && extra != "" {
		body = body + " " + extra
	}

	subject := fmt.Sprintf("%s %s", e.subject, org.Name)
	return mail.Send(owner.Email, subject, body)
}
