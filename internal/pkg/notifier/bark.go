package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/consultix/consultix/internal/pkg/env"
	"github.com/consultix/consultix/internal/pkg/ledger"
)

const defaultBarkServerURL = "https://api.day.app"

// BarkNotifier pushes billing events to the organization owner's device via a
// Bark server. The owner's device key lives on the user row; organizations
// whose owner has no key are silently skipped.
type BarkNotifier struct {
	repo ledger.Repository

	ServerURL  string
	HTTPClient *http.Client
}

// NewBarkNotifierFromEnv builds a Bark notifier from BARK_SERVER_URL.
func NewBarkNotifierFromEnv(repo ledger.Repository) *BarkNotifier {
	return &BarkNotifier{
		repo:      repo,
		ServerURL: strings.TrimRight(env.GetEnv("BARK_SERVER_URL", defaultBarkServerURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (b *BarkNotifier) Notify(ctx context.Context, kind Kind, organizationID uint, eventCtx map[string]string) error {
	org, err := b.repo.OrganizationByID(organizationID)
	if err != nil {
		return fmt.Errorf("bark: organization %d lookup failed: %w", organizationID, err)
	}
	owner, err := b.repo.UserByID(org.OwnerID)
	if err != nil {
		return fmt.Errorf("bark: owner lookup for org %d failed: %w", organizationID, err)
	}
	if owner.BarkDeviceKey == "" {
		return nil
	}

	body := Message(kind)
	if extra, ok := eventCtx["detail"]; ok && extra != "" {
		body = body + " " + extra
	}

	pushURL := fmt.Sprintf("%s/%s/%s/%s",
		b.ServerURL,
		url.PathEscape(owner.BarkDeviceKey),
		url.PathEscape(org.Name),
		url.PathEscape(body),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pushURL, nil)
	if err != nil {
		return err
	}
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("bark: push failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bark: push returned status %d", resp.StatusCode)
	}
	return nil
}
