package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/consultix/consultix/internal/pkg/apperrors"
	"github.com/consultix/consultix/internal/pkg/constants"
	"github.com/consultix/consultix/internal/pkg/env"
)

const (
	defaultMangofyAPIBaseURL = "https://checkout.mangofy.com.br"
	pixExpirationDays        = 3
)

// MangofyClient talks to the Mangofy checkout API. One charge per invoice:
// the invoice UUID travels as external_code, and the postback URL points the
// gateway's webhook back at us.
type MangofyClient struct {
	APIBaseURL  string
	StoreCode   string
	SecretKey   string
	PostbackURL string

	HTTPClient *http.Client
}

func NewMangofyClientFromEnv() *MangofyClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	postbackURL := strings.TrimSpace(env.GetEnv("MANGOFY_POSTBACK_URL", ""))
	if postbackURL == "" && base != "" {
		postbackURL = base + constants.PaymentWebhookPath
	}

	return &MangofyClient{
		APIBaseURL:  strings.TrimRight(env.GetEnv("MANGOFY_API_BASE_URL", defaultMangofyAPIBaseURL), "/"),
		StoreCode:   strings.TrimSpace(env.GetEnv("MANGOFY_STORE_CODE", "")),
		SecretKey:   strings.TrimSpace(env.GetEnv("MANGOFY_SECRET_KEY", "")),
		PostbackURL: postbackURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type mangofyPaymentRequest struct {
	StoreCode     string            `json:"store_code"`
	PaymentMethod string            `json:"payment_method"`
	PaymentFormat string            `json:"payment_format"`
	PaymentAmount int64             `json:"payment_amount"`
	ExternalCode  string            `json:"external_code"`
	PostbackURL   string            `json:"postback_url"`
	Pix           mangofyPixOptions `json:"pix"`
	Customer      mangofyCustomer   `json:"customer"`
}

type mangofyPixOptions struct {
	ExpiresInDays int `json:"expires_in_days"`
}

type mangofyCustomer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
	IP       string `json:"ip"`
}

type mangofyPaymentResponse struct {
	PaymentCode   string `json:"payment_code"`
	PaymentStatus string `json:"payment_status"`
	Pix           struct {
		PixLink   string `json:"pix_link"`
		PixQRCode string `json:"pix_qrcode_text"`
		ExpiresAt string `json:"pix_expiration_date"`
	} `json:"pix"`
}

// CreatePixPayment registers a PIX charge for the given invoice. Gateway
// failures and timeouts come back as ExternalServiceError so callers know the
// invoice is still unpaid and the call can be retried with the same external
// code.
func (c *MangofyClient) CreatePixPayment(ctx context.Context, params CreatePaymentParams) (*CreatePaymentResponse, error) {
	if c.StoreCode == "" || c.SecretKey == "" {
		return nil, errors.New("MANGOFY_STORE_CODE/MANGOFY_SECRET_KEY are not configured")
	}
	if strings.TrimSpace(params.InvoiceUUID) == "" {
		return nil, errors.New("invoice uuid is required")
	}
	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %d", params.AmountCents)
	}

	payload := mangofyPaymentRequest{
		StoreCode:     c.StoreCode,
		PaymentMethod: "pix",
		PaymentFormat: "regular",
		PaymentAmount: params.AmountCents,
		ExternalCode:  params.InvoiceUUID,
		PostbackURL:   c.PostbackURL,
		Pix:           mangofyPixOptions{ExpiresInDays: pixExpirationDays},
		Customer: mangofyCustomer{
			Name:     params.Customer.Name,
			Email:    params.Customer.Email,
			Document: params.Customer.Document,
			Phone:    params.Customer.Phone,
			IP:       params.Customer.IP,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v1/payment", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.SecretKey)
	req.Header.Set("Store-Code", c.StoreCode)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.NewExternal(err, "mangofy payment request failed")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewExternal(
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw)),
			"mangofy rejected payment for invoice %s", params.InvoiceUUID,
		)
	}

	var out mangofyPaymentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.NewExternal(err, "mangofy returned an unreadable payment response")
	}
	if strings.TrimSpace(out.Pix.PixLink) == "" {
		return nil, apperrors.NewExternal(errors.New("empty pix_link"), "mangofy returned no payment link for invoice %s", params.InvoiceUUID)
	}

	result := &CreatePaymentResponse{
		PaymentID:  out.PaymentCode,
		PaymentURL: out.Pix.PixLink,
		QRCode:     out.Pix.PixQRCode,
	}
	if ts := strings.TrimSpace(out.Pix.ExpiresAt); ts != "" {
		if t, perr := time.Parse(time.RFC3339, ts); perr == nil {
			result.ExpiresAt = t
		}
	}
	return result, nil
}
