package billing

import "time"

// Payment status values the gateway reports through its webhook.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusCanceled = "canceled"
	PaymentStatusRefunded = "refunded"
)

// WebhookPayload is the body Mangofy posts to our payment callback.
// ExternalInvoiceCode carries the invoice UUID we sent as external_code
// when the charge was created.
type WebhookPayload struct {
	ExternalInvoiceCode string `json:"external_code" validate:"required,uuid4"`
	PaymentStatus       string `json:"payment_status" validate:"required,oneof=pending approved canceled refunded"`
	PaymentID           string `json:"payment_id"`
}

// WebhookResult tells the caller what the reconciler did with a payload.
type WebhookResult struct {
	InvoiceUUID string
	Status      string
	Duplicate   bool
	Ignored     bool
}

// Customer identifies the payer on an outgoing charge.
type Customer struct {
	Name     string
	Email    string
	Document string
	Phone    string
	IP       string
}

// CreatePaymentParams describes a PIX charge to be created at the gateway.
type CreatePaymentParams struct {
	AmountCents int64
	InvoiceUUID string
	Customer    Customer
	PostbackURL string
}

// CreatePaymentResponse is the gateway's answer to a charge creation.
type CreatePaymentResponse struct {
	PaymentID  string
	PaymentURL string
	QRCode     string
	ExpiresAt  time.Time
}
