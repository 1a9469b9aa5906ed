package billing

import "context"

// PaymentGateway creates charges at the external payment provider.
// Implementations must use the invoice UUID as the provider-side external
// code so webhook callbacks and retries can always be traced back to one
// invoice.
type PaymentGateway interface {
	CreatePixPayment(ctx context.Context, params CreatePaymentParams) (*CreatePaymentResponse, error)
}

// NewGatewayFromEnv returns the configured production gateway.
func NewGatewayFromEnv() PaymentGateway {
	return NewMangofyClientFromEnv()
}
