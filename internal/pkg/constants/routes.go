package constants

// Static route constants
const (
	APIBasePath = "/api"

	// PaymentWebhookPath receives gateway postbacks and doubles as the
	// default postback URL path handed to the gateway.
	PaymentWebhookPath = "/api/v1/webhooks/payment"

	MetricsPath = "/metrics"
)
