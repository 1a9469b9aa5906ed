package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"external_code":"abc","payment_status":"approved"}`)
	secret := "whsec_test"
	sig := SignWebhookPayload(body, secret)

	assert.True(t, VerifyWebhookSignature(body, sig, secret))
	assert.True(t, VerifyWebhookSignature(body, "  "+sig+" ", secret), "surrounding whitespace is tolerated")

	assert.False(t, VerifyWebhookSignature([]byte(`{"tampered":true}`), sig, secret))
	assert.False(t, VerifyWebhookSignature(body, sig, "wrong-secret"))
	assert.False(t, VerifyWebhookSignature(body, "", secret))
	assert.False(t, VerifyWebhookSignature(body, sig, ""))
	assert.False(t, VerifyWebhookSignature(body, "not-hex!", secret))
}

func TestSourceAllowed(t *testing.T) {
	assert.True(t, SourceAllowed("203.0.113.7", nil), "empty allow list disables filtering")

	allow := ParseAllowedSources(" 203.0.113.7, 198.51.100.2 ,")
	assert.Equal(t, []string{"203.0.113.7", "198.51.100.2"}, allow)
	assert.True(t, SourceAllowed("203.0.113.7", allow))
	assert.False(t, SourceAllowed("192.0.2.55", allow))
}
