package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks the gateway's HMAC-SHA256 hex signature over
// the raw request body. Both an empty signature and an unset secret fail
// closed.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

// SignWebhookPayload produces the hex signature the gateway is expected to
// send. Used by tests and by outbound verification tooling.
func SignWebhookPayload(payload []byte, webhookSecret string) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseAllowedSources splits a comma-separated IP allow list from the
// environment. An empty list means source filtering is disabled.
func ParseAllowedSources(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if ip := strings.TrimSpace(part); ip != "" {
			out = append(out, ip)
		}
	}
	return out
}

// SourceAllowed reports whether remoteIP may deliver webhooks. With no
// configured allow list every source passes and authenticity rests on the
// signature alone.
func SourceAllowed(remoteIP string, allowList []string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, ip := range allowList {
		if ip == remoteIP {
			return true
		}
	}
	return false
}
