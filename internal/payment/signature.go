package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the gateway signature for a completed payment:
//
//	hex(HMAC-SHA256(secret, "{gatewayOrderId}|{gatewayPaymentId}"))
func Sign(gatewayOrderID, gatewayPaymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID))
	mac.Write([]byte("|"))
	mac.Write([]byte(gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches Sign for the given ids.
func Verify(gatewayOrderID, gatewayPaymentID, signature, secret string) bool {
	want := Sign(gatewayOrderID, gatewayPaymentID, secret)
	return hmac.Equal([]byte(want), []byte(signature))
}
