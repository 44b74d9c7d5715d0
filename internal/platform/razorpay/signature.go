package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks the X-Razorpay-Signature header against the raw body.
func VerifyWebhook(secret string, rawBody []byte, signature string) bool {
	return verify(secret, rawBody, signature)
}

// VerifyPayment checks the checkout handler signature over "order_id|payment_id".
func VerifyPayment(keySecret, orderID, paymentID, signature string) bool {
	return verify(keySecret, []byte(orderID+"|"+paymentID), signature)
}

func verify(secret string, payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
