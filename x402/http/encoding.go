package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/foldset/foldset-go/x402"
)

// Wire header names
const (
	// PaymentRequiredHeader carries the base64-encoded PaymentRequired envelope
	PaymentRequiredHeader = "PAYMENT-REQUIRED"

	// PaymentResponseHeader carries the base64-encoded settlement result
	PaymentResponseHeader = "PAYMENT-RESPONSE"

	// PaymentSignatureHeader carries the client's payment payload
	PaymentSignatureHeader = "PAYMENT-SIGNATURE"

	// XPaymentHeader is the legacy name for the payment payload header
	XPaymentHeader = "X-PAYMENT"
)

// EncodePaymentRequiredHeader encodes a PaymentRequired envelope for the
// PAYMENT-REQUIRED response header
func EncodePaymentRequiredHeader(paymentRequired x402.PaymentRequired) (string, error) {
	data, err := json.Marshal(paymentRequired)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment required: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// EncodeSettleResponseHeader encodes a settlement result for the
// PAYMENT-RESPONSE response header
func EncodeSettleResponseHeader(response x402.SettleResponse) (string, error) {
	data, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settle response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader decodes a payment payload from a request header value.
// Accepts standard and URL-safe base64; raw JSON is tolerated for clients
// that skip the base64 step.
func DecodePaymentHeader(header string) (x402.PaymentPayload, error) {
	var payload x402.PaymentPayload

	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(header)
	}
	if err != nil {
		data = []byte(header)
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("failed to decode payment header: %w", err)
	}

	return payload, nil
}
