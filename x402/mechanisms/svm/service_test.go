package svm

import (
	"context"
	"testing"

	x402 "github.com/foldset/foldset-go/x402"
)

const mainnet = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"

func TestParsePrice(t *testing.T) {
	service := NewExactService()

	got, err := service.ParsePrice("$0.25", mainnet)
	if err != nil {
		t.Fatalf("ParsePrice failed: %v", err)
	}
	if got.Amount != "250000" {
		t.Errorf("Expected 250000, got %s", got.Amount)
	}
	if got.Asset != "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v" {
		t.Errorf("Expected USDC mint, got %s", got.Asset)
	}

	if _, err := service.ParsePrice("1.00", "solana:unknown"); err == nil {
		t.Fatal("Expected error for unknown network")
	}
}

func TestEnhancePaymentRequirementsFeePayer(t *testing.T) {
	service := NewExactService()

	enhanced, err := service.EnhancePaymentRequirements(context.Background(), x402.PaymentRequirements{
		Scheme:  SchemeExact,
		Network: mainnet,
		PayTo:   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	}, x402.SupportedKind{
		X402Version: x402.ProtocolVersion,
		Scheme:      SchemeExact,
		Network:     mainnet,
		Extra:       map[string]interface{}{"feePayer": "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"},
	})
	if err != nil {
		t.Fatalf("EnhancePaymentRequirements failed: %v", err)
	}

	if enhanced.Asset == "" {
		t.Error("Expected default asset mint")
	}
	if enhanced.Extra["feePayer"] != "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU" {
		t.Errorf("Expected fee payer passthrough, got %v", enhanced.Extra["feePayer"])
	}
}

func TestEnhancePaymentRequirementsInvalidPayTo(t *testing.T) {
	service := NewExactService()

	_, err := service.EnhancePaymentRequirements(context.Background(), x402.PaymentRequirements{
		Scheme:  SchemeExact,
		Network: mainnet,
		PayTo:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	}, x402.SupportedKind{})
	if err == nil {
		t.Fatal("Expected error for hex address on SVM")
	}
}

func TestIsValidAddress(t *testing.T) {
	if !IsValidAddress("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v") {
		t.Error("Expected base58 key to be valid")
	}
	if IsValidAddress("not-base58!") {
		t.Error("Expected invalid key to be rejected")
	}
}
