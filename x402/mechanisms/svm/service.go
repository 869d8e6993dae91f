// Package svm implements the exact payment scheme for SVM (Solana) networks.
package svm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/foldset/foldset-go/x402"
)

// SchemeExact is the scheme identifier
const SchemeExact = "exact"

// DefaultDecimals is the default token decimals for USDC
const DefaultDecimals = 6

// AssetInfo describes a supported token mint on a network
type AssetInfo struct {
	Address  string
	Name     string
	Decimals int
}

// NetworkConfig holds per-network defaults
type NetworkConfig struct {
	DefaultAsset AssetInfo
}

// NetworkConfigs maps CAIP-2 network identifiers to their configuration
var NetworkConfigs = map[string]NetworkConfig{
	// Solana Mainnet
	"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp": {
		DefaultAsset: AssetInfo{
			Address:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", // USDC
			Name:     "USD Coin",
			Decimals: DefaultDecimals,
		},
	},
	// Solana Devnet
	"solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1": {
		DefaultAsset: AssetInfo{
			Address:  "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", // USDC-Dev
			Name:     "USDC",
			Decimals: DefaultDecimals,
		},
	},
}

// GetNetworkConfig returns the configuration for a network
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	config, ok := NetworkConfigs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported SVM network: %s", network)
	}
	return &config, nil
}

// IsValidAddress checks whether s is a valid base58 Solana public key
func IsValidAddress(s string) bool {
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

// ExactService implements x402.SchemeNetworkService for SVM exact payments
type ExactService struct{}

// NewExactService creates a new ExactService
func NewExactService() *ExactService {
	return &ExactService{}
}

// Scheme returns the scheme identifier
func (s *ExactService) Scheme() string {
	return SchemeExact
}

// ParsePrice parses a price string and converts it to an asset amount
func (s *ExactService) ParsePrice(price string, network x402.Network) (x402.AssetAmount, error) {
	config, err := GetNetworkConfig(string(network))
	if err != nil {
		return x402.AssetAmount{}, err
	}

	priceStr := strings.TrimSpace(price)
	money := false
	if trimmed := strings.TrimPrefix(priceStr, "$"); trimmed != priceStr {
		priceStr, money = trimmed, true
	}
	if trimmed := strings.TrimSuffix(priceStr, " USD"); trimmed != priceStr {
		priceStr, money = trimmed, true
	}
	if trimmed := strings.TrimSuffix(priceStr, " USDC"); trimmed != priceStr {
		priceStr, money = trimmed, true
	}
	priceStr = strings.TrimSpace(priceStr)

	// Money-denominated prices are scaled by the token decimals; bare
	// integers are already in the smallest unit.
	if money || strings.Contains(priceStr, ".") {
		amount, err := parseDecimalAmount(priceStr, config.DefaultAsset.Decimals)
		if err != nil {
			return x402.AssetAmount{}, fmt.Errorf("failed to parse decimal price: %w", err)
		}
		return x402.AssetAmount{
			Asset:  config.DefaultAsset.Address,
			Amount: amount.String(),
		}, nil
	}

	amount, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return x402.AssetAmount{}, fmt.Errorf("invalid price format: %s", price)
	}

	return x402.AssetAmount{
		Asset:  config.DefaultAsset.Address,
		Amount: amount.String(),
	}, nil
}

// EnhancePaymentRequirements validates addresses and passes the facilitator
// fee payer through to the requirements extra
func (s *ExactService) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
) (x402.PaymentRequirements, error) {
	config, err := GetNetworkConfig(string(requirements.Network))
	if err != nil {
		return requirements, err
	}

	if requirements.Asset == "" {
		requirements.Asset = config.DefaultAsset.Address
	}
	if !IsValidAddress(requirements.Asset) {
		return requirements, fmt.Errorf("invalid asset mint: %s", requirements.Asset)
	}
	if !IsValidAddress(requirements.PayTo) {
		return requirements, fmt.Errorf("invalid payTo address: %s", requirements.PayTo)
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}

	// The facilitator advertises its fee payer in the supported kinds extra;
	// clients need it to build the transaction.
	if feePayer, ok := supportedKind.Extra["feePayer"]; ok {
		if _, present := requirements.Extra["feePayer"]; !present {
			requirements.Extra["feePayer"] = feePayer
		}
	}

	return requirements, nil
}

func parseDecimalAmount(amount string, decimals int) (*big.Int, error) {
	rat, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))

	if !scaled.IsInt() {
		num := new(big.Int).Mul(scaled.Num(), big.NewInt(2))
		num.Add(num, scaled.Denom())
		den := new(big.Int).Mul(scaled.Denom(), big.NewInt(2))
		return num.Quo(num, den), nil
	}

	return scaled.Num(), nil
}
