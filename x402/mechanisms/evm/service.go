// Package evm implements the exact payment scheme for EVM (eip155) networks.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/foldset/foldset-go/x402"
)

// SchemeExact is the scheme identifier
const SchemeExact = "exact"

// DefaultDecimals is the default token decimals for USDC
const DefaultDecimals = 6

// AssetInfo describes a supported token on a network
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig holds per-network defaults
type NetworkConfig struct {
	ChainID      *big.Int
	DefaultAsset AssetInfo
}

// NetworkConfigs maps CAIP-2 network identifiers to their configuration
var NetworkConfigs = map[string]NetworkConfig{
	// Base Mainnet
	"eip155:8453": {
		ChainID: big.NewInt(8453),
		DefaultAsset: AssetInfo{
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", // USDC on Base
			Name:     "USD Coin",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	},
	// Base Sepolia Testnet
	"eip155:84532": {
		ChainID: big.NewInt(84532),
		DefaultAsset: AssetInfo{
			Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e", // USDC on Base Sepolia
			Name:     "USDC",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	},
}

// GetNetworkConfig returns the configuration for a network
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	config, ok := NetworkConfigs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported EVM network: %s", network)
	}
	return &config, nil
}

// IsValidAddress checks whether s is a valid hex EVM address
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// ExactService implements x402.SchemeNetworkService for EVM exact payments
type ExactService struct{}

// NewExactService creates a new ExactService
func NewExactService() *ExactService {
	return &ExactService{}
}

// Scheme returns the scheme identifier
func (s *ExactService) Scheme() string {
	return SchemeExact
}

// ParsePrice parses a price string and converts it to an asset amount.
// Handles "$1.00", decimal amounts, and amounts already in the smallest unit.
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

	// Money-denominated prices ($1, 0.05) are scaled by the token decimals;
	// bare integers are already in the smallest unit.
	if money || strings.Contains(priceStr, ".") {
		amount, err := ParseAmount(priceStr, config.DefaultAsset.Decimals)
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

// EnhancePaymentRequirements adds EIP-712 signing details to requirements
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
		return requirements, fmt.Errorf("invalid asset address: %s", requirements.Asset)
	}
	if !IsValidAddress(requirements.PayTo) {
		return requirements, fmt.Errorf("invalid payTo address: %s", requirements.PayTo)
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}

	// Token name and version for EIP-712 signing. Only set when absent:
	// the operator may have pinned exact values.
	if _, ok := requirements.Extra["name"]; !ok {
		requirements.Extra["name"] = config.DefaultAsset.Name
	}
	if _, ok := requirements.Extra["version"]; !ok {
		requirements.Extra["version"] = config.DefaultAsset.Version
	}

	for key, val := range supportedKind.Extra {
		if _, ok := requirements.Extra[key]; !ok {
			requirements.Extra[key] = val
		}
	}

	return requirements, nil
}

// ParseAmount converts a decimal amount string to the smallest unit
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	rat, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))

	if !scaled.IsInt() {
		// Round half away from zero
		num := new(big.Int).Mul(scaled.Num(), big.NewInt(2))
		num.Add(num, scaled.Denom())
		den := new(big.Int).Mul(scaled.Denom(), big.NewInt(2))
		return num.Quo(num, den), nil
	}

	return scaled.Num(), nil
}
