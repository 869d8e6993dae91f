package foldset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceToAmount(t *testing.T) {
	tests := []struct {
		price    float64
		decimals int
		want     string
	}{
		{0.05, 6, "50000"},
		{0.1, 6, "100000"},
		{1, 6, "1000000"},
		{0.25, 6, "250000"},
		{0.000001, 6, "1"},
		{0.0000004, 6, "0"},
		{2.5, 2, "250"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PriceToAmount(tt.price, tt.decimals), "PriceToAmount(%v, %d)", tt.price, tt.decimals)
	}
}

func testPaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		{
			CAIP2ID:            "eip155:8453",
			Decimals:           6,
			ContractAddress:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			PayToWalletAddress: "0x2222222222222222222222222222222222222222",
			ChainDisplayName:   "Base",
			AssetDisplayName:   "USDC",
		},
		{
			CAIP2ID:            "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
			Decimals:           6,
			ContractAddress:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			PayToWalletAddress: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
			ChainDisplayName:   "Solana",
			AssetDisplayName:   "USDC",
		},
	}
}

func TestBuildRoutesConfig(t *testing.T) {
	restrictions := []Restriction{
		WebRestriction{
			RestrictionBase: RestrictionBase{Description: "Articles", Price: 0.05, Scheme: "exact"},
			Path:            "^/premium/.*",
		},
		APIRestriction{
			RestrictionBase: RestrictionBase{Description: "Reports", Price: 0.1, Scheme: "exact"},
			Path:            "^/api/reports$",
			HTTPMethod:      "get",
		},
		MCPRestriction{
			RestrictionBase: RestrictionBase{Description: "Summaries", Price: 0.25, Scheme: "exact"},
			Method:          "tools/call",
			Name:            "summarize",
		},
	}

	routes, byKey := BuildRoutesConfig(restrictions, testPaymentMethods(), "https://example.com/tos")

	require.Len(t, routes, 2, "MCP restrictions are not content routes")
	assert.Equal(t, "^/premium/.*", routes[0].Pattern)
	assert.Equal(t, "GET ^/api/reports$", routes[1].Pattern, "method-scoped API routes carry the upper-cased verb")

	require.Len(t, byKey, 2)
	assert.IsType(t, WebRestriction{}, byKey["^/premium/.*"])
	assert.IsType(t, APIRestriction{}, byKey["GET ^/api/reports$"])

	// One payment option per configured payment method
	web := routes[0].Config
	require.Len(t, web.Accepts, 2)
	assert.Equal(t, "exact", web.Accepts[0].Scheme)
	assert.Equal(t, "50000", web.Accepts[0].Price)
	assert.Equal(t, "eip155:8453", web.Accepts[0].Network)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", web.Accepts[0].PayTo)
	assert.Equal(t, "https://example.com/tos", web.Accepts[0].Extra["termsOfServiceUrl"])
	assert.Equal(t, "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp", web.Accepts[1].Network)
	assert.Equal(t, "Articles", web.Description)
}

func TestBuildRoutesConfigWithoutTermsOfService(t *testing.T) {
	restrictions := []Restriction{
		APIRestriction{
			RestrictionBase: RestrictionBase{Description: "Reports", Price: 0.1, Scheme: "exact"},
			Path:            "^/api/reports$",
		},
	}

	routes, byKey := BuildRoutesConfig(restrictions, testPaymentMethods()[:1], "")

	require.Len(t, routes, 1)
	assert.Equal(t, "^/api/reports$", routes[0].Pattern, "API routes without a method match any verb")
	assert.Nil(t, routes[0].Config.Accepts[0].Extra)
	assert.Contains(t, byKey, "^/api/reports$")
}
