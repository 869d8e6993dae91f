package foldset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	xhttp "github.com/foldset/foldset-go/x402/http"
)

// PriceToAmount converts a USD price to the asset's smallest unit, rounded to
// the nearest integer, as a decimal string.
func PriceToAmount(priceUSD float64, decimals int) string {
	amount := priceUSD * math.Pow10(decimals)
	return strconv.FormatInt(int64(math.Round(amount)), 10)
}

// buildRouteEntry builds the route config for one restriction: one payment
// option per configured payment method.
func buildRouteEntry(restriction Restriction, paymentMethods []PaymentMethod, termsOfServiceURL string) xhttp.RouteConfig {
	base := restriction.Base()

	options := make([]xhttp.PaymentOption, 0, len(paymentMethods))
	for _, pm := range paymentMethods {
		extra := make(map[string]interface{}, len(pm.Extra)+1)
		for k, v := range pm.Extra {
			extra[k] = v
		}
		if termsOfServiceURL != "" {
			extra["termsOfServiceUrl"] = termsOfServiceURL
		}
		if len(extra) == 0 {
			extra = nil
		}

		options = append(options, xhttp.PaymentOption{
			Scheme:  base.Scheme,
			Price:   PriceToAmount(base.Price, pm.Decimals),
			Network: pm.CAIP2ID,
			PayTo:   pm.PayToWalletAddress,
			Extra:   extra,
		})
	}

	return xhttp.RouteConfig{
		Accepts:     options,
		Description: base.Description,
		MimeType:    "application/json",
	}
}

// contentRouteKey derives the route key for a web or API restriction
func contentRouteKey(restriction Restriction) string {
	if api, ok := restriction.(APIRestriction); ok && api.HTTPMethod != "" {
		return fmt.Sprintf("%s %s", strings.ToUpper(api.HTTPMethod), api.Path)
	}

	switch r := restriction.(type) {
	case APIRestriction:
		return r.Path
	case WebRestriction:
		return r.Path
	}
	return ""
}

// BuildRoutesConfig builds the content route table from web and API
// restrictions, plus a parallel map from route key to the restriction that
// produced it. MCP restrictions are handled by BuildMCPRoutesConfig.
func BuildRoutesConfig(restrictions []Restriction, paymentMethods []PaymentMethod, termsOfServiceURL string) (xhttp.RoutesConfig, map[string]Restriction) {
	routes := make(xhttp.RoutesConfig, 0, len(restrictions))
	byKey := make(map[string]Restriction, len(restrictions))

	for _, restriction := range restrictions {
		if restriction.Kind() == RestrictionMCP {
			continue
		}
		key := contentRouteKey(restriction)
		routes = append(routes, xhttp.Route{
			Pattern: key,
			Config:  buildRouteEntry(restriction, paymentMethods, termsOfServiceURL),
		})
		byKey[key] = restriction
	}

	return routes, byKey
}
