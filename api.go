package foldset

import "encoding/json"

// apiPaymentMethod is the wire shape of one payment method in API and MCP
// error bodies
type apiPaymentMethod struct {
	Network   string `json:"network"`
	Asset     string `json:"asset"`
	Decimals  int    `json:"decimals"`
	PayTo     string `json:"pay_to"`
	Chain     string `json:"chain"`
	AssetName string `json:"asset_name"`
}

func buildAPIPaymentMethods(paymentMethods []PaymentMethod) []apiPaymentMethod {
	methods := make([]apiPaymentMethod, 0, len(paymentMethods))
	for _, pm := range paymentMethods {
		methods = append(methods, apiPaymentMethod{
			Network:   pm.CAIP2ID,
			Asset:     pm.ContractAddress,
			Decimals:  pm.Decimals,
			PayTo:     pm.PayToWalletAddress,
			Chain:     pm.ChainDisplayName,
			AssetName: pm.AssetDisplayName,
		})
	}
	return methods
}

// formatAPIPaymentError writes the JSON error body for an API restriction
// onto the result's 402 response
func formatAPIPaymentError(result *ProcessRequestResult, restriction APIRestriction, paymentMethods []PaymentMethod, termsOfServiceURL string) {
	if result.Response == nil {
		return
	}

	body := map[string]interface{}{
		"error":      "payment_required",
		"version":    result.Metadata.Version,
		"request_id": result.Metadata.RequestID,
		"timestamp":  result.Metadata.Timestamp,
		"message":    restriction.Description,
		"price":      restriction.Price,
	}
	if termsOfServiceURL != "" {
		body["terms_of_service_url"] = termsOfServiceURL
	}
	body["payment_methods"] = buildAPIPaymentMethods(paymentMethods)

	encoded, err := json.Marshal(body)
	if err != nil {
		return
	}

	result.Response.Body = string(encoded)
	if result.Response.Headers == nil {
		result.Response.Headers = map[string]string{}
	}
	result.Response.Headers["Content-Type"] = "application/json"
}

// formatWebPaymentError writes the HTML paywall body for a web restriction
// onto the result's 402 response
func formatWebPaymentError(result *ProcessRequestResult, restriction WebRestriction, paymentMethods []PaymentMethod, adapter RequestAdapter, termsOfServiceURL string) {
	if result.Response == nil {
		return
	}

	result.Response.Body = GeneratePaywallHTML(restriction, paymentMethods, adapter.GetURL(), termsOfServiceURL)
	if result.Response.Headers == nil {
		result.Response.Headers = map[string]string{}
	}
	result.Response.Headers["Content-Type"] = "text/html"
}
