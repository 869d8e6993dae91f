package foldset

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	xhttp "github.com/foldset/foldset-go/x402/http"
)

// PaymentRequiredMCPHeader carries the machine-readable payment requirements
// on MCP list responses.
const PaymentRequiredMCPHeader = "Payment-Required"

// JSONRPCRequest is a decoded JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string
	Method  string
	ID      interface{}
	Params  map[string]interface{}
}

// mcpListCallMethods maps each MCP list method to the invocation method its
// entries are billed under.
var mcpListCallMethods = map[string]string{
	"tools/list":     "tools/call",
	"resources/list": "resources/read",
	"prompts/list":   "prompts/get",
}

// ParseMCPRequest interprets a decoded request body as a JSON-RPC request.
// Returns nil when the body is not a JSON-RPC shaped object.
func ParseMCPRequest(body interface{}) *JSONRPCRequest {
	object, ok := body.(map[string]interface{})
	if !ok {
		return nil
	}

	jsonrpc, hasVersion := object["jsonrpc"].(string)
	method, hasMethod := object["method"].(string)
	if !hasVersion || !hasMethod {
		return nil
	}

	rpc := &JSONRPCRequest{JSONRPC: jsonrpc, Method: method, ID: object["id"]}
	if params, ok := object["params"].(map[string]interface{}); ok {
		rpc.Params = params
	}
	return rpc
}

// BuildMCPRouteKey derives the route key for an MCP restriction
func BuildMCPRouteKey(endpointPath string, restriction MCPRestriction) string {
	return fmt.Sprintf("%s/%s:%s", endpointPath, restriction.Method, restriction.Name)
}

// GetMCPRouteKey derives the route key for an incoming JSON-RPC call. The
// target is identified by params.name, falling back to params.uri only when
// name is absent or empty. A present non-string name yields no route key.
func GetMCPRouteKey(endpointPath, method string, params map[string]interface{}) string {
	value, ok := params["name"]
	if !ok || value == nil || value == "" {
		value = params["uri"]
	}
	identifier, ok := value.(string)
	if !ok || identifier == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s:%s", endpointPath, method, identifier)
}

// IsMCPListMethod reports whether a JSON-RPC method is an MCP list method
func IsMCPListMethod(method string) bool {
	_, ok := mcpListCallMethods[method]
	return ok
}

// BuildMCPRoutesConfig builds route entries for MCP restrictions, keyed by
// endpoint, method, and target name, plus the parallel restriction map.
func BuildMCPRoutesConfig(endpointPath string, restrictions []Restriction, paymentMethods []PaymentMethod, termsOfServiceURL string) (xhttp.RoutesConfig, map[string]Restriction) {
	var routes xhttp.RoutesConfig
	byKey := make(map[string]Restriction)

	for _, restriction := range restrictions {
		mcp, ok := restriction.(MCPRestriction)
		if !ok {
			continue
		}
		key := BuildMCPRouteKey(endpointPath, mcp)
		routes = append(routes, xhttp.Route{
			Pattern: key,
			Config:  buildRouteEntry(mcp, paymentMethods, termsOfServiceURL),
		})
		byKey[key] = mcp
	}

	return routes, byKey
}

// mcpPaymentAccept is one way to pay for an MCP target, advertised on list
// responses.
type mcpPaymentAccept struct {
	Network          string `json:"network"`
	ChainDisplayName string `json:"chainDisplayName"`
	Asset            string `json:"asset"`
	AssetDisplayName string `json:"assetDisplayName"`
	Amount           string `json:"amount"`
	PayTo            string `json:"payTo"`
}

// MCPPaymentRequirement advertises the price of one gated MCP target
type MCPPaymentRequirement struct {
	Name        string             `json:"name"`
	Method      string             `json:"method"`
	Description string             `json:"description"`
	Price       float64            `json:"price"`
	Scheme      string             `json:"scheme"`
	Accepts     []mcpPaymentAccept `json:"accepts"`
}

// GetMCPListPaymentRequirements collects the requirements to advertise on a
// list response: one per priced MCP restriction under the corresponding call
// method. Free targets are omitted.
func GetMCPListPaymentRequirements(listMethod string, restrictions []Restriction, paymentMethods []PaymentMethod) []MCPPaymentRequirement {
	callMethod, ok := mcpListCallMethods[listMethod]
	if !ok {
		return nil
	}

	var requirements []MCPPaymentRequirement
	for _, restriction := range restrictions {
		mcp, ok := restriction.(MCPRestriction)
		if !ok || mcp.Method != callMethod || mcp.Price <= 0 {
			continue
		}

		accepts := make([]mcpPaymentAccept, 0, len(paymentMethods))
		for _, pm := range paymentMethods {
			accepts = append(accepts, mcpPaymentAccept{
				Network:          pm.CAIP2ID,
				ChainDisplayName: pm.ChainDisplayName,
				Asset:            pm.ContractAddress,
				AssetDisplayName: pm.AssetDisplayName,
				Amount:           PriceToAmount(mcp.Price, pm.Decimals),
				PayTo:            pm.PayToWalletAddress,
			})
		}

		requirements = append(requirements, MCPPaymentRequirement{
			Name:        mcp.Name,
			Method:      mcp.Method,
			Description: mcp.Description,
			Price:       mcp.Price,
			Scheme:      mcp.Scheme,
			Accepts:     accepts,
		})
	}

	return requirements
}

// buildJSONRPCError builds a JSON-RPC 2.0 error envelope
func buildJSONRPCError(rpcID interface{}, code int, message string, data interface{}) map[string]interface{} {
	errorObject := map[string]interface{}{"code": code, "message": message}
	if data != nil {
		errorObject["data"] = data
	}
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      rpcID,
		"error":   errorObject,
	}
}

// formatMCPPaymentError rewrites the 402 response body as a JSON-RPC error
// envelope carrying the payment details.
func formatMCPPaymentError(ctx context.Context, core *WorkerCore, result *ProcessRequestResult, rpcID interface{}) error {
	if result.Response == nil {
		return nil
	}

	var (
		paymentMethods []PaymentMethod
		hostConfig     *HostConfig
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		paymentMethods, err = core.paymentMethods.Get(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		hostConfig, err = core.hostConfig.Get(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	description := ""
	price := float64(0)
	if result.Restriction != nil {
		description = result.Restriction.Base().Description
		price = result.Restriction.Base().Price
	}

	data := map[string]interface{}{
		"version":     result.Metadata.Version,
		"request_id":  result.Metadata.RequestID,
		"timestamp":   result.Metadata.Timestamp,
		"description": description,
		"price":       price,
	}
	if hostConfig != nil && hostConfig.TermsOfServiceURL != "" {
		data["terms_of_service_url"] = hostConfig.TermsOfServiceURL
	}
	data["payment_methods"] = buildAPIPaymentMethods(paymentMethods)

	encoded, err := json.Marshal(buildJSONRPCError(rpcID, 402, "Payment required", data))
	if err != nil {
		return err
	}

	result.Response.Body = string(encoded)
	if result.Response.Headers == nil {
		result.Response.Headers = map[string]string{}
	}
	result.Response.Headers["Content-Type"] = "application/json"
	return nil
}

// handleMCPRequest runs the MCP sub-pipeline for requests hitting the
// configured MCP endpoint. Non-POST and non-JSON-RPC traffic passes through.
//
// List methods always pass through; priced targets under the list are
// advertised in the Payment-Required response header. Invocation methods are
// billed through the route pipeline under their MCP route key, with payment
// errors rendered as JSON-RPC error envelopes.
func handleMCPRequest(ctx context.Context, core *WorkerCore, adapter RequestAdapter, mcpEndpoint string, metadata RequestMetadata) (ProcessRequestResult, error) {
	if adapter.GetMethod() != "POST" {
		return noPaymentRequired(metadata), nil
	}

	body, err := adapter.GetBody(ctx)
	if err != nil {
		return ProcessRequestResult{}, err
	}
	rpc := ParseMCPRequest(body)
	if rpc == nil {
		return noPaymentRequired(metadata), nil
	}

	if IsMCPListMethod(rpc.Method) {
		var (
			restrictions   []Restriction
			paymentMethods []PaymentMethod
			hostConfig     *HostConfig
		)
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() (err error) {
			restrictions, err = core.restrictions.Get(groupCtx)
			return err
		})
		group.Go(func() (err error) {
			paymentMethods, err = core.paymentMethods.Get(groupCtx)
			return err
		})
		group.Go(func() (err error) {
			hostConfig, err = core.hostConfig.Get(groupCtx)
			return err
		})
		if err := group.Wait(); err != nil {
			return ProcessRequestResult{}, err
		}

		headers := map[string]string{}
		requirements := GetMCPListPaymentRequirements(rpc.Method, restrictions, paymentMethods)
		if len(requirements) > 0 {
			payload := map[string]interface{}{"requirements": requirements}
			if hostConfig != nil && hostConfig.TermsOfServiceURL != "" {
				payload["terms_of_service_url"] = hostConfig.TermsOfServiceURL
			}
			encoded, err := json.Marshal(payload)
			if err != nil {
				return ProcessRequestResult{}, err
			}
			headers[PaymentRequiredMCPHeader] = string(encoded)
		}

		core.logEvent(ctx, adapter, 200, metadata.RequestID, "")
		return ProcessRequestResult{Type: ResultNoPaymentRequired, Metadata: metadata, Headers: headers}, nil
	}

	routeKey := GetMCPRouteKey(mcpEndpoint, rpc.Method, rpc.Params)
	if routeKey == "" {
		return noPaymentRequired(metadata), nil
	}

	result, err := handlePaymentRequest(ctx, core, adapter, metadata, routeKey)
	if err != nil {
		return ProcessRequestResult{}, err
	}

	if result.Type == ResultPaymentError {
		if err := formatMCPPaymentError(ctx, core, &result, rpc.ID); err != nil {
			return ProcessRequestResult{}, err
		}
	}

	return result, nil
}
