package http

import (
	"context"
	"encoding/json"
	"strings"

	x402 "github.com/foldset/foldset-go/x402"
)

// ============================================================================
// HTTP Adapter Interface
// ============================================================================

// HTTPAdapter provides framework-agnostic HTTP operations.
// Implement this for each web framework (Gin, Echo, net/http, etc.)
type HTTPAdapter interface {
	GetHeader(name string) string
	GetMethod() string
	GetPath() string
	GetURL() string
	GetAcceptHeader() string
	GetUserAgent() string
}

// ============================================================================
// Request/Response Types
// ============================================================================

// HTTPRequestContext encapsulates an HTTP request
type HTTPRequestContext struct {
	Adapter       HTTPAdapter
	Path          string
	Method        string
	PaymentHeader string
}

// HTTPResponseInstructions tells the framework how to respond
type HTTPResponseInstructions struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
}

// HTTPProcessResult is the outcome of processing a payment request
type HTTPProcessResult struct {
	Type                string
	Response            *HTTPResponseInstructions
	PaymentPayload      *x402.PaymentPayload
	PaymentRequirements *x402.PaymentRequirements
}

// ProcessSettleResult is the outcome of settling a verified payment
type ProcessSettleResult struct {
	Success     bool              `json:"success"`
	ErrorReason string            `json:"errorReason,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Transaction string            `json:"transaction,omitempty"`
	Network     x402.Network      `json:"network,omitempty"`
	Payer       string            `json:"payer,omitempty"`
}

// Result type constants
const (
	ResultNoPaymentRequired = "no-payment-required"
	ResultPaymentVerified   = "payment-verified"
	ResultPaymentError      = "payment-error"
)

// ============================================================================
// HTTP Resource Server
// ============================================================================

// ResourceServer layers route matching and 402 response shaping over an
// x402.ResourceServer. Routes are matched in insertion order; the first hit
// wins. Payment-required responses carry the PAYMENT-REQUIRED header and an
// empty body, leaving body formatting to the caller.
type ResourceServer struct {
	*x402.ResourceServer
	compiledRoutes []CompiledRoute
}

// NewResourceServer creates an HTTP resource server over a compiled route set
func NewResourceServer(server *x402.ResourceServer, routes RoutesConfig) (*ResourceServer, error) {
	compiled, err := compileRoutes(routes)
	if err != nil {
		return nil, err
	}

	return &ResourceServer{
		ResourceServer: server,
		compiledRoutes: compiled,
	}, nil
}

// MatchRoute returns the first route whose verb and path regex match
func (s *ResourceServer) MatchRoute(path, method string) *CompiledRoute {
	upperMethod := strings.ToUpper(method)

	for i := range s.compiledRoutes {
		route := &s.compiledRoutes[i]
		if route.Verb != "*" && route.Verb != upperMethod {
			continue
		}
		if route.Regex.MatchString(path) {
			return route
		}
	}

	return nil
}

// RequiresPayment reports whether the request matches a protected route
func (s *ResourceServer) RequiresPayment(reqCtx HTTPRequestContext) bool {
	return s.MatchRoute(reqCtx.Path, reqCtx.Method) != nil
}

// ProcessHTTPRequest handles an HTTP request against the route table.
//
// Args:
//
//	ctx: Context for cancellation
//	reqCtx: The request to process
//
// Returns:
//
//	no-payment-required when no route matches, payment-error with 402
//	response instructions when payment is missing or invalid, or
//	payment-verified with the payload and matched requirements
func (s *ResourceServer) ProcessHTTPRequest(ctx context.Context, reqCtx HTTPRequestContext) HTTPProcessResult {
	route := s.MatchRoute(reqCtx.Path, reqCtx.Method)
	if route == nil {
		return HTTPProcessResult{Type: ResultNoPaymentRequired}
	}

	requirements := s.buildAccepts(ctx, route)

	resourceInfo := x402.ResourceInfo{
		URL:         reqCtx.Adapter.GetURL(),
		Description: route.Config.Description,
		MimeType:    route.Config.MimeType,
	}

	if reqCtx.PaymentHeader == "" {
		return s.paymentErrorResult(requirements, resourceInfo, "Payment required")
	}

	payload, err := DecodePaymentHeader(reqCtx.PaymentHeader)
	if err != nil {
		return s.paymentErrorResult(requirements, resourceInfo, "Invalid payment header")
	}

	matching := s.FindMatchingRequirements(requirements, payload)
	if matching == nil {
		return s.paymentErrorResult(requirements, resourceInfo, "No matching payment requirements")
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return s.paymentErrorResult(requirements, resourceInfo, "Invalid payment payload")
	}
	requirementsBytes, err := json.Marshal(matching)
	if err != nil {
		return s.paymentErrorResult(requirements, resourceInfo, "Invalid payment requirements")
	}

	verifyResult, err := s.VerifyPayment(ctx, payloadBytes, requirementsBytes)
	if err != nil || !verifyResult.IsValid {
		errorMsg := "Payment verification failed"
		if err == nil && verifyResult.InvalidReason != "" {
			errorMsg = verifyResult.InvalidReason
		}
		return s.paymentErrorResult(requirements, resourceInfo, errorMsg)
	}

	return HTTPProcessResult{
		Type:                ResultPaymentVerified,
		PaymentPayload:      &payload,
		PaymentRequirements: matching,
	}
}

// ProcessSettlement settles a verified payment and builds response headers
func (s *ResourceServer) ProcessSettlement(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) ProcessSettleResult {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return ProcessSettleResult{Success: false, ErrorReason: "invalid payment payload"}
	}
	requirementsBytes, err := json.Marshal(requirements)
	if err != nil {
		return ProcessSettleResult{Success: false, ErrorReason: "invalid payment requirements"}
	}

	settleResult, err := s.SettlePayment(ctx, payloadBytes, requirementsBytes)
	if err != nil {
		return ProcessSettleResult{Success: false, ErrorReason: err.Error()}
	}
	if !settleResult.Success {
		reason := settleResult.ErrorReason
		if reason == "" {
			reason = "settlement failed"
		}
		return ProcessSettleResult{Success: false, ErrorReason: reason}
	}

	headers := map[string]string{}
	if encoded, err := EncodeSettleResponseHeader(settleResult); err == nil {
		headers[PaymentResponseHeader] = encoded
	}

	return ProcessSettleResult{
		Success:     true,
		Headers:     headers,
		Transaction: settleResult.Transaction,
		Network:     settleResult.Network,
		Payer:       settleResult.Payer,
	}
}

// buildAccepts builds one requirements entry per payment option on the route.
// Options whose network or scheme cannot be served are skipped.
func (s *ResourceServer) buildAccepts(ctx context.Context, route *CompiledRoute) []x402.PaymentRequirements {
	requirements := make([]x402.PaymentRequirements, 0, len(route.Config.Accepts))

	for _, option := range route.Config.Accepts {
		built, err := s.BuildPaymentRequirements(ctx, x402.ResourceConfig{
			Scheme:  option.Scheme,
			PayTo:   option.PayTo,
			Price:   option.Price,
			Network: x402.Network(option.Network),
			Extra:   option.Extra,
		})
		if err != nil {
			continue
		}
		requirements = append(requirements, built)
	}

	return requirements
}

// paymentErrorResult builds the bare 402: PAYMENT-REQUIRED header, empty
// body. Callers format the body per restriction type.
func (s *ResourceServer) paymentErrorResult(requirements []x402.PaymentRequirements, info x402.ResourceInfo, errorMsg string) HTTPProcessResult {
	paymentRequired := s.CreatePaymentRequiredResponse(requirements, info, errorMsg)

	headers := map[string]string{}
	if encoded, err := EncodePaymentRequiredHeader(paymentRequired); err == nil {
		headers[PaymentRequiredHeader] = encoded
	}

	return HTTPProcessResult{
		Type: ResultPaymentError,
		Response: &HTTPResponseInstructions{
			Status:  402,
			Headers: headers,
			Body:    "",
		},
	}
}
