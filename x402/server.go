package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ResourceServer manages payment requirements, verification and settlement
// for protected resources. It routes work to registered scheme services and
// a facilitator client.
type ResourceServer struct {
	mu          sync.RWMutex
	schemes     map[Network]map[string]SchemeNetworkService
	facilitator FacilitatorClient

	supported       *SupportedResponse
	supportedExpiry time.Time
	supportedTTL    time.Duration
}

// ResourceServerOption configures the server
type ResourceServerOption func(*ResourceServer)

// WithSchemeService registers a scheme service for a network pattern
func WithSchemeService(network Network, service SchemeNetworkService) ResourceServerOption {
	return func(s *ResourceServer) {
		s.registerScheme(network, service)
	}
}

// WithSupportedCacheTTL sets the cache TTL for facilitator supported kinds
func WithSupportedCacheTTL(ttl time.Duration) ResourceServerOption {
	return func(s *ResourceServer) {
		s.supportedTTL = ttl
	}
}

// NewResourceServer creates a resource server around a facilitator client
func NewResourceServer(facilitator FacilitatorClient, opts ...ResourceServerOption) *ResourceServer {
	s := &ResourceServer{
		schemes:      make(map[Network]map[string]SchemeNetworkService),
		facilitator:  facilitator,
		supportedTTL: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register registers a scheme service for a network pattern (chainable)
func (s *ResourceServer) Register(network Network, service SchemeNetworkService) *ResourceServer {
	return s.registerScheme(network, service)
}

func (s *ResourceServer) registerScheme(network Network, service SchemeNetworkService) *ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schemes[network] == nil {
		s.schemes[network] = make(map[string]SchemeNetworkService)
	}
	s.schemes[network][service.Scheme()] = service

	return s
}

// Initialize fetches supported payment kinds from the facilitator.
// Should be called before building requirements; results are cached.
func (s *ResourceServer) Initialize(ctx context.Context) error {
	supported, err := s.facilitator.GetSupported(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch supported kinds: %w", err)
	}

	s.mu.Lock()
	s.supported = &supported
	s.supportedExpiry = time.Now().Add(s.supportedTTL)
	s.mu.Unlock()

	return nil
}

// BuildPaymentRequirements creates payment requirements for a resource
//
// Args:
//
//	ctx: Context for cancellation
//	config: Resource payment configuration
//
// Returns:
//
//	Enhanced payment requirements or an error when the scheme/network
//	combination is not registered or not supported by the facilitator
func (s *ResourceServer) BuildPaymentRequirements(ctx context.Context, config ResourceConfig) (PaymentRequirements, error) {
	s.mu.RLock()
	service := findByNetworkAndScheme(s.schemes, config.Scheme, config.Network)
	s.mu.RUnlock()

	if service == nil {
		return PaymentRequirements{}, &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: fmt.Sprintf("no service registered for scheme %s on network %s", config.Scheme, config.Network),
		}
	}

	supportedKind := s.findSupportedKind(config.Network, config.Scheme)
	if supportedKind == nil {
		return PaymentRequirements{}, &PaymentError{
			Code:    ErrCodeUnsupportedNetwork,
			Message: fmt.Sprintf("facilitator does not support %s on %s", config.Scheme, config.Network),
			Details: map[string]interface{}{
				"hint": "call Initialize() to fetch supported kinds from the facilitator",
			},
		}
	}

	assetAmount, err := service.ParsePrice(config.Price, config.Network)
	if err != nil {
		return PaymentRequirements{}, fmt.Errorf("failed to parse price: %w", err)
	}

	requirements := PaymentRequirements{
		Scheme:            config.Scheme,
		Network:           config.Network,
		Asset:             assetAmount.Asset,
		Amount:            assetAmount.Amount,
		PayTo:             config.PayTo,
		MaxTimeoutSeconds: config.MaxTimeoutSeconds,
		Extra:             mergeExtra(assetAmount.Extra, config.Extra),
	}
	if requirements.MaxTimeoutSeconds == 0 {
		requirements.MaxTimeoutSeconds = 300
	}

	enhanced, err := service.EnhancePaymentRequirements(ctx, requirements, *supportedKind)
	if err != nil {
		return PaymentRequirements{}, fmt.Errorf("failed to enhance payment requirements: %w", err)
	}

	return enhanced, nil
}

// CreatePaymentRequiredResponse creates a 402 response envelope
func (s *ResourceServer) CreatePaymentRequiredResponse(requirements []PaymentRequirements, info ResourceInfo, errorMsg string) PaymentRequired {
	if errorMsg == "" {
		errorMsg = "Payment required"
	}

	return PaymentRequired{
		X402Version: ProtocolVersion,
		Error:       errorMsg,
		Resource:    &info,
		Accepts:     requirements,
	}
}

// VerifyPayment verifies a payment against requirements via the facilitator
func (s *ResourceServer) VerifyPayment(ctx context.Context, payloadBytes, requirementsBytes []byte) (VerifyResponse, error) {
	return s.facilitator.Verify(ctx, payloadBytes, requirementsBytes)
}

// SettlePayment settles a verified payment via the facilitator
func (s *ResourceServer) SettlePayment(ctx context.Context, payloadBytes, requirementsBytes []byte) (SettleResponse, error) {
	return s.facilitator.Settle(ctx, payloadBytes, requirementsBytes)
}

// FindMatchingRequirements finds the requirements entry the payload paid for.
// Matching compares the payload's accepted requirements field by field,
// tolerating omitted fields for clients that echo a partial accepts entry.
func (s *ResourceServer) FindMatchingRequirements(available []PaymentRequirements, payload PaymentPayload) *PaymentRequirements {
	accepted := payload.Accepted

	for i := range available {
		req := available[i]
		if accepted.Scheme != "" && accepted.Scheme != req.Scheme {
			continue
		}
		if accepted.Network != "" && !accepted.Network.Match(req.Network) {
			continue
		}
		if accepted.Asset != "" && !strings.EqualFold(accepted.Asset, req.Asset) {
			continue
		}
		if accepted.Amount != "" && accepted.Amount != req.Amount {
			continue
		}
		if accepted.PayTo != "" && !strings.EqualFold(accepted.PayTo, req.PayTo) {
			continue
		}
		return &req
	}

	return nil
}

// findSupportedKind finds a cached supported kind for a network/scheme pair
func (s *ResourceServer) findSupportedKind(network Network, scheme string) *SupportedKind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.supported == nil || time.Now().After(s.supportedExpiry) {
		return nil
	}

	for _, kind := range s.supported.Kinds {
		if kind.X402Version == ProtocolVersion &&
			kind.Scheme == scheme &&
			kind.Network.Match(network) {
			k := kind
			return &k
		}
	}

	return nil
}

// MarshalRequirements marshals requirements for the facilitator boundary
func MarshalRequirements(req PaymentRequirements) ([]byte, error) {
	return json.Marshal(req)
}

func mergeExtra(base, overlay map[string]interface{}) map[string]interface{} {
	if base == nil && overlay == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// findByNetworkAndScheme finds a scheme implementation for a network/scheme
// combination, supporting pattern matching for networks (e.g. "eip155:*")
func findByNetworkAndScheme(networkMap map[Network]map[string]SchemeNetworkService, scheme string, network Network) SchemeNetworkService {
	if schemeMap, exists := networkMap[network]; exists {
		if impl, exists := schemeMap[scheme]; exists {
			return impl
		}
	}

	for registeredNetwork, schemeMap := range networkMap {
		if network.Match(registeredNetwork) || registeredNetwork.Match(network) {
			if impl, exists := schemeMap[scheme]; exists {
				return impl
			}
		}
	}

	return nil
}
