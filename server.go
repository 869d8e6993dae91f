package foldset

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	x402 "github.com/foldset/foldset-go/x402"
	xhttp "github.com/foldset/foldset-go/x402/http"
	"github.com/foldset/foldset-go/x402/mechanisms/evm"
	"github.com/foldset/foldset-go/x402/mechanisms/svm"
)

// ServerResult is an x402 HTTP result with the matched restriction attached
type ServerResult struct {
	Type                string
	Metadata            RequestMetadata
	Restriction         Restriction
	Response            *xhttp.HTTPResponseInstructions
	PaymentPayload      *x402.PaymentPayload
	PaymentRequirements *x402.PaymentRequirements
}

// GatedServer pairs the x402 HTTP resource server with the restriction that
// produced each route, so payment errors can be shaped per restriction kind.
type GatedServer struct {
	*xhttp.ResourceServer
	restrictions map[string]Restriction
}

// RestrictionFor returns the restriction behind the route matching the request
func (s *GatedServer) RestrictionFor(path, method string) Restriction {
	route := s.MatchRoute(path, method)
	if route == nil {
		return nil
	}
	return s.restrictions[route.Pattern]
}

// ProcessWithRestriction runs the x402 pipeline and, on payment-error,
// attaches the matched restriction to the result.
func (s *GatedServer) ProcessWithRestriction(ctx context.Context, reqCtx xhttp.HTTPRequestContext) ServerResult {
	result := s.ProcessHTTPRequest(ctx, reqCtx)

	var restriction Restriction
	if result.Type == ResultPaymentError {
		restriction = s.RestrictionFor(reqCtx.Path, reqCtx.Method)
	}

	return ServerResult{
		Type:                result.Type,
		Restriction:         restriction,
		Response:            result.Response,
		PaymentPayload:      result.PaymentPayload,
		PaymentRequirements: result.PaymentRequirements,
	}
}

// ServerManager builds and caches the gated resource server with the same
// TTL policy as the config views. A nil server means the worker is
// unconfigured (no host config or no facilitator) and requests pass through.
type ServerManager struct {
	hostConfig     *HostConfigManager
	restrictions   *RestrictionsManager
	paymentMethods *PaymentMethodsManager
	facilitator    *FacilitatorManager
	logger         *slog.Logger

	mu       sync.RWMutex
	cached   *GatedServer
	cachedAt time.Time
	ttl      time.Duration
}

// NewServerManager creates the server cache over a config store
func NewServerManager(store ConfigStore, logger *slog.Logger) *ServerManager {
	return &ServerManager{
		hostConfig:     NewHostConfigManager(store),
		restrictions:   NewRestrictionsManager(store),
		paymentMethods: NewPaymentMethodsManager(store),
		facilitator:    NewFacilitatorManager(store),
		logger:         logger,
		ttl:            CacheTTL,
	}
}

// Get returns the cached server, rebuilding it from config when stale.
// Returns (nil, nil) when the tenant is not fully configured.
func (m *ServerManager) Get(ctx context.Context) (*GatedServer, error) {
	m.mu.RLock()
	if m.cached != nil && time.Since(m.cachedAt) < m.ttl {
		cached := m.cached
		m.mu.RUnlock()
		return cached, nil
	}
	m.mu.RUnlock()

	var (
		hostConfig     *HostConfig
		restrictions   []Restriction
		paymentMethods []PaymentMethod
		facilitator    *xhttp.FacilitatorClient
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		hostConfig, err = m.hostConfig.Get(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		restrictions, err = m.restrictions.Get(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		paymentMethods, err = m.paymentMethods.Get(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		facilitator, err = m.facilitator.Get(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if hostConfig == nil || facilitator == nil {
		m.logger.Debug("worker unconfigured, payment gating disabled",
			"hasHostConfig", hostConfig != nil, "hasFacilitator", facilitator != nil)
		return nil, nil
	}

	server := x402.NewResourceServer(facilitator).
		Register("eip155:*", evm.NewExactService()).
		Register("solana:*", svm.NewExactService())

	if err := server.Initialize(ctx); err != nil {
		return nil, err
	}

	routes, byKey := BuildRoutesConfig(restrictions, paymentMethods, hostConfig.TermsOfServiceURL)
	if hostConfig.MCPEndpoint != "" {
		mcpRoutes, mcpByKey := BuildMCPRoutesConfig(hostConfig.MCPEndpoint, restrictions, paymentMethods, hostConfig.TermsOfServiceURL)
		routes = append(routes, mcpRoutes...)
		for key, restriction := range mcpByKey {
			byKey[key] = restriction
		}
	}

	httpServer, err := xhttp.NewResourceServer(server, routes)
	if err != nil {
		return nil, err
	}

	gated := &GatedServer{ResourceServer: httpServer, restrictions: byKey}

	m.mu.Lock()
	m.cached = gated
	m.cachedAt = time.Now()
	m.mu.Unlock()

	m.logger.Debug("resource server built", "routes", len(routes))

	return gated, nil
}
