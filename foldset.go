package foldset

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	x402 "github.com/foldset/foldset-go/x402"
	xhttp "github.com/foldset/foldset-go/x402/http"
)

// VerifiedHeader is set on the upstream request after a verified payment so
// the origin can distinguish paid traffic.
const VerifiedHeader = "x-foldset-verified"

// WorkerCore is the request gating engine. One core serves one tenant; build
// it once and share it across requests.
type WorkerCore struct {
	store          ConfigStore
	hostConfig     *HostConfigManager
	restrictions   *RestrictionsManager
	paymentMethods *PaymentMethodsManager
	bots           *BotsManager
	httpServer     *ServerManager

	apiKey     string
	baseURL    string
	platform   string
	sdkVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a worker core over an already-connected config store
func New(store ConfigStore, options Options) *WorkerCore {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	platform := options.Platform
	if platform == "" {
		platform = "unknown"
	}
	sdkVersion := options.SDKVersion
	if sdkVersion == "" {
		sdkVersion = "unknown"
	}

	return &WorkerCore{
		store:          store,
		hostConfig:     NewHostConfigManager(store),
		restrictions:   NewRestrictionsManager(store),
		paymentMethods: NewPaymentMethodsManager(store),
		bots:           NewBotsManager(store),
		httpServer:     NewServerManager(store, logger),
		apiKey:         options.APIKey,
		baseURL:        baseURL,
		platform:       platform,
		sdkVersion:     sdkVersion,
		httpClient:     httpClient,
		logger:         logger,
	}
}

var (
	coreMu     sync.Mutex
	cachedCore *WorkerCore
)

// FromOptions returns the process-wide worker core, bootstrapping store
// credentials from the Foldset API on first use. The first successful
// construction wins; failed constructions are retried on the next call.
func FromOptions(ctx context.Context, options Options) (*WorkerCore, error) {
	coreMu.Lock()
	defer coreMu.Unlock()

	if cachedCore != nil {
		return cachedCore, nil
	}

	if options.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	credentials := options.RedisCredentials
	if credentials == nil {
		var err error
		credentials, err = FetchRedisCredentials(ctx, options.APIKey, baseURL, httpClient)
		if err != nil {
			return nil, err
		}
	}

	store, err := NewRedisConfigStore(credentials)
	if err != nil {
		return nil, err
	}

	cachedCore = New(store, options)
	return cachedCore, nil
}

// ProcessRequest decides what to do with one inbound request: serve the
// health check, run the MCP sub-pipeline when the path is the configured MCP
// endpoint, or run the standard gating pipeline.
func (c *WorkerCore) ProcessRequest(ctx context.Context, adapter RequestAdapter) (ProcessRequestResult, error) {
	metadata := buildRequestMetadata()

	if adapter.GetPath() == HealthPath {
		return ProcessRequestResult{
			Type:     ResultHealthCheck,
			Metadata: metadata,
			Response: &xhttp.HTTPResponseInstructions{
				Status:  200,
				Body:    buildHealthResponse(c.platform, c.sdkVersion),
				Headers: map[string]string{"Content-Type": "application/json"},
			},
		}, nil
	}

	hostConfig, err := c.hostConfig.Get(ctx)
	if err != nil {
		return ProcessRequestResult{}, err
	}

	if hostConfig != nil && hostConfig.MCPEndpoint != "" && adapter.GetPath() == hostConfig.MCPEndpoint {
		return handleMCPRequest(ctx, c, adapter, hostConfig.MCPEndpoint, metadata)
	}

	return handleRequest(ctx, c, adapter, metadata)
}

// ProcessSettlement settles a verified payment once the upstream response
// status is known.
func (c *WorkerCore) ProcessSettlement(ctx context.Context, adapter RequestAdapter, payload x402.PaymentPayload, requirements x402.PaymentRequirements, upstreamStatusCode int, requestID string) xhttp.ProcessSettleResult {
	return handleSettlement(ctx, c, adapter, payload, requirements, upstreamStatusCode, requestID)
}
