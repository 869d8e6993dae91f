package foldset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	x402 "github.com/foldset/foldset-go/x402"
	xhttp "github.com/foldset/foldset-go/x402/http"
)

// RequestAdapter extends the x402 HTTP adapter with the request capabilities
// the gating pipeline needs. Framework packages implement this per framework.
type RequestAdapter interface {
	xhttp.HTTPAdapter

	GetHost() string
	GetIPAddress() string
	GetQueryParams() url.Values

	// GetBody returns the request body decoded as JSON, or nil when the body
	// is empty or not JSON.
	GetBody(ctx context.Context) (interface{}, error)
}

// Options configures the worker core
type Options struct {
	// APIKey authenticates against the Foldset API (required)
	APIKey string

	// RedisCredentials bypasses the credential bootstrap when set
	RedisCredentials *RedisCredentials

	// Platform names the host framework (e.g. "gin"), reported on health checks
	Platform string

	// SDKVersion is the adapter package version, reported on health checks
	SDKVersion string

	// BaseURL overrides the Foldset API base URL
	BaseURL string

	// HTTPClient overrides the client used for bootstrap and telemetry
	HTTPClient *http.Client

	// Logger receives diagnostic output; defaults to slog.Default()
	Logger *slog.Logger
}

// RedisCredentials identifies the tenant's config store
type RedisCredentials struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	TenantID string `json:"tenantId"`
}

// RequestMetadata identifies one request through the pipeline. Built once at
// the start of processing and stamped into every result and telemetry event.
type RequestMetadata struct {
	Version   string `json:"version"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// API protection modes
const (
	ProtectionModeBots = "bots"
	ProtectionModeAll  = "all"
)

// HostConfig is the per-tenant host configuration
type HostConfig struct {
	Host              string `json:"host"`
	APIProtectionMode string `json:"apiProtectionMode"`
	MCPEndpoint       string `json:"mcpEndpoint,omitempty"`
	TermsOfServiceURL string `json:"termsOfServiceUrl,omitempty"`
}

// Restriction kinds
const (
	RestrictionWeb = "web"
	RestrictionAPI = "api"
	RestrictionMCP = "mcp"
)

// Restriction is an operator-defined payment rule. The three variants form a
// closed sum; the pipeline dispatches on Kind.
type Restriction interface {
	Kind() string
	Base() RestrictionBase

	sealed()
}

// RestrictionBase holds the fields shared by all restriction kinds
type RestrictionBase struct {
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Scheme      string  `json:"scheme"`
}

func (b RestrictionBase) Base() RestrictionBase { return b }
func (RestrictionBase) sealed()                 {}

// WebRestriction gates browser pages by path regex. Only matched bots are
// ever charged; regular browser traffic passes through.
type WebRestriction struct {
	RestrictionBase
	Path string `json:"path"`
}

func (WebRestriction) Kind() string { return RestrictionWeb }

// APIRestriction gates API endpoints by path regex and optional HTTP method
type APIRestriction struct {
	RestrictionBase
	Path       string `json:"path"`
	HTTPMethod string `json:"httpMethod,omitempty"`
}

func (APIRestriction) Kind() string { return RestrictionAPI }

// MCPRestriction gates a named MCP tool, resource, or prompt
type MCPRestriction struct {
	RestrictionBase
	Method string `json:"method"`
	Name   string `json:"name"`
}

func (MCPRestriction) Kind() string { return RestrictionMCP }

// parseRestriction decodes one tagged restriction object. Unknown tags are an
// error: a config entry that cannot be enforced must not be dropped silently.
func parseRestriction(raw json.RawMessage) (Restriction, error) {
	var envelope struct {
		Type        string  `json:"type"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		Scheme      string  `json:"scheme"`
		Path        string  `json:"path"`
		HTTPMethod  string  `json:"httpMethod"`
		Method      string  `json:"method"`
		Name        string  `json:"name"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("invalid restriction: %w", err)
	}

	base := RestrictionBase{
		Description: envelope.Description,
		Price:       envelope.Price,
		Scheme:      envelope.Scheme,
	}

	switch envelope.Type {
	case RestrictionWeb:
		return WebRestriction{RestrictionBase: base, Path: envelope.Path}, nil
	case RestrictionAPI:
		return APIRestriction{RestrictionBase: base, Path: envelope.Path, HTTPMethod: envelope.HTTPMethod}, nil
	case RestrictionMCP:
		return MCPRestriction{RestrictionBase: base, Method: envelope.Method, Name: envelope.Name}, nil
	default:
		return nil, fmt.Errorf("unknown restriction type: %q", envelope.Type)
	}
}

// PaymentMethod is one operator-configured way to pay, scoped to a network
type PaymentMethod struct {
	CAIP2ID            string            `json:"caip2_id"`
	Decimals           int               `json:"decimals"`
	ContractAddress    string            `json:"contract_address"`
	PayToWalletAddress string            `json:"circle_wallet_address"`
	ChainDisplayName   string            `json:"chain_display_name"`
	AssetDisplayName   string            `json:"asset_display_name"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// Bot matches crawlers by user-agent substring. UserAgent is lowercased at
// config load; matching lowercases the request value.
type Bot struct {
	UserAgent string `json:"user_agent"`
	Force200  bool   `json:"force_200"`
}

// Result types for ProcessRequest
const (
	ResultNoPaymentRequired = xhttp.ResultNoPaymentRequired
	ResultPaymentVerified   = xhttp.ResultPaymentVerified
	ResultPaymentError      = xhttp.ResultPaymentError
	ResultHealthCheck       = "health-check"
)

// ProcessRequestResult is what ProcessRequest hands back to the framework
// adapter. Headers may be set on any result type.
type ProcessRequestResult struct {
	Type                string
	Metadata            RequestMetadata
	Restriction         Restriction
	Response            *xhttp.HTTPResponseInstructions
	PaymentPayload      *x402.PaymentPayload
	PaymentRequirements *x402.PaymentRequirements
	Headers             map[string]string
}

// ConfigStore is an async key-value read over the tenant's remote config.
// The second return reports presence: absent keys are not errors.
type ConfigStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// EventPayload is one telemetry event
type EventPayload struct {
	Method          string `json:"method"`
	StatusCode      int    `json:"status_code"`
	UserAgent       string `json:"user_agent,omitempty"`
	Referer         string `json:"referer,omitempty"`
	Href            string `json:"href"`
	Hostname        string `json:"hostname"`
	Pathname        string `json:"pathname"`
	Search          string `json:"search"`
	IPAddress       string `json:"ip_address,omitempty"`
	RequestID       string `json:"request_id"`
	PaymentResponse string `json:"payment_response,omitempty"`
}

// ErrorReport is one error report
type ErrorReport struct {
	Error   string                 `json:"error"`
	Stack   string                 `json:"stack,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}
