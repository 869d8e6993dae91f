package foldset

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	xhttp "github.com/foldset/foldset-go/x402/http"
)

// Version is the core library version, reported on health checks and stamped
// into request metadata.
const Version = "0.4.2"

// CacheTTL is how long cached config views stay fresh
const CacheTTL = 30 * time.Second

// defaultBaseURL is the Foldset API used for bootstrap and telemetry
const defaultBaseURL = "https://api.foldset.com"

// buildRequestMetadata creates the per-request identity
func buildRequestMetadata() RequestMetadata {
	return RequestMetadata{
		Version:   Version,
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func noPaymentRequired(metadata RequestMetadata) ProcessRequestResult {
	return ProcessRequestResult{Type: ResultNoPaymentRequired, Metadata: metadata}
}

// CachedView is a TTL-cached, typed view over one config store entry.
//
// A view loaded within the TTL serves the cached value. On a stale read the
// store is consulted: an absent key yields the fallback, a present key is
// decoded. Store and decode errors propagate to the caller without touching
// the cached value or its timestamp, so a transient failure never evicts the
// last good config. Concurrent stale reads may each fetch; the last writer
// wins, which is safe because decoded values are immutable snapshots.
type CachedView[T any] struct {
	store    ConfigStore
	key      string
	fallback T
	decode   func([]byte) (T, error)
	ttl      time.Duration

	mu       sync.RWMutex
	value    T
	loadedAt time.Time
}

// NewCachedView creates a view over one store key
func NewCachedView[T any](store ConfigStore, key string, fallback T, decode func([]byte) (T, error)) *CachedView[T] {
	return &CachedView[T]{
		store:    store,
		key:      key,
		fallback: fallback,
		decode:   decode,
		ttl:      CacheTTL,
	}
}

// Get returns the cached value, refreshing from the store when stale
func (v *CachedView[T]) Get(ctx context.Context) (T, error) {
	v.mu.RLock()
	if !v.loadedAt.IsZero() && time.Since(v.loadedAt) < v.ttl {
		value := v.value
		v.mu.RUnlock()
		return value, nil
	}
	v.mu.RUnlock()

	raw, ok, err := v.store.Get(ctx, v.key)
	if err != nil {
		var zero T
		return zero, err
	}

	value := v.fallback
	if ok {
		value, err = v.decode([]byte(raw))
		if err != nil {
			var zero T
			return zero, err
		}
	}

	v.mu.Lock()
	v.value = value
	v.loadedAt = time.Now()
	v.mu.Unlock()

	return value, nil
}

// Config store keys
const (
	keyHostConfig     = "host-config"
	keyRestrictions   = "restrictions"
	keyPaymentMethods = "payment-methods"
	keyBots           = "bots"
	keyFacilitator    = "facilitator"
)

// HostConfigManager caches the host configuration. A nil value means the
// tenant has no host config and the worker is unconfigured.
type HostConfigManager struct {
	*CachedView[*HostConfig]
}

// NewHostConfigManager creates the host-config view
func NewHostConfigManager(store ConfigStore) *HostConfigManager {
	return &HostConfigManager{NewCachedView(store, keyHostConfig, nil, decodeHostConfig)}
}

func decodeHostConfig(raw []byte) (*HostConfig, error) {
	var config HostConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, err
	}
	if config.APIProtectionMode == "" {
		config.APIProtectionMode = ProtectionModeBots
	}
	return &config, nil
}

// RestrictionsManager caches the restriction list
type RestrictionsManager struct {
	*CachedView[[]Restriction]
}

// NewRestrictionsManager creates the restrictions view
func NewRestrictionsManager(store ConfigStore) *RestrictionsManager {
	return &RestrictionsManager{NewCachedView(store, keyRestrictions, []Restriction{}, decodeRestrictions)}
}

func decodeRestrictions(raw []byte) ([]Restriction, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	restrictions := make([]Restriction, 0, len(entries))
	for _, entry := range entries {
		restriction, err := parseRestriction(entry)
		if err != nil {
			return nil, err
		}
		restrictions = append(restrictions, restriction)
	}
	return restrictions, nil
}

// PaymentMethodsManager caches the payment method list
type PaymentMethodsManager struct {
	*CachedView[[]PaymentMethod]
}

// NewPaymentMethodsManager creates the payment-methods view
func NewPaymentMethodsManager(store ConfigStore) *PaymentMethodsManager {
	return &PaymentMethodsManager{NewCachedView(store, keyPaymentMethods, []PaymentMethod{}, decodePaymentMethods)}
}

func decodePaymentMethods(raw []byte) ([]PaymentMethod, error) {
	var methods []PaymentMethod
	if err := json.Unmarshal(raw, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// BotsManager caches the bot list and matches user agents against it
type BotsManager struct {
	*CachedView[[]Bot]
}

// NewBotsManager creates the bots view
func NewBotsManager(store ConfigStore) *BotsManager {
	return &BotsManager{NewCachedView(store, keyBots, []Bot{}, decodeBots)}
}

func decodeBots(raw []byte) ([]Bot, error) {
	var bots []Bot
	if err := json.Unmarshal(raw, &bots); err != nil {
		return nil, err
	}
	for i := range bots {
		bots[i].UserAgent = strings.ToLower(bots[i].UserAgent)
	}
	return bots, nil
}

// Match returns the first bot whose user-agent fragment is a substring of the
// request's user agent. List order is authoritative.
func (m *BotsManager) Match(ctx context.Context, userAgent string) (*Bot, error) {
	bots, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}

	ua := strings.ToLower(userAgent)
	for i := range bots {
		if strings.Contains(ua, bots[i].UserAgent) {
			bot := bots[i]
			return &bot, nil
		}
	}
	return nil, nil
}

// FacilitatorManager caches the configured facilitator client. A nil value
// means no facilitator is configured and the worker is unconfigured.
type FacilitatorManager struct {
	*CachedView[*xhttp.FacilitatorClient]
}

// NewFacilitatorManager creates the facilitator view
func NewFacilitatorManager(store ConfigStore) *FacilitatorManager {
	return &FacilitatorManager{NewCachedView(store, keyFacilitator, nil, decodeFacilitator)}
}

func decodeFacilitator(raw []byte) (*xhttp.FacilitatorClient, error) {
	var config struct {
		URL              string            `json:"url"`
		VerifyHeaders    map[string]string `json:"verifyHeaders"`
		SettleHeaders    map[string]string `json:"settleHeaders"`
		SupportedHeaders map[string]string `json:"supportedHeaders"`
	}
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, err
	}

	facilitatorConfig := &xhttp.FacilitatorConfig{URL: config.URL}
	if len(config.VerifyHeaders) > 0 || len(config.SettleHeaders) > 0 || len(config.SupportedHeaders) > 0 {
		facilitatorConfig.AuthProvider = &xhttp.StaticAuthProvider{
			Headers: xhttp.AuthHeaders{
				Verify:    config.VerifyHeaders,
				Settle:    config.SettleHeaders,
				Supported: config.SupportedHeaders,
			},
		}
	}

	return xhttp.NewFacilitatorClient(facilitatorConfig), nil
}
