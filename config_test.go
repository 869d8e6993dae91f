package foldset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory ConfigStore that counts reads per key
type fakeStore struct {
	mu    sync.Mutex
	data  map[string]string
	calls map[string]int
	err   error
}

func newFakeStore(data map[string]string) *fakeStore {
	return &fakeStore{data: data, calls: make(map[string]int)}
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[key]++
	if s.err != nil {
		return "", false, s.err
	}
	value, ok := s.data[key]
	return value, ok, nil
}

func (s *fakeStore) callCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func TestCachedViewCachesWithinTTL(t *testing.T) {
	store := newFakeStore(map[string]string{"host-config": `{"host":"example.com"}`})
	manager := NewHostConfigManager(store)

	first, err := manager.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "example.com", first.Host)

	second, err := manager.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.callCount("host-config"), "second read within TTL must not hit the store")
}

func TestCachedViewRefreshesWhenStale(t *testing.T) {
	store := newFakeStore(map[string]string{"host-config": `{"host":"example.com"}`})
	manager := NewHostConfigManager(store)

	_, err := manager.Get(context.Background())
	require.NoError(t, err)

	// Force staleness
	manager.loadedAt = time.Now().Add(-CacheTTL - time.Second)

	store.data["host-config"] = `{"host":"other.com"}`
	refreshed, err := manager.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "other.com", refreshed.Host)
	assert.Equal(t, 2, store.callCount("host-config"))
}

func TestCachedViewAbsentKeyYieldsFallback(t *testing.T) {
	store := newFakeStore(nil)
	manager := NewHostConfigManager(store)

	config, err := manager.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, config, "absent host config must yield the nil fallback")

	restrictions, err := NewRestrictionsManager(store).Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, restrictions)
}

func TestCachedViewErrorDoesNotEvict(t *testing.T) {
	store := newFakeStore(map[string]string{"host-config": `{"host":"example.com"}`})
	manager := NewHostConfigManager(store)

	_, err := manager.Get(context.Background())
	require.NoError(t, err)

	manager.loadedAt = time.Now().Add(-CacheTTL - time.Second)
	store.err = errors.New("connection refused")

	_, err = manager.Get(context.Background())
	require.Error(t, err)

	// The last good value must survive the failed refresh
	store.err = nil
	store.data["host-config"] = `{"host":"example.com"}`
	config, err := manager.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "example.com", config.Host)
}

func TestDecodeHostConfigDefaultsProtectionMode(t *testing.T) {
	config, err := decodeHostConfig([]byte(`{"host":"example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, ProtectionModeBots, config.APIProtectionMode)

	config, err = decodeHostConfig([]byte(`{"host":"example.com","apiProtectionMode":"all"}`))
	require.NoError(t, err)
	assert.Equal(t, ProtectionModeAll, config.APIProtectionMode)
}

func TestDecodeRestrictions(t *testing.T) {
	restrictions, err := decodeRestrictions([]byte(`[
		{"type":"web","description":"Articles","price":0.05,"scheme":"exact","path":"^/premium/.*"},
		{"type":"api","description":"Reports","price":0.1,"scheme":"exact","path":"^/api/reports$","httpMethod":"get"},
		{"type":"mcp","description":"Summaries","price":0.25,"scheme":"exact","method":"tools/call","name":"summarize"}
	]`))
	require.NoError(t, err)
	require.Len(t, restrictions, 3)

	web, ok := restrictions[0].(WebRestriction)
	require.True(t, ok)
	assert.Equal(t, "^/premium/.*", web.Path)
	assert.Equal(t, 0.05, web.Price)

	api, ok := restrictions[1].(APIRestriction)
	require.True(t, ok)
	assert.Equal(t, "get", api.HTTPMethod)

	mcp, ok := restrictions[2].(MCPRestriction)
	require.True(t, ok)
	assert.Equal(t, "tools/call", mcp.Method)
	assert.Equal(t, "summarize", mcp.Name)
}

func TestDecodeRestrictionsUnknownType(t *testing.T) {
	_, err := decodeRestrictions([]byte(`[{"type":"grpc","description":"x","price":1,"scheme":"exact"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown restriction type")
}

func TestBotsManagerMatch(t *testing.T) {
	store := newFakeStore(map[string]string{
		"bots": `[{"user_agent":"GPTBot","force_200":false},{"user_agent":"bot","force_200":true}]`,
	})
	manager := NewBotsManager(store)

	t.Run("case-insensitive substring", func(t *testing.T) {
		bot, err := manager.Match(context.Background(), "Mozilla/5.0 (compatible; gptbot/1.1)")
		require.NoError(t, err)
		require.NotNil(t, bot)
		assert.Equal(t, "gptbot", bot.UserAgent)
		assert.False(t, bot.Force200)
	})

	t.Run("list order wins", func(t *testing.T) {
		// "GPTBot" contains "bot" too, but the first entry is checked first
		bot, err := manager.Match(context.Background(), "GPTBot/1.1")
		require.NoError(t, err)
		require.NotNil(t, bot)
		assert.Equal(t, "gptbot", bot.UserAgent)
	})

	t.Run("no match", func(t *testing.T) {
		bot, err := manager.Match(context.Background(), "Mozilla/5.0 Safari/605.1.15")
		require.NoError(t, err)
		assert.Nil(t, bot)
	})
}

func TestDecodeFacilitator(t *testing.T) {
	client, err := decodeFacilitator([]byte(`{"url":"https://facilitator.example.com","verifyHeaders":{"Authorization":"Bearer v"}}`))
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "https://facilitator.example.com", client.URL())
}
