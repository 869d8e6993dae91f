package foldset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRedisCredentials(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/config/redis", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"url":"rediss://cfg.example.com:6379","token":"secret","tenantId":"tenant-1"}}`))
	}))
	defer api.Close()

	credentials, err := FetchRedisCredentials(context.Background(), "sk-test", api.URL, http.DefaultClient)
	require.NoError(t, err)
	assert.Equal(t, "rediss://cfg.example.com:6379", credentials.URL)
	assert.Equal(t, "secret", credentials.Token)
	assert.Equal(t, "tenant-1", credentials.TenantID)
}

func TestFetchRedisCredentialsNon200(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer api.Close()

	_, err := FetchRedisCredentials(context.Background(), "sk-bad", api.URL, http.DefaultClient)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewRedisConfigStore(t *testing.T) {
	t.Run("redis url", func(t *testing.T) {
		store, err := NewRedisConfigStore(&RedisCredentials{
			URL:      "redis://localhost:6379/0",
			Token:    "secret",
			TenantID: "tenant-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "tenant-1", store.prefix)
	})

	t.Run("https endpoint", func(t *testing.T) {
		store, err := NewRedisConfigStore(&RedisCredentials{
			URL:      "https://cfg.example.com",
			Token:    "secret",
			TenantID: "tenant-2",
		})
		require.NoError(t, err)
		assert.Equal(t, "cfg.example.com:6379", store.client.Options().Addr)
		assert.NotNil(t, store.client.Options().TLSConfig)
		assert.Equal(t, "secret", store.client.Options().Password)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := NewRedisConfigStore(&RedisCredentials{URL: "memcached://x"})
		require.Error(t, err)
	})
}
