package foldset

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
)

// FetchRedisCredentials retrieves the tenant's config store credentials from
// the Foldset API.
func FetchRedisCredentials(ctx context.Context, apiKey, baseURL string, client *http.Client) (*RedisCredentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/config/redis", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch redis credentials: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch redis credentials: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Data RedisCredentials `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("fetch redis credentials: %w", err)
	}

	return &envelope.Data, nil
}

// RedisConfigStore reads tenant config out of Redis. Keys are namespaced by
// tenant ID.
type RedisConfigStore struct {
	client *redis.Client
	prefix string
}

// NewRedisConfigStore connects the config store. Credential URLs are either
// redis:// or rediss:// connection strings, or an https:// REST-style
// endpoint whose host doubles as a TLS Redis host with the token as password.
func NewRedisConfigStore(credentials *RedisCredentials) (*RedisConfigStore, error) {
	var options *redis.Options

	switch {
	case strings.HasPrefix(credentials.URL, "redis://"), strings.HasPrefix(credentials.URL, "rediss://"):
		var err error
		options, err = redis.ParseURL(credentials.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if options.Password == "" {
			options.Password = credentials.Token
		}
	case strings.HasPrefix(credentials.URL, "https://"):
		parsed, err := url.Parse(credentials.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		options = &redis.Options{
			Addr:      parsed.Hostname() + ":6379",
			Password:  credentials.Token,
			TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	default:
		return nil, fmt.Errorf("unsupported redis url scheme: %q", credentials.URL)
	}

	return &RedisConfigStore{
		client: redis.NewClient(options),
		prefix: credentials.TenantID,
	}, nil
}

// Get reads one tenant-scoped key. A missing key is reported as absent, not
// as an error.
func (s *RedisConfigStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Close releases the underlying Redis connection pool
func (s *RedisConfigStore) Close() error {
	return s.client.Close()
}
