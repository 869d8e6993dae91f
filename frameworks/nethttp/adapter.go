package nethttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Adapter adapts a net/http request to the gating pipeline
type Adapter struct {
	request *http.Request

	bodyOnce sync.Once
	body     interface{}
}

// NewAdapter wraps one request
func NewAdapter(r *http.Request) *Adapter {
	return &Adapter{request: r}
}

func (a *Adapter) GetHeader(name string) string {
	return a.request.Header.Get(name)
}

func (a *Adapter) GetMethod() string {
	return a.request.Method
}

func (a *Adapter) GetPath() string {
	return a.request.URL.Path
}

func (a *Adapter) GetURL() string {
	scheme := "http"
	if a.request.TLS != nil {
		scheme = "https"
	}
	if proto := a.request.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + a.request.Host + a.request.URL.RequestURI()
}

func (a *Adapter) GetAcceptHeader() string {
	return a.request.Header.Get("Accept")
}

func (a *Adapter) GetUserAgent() string {
	return a.request.UserAgent()
}

func (a *Adapter) GetHost() string {
	host := a.request.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func (a *Adapter) GetIPAddress() string {
	if forwarded := a.request.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if host, _, err := net.SplitHostPort(a.request.RemoteAddr); err == nil {
		return host
	}
	return a.request.RemoteAddr
}

func (a *Adapter) GetQueryParams() url.Values {
	return a.request.URL.Query()
}

// GetBody decodes the request body as JSON, leaving it readable for the
// upstream handler. Non-JSON and empty bodies yield nil.
func (a *Adapter) GetBody(ctx context.Context) (interface{}, error) {
	a.bodyOnce.Do(func() {
		if a.request.Body == nil {
			return
		}
		raw, err := io.ReadAll(a.request.Body)
		a.request.Body.Close()
		a.request.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil || len(raw) == 0 {
			return
		}

		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err == nil {
			a.body = decoded
		}
	})
	return a.body, nil
}
