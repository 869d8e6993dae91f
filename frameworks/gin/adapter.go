package gin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// Adapter adapts a gin request to the gating pipeline
type Adapter struct {
	ctx *gin.Context

	bodyOnce sync.Once
	body     interface{}
}

// NewAdapter wraps one request context
func NewAdapter(c *gin.Context) *Adapter {
	return &Adapter{ctx: c}
}

func (a *Adapter) GetHeader(name string) string {
	return a.ctx.GetHeader(name)
}

func (a *Adapter) GetMethod() string {
	return a.ctx.Request.Method
}

func (a *Adapter) GetPath() string {
	return a.ctx.Request.URL.Path
}

func (a *Adapter) GetURL() string {
	scheme := "http"
	if a.ctx.Request.TLS != nil {
		scheme = "https"
	}
	if proto := a.ctx.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + a.ctx.Request.Host + a.ctx.Request.URL.RequestURI()
}

func (a *Adapter) GetAcceptHeader() string {
	return a.ctx.GetHeader("Accept")
}

func (a *Adapter) GetUserAgent() string {
	return a.ctx.Request.UserAgent()
}

func (a *Adapter) GetHost() string {
	host := a.ctx.Request.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func (a *Adapter) GetIPAddress() string {
	if forwarded := a.ctx.GetHeader("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return a.ctx.ClientIP()
}

func (a *Adapter) GetQueryParams() url.Values {
	return a.ctx.Request.URL.Query()
}

// GetBody decodes the request body as JSON, leaving it readable for the
// route handler. Non-JSON and empty bodies yield nil.
func (a *Adapter) GetBody(ctx context.Context) (interface{}, error) {
	a.bodyOnce.Do(func() {
		if a.ctx.Request.Body == nil {
			return
		}
		raw, err := io.ReadAll(a.ctx.Request.Body)
		a.ctx.Request.Body.Close()
		a.ctx.Request.Body = io.NopCloser(bytes.NewReader(raw))
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
