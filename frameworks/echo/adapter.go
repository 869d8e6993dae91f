package echo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

// Adapter adapts an echo request to the gating pipeline
type Adapter struct {
	ctx echo.Context

	bodyOnce sync.Once
	body     interface{}
}

// NewAdapter wraps one request context
func NewAdapter(c echo.Context) *Adapter {
	return &Adapter{ctx: c}
}

func (a *Adapter) GetHeader(name string) string {
	return a.ctx.Request().Header.Get(name)
}

func (a *Adapter) GetMethod() string {
	return a.ctx.Request().Method
}

func (a *Adapter) GetPath() string {
	return a.ctx.Request().URL.Path
}

func (a *Adapter) GetURL() string {
	r := a.ctx.Request()
	scheme := a.ctx.Scheme()
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func (a *Adapter) GetAcceptHeader() string {
	return a.ctx.Request().Header.Get("Accept")
}

func (a *Adapter) GetUserAgent() string {
	return a.ctx.Request().UserAgent()
}

func (a *Adapter) GetHost() string {
	host := a.ctx.Request().Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func (a *Adapter) GetIPAddress() string {
	if forwarded := a.GetHeader("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return a.ctx.RealIP()
}

func (a *Adapter) GetQueryParams() url.Values {
	return a.ctx.QueryParams()
}

// GetBody decodes the request body as JSON, leaving it readable for the
// route handler. Non-JSON and empty bodies yield nil.
func (a *Adapter) GetBody(ctx context.Context) (interface{}, error) {
	a.bodyOnce.Do(func() {
		r := a.ctx.Request()
		if r.Body == nil {
			return
		}
		raw, err := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(raw))
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
