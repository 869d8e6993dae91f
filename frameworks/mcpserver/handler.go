// Package mcpserver serves a payment-gated MCP server over streamable HTTP.
package mcpserver

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/foldset/foldset-go"
	"github.com/foldset/foldset-go/frameworks/nethttp"
)

const sdkVersion = "0.4.2"

// Handler wraps an MCP server in the streamable HTTP transport with payment
// gating in front. Tool, resource, and prompt invocations are billed per the
// tenant's MCP restrictions; list responses advertise the prices.
func Handler(server *mcp.Server, options foldset.Options) http.Handler {
	options.Platform = "mcp-go"
	if options.SDKVersion == "" {
		options.SDKVersion = sdkVersion
	}

	transport := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return server },
		nil,
	)

	return nethttp.Middleware(options)(transport)
}
