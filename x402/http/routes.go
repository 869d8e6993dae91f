package http

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// PaymentOption is one way to pay for a route. Price is the amount in the
// asset's smallest unit as a decimal string.
type PaymentOption struct {
	Scheme  string                 `json:"scheme"`
	Price   string                 `json:"price"`
	Network string                 `json:"network"`
	PayTo   string                 `json:"payTo"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// RouteConfig defines payment configuration for a matched route
type RouteConfig struct {
	Accepts     []PaymentOption `json:"accepts"`
	Description string          `json:"description,omitempty"`
	MimeType    string          `json:"mimeType,omitempty"`
}

// Route pairs a route pattern with its configuration
type Route struct {
	Pattern string
	Config  RouteConfig
}

// RoutesConfig is an ordered list of routes. Order is significant: the first
// matching route wins.
type RoutesConfig []Route

// CompiledRoute is a parsed route ready for matching
type CompiledRoute struct {
	Pattern string
	Verb    string
	Regex   *regexp.Regexp
	Config  RouteConfig
}

// parseRoutePattern parses a route pattern like "GET ^/api/reports/.*$".
// The pattern splits on the first whitespace: everything before it is the
// HTTP verb, everything after is the path. A pattern with no whitespace is
// all path with verb "*". The path part is treated as a raw regular
// expression, compiled case-insensitive, and may itself contain spaces.
func parseRoutePattern(pattern string) (string, *regexp.Regexp, error) {
	trimmed := strings.TrimSpace(pattern)

	verb := "*"
	path := trimmed
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i >= 0 {
		verb = strings.ToUpper(trimmed[:i])
		path = strings.TrimLeftFunc(trimmed[i:], unicode.IsSpace)
	}

	regex, err := regexp.Compile("(?i)" + path)
	if err != nil {
		return "", nil, fmt.Errorf("invalid route pattern %q: %w", pattern, err)
	}

	return verb, regex, nil
}

// compileRoutes compiles a RoutesConfig preserving its order
func compileRoutes(routes RoutesConfig) ([]CompiledRoute, error) {
	compiled := make([]CompiledRoute, 0, len(routes))
	for _, route := range routes {
		verb, regex, err := parseRoutePattern(route.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, CompiledRoute{
			Pattern: route.Pattern,
			Verb:    verb,
			Regex:   regex,
			Config:  route.Config,
		})
	}
	return compiled, nil
}
