package http

import (
	"testing"
)

func TestParseRoutePattern(t *testing.T) {
	t.Run("verb and path", func(t *testing.T) {
		verb, regex, err := parseRoutePattern("get ^/api/reports$")
		if err != nil {
			t.Fatalf("parseRoutePattern failed: %v", err)
		}
		if verb != "GET" {
			t.Errorf("Expected verb GET, got %s", verb)
		}
		if !regex.MatchString("/api/reports") {
			t.Error("Expected pattern to match /api/reports")
		}
		if !regex.MatchString("/API/Reports") {
			t.Error("Expected case-insensitive match")
		}
		if regex.MatchString("/api/reports/1") {
			t.Error("Expected anchored pattern not to match a subpath")
		}
	})

	t.Run("bare path", func(t *testing.T) {
		verb, regex, err := parseRoutePattern("^/premium/.*")
		if err != nil {
			t.Fatalf("parseRoutePattern failed: %v", err)
		}
		if verb != "*" {
			t.Errorf("Expected wildcard verb, got %s", verb)
		}
		if !regex.MatchString("/premium/article-1") {
			t.Error("Expected pattern to match /premium/article-1")
		}
	})

	t.Run("path with spaces keeps its verb", func(t *testing.T) {
		verb, regex, err := parseRoutePattern("GET ^/files/a b$")
		if err != nil {
			t.Fatalf("parseRoutePattern failed: %v", err)
		}
		if verb != "GET" {
			t.Errorf("Expected verb GET, got %s", verb)
		}
		if !regex.MatchString("/files/a b") {
			t.Error("Expected pattern to match /files/a b")
		}
	})

	t.Run("leading whitespace is not a verb", func(t *testing.T) {
		verb, regex, err := parseRoutePattern("  ^/premium/.*")
		if err != nil {
			t.Fatalf("parseRoutePattern failed: %v", err)
		}
		if verb != "*" {
			t.Errorf("Expected wildcard verb, got %s", verb)
		}
		if !regex.MatchString("/premium/article-1") {
			t.Error("Expected pattern to match /premium/article-1")
		}
	})

	t.Run("mcp route key", func(t *testing.T) {
		verb, regex, err := parseRoutePattern("/mcp/tools/call:summarize")
		if err != nil {
			t.Fatalf("parseRoutePattern failed: %v", err)
		}
		if verb != "*" {
			t.Errorf("Expected wildcard verb, got %s", verb)
		}
		if !regex.MatchString("/mcp/tools/call:summarize") {
			t.Error("Expected route key to match itself")
		}
	})

	t.Run("invalid regex", func(t *testing.T) {
		if _, _, err := parseRoutePattern("GET ^/api/(unclosed"); err == nil {
			t.Fatal("Expected error for invalid regex")
		}
	})
}

func TestMatchRouteOrder(t *testing.T) {
	first := RouteConfig{Description: "first"}
	second := RouteConfig{Description: "second"}

	server, err := NewResourceServer(nil, RoutesConfig{
		{Pattern: "GET ^/api/.*$", Config: first},
		{Pattern: "^/api/.*$", Config: second},
	})
	if err != nil {
		t.Fatalf("NewResourceServer failed: %v", err)
	}

	t.Run("insertion order wins", func(t *testing.T) {
		route := server.MatchRoute("/api/data", "GET")
		if route == nil {
			t.Fatal("Expected a match")
		}
		if route.Config.Description != "first" {
			t.Errorf("Expected first route to win, got %s", route.Config.Description)
		}
	})

	t.Run("verb filter", func(t *testing.T) {
		route := server.MatchRoute("/api/data", "POST")
		if route == nil {
			t.Fatal("Expected a match")
		}
		if route.Config.Description != "second" {
			t.Errorf("Expected wildcard route for POST, got %s", route.Config.Description)
		}
	})

	t.Run("no match", func(t *testing.T) {
		if route := server.MatchRoute("/public", "GET"); route != nil {
			t.Errorf("Expected no match, got %+v", route)
		}
	})
}

func TestCompileRoutesInvalidPattern(t *testing.T) {
	_, err := compileRoutes(RoutesConfig{{Pattern: "GET ^/api/(unclosed"}})
	if err == nil {
		t.Fatal("Expected compile error")
	}
}
