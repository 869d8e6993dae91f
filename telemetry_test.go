package foldset

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEventPayload(t *testing.T) {
	adapter := &fakeAdapter{
		method: "GET",
		path:   "/premium/article-1",
		url:    "https://example.com/premium/article-1?ref=feed",
		headers: map[string]string{
			"referer":    "https://news.example.com/",
			"User-Agent": "GPTBot/1.1",
		},
		ip: "203.0.113.9",
	}

	payload := buildEventPayload(adapter, 402, "req-1", "settled")

	assert.Equal(t, "GET", payload.Method)
	assert.Equal(t, 402, payload.StatusCode)
	assert.Equal(t, "GPTBot/1.1", payload.UserAgent)
	assert.Equal(t, "https://news.example.com/", payload.Referer)
	assert.Equal(t, "https://example.com/premium/article-1?ref=feed", payload.Href)
	assert.Equal(t, "example.com", payload.Hostname)
	assert.Equal(t, "/premium/article-1", payload.Pathname)
	assert.Equal(t, "ref=feed", payload.Search)
	assert.Equal(t, "203.0.113.9", payload.IPAddress)
	assert.Equal(t, "req-1", payload.RequestID)
	assert.Equal(t, "settled", payload.PaymentResponse)
}

func TestPostJSONSendsAuthenticatedEvent(t *testing.T) {
	var gotPath, gotAuth string
	var gotEvent EventPayload

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotEvent)
	}))
	defer api.Close()

	core := New(newFakeStore(nil), Options{APIKey: "sk-test", BaseURL: api.URL})
	core.postJSON(context.Background(), "/v1/events", EventPayload{Method: "GET", StatusCode: 200, RequestID: "req-2"})

	assert.Equal(t, "/v1/events", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "req-2", gotEvent.RequestID)
}

func TestPostJSONSwallowsFailures(t *testing.T) {
	core := New(newFakeStore(nil), Options{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1"})

	// Must not panic or block
	core.postJSON(context.Background(), "/v1/events", EventPayload{RequestID: "req-3"})
}

func TestReportError(t *testing.T) {
	received := make(chan ErrorReport, 1)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var report ErrorReport
		json.NewDecoder(r.Body).Decode(&report)
		received <- report
	}))
	defer api.Close()

	core := New(newFakeStore(nil), Options{APIKey: "sk-test", BaseURL: api.URL})
	adapter := &fakeAdapter{method: "POST", path: "/api/reports", host: "example.com", ip: "203.0.113.9"}

	core.ReportError(context.Background(), errors.New("store unavailable"), adapter)

	report := <-received
	require.Equal(t, "store unavailable", report.Error)
	assert.NotEmpty(t, report.Stack)
	assert.Equal(t, "POST", report.Context["method"])
	assert.Equal(t, "/api/reports", report.Context["path"])
	assert.Equal(t, "example.com", report.Context["hostname"])
}
