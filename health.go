package foldset

import (
	"encoding/json"
	"time"
)

// HealthPath is the well-known liveness endpoint every gated worker serves
const HealthPath = "/.well-known/foldset"

// buildHealthResponse returns the health check JSON body
func buildHealthResponse(platform, sdkVersion string) string {
	body, _ := json.Marshal(map[string]string{
		"status":       "ok",
		"core_version": Version,
		"sdk_version":  sdkVersion,
		"platform":     platform,
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
	})
	return string(body)
}
