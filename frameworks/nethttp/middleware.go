package nethttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/foldset/foldset-go"
	xhttp "github.com/foldset/foldset-go/x402/http"
)

const sdkVersion = "0.4.2"

// Middleware wraps an http.Handler with payment gating. Requests pass
// through untouched when no API key is configured or when processing fails.
func Middleware(options foldset.Options) func(http.Handler) http.Handler {
	if options.Platform == "" {
		options.Platform = "nethttp"
	}
	if options.SDKVersion == "" {
		options.SDKVersion = sdkVersion
	}

	if options.APIKey == "" {
		logger := options.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("foldset: no API key provided, middleware disabled")
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Never trust an inbound verified marker
			r.Header.Del(foldset.VerifiedHeader)

			ctx := r.Context()
			adapter := NewAdapter(r)

			core, err := foldset.FromOptions(ctx, options)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			result, err := core.ProcessRequest(ctx, adapter)
			if err != nil {
				// Fail open rather than blocking the user
				core.ReportError(ctx, err, adapter)
				next.ServeHTTP(w, r)
				return
			}

			switch result.Type {
			case foldset.ResultHealthCheck, foldset.ResultPaymentError:
				writeInstructions(w, result.Response)

			case foldset.ResultPaymentVerified:
				r.Header.Set(foldset.VerifiedHeader, "true")

				capture := newCaptureWriter()
				next.ServeHTTP(capture, r)

				settlement := core.ProcessSettlement(ctx, adapter, *result.PaymentPayload, *result.PaymentRequirements, capture.status, result.Metadata.RequestID)
				if settlement.Success {
					for key, value := range settlement.Headers {
						capture.header.Set(key, value)
					}
					capture.flush(w)
				} else {
					writeSettlementFailure(w, settlement)
				}

			default:
				for key, value := range result.Headers {
					w.Header().Set(key, value)
				}
				next.ServeHTTP(w, r)
			}
		})
	}
}

func writeInstructions(w http.ResponseWriter, response *xhttp.HTTPResponseInstructions) {
	if response == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(response.Status)
	w.Write([]byte(response.Body))
}

func writeSettlementFailure(w http.ResponseWriter, settlement xhttp.ProcessSettleResult) {
	body, _ := json.Marshal(map[string]string{
		"error":   "Settlement failed",
		"details": settlement.ErrorReason,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	w.Write(body)
}

// captureWriter buffers the upstream response so settlement headers can be
// attached before anything reaches the client.
type captureWriter struct {
	header http.Header
	status int
	body   []byte
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header), status: http.StatusOK}
}

func (c *captureWriter) Header() http.Header {
	return c.header
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body = append(c.body, b...)
	return len(b), nil
}

func (c *captureWriter) flush(w http.ResponseWriter) {
	for key, values := range c.header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(c.status)
	w.Write(c.body)
}
