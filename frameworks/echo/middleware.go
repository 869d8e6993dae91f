package echo

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/foldset/foldset-go"
	xhttp "github.com/foldset/foldset-go/x402/http"
)

const sdkVersion = "0.4.2"

// Middleware returns the echo payment gating middleware. Requests pass
// through untouched when no API key is configured or when processing fails.
func Middleware(options foldset.Options) echo.MiddlewareFunc {
	if options.Platform == "" {
		options.Platform = "echo"
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
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Request().Header.Del(foldset.VerifiedHeader)

			ctx := c.Request().Context()
			adapter := NewAdapter(c)

			core, err := foldset.FromOptions(ctx, options)
			if err != nil {
				return next(c)
			}

			result, err := core.ProcessRequest(ctx, adapter)
			if err != nil {
				// Fail open rather than blocking the user
				core.ReportError(ctx, err, adapter)
				return next(c)
			}

			switch result.Type {
			case foldset.ResultHealthCheck, foldset.ResultPaymentError:
				return sendInstructions(c, result.Response)

			case foldset.ResultPaymentVerified:
				c.Request().Header.Set(foldset.VerifiedHeader, "true")

				// Buffer the handler's response so settlement headers land first
				original := c.Response().Writer
				capture := newCaptureWriter()
				c.Response().Writer = capture

				handlerErr := next(c)

				status := capture.status
				if handlerErr != nil {
					status = http.StatusInternalServerError
					if httpErr, ok := handlerErr.(*echo.HTTPError); ok {
						status = httpErr.Code
					}
				}

				settlement := core.ProcessSettlement(ctx, adapter, *result.PaymentPayload, *result.PaymentRequirements, status, result.Metadata.RequestID)

				c.Response().Writer = original
				if handlerErr != nil {
					return handlerErr
				}
				if settlement.Success {
					for key, value := range settlement.Headers {
						capture.header.Set(key, value)
					}
					capture.flush(original)
					return nil
				}

				// The handler may have committed the buffered response, so
				// write the failure straight to the real writer.
				body, _ := json.Marshal(map[string]string{
					"error":   "Settlement failed",
					"details": settlement.ErrorReason,
				})
				original.Header().Set("Content-Type", "application/json")
				original.WriteHeader(http.StatusPaymentRequired)
				original.Write(body)
				return nil

			default:
				for key, value := range result.Headers {
					c.Response().Header().Set(key, value)
				}
				return next(c)
			}
		}
	}
}

func sendInstructions(c echo.Context, response *xhttp.HTTPResponseInstructions) error {
	if response == nil {
		return c.NoContent(http.StatusInternalServerError)
	}
	contentType := response.Headers["Content-Type"]
	if contentType == "" {
		contentType = echo.MIMETextPlain
	}
	for key, value := range response.Headers {
		if key == "Content-Type" {
			continue
		}
		c.Response().Header().Set(key, value)
	}
	return c.Blob(response.Status, contentType, []byte(response.Body))
}

// captureWriter buffers the handler's response
type captureWriter struct {
	header http.Header
	status int
	body   []byte
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header), status: http.StatusOK}
}

func (w *captureWriter) Header() http.Header {
	return w.header
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return len(b), nil
}

func (w *captureWriter) flush(out http.ResponseWriter) {
	for key, values := range w.header {
		for _, value := range values {
			out.Header().Add(key, value)
		}
	}
	out.WriteHeader(w.status)
	out.Write(w.body)
}
