package gin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/foldset/foldset-go"
	xhttp "github.com/foldset/foldset-go/x402/http"
)

const sdkVersion = "0.4.2"

// Middleware returns the gin payment gating middleware. Requests pass
// through untouched when no API key is configured or when processing fails.
func Middleware(options foldset.Options) gin.HandlerFunc {
	if options.Platform == "" {
		options.Platform = "gin"
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
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		c.Request.Header.Del(foldset.VerifiedHeader)

		ctx := c.Request.Context()
		adapter := NewAdapter(c)

		core, err := foldset.FromOptions(ctx, options)
		if err != nil {
			c.Next()
			return
		}

		result, err := core.ProcessRequest(ctx, adapter)
		if err != nil {
			// Fail open rather than blocking the user
			core.ReportError(ctx, err, adapter)
			c.Next()
			return
		}

		switch result.Type {
		case foldset.ResultHealthCheck, foldset.ResultPaymentError:
			abortWithInstructions(c, result.Response)

		case foldset.ResultPaymentVerified:
			c.Request.Header.Set(foldset.VerifiedHeader, "true")

			// Buffer the handler's response so settlement headers land first
			capture := &responseWriter{
				ResponseWriter: c.Writer,
				body:           &strings.Builder{},
				statusCode:     http.StatusOK,
			}
			c.Writer = capture

			c.Next()

			settlement := core.ProcessSettlement(ctx, adapter, *result.PaymentPayload, *result.PaymentRequirements, capture.statusCode, result.Metadata.RequestID)

			c.Writer = capture.ResponseWriter
			if settlement.Success {
				for key, value := range settlement.Headers {
					c.Header(key, value)
				}
				c.Writer.WriteHeader(capture.statusCode)
				c.Writer.Write([]byte(capture.body.String()))
			} else {
				writeSettlementFailure(c, settlement)
			}

		default:
			for key, value := range result.Headers {
				c.Header(key, value)
			}
			c.Next()
		}
	}
}

func abortWithInstructions(c *gin.Context, response *xhttp.HTTPResponseInstructions) {
	if response == nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contentType := response.Headers["Content-Type"]
	for key, value := range response.Headers {
		if key == "Content-Type" {
			continue
		}
		c.Header(key, value)
	}
	c.Abort()
	c.Data(response.Status, contentType, []byte(response.Body))
}

func writeSettlementFailure(c *gin.Context, settlement xhttp.ProcessSettleResult) {
	c.JSON(http.StatusPaymentRequired, gin.H{
		"error":   "Settlement failed",
		"details": settlement.ErrorReason,
	})
}

// responseWriter captures the handler's response instead of sending it
type responseWriter struct {
	gin.ResponseWriter
	body       *strings.Builder
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return len(b), nil
}

func (w *responseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
