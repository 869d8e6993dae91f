package foldset

import (
	"context"

	x402 "github.com/foldset/foldset-go/x402"
	xhttp "github.com/foldset/foldset-go/x402/http"
)

func settlementFailure(reason string) xhttp.ProcessSettleResult {
	return xhttp.ProcessSettleResult{Success: false, ErrorReason: reason}
}

// handlePaymentRequest runs the x402 route pipeline for one request. The
// path override carries MCP route keys in place of the URL path.
//
// Free-tier restrictions (price 0) short-circuit: the request is counted via
// telemetry but never blocked.
func handlePaymentRequest(ctx context.Context, core *WorkerCore, adapter RequestAdapter, metadata RequestMetadata, pathOverride string) (ProcessRequestResult, error) {
	server, err := core.httpServer.Get(ctx)
	if err != nil {
		return ProcessRequestResult{}, err
	}
	if server == nil {
		return noPaymentRequired(metadata), nil
	}

	path := pathOverride
	if path == "" {
		path = adapter.GetPath()
	}

	paymentHeader := adapter.GetHeader(xhttp.PaymentSignatureHeader)
	if paymentHeader == "" {
		paymentHeader = adapter.GetHeader(xhttp.XPaymentHeader)
	}

	reqCtx := xhttp.HTTPRequestContext{
		Adapter:       adapter,
		Path:          path,
		Method:        adapter.GetMethod(),
		PaymentHeader: paymentHeader,
	}

	if !server.RequiresPayment(reqCtx) {
		return noPaymentRequired(metadata), nil
	}

	serverResult := server.ProcessWithRestriction(ctx, reqCtx)
	result := ProcessRequestResult{
		Type:                serverResult.Type,
		Metadata:            metadata,
		Restriction:         serverResult.Restriction,
		Response:            serverResult.Response,
		PaymentPayload:      serverResult.PaymentPayload,
		PaymentRequirements: serverResult.PaymentRequirements,
	}

	if result.Type == ResultPaymentError {
		if result.Restriction != nil && result.Restriction.Base().Price == 0 {
			core.logEvent(ctx, adapter, 200, metadata.RequestID, "")
			return noPaymentRequired(metadata), nil
		}

		status := 402
		if result.Response != nil {
			status = result.Response.Status
		}
		core.logEvent(ctx, adapter, status, metadata.RequestID, "")
	}

	return result, nil
}

// handleRequest is the normal (non-health, non-MCP) pipeline
func handleRequest(ctx context.Context, core *WorkerCore, adapter RequestAdapter, metadata RequestMetadata) (ProcessRequestResult, error) {
	var bot *Bot
	if userAgent := adapter.GetUserAgent(); userAgent != "" {
		var err error
		bot, err = core.bots.Match(ctx, userAgent)
		if err != nil {
			return ProcessRequestResult{}, err
		}
	}

	hostConfig, err := core.hostConfig.Get(ctx)
	if err != nil {
		return ProcessRequestResult{}, err
	}

	shouldCheck := bot != nil || (hostConfig != nil && hostConfig.APIProtectionMode == ProtectionModeAll)
	if !shouldCheck {
		return noPaymentRequired(metadata), nil
	}

	result, err := handlePaymentRequest(ctx, core, adapter, metadata, "")
	if err != nil {
		return ProcessRequestResult{}, err
	}

	if result.Type != ResultPaymentError {
		return result, nil
	}

	// Web restrictions are bot-only: regular browser traffic passes through
	if result.Restriction != nil && result.Restriction.Kind() == RestrictionWeb && bot == nil {
		return noPaymentRequired(metadata), nil
	}

	paymentMethods, err := core.paymentMethods.Get(ctx)
	if err != nil {
		return ProcessRequestResult{}, err
	}

	termsOfServiceURL := ""
	if hostConfig != nil {
		termsOfServiceURL = hostConfig.TermsOfServiceURL
	}

	if len(paymentMethods) > 0 && result.Restriction != nil {
		switch restriction := result.Restriction.(type) {
		case APIRestriction:
			formatAPIPaymentError(&result, restriction, paymentMethods, termsOfServiceURL)
		case WebRestriction:
			formatWebPaymentError(&result, restriction, paymentMethods, adapter, termsOfServiceURL)
		}
	}

	if bot != nil && bot.Force200 && result.Response != nil {
		result.Response.Status = 200
	}

	return result, nil
}

// handleSettlement settles a verified payment after the upstream responded.
// Settlement is skipped entirely when the upstream failed.
func handleSettlement(ctx context.Context, core *WorkerCore, adapter RequestAdapter, payload x402.PaymentPayload, requirements x402.PaymentRequirements, upstreamStatusCode int, requestID string) xhttp.ProcessSettleResult {
	server, err := core.httpServer.Get(ctx)
	if err != nil || server == nil {
		return settlementFailure("Server not initialized")
	}

	if upstreamStatusCode >= 400 {
		core.logEvent(ctx, adapter, upstreamStatusCode, requestID, "")
		return settlementFailure("Upstream error")
	}

	result := server.ProcessSettlement(ctx, payload, requirements)

	if result.Success {
		core.logEvent(ctx, adapter, upstreamStatusCode, requestID, result.Headers[xhttp.PaymentResponseHeader])
	} else {
		core.logEvent(ctx, adapter, 402, requestID, "")
	}

	return result
}
