package x402

import "context"

// SchemeNetworkService is implemented by server-side payment mechanisms.
// One service handles one scheme across a family of networks (e.g. exact
// payments on all eip155 chains).
type SchemeNetworkService interface {
	Scheme() string

	// ParsePrice converts a price string into an AssetAmount for the network.
	// Accepts "$1.00", decimal amounts, and amounts already in the asset's
	// smallest unit.
	ParsePrice(price string, network Network) (AssetAmount, error)

	// EnhancePaymentRequirements adds scheme-specific details (e.g. EIP-712
	// domain fields, fee payer addresses) to base requirements.
	EnhancePaymentRequirements(ctx context.Context, requirements PaymentRequirements, supportedKind SupportedKind) (PaymentRequirements, error)
}

// FacilitatorClient is the network boundary to a remote facilitator.
// Uses bytes at the boundary; callers marshal typed structs before the call.
type FacilitatorClient interface {
	// Verify checks whether a payment is valid
	Verify(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (VerifyResponse, error)

	// Settle executes a verified payment
	Settle(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (SettleResponse, error)

	// GetSupported returns the payment kinds the facilitator supports
	GetSupported(ctx context.Context) (SupportedResponse, error)
}
