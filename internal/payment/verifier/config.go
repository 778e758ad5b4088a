package verifier

import "time"

// Backend names accepted in configuration
const (
	BackendMock     = "mock"
	BackendKBank    = "kbank"
	BackendSCB      = "scb"
	BackendGateway  = "gateway"
	BackendMidtrans = "midtrans"
	BackendStripe   = "stripe"
)

// Config selects and parameterizes a verification backend
type Config struct {
	Backend  string
	Mock     MockConfig
	Gateway  GatewayConfig
	Midtrans MidtransConfig
	Stripe   StripeConfig
}

// MockConfig controls the development backend
type MockConfig struct {
	// AutoApproveAfter is the payment age after which the mock reports paid. Zero approves immediately.
	AutoApproveAfter time.Duration
	// Outcome overrides the reported outcome once the delay elapsed; empty means paid.
	Outcome Outcome
}

// GatewayConfig points at a JSON transaction-status API
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond caps outgoing status calls; zero means unlimited
	RequestsPerSecond float64
	Burst             int
}

// MidtransConfig holds Core API credentials
type MidtransConfig struct {
	ServerKey    string
	IsProduction bool
}

// StripeConfig holds the secret API key
type StripeConfig struct {
	SecretKey string
}
