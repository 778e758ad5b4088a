package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"golang.org/x/time/rate"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	maxGatewayBody        = 1 << 20
)

type gatewayTransaction struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}

// Gateway queries a JSON transaction-status API at GET {base}/v1/transactions/{paymentId}
type Gateway struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewGateway creates an HTTP verification backend. client may be nil.
func NewGateway(cfg GatewayConfig, client *http.Client) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gateway base url must be http or https, got %q", base.Scheme)
	}

	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultGatewayTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Gateway{baseURL: base, apiKey: cfg.APIKey, client: client, limiter: limiter}, nil
}

func (g *Gateway) CheckPaid(ctx context.Context, p *domain.Payment) (Verdict, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Verdict{}, unavailable(BackendGateway, err)
	}

	endpoint := g.baseURL.JoinPath("v1", "transactions", p.PaymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Verdict{}, unavailable(BackendGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if err != nil {
		return Verdict{}, unavailable(BackendGateway, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// the gateway has not seen the transaction yet
		return Verdict{Outcome: OutcomePending}, nil
	case resp.StatusCode != http.StatusOK:
		return Verdict{}, unavailable(BackendGateway, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var tx gatewayTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return Verdict{}, unavailable(BackendGateway, fmt.Errorf("malformed response: %w", err))
	}

	return Verdict{
		Outcome:       gatewayOutcome(tx.Status),
		TransactionID: tx.TransactionID,
		GatewayData:   json.RawMessage(body),
	}, nil
}

func gatewayOutcome(status string) Outcome {
	switch strings.ToLower(status) {
	case "paid", "success", "completed", "settled":
		return OutcomePaid
	case "failed", "denied", "declined", "cancelled", "expired":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}
