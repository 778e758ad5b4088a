package verifier

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func pendingPayment(createdAt time.Time) *domain.Payment {
	return &domain.Payment{
		PaymentID: "PAY20260501090000000-ABCDEF012345",
		Status:    domain.StatusPending,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(domain.DefaultPaymentTTL),
	}
}

func TestRegistry_Build(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"gateway", "kbank", "midtrans", "mock", "scb", "stripe"}, r.Names())

	v, err := r.Build(Config{Backend: "MOCK"}, discard)
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, v)

	_, err = r.Build(Config{Backend: "paypal"}, discard)
	assert.ErrorContains(t, err, "unknown verification backend")

	_, err = r.Build(Config{Backend: BackendGateway}, discard)
	assert.ErrorContains(t, err, "base url is required")

	_, err = r.Build(Config{Backend: BackendMidtrans}, discard)
	assert.ErrorContains(t, err, "server key is required")

	v, err = r.Build(Config{Backend: BackendMidtrans, Midtrans: MidtransConfig{ServerKey: "SB-Mid-server-x"}}, discard)
	require.NoError(t, err)
	assert.IsType(t, &Midtrans{}, v)

	_, err = r.Build(Config{Backend: BackendStripe}, discard)
	assert.ErrorContains(t, err, "secret key is required")

	v, err = r.Build(Config{Backend: BackendStripe, Stripe: StripeConfig{SecretKey: "sk_test_x"}}, discard)
	require.NoError(t, err)
	assert.IsType(t, &Stripe{}, v)
}

func TestMock_CheckPaid(t *testing.T) {
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	now := created.Add(10 * time.Second)
	m := NewMock(MockConfig{AutoApproveAfter: 30 * time.Second}, func() time.Time { return now })

	v, err := m.CheckPaid(context.Background(), pendingPayment(created))
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, v.Outcome)

	now = created.Add(time.Minute)
	v, err = m.CheckPaid(context.Background(), pendingPayment(created))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, v.Outcome)
	assert.Equal(t, "MOCK-PAY20260501090000000-ABCDEF012345", v.TransactionID)

	failing := NewMock(MockConfig{Outcome: OutcomeFailed}, func() time.Time { return now })
	v, err = failing.CheckPaid(context.Background(), pendingPayment(created))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, v.Outcome)
}

func TestBankPlaceholder_IsUnavailable(t *testing.T) {
	for _, name := range []string{BackendKBank, BackendSCB} {
		_, err := NewBankPlaceholder(name, discard).CheckPaid(context.Background(), pendingPayment(time.Now()))
		assert.ErrorIs(t, err, domain.ErrVerificationUnavailable)
	}
}

func TestGateway_CheckPaid(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome Outcome
		txID    string
		wantErr bool
	}{
		{name: "paid", status: http.StatusOK, body: `{"status":"success","transaction_id":"tx-9"}`, outcome: OutcomePaid, txID: "tx-9"},
		{name: "failed", status: http.StatusOK, body: `{"status":"declined"}`, outcome: OutcomeFailed},
		{name: "still pending", status: http.StatusOK, body: `{"status":"processing"}`, outcome: OutcomePending},
		{name: "unknown transaction", status: http.StatusNotFound, body: `{}`, outcome: OutcomePending},
		{name: "server error", status: http.StatusBadGateway, body: `oops`, wantErr: true},
		{name: "malformed body", status: http.StatusOK, body: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/transactions/PAY20260501090000000-ABCDEF012345", r.URL.Path)
				assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g, err := NewGateway(GatewayConfig{BaseURL: srv.URL, APIKey: "secret-key"}, srv.Client())
			require.NoError(t, err)

			v, err := g.CheckPaid(context.Background(), pendingPayment(time.Now()))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrVerificationUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, v.Outcome)
			assert.Equal(t, tt.txID, v.TransactionID)
		})
	}
}

func TestGateway_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	g, err := NewGateway(GatewayConfig{BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = g.CheckPaid(ctx, pendingPayment(time.Now()))
	assert.ErrorIs(t, err, domain.ErrVerificationUnavailable)
}

func TestNewGateway_RejectsBadURL(t *testing.T) {
	_, err := NewGateway(GatewayConfig{BaseURL: "ftp://bank.example"}, nil)
	assert.Error(t, err)
}

type fakeMidtrans struct {
	resp  *coreapi.TransactionStatusResponse
	err   *midtrans.Error
	block chan struct{}
}

func (f *fakeMidtrans) CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error) {
	if f.block != nil {
		<-f.block
	}
	return f.resp, f.err
}

func TestMidtrans_CheckPaid(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeMidtrans
		outcome Outcome
		wantErr bool
	}{
		{name: "settlement", fake: &fakeMidtrans{resp: &coreapi.TransactionStatusResponse{TransactionStatus: "settlement", TransactionID: "mt-1"}}, outcome: OutcomePaid},
		{name: "capture accepted", fake: &fakeMidtrans{resp: &coreapi.TransactionStatusResponse{TransactionStatus: "capture", FraudStatus: "accept"}}, outcome: OutcomePaid},
		{name: "capture challenged", fake: &fakeMidtrans{resp: &coreapi.TransactionStatusResponse{TransactionStatus: "capture", FraudStatus: "challenge"}}, outcome: OutcomePending},
		{name: "expired", fake: &fakeMidtrans{resp: &coreapi.TransactionStatusResponse{TransactionStatus: "expire"}}, outcome: OutcomeFailed},
		{name: "pending", fake: &fakeMidtrans{resp: &coreapi.TransactionStatusResponse{TransactionStatus: "pending"}}, outcome: OutcomePending},
		{name: "not found", fake: &fakeMidtrans{err: &midtrans.Error{Message: "not found", StatusCode: http.StatusNotFound}}, outcome: OutcomePending},
		{name: "api error", fake: &fakeMidtrans{err: &midtrans.Error{Message: "unauthorized", StatusCode: http.StatusUnauthorized}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := newMidtransWithClient(tt.fake).CheckPaid(context.Background(), pendingPayment(time.Now()))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrVerificationUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, v.Outcome)
		})
	}
}

func TestMidtrans_RespectsContext(t *testing.T) {
	fake := &fakeMidtrans{block: make(chan struct{})}
	defer close(fake.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newMidtransWithClient(fake).CheckPaid(ctx, pendingPayment(time.Now()))
	assert.ErrorIs(t, err, domain.ErrVerificationUnavailable)
}
