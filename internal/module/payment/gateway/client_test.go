package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/casalinda/server/internal/shared/config"
	"github.com/casalinda/server/internal/shared/metrics"
)

var testMetrics = metrics.New("test_gateway")

func newTestClient(baseURL string) *Client {
	return NewClient(config.GatewayConfig{
		BaseURL:          baseURL,
		PublicKey:        "pub_test",
		PrivateKey:       "prv_test",
		Timeout:          2 * time.Second,
		FailureThreshold: 100,
		BreakerTimeout:   time.Minute,
	}, testMetrics, zap.NewNop())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Outcome
	}{
		{"APROBADA", OutcomeApproved},
		{"Transacción Aceptada", OutcomeApproved},
		{"approved", OutcomeApproved},
		{"Transacción Rechazada", OutcomeRejected},
		{"REJECTED", OutcomeRejected},
		{"Transacción fallida", OutcomeRejected},
		{"payment failed", OutcomeRejected},
		{"Pago Pendiente de confirmación", OutcomePending},
		{"PENDING", OutcomePending},
		{"", OutcomeError},
		{"¯\\_(ツ)_/¯", OutcomeError},
		{"en proceso", OutcomeError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.text), "status text %q", tt.text)
	}
}

func TestNormalizeExpiryYear(t *testing.T) {
	century := time.Now().Year() / 100

	assert.Equal(t, fmt.Sprintf("%d25", century), NormalizeExpiryYear("25"))
	assert.Equal(t, "2030", NormalizeExpiryYear("2030"))
	assert.Equal(t, "7", NormalizeExpiryYear("7"))
}

func TestAuthenticate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/auth/login", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "pub_test", user)
		assert.Equal(t, "prv_test", pass)

		json.NewEncoder(w).Encode(loginResponse{Token: "session-token"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	token, err := client.Authenticate(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, "session-token", token)
}

func TestAuthenticate_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad credentials"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Authenticate(context.Background())

	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	client := NewClient(config.GatewayConfig{
		BaseURL: "http://localhost:1",
		Timeout: time.Second,
	}, testMetrics, zap.NewNop())

	_, err := client.Authenticate(context.Background())

	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestCharge_Approved(t *testing.T) {
	var received chargePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions/charge", r.URL.Path)
		assert.Equal(t, "Bearer session-token", r.Header.Get("Authorization"))
		json.NewDecoder(r.Body).Decode(&received)

		json.NewEncoder(w).Encode(chargeResponse{
			TransactionID:     "txn-1",
			ReferenceCode:     "ref-1",
			AuthorizationCode: "auth-1",
			Status:            "APROBADA",
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result := client.Charge(context.Background(), "session-token", &ChargeRequest{
		Amount:    134000,
		Currency:  "cop",
		Reference: "ORD-20260901-ABC123",
		Card: CardData{
			Number:      "4111111111111111",
			HolderName:  "ANA PEREZ",
			ExpiryMonth: "09",
			ExpiryYear:  "28",
			CVC:         "123",
		},
	})

	assert.Equal(t, OutcomeApproved, result.Outcome)
	assert.Equal(t, "txn-1", result.TransactionID)
	assert.Equal(t, "ref-1", result.ReferenceCode)
	assert.Equal(t, "auth-1", result.AuthorizationCode)
	assert.NotEmpty(t, result.RawPayload)

	// 2-digit year is expanded before it reaches the processor.
	century := time.Now().Year() / 100
	assert.Equal(t, fmt.Sprintf("%d28", century), received.Card.ExpiryYear)
	assert.Equal(t, 1, received.Installments)
}

func TestCharge_RejectedKeepsReasonText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chargeResponse{
			TransactionID: "txn-2",
			Status:        "Transacción rechazada por fondos insuficientes",
			ReasonCode:    "51",
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result := client.Charge(context.Background(), "t", &ChargeRequest{Amount: 1000, Currency: "cop"})

	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, "51", result.ReasonCode)
	assert.Equal(t, "Transacción rechazada por fondos insuficientes", result.ReasonText)
}

func TestCharge_PendingConfirmation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chargeResponse{
			TransactionID: "txn-3",
			ReferenceCode: "ref-3",
			Status:        "Pago Pendiente de confirmación",
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result := client.Charge(context.Background(), "t", &ChargeRequest{Amount: 1000, Currency: "cop"})

	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, "txn-3", result.TransactionID)
}

func TestCharge_Non2xxIsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(chargeResponse{Status: "APROBADA"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result := client.Charge(context.Background(), "t", &ChargeRequest{Amount: 1000, Currency: "cop"})

	// Even approval-looking text on a non-2xx never counts as approved.
	assert.Equal(t, OutcomeError, result.Outcome)
}

func TestCharge_UnclassifiableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chargeResponse{Status: "estado desconocido"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result := client.Charge(context.Background(), "t", &ChargeRequest{Amount: 1000, Currency: "cop"})

	assert.Equal(t, OutcomeError, result.Outcome)
}

func TestCharge_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := newTestClient(srv.URL)
	result := client.Charge(context.Background(), "t", &ChargeRequest{Amount: 1000, Currency: "cop"})

	assert.Equal(t, OutcomeError, result.Outcome)
	assert.NotEmpty(t, result.RawPayload)
}

func TestCharge_CircuitBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(config.GatewayConfig{
		BaseURL:          srv.URL,
		PublicKey:        "pub",
		PrivateKey:       "prv",
		Timeout:          time.Second,
		FailureThreshold: 2,
		BreakerTimeout:   time.Minute,
	}, testMetrics, zap.NewNop())

	for i := 0; i < 3; i++ {
		result := client.Charge(context.Background(), "t", &ChargeRequest{Amount: 1, Currency: "cop"})
		assert.Equal(t, OutcomeError, result.Outcome)
	}
}
