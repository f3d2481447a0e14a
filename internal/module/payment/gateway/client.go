// Package gateway talks to the external card-payment processor. It is
// transport and normalization only: it never touches domain state, and it
// maps the processor's free-text status words onto a small, stable outcome
// enum at the boundary.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/casalinda/server/internal/shared/config"
	"github.com/casalinda/server/internal/shared/metrics"
)

// Outcome is the normalized classification of a charge attempt.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomePending  Outcome = "pending"
	// OutcomeError covers network failures, timeouts, non-2xx responses
	// and unclassifiable status text. It fails the order like a rejection
	// but is flagged separately for diagnostics.
	OutcomeError Outcome = "gateway_error"
)

// ErrUnavailable is returned when the processor cannot be reached at all,
// including when the circuit breaker is open.
var ErrUnavailable = errors.New("payment gateway unavailable")

// AuthError reports a failed credential exchange with the processor. It is
// always fatal for the current payment attempt; no charge is made.
type AuthError struct {
	StatusCode int
	Detail     string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("gateway authentication failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("gateway authentication failed (status %d): %s", e.StatusCode, e.Detail)
}

// CardData is the single-use card input for a charge. It lives only for
// the duration of the call and is never persisted or logged.
type CardData struct {
	Number       string `json:"number"`
	HolderName   string `json:"holder_name"`
	ExpiryMonth  string `json:"expiry_month"`
	ExpiryYear   string `json:"expiry_year"`
	CVC          string `json:"cvc"`
	Installments int    `json:"installments"`
}

// CustomerData identifies the payer to the processor.
type CustomerData struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
}

// ChargeRequest is one charge attempt against the processor.
type ChargeRequest struct {
	Amount   int64
	Currency string
	// Reference correlates the charge with the order; the processor
	// echoes it back in callbacks.
	Reference string
	// OrderID and CustomerID ride along as opaque tracking metadata.
	OrderID    string
	CustomerID string
	Card       CardData
	Customer   CustomerData
}

// ChargeResult is the normalized union of every processor response shape.
// Which fields are set depends on the Outcome.
type ChargeResult struct {
	Outcome           Outcome
	TransactionID     string
	ReferenceCode     string
	AuthorizationCode string
	ReasonCode        string
	ReasonText        string
	StatusText        string
	// RawPayload is the processor's response body, kept for audit only.
	RawPayload string
}

// Client is the HTTP client for the card-payment processor. A session
// token obtained via Authenticate is required for charges; each payment
// attempt performs its own exchange.
type Client struct {
	baseURL    string
	publicKey  string
	privateKey string

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewClient creates a new gateway client. The circuit breaker opens after
// the configured number of consecutive failures and half-opens after the
// breaker timeout.
func NewClient(cfg config.GatewayConfig, m *metrics.Metrics, logger *zap.Logger) *Client {
	settings := gobreaker.Settings{
		Name: "payment-gateway",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		Timeout: cfg.BreakerTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		publicKey:  cfg.PublicKey,
		privateKey: cfg.PrivateKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		metrics:    m,
		logger:     logger,
	}
}

type loginResponse struct {
	Token string `json:"token"`
}

// Authenticate performs the service-level credential exchange and returns
// a session token. Missing credentials or a processor rejection yield an
// AuthError; transport failures yield ErrUnavailable.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if c.publicKey == "" || c.privateKey == "" {
		return "", &AuthError{Detail: "missing gateway credentials"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/auth/login", http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.SetBasicAuth(c.publicKey, c.privateKey)

	start := time.Now()
	body, status, err := c.do(req)
	c.metrics.RecordGatewayCall("authenticate", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status != http.StatusOK {
		return "", &AuthError{StatusCode: status, Detail: truncate(string(body), 200)}
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		return "", &AuthError{StatusCode: status, Detail: "malformed token response"}
	}
	return resp.Token, nil
}

type chargePayload struct {
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency"`
	Reference    string       `json:"reference"`
	OrderID      string       `json:"order_id"`
	CustomerID   string       `json:"customer_id"`
	Card         CardData     `json:"card"`
	Customer     CustomerData `json:"customer"`
	Installments int          `json:"installments"`
}

type chargeResponse struct {
	TransactionID     string `json:"transaction_id"`
	ReferenceCode     string `json:"reference_code"`
	AuthorizationCode string `json:"authorization_code"`
	Status            string `json:"status"`
	ReasonCode        string `json:"reason_code"`
	ReasonText        string `json:"reason_text"`
}

// Charge submits a single-use card charge. It never returns an error for
// processor-side failures: network trouble, non-2xx responses and
// unrecognized status text all come back as OutcomeError results, since
// the charge may still have landed on the processor's side and callback
// reconciliation has to stay possible.
func (c *Client) Charge(ctx context.Context, token string, req *ChargeRequest) *ChargeResult {
	card := req.Card
	card.ExpiryYear = NormalizeExpiryYear(card.ExpiryYear)
	if card.Installments < 1 {
		card.Installments = 1
	}

	payload := chargePayload{
		Amount:       req.Amount,
		Currency:     req.Currency,
		Reference:    req.Reference,
		OrderID:      req.OrderID,
		CustomerID:   req.CustomerID,
		Card:         card,
		Customer:     req.Customer,
		Installments: card.Installments,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &ChargeResult{Outcome: OutcomeError, RawPayload: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/transactions/charge", bytes.NewReader(body))
	if err != nil {
		return &ChargeResult{Outcome: OutcomeError, RawPayload: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	respBody, status, err := c.do(httpReq)
	c.metrics.RecordGatewayCall("charge", time.Since(start))
	if err != nil {
		c.logger.Warn("gateway charge transport failure",
			zap.String("reference", req.Reference),
			zap.Error(err))
		return &ChargeResult{Outcome: OutcomeError, RawPayload: err.Error()}
	}

	return c.normalize(respBody, status)
}

// normalize decodes a processor response into the result union. The raw
// body is always preserved for audit; the response shape never leaks past
// this point.
func (c *Client) normalize(body []byte, status int) *ChargeResult {
	result := &ChargeResult{RawPayload: string(body)}

	var resp chargeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		result.Outcome = OutcomeError
		return result
	}

	result.TransactionID = resp.TransactionID
	result.ReferenceCode = resp.ReferenceCode
	result.StatusText = resp.Status

	if status < 200 || status > 299 {
		result.Outcome = OutcomeError
		result.ReasonCode = resp.ReasonCode
		result.ReasonText = resp.ReasonText
		return result
	}

	result.Outcome = Classify(resp.Status)
	switch result.Outcome {
	case OutcomeApproved:
		result.AuthorizationCode = resp.AuthorizationCode
	case OutcomeRejected:
		result.ReasonCode = resp.ReasonCode
		result.ReasonText = resp.ReasonText
		if result.ReasonText == "" {
			result.ReasonText = resp.Status
		}
	}
	return result
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	var status int
	body, err := c.breaker.Execute(func() ([]byte, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, 0, err
	}
	return body, status, nil
}

// approvedWords, rejectedWords and pendingWords drive the keyword
// classification. The processor mixes Spanish and English status text.
var (
	approvedWords = []string{"aceptada", "aprobada", "approved"}
	rejectedWords = []string{"rechazada", "rejected", "fallida", "failed"}
	pendingWords  = []string{"pendiente", "pending"}
)

// Classify maps the processor's free-text status onto an outcome. The
// match is case-insensitive substring containment; unrecognized text is a
// gateway error, not a guess.
func Classify(statusText string) Outcome {
	text := strings.ToLower(statusText)
	switch {
	case containsAny(text, approvedWords):
		return OutcomeApproved
	case containsAny(text, rejectedWords):
		return OutcomeRejected
	case containsAny(text, pendingWords):
		return OutcomePending
	default:
		return OutcomeError
	}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// NormalizeExpiryYear expands a 2-digit expiry year to 4 digits by
// prefixing the current century. 4-digit years pass through unchanged.
func NormalizeExpiryYear(year string) string {
	if len(year) != 2 {
		return year
	}
	century := time.Now().Year() / 100
	return fmt.Sprintf("%d%s", century, year)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
