package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignatureHeader carries the processor's HMAC-SHA256 signature of the
// callback body, hex encoded.
const SignatureHeader = "X-Gateway-Signature"

// WebhookHandler receives asynchronous confirmation callbacks from the
// payment processor.
type WebhookHandler struct {
	service *Service
	secret  string
	logger  *zap.Logger
}

// NewWebhookHandler creates a new webhook handler. An empty secret
// disables signature verification.
func NewWebhookHandler(service *Service, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, secret: secret, logger: logger}
}

// RegisterRoutes registers the callback routes. They are unauthenticated;
// the processor does not hold a customer token.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/gateway/callback", h.HandleCallback)
}

// HandleCallback reconciles one processor callback. It answers 200 even
// on no-op reconciliation so the processor never retry-storms; the only
// non-200 answers are for deliveries worth redelivering.
func (h *WebhookHandler) HandleCallback(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		h.logger.Error("failed to read callback body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	if h.secret != "" && !validSignature(h.secret, c.GetHeader(SignatureHeader), raw) {
		h.logger.Warn("callback signature mismatch",
			zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var req CallbackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.logger.Warn("malformed callback payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	err = h.service.HandleCallback(c.Request.Context(), CallbackInput{
		TransactionID: req.TransactionID,
		ReferenceCode: req.ReferenceCode,
		StatusText:    req.Status,
		RawPayload:    string(raw),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownReference):
			// Nothing we will ever be able to do with this delivery.
			h.logger.Warn("callback for unknown reference",
				zap.String("reference_code", req.ReferenceCode))
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		case errors.Is(err, ErrChargeInProgress):
			// A charge holds the order lock; ask for redelivery.
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "retry"})
		default:
			h.logger.Error("callback reconciliation failed",
				zap.String("reference_code", req.ReferenceCode),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// validSignature checks the hex HMAC-SHA256 of the body against the
// presented signature in constant time.
func validSignature(secret, signature string, body []byte) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
