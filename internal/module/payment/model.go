package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Status is the recorded outcome of one charge attempt.
type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPending  Status = "pending"
)

// Payment is one recorded charge attempt against an order. Card data is
// never stored here; only the processor's correlation fields and the
// opaque raw response survive the call.
type Payment struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`

	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`

	Status     Status `json:"status" gorm:"not null;index"`
	StatusText string `json:"status_text,omitempty"`

	TransactionID     string `json:"transaction_id,omitempty" gorm:"index"`
	ReferenceCode     string `json:"reference_code,omitempty" gorm:"index"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	ReasonCode        string `json:"reason_code,omitempty"`
	ReasonText        string `json:"reason_text,omitempty"`

	// GatewayErrored marks attempts that failed at the transport level or
	// with unclassifiable status text, as opposed to an explicit rejection.
	GatewayErrored bool `json:"gateway_errored" gorm:"default:false"`

	RawResponse string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (Payment) TableName() string {
	return "payments"
}

// GatewayEvent is one processed reconciliation callback. The unique event
// key makes redelivered callbacks no-ops.
type GatewayEvent struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventKey string    `json:"event_key" gorm:"uniqueIndex;not null"`

	OrderID       uuid.UUID `json:"order_id" gorm:"type:uuid;index"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ReferenceCode string    `json:"reference_code,omitempty"`
	StatusText    string    `json:"status_text,omitempty"`

	// Applied is false when the callback arrived after the order was
	// already settled and the event was recorded as a no-op.
	Applied bool `json:"applied" gorm:"default:false"`

	RawPayload string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (GatewayEvent) TableName() string {
	return "gateway_events"
}

// EventKey derives a stable dedup key from the callback's identifying
// fields, so the same delivery hashed twice lands on the unique index.
func EventKey(transactionID, referenceCode, statusText string) string {
	sum := sha256.Sum256([]byte(transactionID + "|" + referenceCode + "|" + statusText))
	return hex.EncodeToString(sum[:])
}
