package payment

import "github.com/casalinda/server/internal/module/payment/gateway"

// PayOrderRequest carries the single-use card data for a charge attempt.
// It is forwarded to the processor and never persisted.
type PayOrderRequest struct {
	CardNumber   string `json:"card_number" binding:"required"`
	HolderName   string `json:"holder_name" binding:"required"`
	ExpiryMonth  string `json:"expiry_month" binding:"required,len=2"`
	ExpiryYear   string `json:"expiry_year" binding:"required,min=2,max=4"`
	CVC          string `json:"cvc" binding:"required,min=3,max=4"`
	Installments int    `json:"installments" binding:"omitempty,min=1,max=36"`
}

// Card converts the request into gateway card data.
func (r *PayOrderRequest) Card() gateway.CardData {
	return gateway.CardData{
		Number:       r.CardNumber,
		HolderName:   r.HolderName,
		ExpiryMonth:  r.ExpiryMonth,
		ExpiryYear:   r.ExpiryYear,
		CVC:          r.CVC,
		Installments: r.Installments,
	}
}

// CallbackRequest is the body of a processor confirmation callback. The
// processor's payload shape varies; only the fields used for correlation
// and classification are bound, the rest stays in the raw body.
type CallbackRequest struct {
	TransactionID string `json:"transaction_id"`
	ReferenceCode string `json:"reference_code"`
	Status        string `json:"status"`
}
