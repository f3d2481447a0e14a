package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/casalinda/server/internal/module/cart"
	"github.com/casalinda/server/internal/module/order"
	"github.com/casalinda/server/internal/module/payment"
)

// orderDirector adapts the order service to the slim contract the payment
// module consumes.
type orderDirector struct {
	orders *order.Service
}

var _ payment.OrderDirector = (*orderDirector)(nil)

func (d *orderDirector) GetOrderForCustomer(ctx context.Context, orderID, customerID uuid.UUID) (*payment.OrderInfo, error) {
	o, err := d.orders.GetForCustomer(ctx, orderID, customerID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	return toOrderInfo(o), nil
}

func (d *orderDirector) GetOrderByReferenceCode(ctx context.Context, referenceCode string) (*payment.OrderInfo, error) {
	o, err := d.orders.GetByReferenceCode(ctx, referenceCode)
	if err != nil {
		return nil, mapOrderError(err)
	}
	return toOrderInfo(o), nil
}

func (d *orderDirector) LockForPayment(ctx context.Context, orderID uuid.UUID) (func(), error) {
	return d.orders.LockForPayment(ctx, orderID)
}

func (d *orderDirector) MarkPaymentApproved(ctx context.Context, orderID uuid.UUID, transactionID, referenceCode, rawResponse string) (*payment.OrderInfo, error) {
	o, err := d.orders.MarkPaymentApproved(ctx, orderID, transactionID, referenceCode, rawResponse)
	if err != nil {
		return nil, mapOrderError(err)
	}
	return toOrderInfo(o), nil
}

func (d *orderDirector) MarkPaymentRejected(ctx context.Context, orderID uuid.UUID, reasonCode, reasonText, rawResponse string) (*payment.OrderInfo, error) {
	o, err := d.orders.MarkPaymentRejected(ctx, orderID, reasonCode, reasonText, rawResponse)
	if err != nil {
		return nil, mapOrderError(err)
	}
	return toOrderInfo(o), nil
}

func (d *orderDirector) RecordGatewayReference(ctx context.Context, orderID uuid.UUID, transactionID, referenceCode, rawResponse string) (*payment.OrderInfo, error) {
	o, err := d.orders.RecordGatewayReference(ctx, orderID, transactionID, referenceCode, rawResponse)
	if err != nil {
		return nil, mapOrderError(err)
	}
	return toOrderInfo(o), nil
}

func toOrderInfo(o *order.Order) *payment.OrderInfo {
	return &payment.OrderInfo{
		ID:             o.ID,
		OrderNo:        o.OrderNo,
		CustomerID:     o.CustomerID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		Total:          o.Total,
		Currency:       o.Currency,
		CustomerName:   o.CustomerName,
		CustomerEmail:  o.CustomerEmail,
		CustomerPhone:  o.CustomerPhone,
		DocumentType:   o.Shipping.DocumentType,
		DocumentNumber: o.Shipping.DocumentNumber,
		ReferenceCode:  o.GatewayReferenceCode,
	}
}

func mapOrderError(err error) error {
	if errors.Is(err, order.ErrOrderNotFound) {
		return payment.ErrOrderNotFound
	}
	return err
}

// cartSource adapts the cart service to the order module's snapshot hook.
type cartSource struct {
	carts *cart.Service
}

var _ order.CartSource = (*cartSource)(nil)

func (s *cartSource) GetSnapshot(ctx context.Context, customerID uuid.UUID) (order.CartSnapshot, error) {
	c, err := s.carts.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	snapshot := make(order.CartSnapshot, 0, len(c.Items))
	for _, item := range c.Items {
		snapshot = append(snapshot, order.CartLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return snapshot, nil
}

func (s *cartSource) Clear(ctx context.Context, customerID uuid.UUID) error {
	return s.carts.Clear(ctx, customerID)
}
