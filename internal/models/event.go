package models

import "time"

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderNoteAdded     = "order.note_added"
	EventOrderPaid          = "order.paid"
	EventOrderPaymentFailed = "order.payment_failed"
	EventOrderRefunded      = "order.refunded"
)

// OrderEvent is broadcast after an order changes, for live status feeds.
type OrderEvent struct {
	Type          string        `json:"type"`
	OrderID       string        `json:"orderId"`
	OrderNumber   string        `json:"orderNumber"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Note          string        `json:"note,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

func NewOrderEvent(kind string, o *Order) OrderEvent {
	e := OrderEvent{
		Type:          kind,
		OrderID:       o.ID.Hex(),
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Timestamp:     o.UpdatedAt,
	}
	if n := len(o.Timeline); n > 0 {
		e.Note = o.Timeline[n-1].Note
	}
	return e
}
