package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

// Valid reports whether s is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

// Terminal states accept no further status transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled || s == OrderRefunded
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

const (
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
)

type Order struct {
	ID              primitive.ObjectID `json:"_id" bson:"_id"`
	OrderNumber     string             `json:"orderNumber" bson:"orderNumber"`
	Items           []OrderItem        `json:"items" bson:"items"`
	CustomerName    string             `json:"customerName" bson:"customerName"`
	UserID          string             `json:"userId,omitempty" bson:"userId,omitempty"`
	GuestEmail      string             `json:"guestEmail,omitempty" bson:"guestEmail,omitempty"`
	CustomerEmail   string             `json:"customerEmail,omitempty" bson:"customerEmail,omitempty"`
	ShippingAddress Address            `json:"shippingAddress" bson:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod" bson:"paymentMethod"`
	PaymentStatus   PaymentStatus      `json:"paymentStatus" bson:"paymentStatus"`
	PaymentIntentID string             `json:"paymentIntentId,omitempty" bson:"paymentIntentId,omitempty"`
	IsPaid          bool               `json:"isPaid" bson:"isPaid"`
	PaidAt          *time.Time         `json:"paidAt" bson:"paidAt"`
	DeliveredAt     *time.Time         `json:"deliveredAt" bson:"deliveredAt"`
	RefundedAt      *time.Time         `json:"refundedAt,omitempty" bson:"refundedAt,omitempty"`
	Status          OrderStatus        `json:"status" bson:"status"`
	Subtotal        decimal.Decimal    `json:"subtotal" bson:"subtotal"`
	ShippingFee     decimal.Decimal    `json:"shippingFee" bson:"shippingFee"`
	Discount        decimal.Decimal    `json:"discount" bson:"discount"`
	Total           decimal.Decimal    `json:"total" bson:"total"`
	CouponCode      string             `json:"couponCode,omitempty" bson:"couponCode,omitempty"`
	Timeline        []TimelineEntry    `json:"timeline" bson:"timeline"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ContactEmail is where customer notifications are sent.
func (o *Order) ContactEmail() string {
	if o.GuestEmail != "" {
		return o.GuestEmail
	}
	return o.CustomerEmail
}

type OrderItem struct {
	ProductID   primitive.ObjectID `json:"productId" bson:"productId"`
	Title       string             `json:"title" bson:"title"`
	Quantity    int                `json:"quantity" bson:"quantity"`
	UnitPrice   decimal.Decimal    `json:"unitPrice" bson:"unitPrice"`
	VariantID   string             `json:"variantId,omitempty" bson:"variantId,omitempty"`
	VariantName string             `json:"variantName,omitempty" bson:"variantName,omitempty"`
	Image       string             `json:"image,omitempty" bson:"image,omitempty"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type TimelineEntry struct {
	Status    OrderStatus `json:"status" bson:"status"`
	Note      string      `json:"note,omitempty" bson:"note,omitempty"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
}

type Address struct {
	Street  string `json:"street,omitempty" bson:"street,omitempty"`
	City    string `json:"city,omitempty" bson:"city,omitempty"`
	State   string `json:"state,omitempty" bson:"state,omitempty"`
	Zip     string `json:"zip,omitempty" bson:"zip,omitempty"`
	Country string `json:"country,omitempty" bson:"country,omitempty"`
}
