package models

import (
	"time"

	"github.com/gocql/gocql"
)

// AuditLog is one entry of the admin audit trail.
type AuditLog struct {
	ID         gocql.UUID `json:"id"`
	UserID     string     `json:"user_id"`
	UserEmail  string     `json:"user_email"`
	Action     string     `json:"action"`
	Resource   string     `json:"resource"`
	ResourceID string     `json:"resource_id,omitempty"`
	OldValue   string     `json:"old_value,omitempty"`
	NewValue   string     `json:"new_value,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	Success    bool       `json:"success"`
	ErrorMsg   string     `json:"error_msg,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

const (
	ActionOrderCreate   = "order.create"
	ActionOrderStatus   = "order.status"
	ActionOrderNote     = "order.note"
	ActionOrderRefund   = "order.refund"
	ActionOrderPayment  = "order.payment"
	ActionStockAlert    = "stock.alert"
	ActionStockUpdate   = "stock.update"
	ActionProductSave   = "product.save"
	ActionCouponCreate  = "coupon.create"
	ActionCouponUpdate  = "coupon.update"
	ActionCouponDelete  = "coupon.delete"
	ActionSettingsWrite = "settings.update"
)

const (
	ResourceOrder     = "order"
	ResourceInventory = "inventory"
	ResourceProduct   = "product"
	ResourceCoupon    = "coupon"
	ResourceSettings  = "settings"
)
