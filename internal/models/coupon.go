package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	ID           primitive.ObjectID `json:"_id" bson:"_id"`
	Code         string             `json:"code" bson:"code"`
	Name         string             `json:"name" bson:"name"`
	DiscountType DiscountType       `json:"discountType" bson:"discountType"`
	Value        decimal.Decimal    `json:"value" bson:"value"`
	MinPurchase  *decimal.Decimal   `json:"minPurchase,omitempty" bson:"minPurchase,omitempty"`
	MaxDiscount  *decimal.Decimal   `json:"maxDiscount,omitempty" bson:"maxDiscount,omitempty"` // caps percentage discounts
	StartsAt     *time.Time         `json:"startsAt,omitempty" bson:"startsAt,omitempty"`
	ExpiresAt    *time.Time         `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
	IsActive     bool               `json:"isActive" bson:"isActive"`
	CreatedBy    string             `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// CouponValidation is the pre-checkout pricing preview returned to the storefront.
type CouponValidation struct {
	Code     string          `json:"code"`
	Coupon   string          `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
	Type     DiscountType    `json:"type"`
}
