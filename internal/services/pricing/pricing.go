// Package pricing resolves coupon codes into discounts and computes the
// shipping fee. Resolution never mutates the coupon.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/models"
	"storefront/internal/store"
)

var ErrInvalidCoupon = errors.New("invalid coupon code")

var hundred = decimal.NewFromInt(100)

// NormalizeCode is applied on every write and lookup so codes compare
// case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Round brings an amount to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

type Discount struct {
	Coupon *models.Coupon
	Amount decimal.Decimal
}

type Resolver struct {
	coupons store.CouponStore
	now     func() time.Time
}

func NewResolver(coupons store.CouponStore) *Resolver {
	return &Resolver{coupons: coupons, now: time.Now}
}

// Resolve returns the discount code grants on subtotal. Every rejection wraps
// ErrInvalidCoupon; store failures are returned as is.
func (r *Resolver) Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Discount{}, fmt.Errorf("%w: empty code", ErrInvalidCoupon)
	}

	c, err := r.coupons.FindByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return Discount{}, fmt.Errorf("%w: %s not found", ErrInvalidCoupon, code)
	}
	if err != nil {
		return Discount{}, fmt.Errorf("find coupon %s: %w", code, err)
	}

	if err := r.check(c, subtotal); err != nil {
		return Discount{}, err
	}
	return Discount{Coupon: c, Amount: Amount(c, subtotal)}, nil
}

func (r *Resolver) check(c *models.Coupon, subtotal decimal.Decimal) error {
	now := r.now()
	switch {
	case !c.IsActive:
		return fmt.Errorf("%w: %s is inactive", ErrInvalidCoupon, c.Code)
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return fmt.Errorf("%w: %s is not valid yet", ErrInvalidCoupon, c.Code)
	case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
		return fmt.Errorf("%w: %s has expired", ErrInvalidCoupon, c.Code)
	case c.MinPurchase != nil && subtotal.LessThan(*c.MinPurchase):
		return fmt.Errorf("%w: %s requires a minimum purchase of %s", ErrInvalidCoupon, c.Code, c.MinPurchase.StringFixed(2))
	}
	return nil
}

// Amount computes the discount for an applicable coupon. The result is never
// negative and never exceeds subtotal.
func Amount(c *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case models.DiscountPercentage:
		d = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount != nil && d.GreaterThan(*c.MaxDiscount) {
			d = *c.MaxDiscount
		}
	case models.DiscountFixed:
		d = c.Value
	}
	d = Round(d)
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	return d
}

// Preview backs the storefront's apply-coupon call.
func (r *Resolver) Preview(ctx context.Context, code string, cartTotal decimal.Decimal) (models.CouponValidation, error) {
	d, err := r.Resolve(ctx, code, cartTotal)
	if err != nil {
		return models.CouponValidation{}, err
	}
	return models.CouponValidation{
		Code:     d.Coupon.Code,
		Coupon:   d.Coupon.Name,
		Discount: d.Amount,
		Type:     d.Coupon.DiscountType,
	}, nil
}

// ShippingFee is the flat fee from settings, waived once subtotal reaches a
// positive free-shipping threshold.
func ShippingFee(s models.Settings, subtotal decimal.Decimal) decimal.Decimal {
	if s.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(s.FreeShippingThreshold) {
		return decimal.Zero
	}
	if s.ShippingFee.IsNegative() {
		return decimal.Zero
	}
	return Round(s.ShippingFee)
}
