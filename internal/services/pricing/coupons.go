package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/audit"
	"storefront/internal/models"
	"storefront/internal/store"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")
	ErrCouponExists   = errors.New("coupon code already exists")
	ErrInvalidInput   = errors.New("invalid coupon")
)

// CouponInput is the admin payload for creating or replacing a coupon.
type CouponInput struct {
	Code         string              `json:"code"`
	Name         string              `json:"name"`
	DiscountType models.DiscountType `json:"discountType"`
	Value        decimal.Decimal     `json:"value"`
	MinPurchase  *decimal.Decimal    `json:"minPurchase"`
	MaxDiscount  *decimal.Decimal    `json:"maxDiscount"`
	StartsAt     *time.Time          `json:"startsAt"`
	ExpiresAt    *time.Time          `json:"expiresAt"`
	IsActive     *bool               `json:"isActive"`
}

func (in CouponInput) validate() error {
	if NormalizeCode(in.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	switch in.DiscountType {
	case models.DiscountPercentage:
		if !in.Value.IsPositive() || in.Value.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage must be between 0 and 100", ErrInvalidInput)
		}
	case models.DiscountFixed:
		if !in.Value.IsPositive() {
			return fmt.Errorf("%w: fixed amount must be positive", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrInvalidInput, in.DiscountType)
	}
	if in.MinPurchase != nil && in.MinPurchase.IsNegative() {
		return fmt.Errorf("%w: minPurchase must not be negative", ErrInvalidInput)
	}
	if in.MaxDiscount != nil && !in.MaxDiscount.IsPositive() {
		return fmt.Errorf("%w: maxDiscount must be positive", ErrInvalidInput)
	}
	if in.StartsAt != nil && in.ExpiresAt != nil && !in.ExpiresAt.After(*in.StartsAt) {
		return fmt.Errorf("%w: expiresAt must be after startsAt", ErrInvalidInput)
	}
	return nil
}

func (in CouponInput) apply(c *models.Coupon) {
	c.Code = NormalizeCode(in.Code)
	c.Name = in.Name
	if c.Name == "" {
		c.Name = c.Code
	}
	c.DiscountType = in.DiscountType
	c.Value = in.Value
	c.MinPurchase = in.MinPurchase
	c.MaxDiscount = in.MaxDiscount
	c.StartsAt = in.StartsAt
	c.ExpiresAt = in.ExpiresAt
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
}

// Coupons is the admin side of coupon management.
type Coupons struct {
	store store.CouponStore
	audit audit.Recorder
}

func NewCoupons(s store.CouponStore, rec audit.Recorder) *Coupons {
	return &Coupons{store: s, audit: rec}
}

func (s *Coupons) List(ctx context.Context) ([]models.Coupon, error) {
	return s.store.List(ctx)
}

func (s *Coupons) Create(ctx context.Context, in CouponInput) (*models.Coupon, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &models.Coupon{
		ID:        primitive.NewObjectID(),
		IsActive:  true,
		CreatedBy: audit.ActorFrom(ctx).UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(c)

	if err := s.store.Create(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrCouponExists, c.Code)
		}
		return nil, err
	}

	audit.Log(ctx, s.audit, audit.Event{
		Action: models.ActionCouponCreate, Resource: models.ResourceCoupon, ResourceID: c.ID.Hex(), New: c,
	})
	return c, nil
}

func (s *Coupons) Update(ctx context.Context, id primitive.ObjectID, in CouponInput) (*models.Coupon, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	before := *current

	in.apply(current)
	current.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, current); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrCouponNotFound
		case errors.Is(err, store.ErrDuplicateKey):
			return nil, fmt.Errorf("%w: %s", ErrCouponExists, current.Code)
		}
		return nil, err
	}

	audit.Log(ctx, s.audit, audit.Event{
		Action: models.ActionCouponUpdate, Resource: models.ResourceCoupon, ResourceID: id.Hex(), Old: before, New: current,
	})
	return current, nil
}

func (s *Coupons) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCouponNotFound
		}
		return err
	}
	audit.Log(ctx, s.audit, audit.Event{
		Action: models.ActionCouponDelete, Resource: models.ResourceCoupon, ResourceID: id.Hex(),
	})
	return nil
}
