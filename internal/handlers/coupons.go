package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/services/pricing"
)

type applyCouponRequest struct {
	Code      string          `json:"code"`
	CartTotal decimal.Decimal `json:"cartTotal"`
}

// ApplyCoupon previews a coupon against the cart total without using it.
func (h *Handler) ApplyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errBadRequest)
		return
	}
	v, err := h.pricing.Preview(c.Request.Context(), req.Code, req.CartTotal)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) ListCoupons(c *gin.Context) {
	list, err := h.coupons.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": list, "count": len(list)})
}

func (h *Handler) CreateCoupon(c *gin.Context) {
	var in pricing.CouponInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, errBadRequest)
		return
	}
	coupon, err := h.coupons.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

func couponID(c *gin.Context) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return primitive.NilObjectID, pricing.ErrCouponNotFound
	}
	return id, nil
}

func (h *Handler) UpdateCoupon(c *gin.Context) {
	id, err := couponID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var in pricing.CouponInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, errBadRequest)
		return
	}
	coupon, err := h.coupons.Update(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, coupon)
}

func (h *Handler) DeleteCoupon(c *gin.Context) {
	id, err := couponID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.coupons.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
