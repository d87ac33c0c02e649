package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront/internal/audit"
	"storefront/internal/models"
	"storefront/internal/services/settings"
	"storefront/internal/store"
)

func (h *Handler) AdminListOrders(c *gin.Context) {
	limit, skip := page(c)
	list, err := h.orders.List(c.Request.Context(), store.OrderFilter{
		UserID: c.Query("userId"),
		Status: models.OrderStatus(c.Query("status")),
		Limit:  limit,
		Skip:   skip,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

func (h *Handler) AdminSearchOrders(c *gin.Context) {
	limit, _ := page(c)
	list, err := h.orders.Search(c.Request.Context(), c.Query("q"), int(limit))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

func (h *Handler) AdminGetOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
	Note   string             `json:"note"`
}

// SetOrderStatus returns the updated order.
func (h *Handler) SetOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errBadRequest)
		return
	}
	o, err := h.orders.SetStatus(c.Request.Context(), c.Param("id"), req.Status, req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h *Handler) AddOrderNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errBadRequest)
		return
	}
	o, err := h.orders.AppendNote(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) RefundOrder(c *gin.Context) {
	var req noteRequest
	// the body is optional
	_ = c.ShouldBindJSON(&req)
	o, err := h.orders.Refund(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) GetSettings(c *gin.Context) {
	st, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var p settings.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		h.fail(c, errBadRequest)
		return
	}
	st, err := h.settings.Update(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) ListAudit(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusOK, gin.H{"logs": []models.AuditLog{}, "count": 0})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.audit.List(c.Request.Context(), audit.Filter{
		Action:     c.Query("action"),
		Resource:   c.Query("resource"),
		ResourceID: c.Query("resourceId"),
		Limit:      limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}
