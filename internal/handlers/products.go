package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/middleware"
	"storefront/internal/services/catalog"
	"storefront/internal/store"
)

// ListProducts serves the storefront catalogue; admins also see inactive
// products.
func (h *Handler) ListProducts(c *gin.Context) {
	limit, skip := page(c)
	list, err := h.catalog.List(c.Request.Context(), store.ProductFilter{
		Category:   c.Query("category"),
		Search:     c.Query("q"),
		ActiveOnly: !middleware.IsAdmin(c),
		Limit:      limit,
		Skip:       skip,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": list, "count": len(list)})
}

func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err == nil && !p.IsActive && !middleware.IsAdmin(c) {
		err = catalog.ErrProductNotFound
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetProductBySlug(c *gin.Context) {
	p, err := h.catalog.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err == nil && !p.IsActive && !middleware.IsAdmin(c) {
		err = catalog.ErrProductNotFound
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) saveProduct(c *gin.Context, id string, created int) {
	var in catalog.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, errBadRequest)
		return
	}
	p, err := h.catalog.Save(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(created, p)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	h.saveProduct(c, "", http.StatusCreated)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	h.saveProduct(c, c.Param("id"), http.StatusOK)
}

type stockRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *Handler) AdjustStock(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errBadRequest)
		return
	}
	st, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.catalog.AdjustStock(c.Request.Context(), c.Param("id"), req.Delta, req.Reason, st.LowStockThreshold)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
