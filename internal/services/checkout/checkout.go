// Package checkout turns a cart into a persisted order. The order insert and
// every line's stock decrement commit together or not at all.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/audit"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/services/notify"
	"storefront/internal/services/pricing"
	"storefront/internal/services/search"
	"storefront/internal/store"
)

const orderNumberAttempts = 5

var (
	ErrEmptyCart             = errors.New("No order items")
	ErrInvalidRequest        = errors.New("invalid order request")
	ErrOrderNumberAllocation = errors.New("could not allocate order number")
)

// ProductNotFoundError names the cart reference that did not resolve.
type ProductNotFoundError struct {
	Ref string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.Ref)
}

// Line is one cart entry. Price is the unit price captured when the cart was
// built; it is trusted as is.
type Line struct {
	ProductID   string          `json:"id"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Title       string          `json:"title,omitempty"`
	Image       string          `json:"image,omitempty"`
	VariantID   string          `json:"variantId,omitempty"`
	VariantName string          `json:"variantName,omitempty"`
}

// Request is the create-order payload. Client totals are accepted for
// compatibility and ignored.
type Request struct {
	Lines           []Line           `json:"orderItems"`
	ShippingAddress models.Address   `json:"shippingAddress"`
	PaymentMethod   string           `json:"paymentMethod"`
	CustomerName    string           `json:"customerName"`
	Email           string           `json:"email"`
	CouponCode      string           `json:"couponCode"`
	ItemsPrice      *decimal.Decimal `json:"itemsPrice,omitempty"`
	ShippingPrice   *decimal.Decimal `json:"shippingPrice,omitempty"`
	TotalPrice      *decimal.Decimal `json:"totalPrice,omitempty"`

	// Set from the auth context, never from the body.
	UserID    string `json:"-"`
	UserEmail string `json:"-"`
}

type SettingsSource interface {
	Get(ctx context.Context) (models.Settings, error)
}

type Deps struct {
	Products store.ProductStore
	Orders   store.OrderStore
	Pricing  *pricing.Resolver
	Settings SettingsSource
	Audit    audit.Recorder
	Notifier notify.Notifier
	Search   search.Indexer
	Events   events.Publisher
	Logger   *slog.Logger
}

type Service struct {
	products store.ProductStore
	orders   store.OrderStore
	pricing  *pricing.Resolver
	settings SettingsSource
	audit    audit.Recorder
	notifier notify.Notifier
	search   search.Indexer
	events   events.Publisher
	log      *slog.Logger

	now         func() time.Time
	orderNumber func() string
}

func New(d Deps) *Service {
	s := &Service{
		products:    d.Products,
		orders:      d.Orders,
		pricing:     d.Pricing,
		settings:    d.Settings,
		audit:       d.Audit,
		notifier:    d.Notifier,
		search:      d.Search,
		events:      d.Events,
		log:         d.Logger,
		now:         func() time.Time { return time.Now().UTC() },
		orderNumber: RandomOrderNumber,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.search == nil {
		s.search = search.Nop{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// RandomOrderNumber returns a six-digit number without a leading zero.
func RandomOrderNumber() string {
	return fmt.Sprintf("%06d", 100000+rand.IntN(900000))
}

// Place validates req, prices it and persists the order with its stock
// effects. On error nothing has been persisted.
func (s *Service) Place(ctx context.Context, req Request) (*models.Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if err := validate(&req); err != nil {
		return nil, err
	}

	items, err := s.resolveItems(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	subtotal = pricing.Round(subtotal)

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	shippingFee := pricing.ShippingFee(settings, subtotal)

	discount := decimal.Zero
	var couponCode string
	if strings.TrimSpace(req.CouponCode) != "" {
		d, err := s.pricing.Resolve(ctx, req.CouponCode, subtotal)
		if err != nil {
			return nil, err
		}
		discount = d.Amount
		couponCode = d.Coupon.Code
	}

	total := subtotal.Add(shippingFee).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now()
	order := &models.Order{
		Items:           items,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		IsPaid:          false,
		Status:          models.OrderPending,
		Subtotal:        subtotal,
		ShippingFee:     shippingFee,
		Discount:        discount,
		Total:           pricing.Round(total),
		CouponCode:      couponCode,
		Timeline: []models.TimelineEntry{
			{Status: models.OrderPending, Note: "Order placed", Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.UserID != "" {
		order.UserID = req.UserID
		order.CustomerEmail = req.UserEmail
	} else {
		order.GuestEmail = strings.ToLower(strings.TrimSpace(req.Email))
	}

	levels, err := s.persist(ctx, order)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order placed",
		"order_id", order.ID.Hex(),
		"order_number", order.OrderNumber,
		"total", order.Total.StringFixed(2),
		"items", len(order.Items),
		"guest", order.UserID == "",
	)
	s.afterPlace(ctx, order, levels, settings)
	return order, nil
}

func validate(req *Request) error {
	for i, l := range req.Lines {
		if l.ProductID == "" {
			return fmt.Errorf("%w: line %d has no product", ErrInvalidRequest, i+1)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("%w: line %d quantity must be at least 1", ErrInvalidRequest, i+1)
		}
		if l.Price.IsNegative() {
			return fmt.Errorf("%w: line %d price must not be negative", ErrInvalidRequest, i+1)
		}
		if !l.Price.Equal(l.Price.Round(2)) {
			return fmt.Errorf("%w: line %d price has more than two decimals", ErrInvalidRequest, i+1)
		}
	}

	switch req.PaymentMethod {
	case models.PaymentMethodCard, models.PaymentMethodBankTransfer:
	case "":
		return fmt.Errorf("%w: paymentMethod is required", ErrInvalidRequest)
	default:
		return fmt.Errorf("%w: unsupported paymentMethod %q", ErrInvalidRequest, req.PaymentMethod)
	}

	if strings.TrimSpace(req.CustomerName) == "" {
		return fmt.Errorf("%w: customerName is required", ErrInvalidRequest)
	}
	a := req.ShippingAddress
	if strings.TrimSpace(a.Street) == "" || strings.TrimSpace(a.City) == "" || strings.TrimSpace(a.Country) == "" {
		return fmt.Errorf("%w: shippingAddress needs street, city and country", ErrInvalidRequest)
	}

	if req.UserID == "" {
		if strings.TrimSpace(req.Email) == "" {
			return fmt.Errorf("%w: email is required for guest checkout", ErrInvalidRequest)
		}
		if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
			return fmt.Errorf("%w: email is not valid", ErrInvalidRequest)
		}
	}
	return nil
}

// resolveItems checks every reference before anything is written and fills
// in missing snapshot fields from the product.
func (s *Service) resolveItems(ctx context.Context, lines []Line) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		id, err := primitive.ObjectIDFromHex(l.ProductID)
		if err != nil {
			return nil, &ProductNotFoundError{Ref: l.ProductID}
		}
		p, err := s.products.FindByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ProductNotFoundError{Ref: l.ProductID}
		}
		if err != nil {
			return nil, fmt.Errorf("find product %s: %w", l.ProductID, err)
		}

		item := models.OrderItem{
			ProductID:   p.ID,
			Title:       l.Title,
			Quantity:    l.Quantity,
			UnitPrice:   l.Price,
			VariantID:   l.VariantID,
			VariantName: l.VariantName,
			Image:       l.Image,
		}
		if item.Title == "" {
			item.Title = p.Title
		}
		if item.Image == "" && len(p.Images) > 0 {
			item.Image = p.Images[0]
		}
		items = append(items, item)
	}
	return items, nil
}

// persist allocates an order number and places the order, retrying only on
// a number collision.
func (s *Service) persist(ctx context.Context, order *models.Order) ([]models.StockLevel, error) {
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		order.OrderNumber = s.orderNumber()
		order.ID = primitive.NilObjectID

		levels, err := s.orders.Place(ctx, order)
		if err == nil {
			return levels, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			var stockErr *store.InsufficientStockError
			if errors.As(err, &stockErr) {
				s.log.WarnContext(ctx, "checkout rejected for stock",
					"product_id", stockErr.ProductID.Hex(), "requested", stockErr.Requested)
				return nil, err
			}
			return nil, fmt.Errorf("place order: %w", err)
		}
		s.log.WarnContext(ctx, "order number collision, retrying", "order_number", order.OrderNumber, "attempt", attempt)
	}
	order.OrderNumber = ""
	return nil, ErrOrderNumberAllocation
}

// afterPlace runs the best-effort side effects of a committed order.
func (s *Service) afterPlace(ctx context.Context, order *models.Order, levels []models.StockLevel, settings models.Settings) {
	audit.Log(ctx, s.audit, audit.Event{
		Action:     models.ActionOrderCreate,
		Resource:   models.ResourceOrder,
		ResourceID: order.ID.Hex(),
		New: map[string]any{
			"orderNumber": order.OrderNumber,
			"total":       order.Total.StringFixed(2),
			"items":       len(order.Items),
			"couponCode":  order.CouponCode,
		},
	})

	for _, l := range levels {
		if !l.Low(settings.LowStockThreshold) {
			continue
		}
		s.log.WarnContext(ctx, "stock alert",
			"type", l.AlertType(), "product_id", l.ProductID.Hex(), "title", l.Title, "stock", l.Stock)
		audit.Log(ctx, s.audit, audit.Event{
			Action:     models.ActionStockAlert,
			Resource:   models.ResourceInventory,
			ResourceID: l.ProductID.Hex(),
			New:        map[string]any{"type": l.AlertType(), "stock": l.Stock, "orderNumber": order.OrderNumber},
		})
	}

	if err := s.search.Index(ctx, order); err != nil {
		s.log.WarnContext(ctx, "index order failed", "order_number", order.OrderNumber, "err", err)
	}
	s.notifier.OrderPlaced(ctx, order)
	events.Emit(ctx, s.events, models.NewOrderEvent(models.EventOrderPlaced, order))
}
