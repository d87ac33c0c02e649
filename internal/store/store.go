// Package store declares the persistence contracts the services depend on.
// Implementations live in store/mongo and store/memory.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrConflict     = errors.New("document state conflict")
)

// InsufficientStockError is returned by OrderStore.Place when a line's
// conditional decrement matched no document.
type InsufficientStockError struct {
	ProductID primitive.ObjectID
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID.Hex(), e.Requested)
}

type ProductFilter struct {
	Category   string
	Search     string
	ActiveOnly bool
	Limit      int64
	Skip       int64
}

type ProductStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	FindBySlug(ctx context.Context, slug string) (*models.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	Save(ctx context.Context, p *models.Product) error
	// AdjustStock adds delta to stock and fails with InsufficientStockError
	// instead of going below zero.
	AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) (*models.Product, error)
}

type OrderFilter struct {
	UserID string
	Status models.OrderStatus
	Limit  int64
	Skip   int64
}

// OrderUpdate is applied atomically to one order. Zero-valued fields are left
// untouched; Entry is always appended to the timeline, and an empty
// Entry.Status records the order's status after the update.
type OrderUpdate struct {
	Status          models.OrderStatus
	PaymentStatus   models.PaymentStatus
	PaymentIntentID string
	MarkPaid        bool
	PaidAt          *time.Time
	DeliveredAt     *time.Time
	RefundedAt      *time.Time
	Entry           models.TimelineEntry
	// Unless lists states the order must not be in for the update to apply.
	Unless []models.OrderStatus
}

type OrderStore interface {
	// Place inserts the order and applies every line's stock decrement as one
	// unit of work. Nothing is persisted when an error is returned.
	Place(ctx context.Context, order *models.Order) ([]models.StockLevel, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindByNumber(ctx context.Context, number string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	// Update returns ErrNotFound when the order is missing and ErrConflict when
	// it is in one of upd.Unless.
	Update(ctx context.Context, id primitive.ObjectID, upd OrderUpdate) (*models.Order, error)
}

type CouponStore interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Create(ctx context.Context, c *models.Coupon) error
	Update(ctx context.Context, c *models.Coupon) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type SettingsStore interface {
	// Load returns ErrNotFound until the record has been saved once.
	Load(ctx context.Context) (*models.Settings, error)
	Save(ctx context.Context, s *models.Settings) error
}
