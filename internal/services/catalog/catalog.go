// Package catalog is the admin and storefront side of the product store:
// product upserts, stock adjustments and reads.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/audit"
	"storefront/internal/models"
	"storefront/internal/store"
)

var (
	ErrProductNotFound = errors.New("Product not found")
	ErrInvalidProduct  = errors.New("invalid product")
	ErrSlugTaken       = errors.New("slug already in use")
)

type ProductInput struct {
	Title             string                  `json:"title"`
	Slug              string                  `json:"slug"`
	Description       string                  `json:"description"`
	Price             decimal.Decimal         `json:"price"`
	Stock             *int                    `json:"stock"`
	LowStockThreshold int                     `json:"lowStockThreshold"`
	Images            []string                `json:"images"`
	Variants          []models.ProductVariant `json:"variants"`
	Category          string                  `json:"category"`
	IsActive          *bool                   `json:"isActive"`
}

type Service struct {
	products store.ProductStore
	audit    audit.Recorder
	log      *slog.Logger
}

func New(products store.ProductStore, rec audit.Recorder, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{products: products, audit: rec, log: log}
}

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrProductNotFound
	}
	return oid, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Product, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	p, err := s.products.FindByID(ctx, oid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	p, err := s.products.FindBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

func (s *Service) List(ctx context.Context, f store.ProductFilter) ([]models.Product, error) {
	return s.products.List(ctx, f)
}

// Save creates a product when id is empty and replaces it otherwise. Stock
// on an existing product only changes through AdjustStock.
func (s *Service) Save(ctx context.Context, id string, in ProductInput) (*models.Product, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidProduct)
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	if in.Stock != nil && *in.Stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}
	if in.LowStockThreshold < 0 {
		return nil, fmt.Errorf("%w: lowStockThreshold must not be negative", ErrInvalidProduct)
	}

	now := time.Now().UTC()
	p := &models.Product{IsActive: true, CreatedAt: now}
	var before *models.Product
	if id != "" {
		existing, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		cp := *existing
		before = &cp
		p = existing
	} else if in.Stock != nil {
		p.Stock = *in.Stock
	}

	p.Title = in.Title
	p.Slug = Slugify(in.Slug)
	if p.Slug == "" {
		p.Slug = Slugify(in.Title)
	}
	p.Description = in.Description
	p.Price = in.Price
	p.LowStockThreshold = in.LowStockThreshold
	p.Images = in.Images
	if p.Images == nil {
		p.Images = []string{}
	}
	p.Variants = in.Variants
	p.Category = strings.TrimSpace(in.Category)
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	p.UpdatedAt = now

	if err := s.products.Save(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, p.Slug)
		}
		return nil, fmt.Errorf("save product: %w", err)
	}

	ev := audit.Event{Action: models.ActionProductSave, Resource: models.ResourceProduct, ResourceID: p.ID.Hex(), New: p}
	if before != nil {
		ev.Old = before
	}
	audit.Log(ctx, s.audit, ev)
	return p, nil
}

// AdjustStock adds delta (negative to remove) and refuses to go below zero.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int, reason string, fallbackThreshold int) (*models.Product, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", ErrInvalidProduct)
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	p, err := s.products.AdjustStock(ctx, oid, delta)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "stock adjusted", "product_id", id, "delta", delta, "stock", p.Stock, "reason", reason)
	audit.Log(ctx, s.audit, audit.Event{
		Action:     models.ActionStockUpdate,
		Resource:   models.ResourceInventory,
		ResourceID: id,
		Old:        map[string]any{"stock": p.Stock - delta},
		New:        map[string]any{"stock": p.Stock, "delta": delta, "reason": reason},
	})

	level := models.StockLevel{ProductID: p.ID, Title: p.Title, Stock: p.Stock, LowStockThreshold: p.LowStockThreshold}
	if delta < 0 && level.Low(fallbackThreshold) {
		s.log.WarnContext(ctx, "stock alert", "type", level.AlertType(), "product_id", id, "stock", p.Stock)
		audit.Log(ctx, s.audit, audit.Event{
			Action:     models.ActionStockAlert,
			Resource:   models.ResourceInventory,
			ResourceID: id,
			New:        map[string]any{"type": level.AlertType(), "stock": p.Stock},
		})
	}
	return p, nil
}
