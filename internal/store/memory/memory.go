// Package memory is an in-process implementation of the store contracts,
// used for local development and tests. A single mutex serialises every
// operation, which gives Place the same all-or-nothing behaviour as the
// Mongo transaction.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/store"
)

type DB struct {
	mu           sync.Mutex
	products     map[primitive.ObjectID]models.Product
	orders       map[primitive.ObjectID]models.Order
	orderNumbers map[string]primitive.ObjectID
	coupons      map[primitive.ObjectID]models.Coupon
	settings     *models.Settings
}

func New() *DB {
	return &DB{
		products:     make(map[primitive.ObjectID]models.Product),
		orders:       make(map[primitive.ObjectID]models.Order),
		orderNumbers: make(map[string]primitive.ObjectID),
		coupons:      make(map[primitive.ObjectID]models.Coupon),
	}
}

func (db *DB) Products() *Products { return &Products{db: db} }
func (db *DB) Orders() *Orders     { return &Orders{db: db} }
func (db *DB) Coupons() *Coupons   { return &Coupons{db: db} }
func (db *DB) Settings() *Settings { return &Settings{db: db} }

// --- products ---

type Products struct{ db *DB }

var _ store.ProductStore = (*Products)(nil)

func (s *Products) FindByID(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *Products) FindBySlug(_ context.Context, slug string) (*models.Product, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, p := range s.db.products {
		if p.Slug == slug {
			return cloneProduct(p), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Products) List(_ context.Context, f store.ProductFilter) ([]models.Product, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	search := strings.ToLower(f.Search)
	out := make([]models.Product, 0, len(s.db.products))
	for _, p := range s.db.products {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Title), search) {
			continue
		}
		out = append(out, *cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Skip, f.Limit), nil
}

func (s *Products) Save(_ context.Context, p *models.Product) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	for id, other := range s.db.products {
		if id != p.ID && p.Slug != "" && other.Slug == p.Slug {
			return store.ErrDuplicateKey
		}
	}
	s.db.products[p.ID] = *cloneProduct(*p)
	return nil
}

func (s *Products) AdjustStock(_ context.Context, id primitive.ObjectID, delta int) (*models.Product, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return nil, &store.InsufficientStockError{ProductID: id, Requested: -delta}
	}
	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	s.db.products[id] = p
	return cloneProduct(p), nil
}

// --- orders ---

type Orders struct{ db *DB }

var _ store.OrderStore = (*Orders)(nil)

func (s *Orders) Place(_ context.Context, order *models.Order) ([]models.StockLevel, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, taken := s.db.orderNumbers[order.OrderNumber]; taken {
		return nil, store.ErrDuplicateKey
	}

	// Stage every decrement before touching shared state.
	staged := make(map[primitive.ObjectID]models.Product)
	var touched []primitive.ObjectID
	for _, item := range order.Items {
		p, ok := staged[item.ProductID]
		if !ok {
			p, ok = s.db.products[item.ProductID]
			if !ok {
				return nil, &store.InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity}
			}
			touched = append(touched, item.ProductID)
		}
		if p.Stock < item.Quantity {
			return nil, &store.InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity}
		}
		p.Stock -= item.Quantity
		p.SalesCount += item.Quantity
		p.UpdatedAt = order.CreatedAt
		staged[item.ProductID] = p
	}

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	levels := make([]models.StockLevel, 0, len(touched))
	for _, id := range touched {
		p := staged[id]
		s.db.products[id] = p
		levels = append(levels, models.StockLevel{
			ProductID:         id,
			Title:             p.Title,
			Stock:             p.Stock,
			LowStockThreshold: p.LowStockThreshold,
		})
	}
	s.db.orders[order.ID] = *cloneOrder(*order)
	s.db.orderNumbers[order.OrderNumber] = order.ID
	return levels, nil
}

func (s *Orders) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	o, ok := s.db.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Orders) FindByNumber(_ context.Context, number string) (*models.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	id, ok := s.db.orderNumbers[number]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(s.db.orders[id]), nil
}

func (s *Orders) List(_ context.Context, f store.OrderFilter) ([]models.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.Order, 0, len(s.db.orders))
	for _, o := range s.db.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Skip, f.Limit), nil
}

func (s *Orders) Update(_ context.Context, id primitive.ObjectID, upd store.OrderUpdate) (*models.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	o, ok := s.db.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if slices.Contains(upd.Unless, o.Status) {
		return nil, store.ErrConflict
	}

	if upd.Status != "" {
		o.Status = upd.Status
	}
	if upd.PaymentStatus != "" {
		o.PaymentStatus = upd.PaymentStatus
	}
	if upd.PaymentIntentID != "" {
		o.PaymentIntentID = upd.PaymentIntentID
	}
	if upd.MarkPaid {
		o.IsPaid = true
	}
	if upd.PaidAt != nil {
		o.PaidAt = upd.PaidAt
	}
	if upd.DeliveredAt != nil {
		o.DeliveredAt = upd.DeliveredAt
	}
	if upd.RefundedAt != nil {
		o.RefundedAt = upd.RefundedAt
	}

	entry := upd.Entry
	if entry.Status == "" {
		entry.Status = o.Status
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	o.Timeline = append(slices.Clone(o.Timeline), entry)
	o.UpdatedAt = entry.Timestamp

	s.db.orders[id] = o
	return cloneOrder(o), nil
}

// --- coupons ---

type Coupons struct{ db *DB }

var _ store.CouponStore = (*Coupons)(nil)

func (s *Coupons) FindByCode(_ context.Context, code string) (*models.Coupon, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, c := range s.db.coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Coupons) FindByID(_ context.Context, id primitive.ObjectID) (*models.Coupon, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c, ok := s.db.coupons[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Coupons) List(_ context.Context) ([]models.Coupon, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.Coupon, 0, len(s.db.coupons))
	for _, c := range s.db.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Coupons) Create(_ context.Context, c *models.Coupon) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, other := range s.db.coupons {
		if other.Code == c.Code {
			return store.ErrDuplicateKey
		}
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	s.db.coupons[c.ID] = *c
	return nil
}

func (s *Coupons) Update(_ context.Context, c *models.Coupon) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.coupons[c.ID]; !ok {
		return store.ErrNotFound
	}
	for id, other := range s.db.coupons {
		if id != c.ID && other.Code == c.Code {
			return store.ErrDuplicateKey
		}
	}
	s.db.coupons[c.ID] = *c
	return nil
}

func (s *Coupons) Delete(_ context.Context, id primitive.ObjectID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.coupons[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.db.coupons, id)
	return nil
}

// --- settings ---

type Settings struct{ db *DB }

var _ store.SettingsStore = (*Settings)(nil)

func (s *Settings) Load(_ context.Context) (*models.Settings, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if s.db.settings == nil {
		return nil, store.ErrNotFound
	}
	cp := *s.db.settings
	return &cp, nil
}

func (s *Settings) Save(_ context.Context, settings *models.Settings) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	cp := *settings
	s.db.settings = &cp
	return nil
}

func cloneProduct(p models.Product) *models.Product {
	p.Images = slices.Clone(p.Images)
	p.Variants = slices.Clone(p.Variants)
	return &p
}

func cloneOrder(o models.Order) *models.Order {
	o.Items = slices.Clone(o.Items)
	o.Timeline = slices.Clone(o.Timeline)
	return &o
}

func page[T any](items []T, skip, limit int64) []T {
	if skip > 0 {
		if skip >= int64(len(items)) {
			return items[:0]
		}
		items = items[skip:]
	}
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items
}
