package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/store"
)

// openTestStore connects to MONGO_TEST_URI (a replica set, for transactions)
// and uses a throwaway database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := fmt.Sprintf("storefront_test_%d", time.Now().UnixNano())
	s, err := Connect(ctx, uri, dbName)
	require.NoError(t, err)
	require.NoError(t, s.EnsureIndexes(ctx))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.db.Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func seedProduct(t *testing.T, s *Store, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Title:     "Mug",
		Slug:      fmt.Sprintf("mug-%s", primitive.NewObjectID().Hex()),
		Price:     decimal.RequireFromString("12.00"),
		Stock:     stock,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Products().Save(context.Background(), p))
	return p
}

func newOrder(number string, p *models.Product, qty int) *models.Order {
	now := time.Now().UTC()
	return &models.Order{
		OrderNumber: number,
		Items: []models.OrderItem{{
			ProductID: p.ID, Title: p.Title, Quantity: qty, UnitPrice: p.Price,
		}},
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentPending,
		Total:         p.Price.Mul(decimal.NewFromInt(int64(qty))),
		Timeline:      []models.TimelineEntry{{Status: models.OrderPending, Timestamp: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestPlaceDecrementsStockAtomically(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 3)

	levels, err := s.Orders().Place(ctx, newOrder("100001", p, 2))
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, 1, levels[0].Stock)

	got, err := s.Products().FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)
	assert.Equal(t, 2, got.SalesCount)
	assert.True(t, got.Price.Equal(p.Price))
}

func TestPlaceRollsBackOnInsufficientStock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 1)

	_, err := s.Orders().Place(ctx, newOrder("100002", p, 2))
	var stockErr *store.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	_, err = s.Orders().FindByNumber(ctx, "100002")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Products().FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)
}

func TestPlaceDuplicateOrderNumber(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)

	_, err := s.Orders().Place(ctx, newOrder("100003", p, 1))
	require.NoError(t, err)
	_, err = s.Orders().Place(ctx, newOrder("100003", p, 1))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	got, err := s.Products().FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Stock)
}

func TestPlaceLastUnitRace(t *testing.T) {
	s := openTestStore(t)
	p := seedProduct(t, s, 1)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Orders().Place(context.Background(), newOrder(fmt.Sprintf("20000%d", i), p, 1))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			var stockErr *store.InsufficientStockError
			if !errors.As(err, &stockErr) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	got, err := s.Products().FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestUpdateAppendsTimelineAndHonorsGuard(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)
	order := newOrder("100004", p, 1)
	_, err := s.Orders().Place(ctx, order)
	require.NoError(t, err)

	updated, err := s.Orders().Update(ctx, order.ID, store.OrderUpdate{
		Entry: models.TimelineEntry{Note: "$gift wrap"},
	})
	require.NoError(t, err)
	require.Len(t, updated.Timeline, 2)
	assert.Equal(t, models.OrderPending, updated.Timeline[1].Status)
	assert.Equal(t, "$gift wrap", updated.Timeline[1].Note)

	now := time.Now().UTC()
	updated, err = s.Orders().Update(ctx, order.ID, store.OrderUpdate{
		Status:      models.OrderDelivered,
		DeliveredAt: &now,
		Unless:      []models.OrderStatus{models.OrderDelivered},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, updated.Status)
	assert.Equal(t, models.OrderDelivered, updated.Timeline[2].Status)
	require.NotNil(t, updated.DeliveredAt)

	_, err = s.Orders().Update(ctx, order.ID, store.OrderUpdate{
		Status: models.OrderShipped,
		Unless: []models.OrderStatus{models.OrderDelivered},
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Orders().Update(ctx, primitive.NewObjectID(), store.OrderUpdate{
		Unless: []models.OrderStatus{models.OrderDelivered},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSettingsLoadBeforeSave(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Settings().Load(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	settings := models.DefaultSettings()
	settings.ShippingFee = decimal.RequireFromString("4.90")
	require.NoError(t, s.Settings().Save(ctx, &settings))

	got, err := s.Settings().Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.ShippingFee.Equal(settings.ShippingFee))
}
