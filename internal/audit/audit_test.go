package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
)

func TestLogFillsActorAndValues(t *testing.T) {
	rec := NewMemory()
	ctx := WithActor(context.Background(), Actor{UserID: "u1", Email: "admin@shop.test", IP: "10.0.0.9"})

	Log(ctx, rec, Event{
		Action:     models.ActionOrderStatus,
		Resource:   models.ResourceOrder,
		ResourceID: "abc",
		Old:        map[string]string{"status": "pending"},
		New:        map[string]string{"status": "shipped"},
	})

	logs, err := rec.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	e := logs[0]
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, "admin@shop.test", e.UserEmail)
	assert.Equal(t, "10.0.0.9", e.IPAddress)
	assert.JSONEq(t, `{"status":"pending"}`, e.OldValue)
	assert.JSONEq(t, `{"status":"shipped"}`, e.NewValue)
	assert.True(t, e.Success)
	assert.False(t, e.Timestamp.IsZero())
}

func TestLogRecordsFailure(t *testing.T) {
	rec := NewMemory()
	Log(context.Background(), rec, Event{Action: models.ActionOrderRefund, Resource: models.ResourceOrder, Err: errors.New("gateway down")})

	logs, err := rec.List(context.Background(), Filter{Action: models.ActionOrderRefund})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Equal(t, "gateway down", logs[0].ErrorMsg)
}

func TestMemoryListFiltersAndLimits(t *testing.T) {
	rec := NewMemory()
	ctx := context.Background()
	for range 3 {
		Log(ctx, rec, Event{Action: models.ActionStockAlert, Resource: models.ResourceInventory, ResourceID: "p1"})
	}
	Log(ctx, rec, Event{Action: models.ActionCouponCreate, Resource: models.ResourceCoupon, ResourceID: "c1"})

	logs, err := rec.List(ctx, Filter{Resource: models.ResourceInventory, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = rec.List(ctx, Filter{ResourceID: "c1"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionCouponCreate, logs[0].Action)
}

func TestLogNilRecorder(t *testing.T) {
	assert.NotPanics(t, func() {
		Log(context.Background(), nil, Event{Action: models.ActionOrderCreate})
	})
}
