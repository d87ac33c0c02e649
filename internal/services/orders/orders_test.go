package orders

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/audit"
	"storefront/internal/models"
	"storefront/internal/services/payments"
	"storefront/internal/services/search"
	"storefront/internal/store"
	"storefront/internal/store/memory"
)

type fakeGateway struct {
	payments.Disabled
	mu        sync.Mutex
	refunds   []string
	amounts   []decimal.Decimal
	refundErr error
	intentID  string
}

func (g *fakeGateway) Refund(_ context.Context, intentID string, amount decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refunds = append(g.refunds, intentID)
	g.amounts = append(g.amounts, amount)
	return "re_1", nil
}

func (g *fakeGateway) CreateIntent(context.Context, *models.Order, string) (payments.Intent, error) {
	return payments.Intent{ID: g.intentID, ClientSecret: g.intentID + "_secret"}, nil
}

type countingNotifier struct {
	mu      sync.Mutex
	changed []models.OrderStatus
}

func (n *countingNotifier) OrderPlaced(context.Context, *models.Order) {}

func (n *countingNotifier) StatusChanged(_ context.Context, o *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, o.Status)
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, e models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, e.Type)
	return nil
}

type fakeIndex struct {
	hits []search.Hit
}

func (fakeIndex) Index(context.Context, *models.Order) error { return nil }

func (f fakeIndex) Search(context.Context, string, int) ([]search.Hit, error) { return f.hits, nil }

type fixture struct {
	db       *memory.DB
	svc      *Service
	gateway  *fakeGateway
	notifier *countingNotifier
	events   *recordingPublisher
	audit    *audit.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       memory.New(),
		gateway:  &fakeGateway{intentID: "pi_new"},
		notifier: &countingNotifier{},
		events:   &recordingPublisher{},
		audit:    audit.NewMemory(),
	}
	f.svc = New(Deps{
		Orders:   f.db.Orders(),
		Payments: f.gateway,
		Audit:    f.audit,
		Notifier: f.notifier,
		Events:   f.events,
	})
	return f
}

var nextNumber = 100000

func (f *fixture) order(t *testing.T, method string) *models.Order {
	t.Helper()
	p := &models.Product{Title: "mug", Stock: 100, IsActive: true}
	require.NoError(t, f.db.Products().Save(context.Background(), p))

	nextNumber++
	now := time.Now().UTC()
	o := &models.Order{
		OrderNumber:   strconv.Itoa(nextNumber),
		Items:         []models.OrderItem{{ProductID: p.ID, Title: "mug", Quantity: 1, UnitPrice: decimal.RequireFromString("25.00")}},
		CustomerName:  "Ada",
		GuestEmail:    "ada@example.com",
		PaymentMethod: method,
		PaymentStatus: models.PaymentPending,
		Status:        models.OrderPending,
		Subtotal:      decimal.RequireFromString("25.00"),
		Total:         decimal.RequireFromString("25.00"),
		Timeline:      []models.TimelineEntry{{Status: models.OrderPending, Note: "Order placed", Timestamp: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := f.db.Orders().Place(context.Background(), o)
	require.NoError(t, err)
	return o
}

func TestSetStatusAppendsOneEntry(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodBankTransfer)
	id := o.ID.Hex()

	steps := []models.OrderStatus{models.OrderProcessing, models.OrderShipped, models.OrderShipped, models.OrderDelivered}
	prev := o.Timeline
	for _, status := range steps {
		got, err := f.svc.SetStatus(context.Background(), id, status, "step "+string(status))
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
		require.Len(t, got.Timeline, len(prev)+1)
		assert.Equal(t, prev, got.Timeline[:len(prev)], "earlier entries must be kept")
		last := got.Timeline[len(got.Timeline)-1]
		assert.Equal(t, status, last.Status)
		assert.Equal(t, "step "+string(status), last.Note)
		prev = got.Timeline
	}

	final, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, final.DeliveredAt)
	assert.Len(t, final.Timeline, 5)
	assert.Equal(t, []models.OrderStatus{models.OrderProcessing, models.OrderShipped, models.OrderShipped, models.OrderDelivered}, f.notifier.changed)
}

func TestSetStatusRejectsTerminalTransitions(t *testing.T) {
	for _, final := range []models.OrderStatus{models.OrderDelivered, models.OrderCancelled} {
		t.Run(string(final), func(t *testing.T) {
			f := newFixture(t)
			o := f.order(t, models.PaymentMethodBankTransfer)

			_, err := f.svc.SetStatus(context.Background(), o.ID.Hex(), final, "")
			require.NoError(t, err)

			_, err = f.svc.SetStatus(context.Background(), o.ID.Hex(), models.OrderPending, "")
			assert.ErrorIs(t, err, ErrInvalidTransition)

			got, err := f.svc.Get(context.Background(), o.ID.Hex())
			require.NoError(t, err)
			assert.Equal(t, final, got.Status)
			assert.Len(t, got.Timeline, 2)
		})
	}
}

// unreadableOrders fails plain reads while updates still go through.
type unreadableOrders struct {
	store.OrderStore
}

func (unreadableOrders) FindByID(context.Context, primitive.ObjectID) (*models.Order, error) {
	return nil, errors.New("mongo: read timeout")
}

func TestSetStatusLogsFailedRead(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodBankTransfer)
	var logs bytes.Buffer
	svc := New(Deps{
		Orders: unreadableOrders{f.db.Orders()},
		Events: f.events,
		Logger: slog.New(slog.NewJSONHandler(&logs, nil)),
	})

	got, err := svc.SetStatus(context.Background(), o.ID.Hex(), models.OrderShipped, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderShipped, got.Status)

	assert.Contains(t, logs.String(), `"msg":"read order before status change"`)
	assert.Contains(t, logs.String(), "mongo: read timeout")
}

func TestDeliveredOrderCanOnlyBeRefunded(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodBankTransfer)
	_, err := f.svc.SetStatus(context.Background(), o.ID.Hex(), models.OrderDelivered, "")
	require.NoError(t, err)

	_, err = f.svc.SetStatus(context.Background(), o.ID.Hex(), models.OrderCancelled, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := f.svc.SetStatus(context.Background(), o.ID.Hex(), models.OrderRefunded, "returned")
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefunded, got.Status)
	assert.NotNil(t, got.DeliveredAt)
	assert.NotNil(t, got.RefundedAt)

	_, err = f.svc.SetStatus(context.Background(), o.ID.Hex(), models.OrderShipped, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSetStatusErrors(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodCard)

	_, err := f.svc.SetStatus(context.Background(), o.ID.Hex(), "paid", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.SetStatus(context.Background(), primitive.NewObjectID().Hex(), models.OrderShipped, "")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.SetStatus(context.Background(), "garbage", models.OrderShipped, "")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancelDoesNotRestock(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodBankTransfer)

	_, err := f.svc.SetStatus(context.Background(), o.ID.Hex(), models.OrderCancelled, "customer request")
	require.NoError(t, err)

	p, err := f.db.Products().FindByID(context.Background(), o.Items[0].ProductID)
	require.NoError(t, err)
	assert.Equal(t, 99, p.Stock)
}

func TestAppendNoteKeepsStatus(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodBankTransfer)

	got, err := f.svc.AppendNote(context.Background(), o.ID.Hex(), "  called the customer ")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)
	require.Len(t, got.Timeline, 2)
	assert.Equal(t, models.OrderPending, got.Timeline[1].Status)
	assert.Equal(t, "called the customer", got.Timeline[1].Note)
	assert.Empty(t, f.notifier.changed)
	assert.Equal(t, []string{models.EventOrderNoteAdded}, f.events.types)

	_, err = f.svc.AppendNote(context.Background(), o.ID.Hex(), " ")
	assert.ErrorIs(t, err, ErrEmptyNote)
}

func TestRefundPaidCardOrder(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodCard)
	_, err := f.svc.MarkPaid(context.Background(), o.ID.Hex(), "pi_123")
	require.NoError(t, err)

	got, err := f.svc.Refund(context.Background(), o.ID.Hex(), "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefunded, got.Status)
	require.NotNil(t, got.RefundedAt)
	assert.Equal(t, []string{"pi_123"}, f.gateway.refunds)
	assert.True(t, decimal.RequireFromString("25").Equal(f.gateway.amounts[0]))
	assert.Equal(t, "Refund re_1", got.Timeline[len(got.Timeline)-1].Note)

	_, err = f.svc.Refund(context.Background(), o.ID.Hex(), "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, f.gateway.refunds, 1)

	entries, err := f.audit.List(context.Background(), audit.Filter{Action: models.ActionOrderRefund})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRefundViaSetStatus(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodBankTransfer)

	got, err := f.svc.SetStatus(context.Background(), o.ID.Hex(), models.OrderRefunded, "bank refund sent")
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefunded, got.Status)
	assert.Empty(t, f.gateway.refunds)
}

func TestRefundGatewayFailureLeavesOrder(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodCard)
	_, err := f.svc.MarkPaid(context.Background(), o.ID.Hex(), "pi_123")
	require.NoError(t, err)
	f.gateway.refundErr = errors.New("card_declined")

	_, err = f.svc.Refund(context.Background(), o.ID.Hex(), "")
	require.Error(t, err)

	got, _ := f.svc.Get(context.Background(), o.ID.Hex())
	assert.Equal(t, models.OrderProcessing, got.Status)
}

func TestRefundCancelledOrderRejected(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodBankTransfer)
	_, err := f.svc.SetStatus(context.Background(), o.ID.Hex(), models.OrderCancelled, "")
	require.NoError(t, err)

	_, err = f.svc.Refund(context.Background(), o.ID.Hex(), "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkPaidAdvancesPendingOrder(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodCard)

	got, err := f.svc.MarkPaid(context.Background(), o.ID.Hex(), "pi_123")
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, models.OrderProcessing, got.Status)
	assert.Equal(t, "pi_123", got.PaymentIntentID)
	require.NotNil(t, got.PaidAt)
	assert.Len(t, got.Timeline, 2)

	// webhook redelivery
	again, err := f.svc.MarkPaid(context.Background(), o.ID.Hex(), "pi_123")
	require.NoError(t, err)
	assert.Len(t, again.Timeline, 2)
	assert.Equal(t, []string{models.EventOrderPaid}, f.events.types)
}

func TestMarkPaidKeepsLaterStatus(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodCard)
	_, err := f.svc.SetStatus(context.Background(), o.ID.Hex(), models.OrderShipped, "")
	require.NoError(t, err)

	got, err := f.svc.MarkPaid(context.Background(), o.ID.Hex(), "pi_9")
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.Equal(t, models.OrderShipped, got.Status)
}

func TestMarkPaymentFailed(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodCard)

	got, err := f.svc.MarkPaymentFailed(context.Background(), o.ID.Hex(), "pi_1", "Your card was declined.")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, models.OrderPending, got.Status)
	assert.Equal(t, "Payment failed: Your card was declined.", got.Timeline[1].Note)

	// a later success still wins
	got, err = f.svc.MarkPaid(context.Background(), o.ID.Hex(), "pi_2")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)

	got, err = f.svc.MarkPaymentFailed(context.Background(), o.ID.Hex(), "pi_3", "late")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Len(t, got.Timeline, 3)
}

func TestCreatePaymentIntent(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodCard)

	intent, err := f.svc.CreatePaymentIntent(context.Background(), o.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "pi_new", intent.ID)

	got, _ := f.svc.Get(context.Background(), o.ID.Hex())
	assert.Equal(t, "pi_new", got.PaymentIntentID)
	assert.Len(t, got.Timeline, 2)

	// same intent again does not grow the timeline
	_, err = f.svc.CreatePaymentIntent(context.Background(), o.ID.Hex())
	require.NoError(t, err)
	got, _ = f.svc.Get(context.Background(), o.ID.Hex())
	assert.Len(t, got.Timeline, 2)

	bank := f.order(t, models.PaymentMethodBankTransfer)
	_, err = f.svc.CreatePaymentIntent(context.Background(), bank.ID.Hex())
	assert.ErrorIs(t, err, ErrNotPayable)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.PaymentMethodCard)

	// no backend: exact number lookup
	got, err := f.svc.Search(context.Background(), "#"+o.OrderNumber, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, o.ID, got[0].ID)

	got, err = f.svc.Search(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	f.svc.search = fakeIndex{hits: []search.Hit{
		{OrderID: primitive.NewObjectID().Hex()},
		{OrderID: o.ID.Hex(), OrderNumber: o.OrderNumber},
	}}
	got, err = f.svc.Search(context.Background(), "ada", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, o.OrderNumber, got[0].OrderNumber)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	f.order(t, models.PaymentMethodCard)

	_, err := f.svc.List(context.Background(), store.OrderFilter{Status: "lost"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	out, err := f.svc.List(context.Background(), store.OrderFilter{Status: models.OrderPending})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
