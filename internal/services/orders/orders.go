// Package orders manages an order after checkout: status changes, notes,
// payment outcomes and refunds. Every change appends exactly one timeline
// entry.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/audit"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/services/notify"
	"storefront/internal/services/payments"
	"storefront/internal/services/search"
	"storefront/internal/store"
)

var (
	ErrOrderNotFound     = errors.New("Order not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyNote         = errors.New("note is required")
	ErrNotPayable        = errors.New("order cannot be paid by card")
)

var terminal = []models.OrderStatus{models.OrderDelivered, models.OrderCancelled, models.OrderRefunded}

type SettingsSource interface {
	Get(ctx context.Context) (models.Settings, error)
}

type Deps struct {
	Orders   store.OrderStore
	Payments payments.Gateway
	Settings SettingsSource
	Audit    audit.Recorder
	Notifier notify.Notifier
	Search   search.Indexer
	Events   events.Publisher
	Logger   *slog.Logger
}

type Service struct {
	orders   store.OrderStore
	payments payments.Gateway
	settings SettingsSource
	audit    audit.Recorder
	notifier notify.Notifier
	search   search.Indexer
	events   events.Publisher
	log      *slog.Logger
	now      func() time.Time
}

func New(d Deps) *Service {
	s := &Service{
		orders:   d.Orders,
		payments: d.Payments,
		settings: d.Settings,
		audit:    d.Audit,
		notifier: d.Notifier,
		search:   d.Search,
		events:   d.Events,
		log:      d.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.payments == nil {
		s.payments = payments.Disabled{}
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

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrOrderNotFound
	}
	return oid, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Order, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.FindByID(ctx, oid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", id, err)
	}
	return o, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	o, err := s.orders.FindByNumber(ctx, strings.TrimSpace(number))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order #%s: %w", number, err)
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	out, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// Search queries the search backend. Without one it falls back to an exact
// order number lookup.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.Order, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Order{}, nil
	}

	hits, err := s.search.Search(ctx, query, limit)
	if errors.Is(err, search.ErrUnavailable) {
		o, err := s.GetByNumber(ctx, strings.TrimPrefix(query, "#"))
		if errors.Is(err, ErrOrderNotFound) {
			return []models.Order{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []models.Order{*o}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search orders: %w", err)
	}

	out := make([]models.Order, 0, len(hits))
	for _, h := range hits {
		o, err := s.Get(ctx, h.OrderID)
		if errors.Is(err, ErrOrderNotFound) {
			// index lags behind the store
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

// SetStatus moves the order to status. Terminal orders reject any further
// transition, except that a delivered order may still be refunded: refunded
// goes through Refund so the payment is returned.
func (s *Service) SetStatus(ctx context.Context, id string, status models.OrderStatus, note string) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if status == models.OrderRefunded {
		return s.Refund(ctx, id, note)
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	upd := store.OrderUpdate{
		Status: status,
		Entry:  models.TimelineEntry{Status: status, Note: strings.TrimSpace(note), Timestamp: now},
		Unless: terminal,
	}
	if status == models.OrderDelivered {
		upd.DeliveredAt = &now
	}

	before, err := s.orders.FindByID(ctx, oid)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.WarnContext(ctx, "read order before status change", "order_id", id, "err", err)
	}
	o, err := s.update(ctx, oid, upd)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order status changed", "order_number", o.OrderNumber, "status", o.Status)
	s.changed(ctx, before, o, models.ActionOrderStatus, models.EventOrderStatusChanged, true)
	return o, nil
}

// AppendNote records a note without changing the status. Notes are accepted
// in every state.
func (s *Service) AppendNote(ctx context.Context, id, note string) (*models.Order, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrEmptyNote
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	o, err := s.update(ctx, oid, store.OrderUpdate{
		Entry: models.TimelineEntry{Note: note, Timestamp: s.now()},
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, nil, o, models.ActionOrderNote, models.EventOrderNoteAdded, false)
	return o, nil
}

// Refund marks the order refunded, returning a card payment through the
// gateway first. Every state but cancelled and refunded accepts it, delivered
// included. Stock is not restored.
func (s *Service) Refund(ctx context.Context, id, note string) (*models.Order, error) {
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.Status == models.OrderCancelled || before.Status == models.OrderRefunded {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidTransition, before.Status)
	}

	note = strings.TrimSpace(note)
	if before.IsPaid && before.PaymentMethod == models.PaymentMethodCard && before.PaymentIntentID != "" {
		refundID, err := s.payments.Refund(ctx, before.PaymentIntentID, before.Total)
		if err != nil {
			return nil, fmt.Errorf("refund payment: %w", err)
		}
		s.log.InfoContext(ctx, "payment refunded", "order_number", before.OrderNumber, "refund_id", refundID)
		if note == "" {
			note = "Refund " + refundID
		}
	}

	now := s.now()
	o, err := s.update(ctx, before.ID, store.OrderUpdate{
		Status:     models.OrderRefunded,
		RefundedAt: &now,
		Entry:      models.TimelineEntry{Status: models.OrderRefunded, Note: note, Timestamp: now},
		Unless:     []models.OrderStatus{models.OrderCancelled, models.OrderRefunded},
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, before, o, models.ActionOrderRefund, models.EventOrderRefunded, true)
	return o, nil
}

// MarkPaid applies a successful payment. A pending order moves on to
// processing; repeated deliveries of the same outcome are no-ops.
func (s *Service) MarkPaid(ctx context.Context, id, intentID string) (*models.Order, error) {
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.IsPaid {
		return before, nil
	}

	now := s.now()
	upd := store.OrderUpdate{
		PaymentStatus:   models.PaymentPaid,
		PaymentIntentID: intentID,
		MarkPaid:        true,
		PaidAt:          &now,
		Entry:           models.TimelineEntry{Note: "Payment received", Timestamp: now},
	}
	advance := before.Status == models.OrderPending
	if advance {
		guarded := upd
		guarded.Status = models.OrderProcessing
		guarded.Unless = []models.OrderStatus{
			models.OrderProcessing, models.OrderShipped, models.OrderDelivered, models.OrderCancelled, models.OrderRefunded,
		}
		o, err := s.update(ctx, before.ID, guarded)
		if err == nil {
			s.paid(ctx, before, o)
			return o, nil
		}
		if !errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		// status moved since it was read; record the payment only
	}

	o, err := s.update(ctx, before.ID, upd)
	if err != nil {
		return nil, err
	}
	s.paid(ctx, before, o)
	return o, nil
}

func (s *Service) paid(ctx context.Context, before, o *models.Order) {
	s.log.InfoContext(ctx, "order paid", "order_number", o.OrderNumber, "payment_intent", o.PaymentIntentID)
	s.changed(ctx, before, o, models.ActionOrderPayment, models.EventOrderPaid, before.Status != o.Status)
}

// MarkPaymentFailed records a failed attempt. The status is left alone so the
// customer can retry.
func (s *Service) MarkPaymentFailed(ctx context.Context, id, intentID, reason string) (*models.Order, error) {
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.IsPaid {
		return before, nil
	}

	note := "Payment failed"
	if reason = strings.TrimSpace(reason); reason != "" {
		note += ": " + reason
	}
	o, err := s.update(ctx, before.ID, store.OrderUpdate{
		PaymentStatus:   models.PaymentFailed,
		PaymentIntentID: intentID,
		Entry:           models.TimelineEntry{Note: note, Timestamp: s.now()},
	})
	if err != nil {
		return nil, err
	}
	s.log.WarnContext(ctx, "payment failed", "order_number", o.OrderNumber, "reason", reason)
	s.changed(ctx, before, o, models.ActionOrderPayment, models.EventOrderPaymentFailed, false)
	return o, nil
}

// CreatePaymentIntent starts a card payment for an unpaid card order.
func (s *Service) CreatePaymentIntent(ctx context.Context, id string) (payments.Intent, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return payments.Intent{}, err
	}
	if o.PaymentMethod != models.PaymentMethodCard || o.IsPaid || o.Status.Terminal() {
		return payments.Intent{}, ErrNotPayable
	}

	currency := models.DefaultSettings().Currency
	if s.settings != nil {
		st, err := s.settings.Get(ctx)
		if err != nil {
			return payments.Intent{}, err
		}
		currency = st.Currency
	}

	intent, err := s.payments.CreateIntent(ctx, o, currency)
	if err != nil {
		return payments.Intent{}, err
	}
	if intent.ID != o.PaymentIntentID {
		if _, err := s.update(ctx, o.ID, store.OrderUpdate{
			PaymentIntentID: intent.ID,
			Entry:           models.TimelineEntry{Note: "Card payment started", Timestamp: s.now()},
		}); err != nil {
			return payments.Intent{}, err
		}
	}
	return intent, nil
}

func (s *Service) update(ctx context.Context, id primitive.ObjectID, upd store.OrderUpdate) (*models.Order, error) {
	o, err := s.orders.Update(ctx, id, upd)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrOrderNotFound
	case errors.Is(err, store.ErrConflict):
		return nil, fmt.Errorf("%w: order is already final", ErrInvalidTransition)
	case err != nil:
		return nil, fmt.Errorf("update order %s: %w", id.Hex(), err)
	}
	return o, nil
}

// changed runs the best-effort side effects of a committed change.
func (s *Service) changed(ctx context.Context, before, after *models.Order, action, event string, notifyCustomer bool) {
	ev := audit.Event{
		Action:     action,
		Resource:   models.ResourceOrder,
		ResourceID: after.ID.Hex(),
		New:        snapshot(after),
	}
	if before != nil {
		ev.Old = snapshot(before)
	}
	audit.Log(ctx, s.audit, ev)

	if err := s.search.Index(ctx, after); err != nil {
		s.log.WarnContext(ctx, "reindex order failed", "order_number", after.OrderNumber, "err", err)
	}
	if notifyCustomer {
		s.notifier.StatusChanged(ctx, after)
	}
	events.Emit(ctx, s.events, models.NewOrderEvent(event, after))
}

func snapshot(o *models.Order) map[string]any {
	m := map[string]any{
		"status":        o.Status,
		"paymentStatus": o.PaymentStatus,
		"isPaid":        o.IsPaid,
	}
	if n := len(o.Timeline); n > 0 && o.Timeline[n-1].Note != "" {
		m["note"] = o.Timeline[n-1].Note
	}
	return m
}
