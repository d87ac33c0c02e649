// Package payments talks to the card payment provider.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/webhook"

	"storefront/internal/models"
)

var (
	ErrUnavailable      = errors.New("card payments are not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.payment_failed"
)

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
}

// Event is the part of a provider webhook the order flow cares about.
type Event struct {
	ID              string
	Type            EventType
	PaymentIntentID string
	OrderID         string
	FailureMessage  string
}

type Gateway interface {
	CreateIntent(ctx context.Context, o *models.Order, currency string) (Intent, error)
	Refund(ctx context.Context, intentID string, amount decimal.Decimal) (string, error)
	ParseEvent(payload []byte, signature string) (Event, error)
}

// ToCents converts an amount to the provider's minor units.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// Disabled rejects every call; used when no provider key is configured.
type Disabled struct{}

func (Disabled) CreateIntent(context.Context, *models.Order, string) (Intent, error) {
	return Intent{}, ErrUnavailable
}

func (Disabled) Refund(context.Context, string, decimal.Decimal) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) ParseEvent([]byte, string) (Event, error) {
	return Event{}, ErrUnavailable
}

type Stripe struct {
	webhookSecret string
	// allowUnsigned accepts unsigned webhook payloads when no secret is set.
	allowUnsigned bool
}

func NewStripe(secretKey, webhookSecret string, allowUnsigned bool) *Stripe {
	stripe.Key = secretKey
	return &Stripe{webhookSecret: webhookSecret, allowUnsigned: allowUnsigned}
}

func (s *Stripe) CreateIntent(_ context.Context, o *models.Order, currency string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToCents(o.Total)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("order_id", o.ID.Hex())
	params.AddMetadata("order_number", o.OrderNumber)
	if email := o.ContactEmail(); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	params.SetIdempotencyKey(fmt.Sprintf("order-%s-%d", o.ID.Hex(), ToCents(o.Total)))

	pi, err := paymentintent.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe payment intent: %w", err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *Stripe) Refund(_ context.Context, intentID string, amount decimal.Decimal) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if amount.IsPositive() {
		params.Amount = stripe.Int64(ToCents(amount))
	}

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe refund: %w", err)
	}
	return r.ID, nil
}

func (s *Stripe) ParseEvent(payload []byte, signature string) (Event, error) {
	var (
		ev  stripe.Event
		err error
	)
	if s.webhookSecret == "" {
		if !s.allowUnsigned {
			return Event{}, ErrInvalidSignature
		}
		slog.Warn("STRIPE_WEBHOOK_SECRET not set, accepting unsigned webhook")
		if err := json.Unmarshal(payload, &ev); err != nil {
			return Event{}, fmt.Errorf("decode webhook: %w", err)
		}
	} else {
		ev, err = webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}

	out := Event{ID: ev.ID, Type: EventType(ev.Type)}
	if out.Type != EventPaymentSucceeded && out.Type != EventPaymentFailed {
		return out, nil
	}
	if ev.Data == nil {
		return Event{}, errors.New("decode webhook: missing data")
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return Event{}, fmt.Errorf("decode payment intent: %w", err)
	}
	out.PaymentIntentID = pi.ID
	out.OrderID = pi.Metadata["order_id"]
	if pi.LastPaymentError != nil {
		out.FailureMessage = pi.LastPaymentError.Msg
	}
	return out, nil
}
