// Package notify tells customers about their orders by e-mail and archives
// receipts. Delivery happens in the background and never fails the caller.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
)

type Notifier interface {
	OrderPlaced(ctx context.Context, o *models.Order)
	StatusChanged(ctx context.Context, o *models.Order)
}

type Nop struct{}

func (Nop) OrderPlaced(context.Context, *models.Order)   {}
func (Nop) StatusChanged(context.Context, *models.Order) {}

type SettingsSource interface {
	Get(ctx context.Context) (models.Settings, error)
}

type Service struct {
	mailer   Mailer
	receipts ReceiptStore
	settings SettingsSource
	log      *slog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

// New wires the notifier. mailer and receipts may be nil to skip that
// channel.
func New(mailer Mailer, receipts ReceiptStore, settings SettingsSource, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		mailer:   mailer,
		receipts: receipts,
		settings: settings,
		log:      log,
		timeout:  30 * time.Second,
	}
}

// Wait blocks until in-flight deliveries finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) OrderPlaced(ctx context.Context, o *models.Order) {
	order := *o
	s.background(ctx, func(ctx context.Context) {
		if err := s.orderPlaced(ctx, &order); err != nil {
			s.log.Error("order placed notification failed", "order_number", order.OrderNumber, "err", err)
		}
	})
}

func (s *Service) StatusChanged(ctx context.Context, o *models.Order) {
	order := *o
	s.background(ctx, func(ctx context.Context) {
		if err := s.statusChanged(ctx, &order); err != nil {
			s.log.Error("status notification failed", "order_number", order.OrderNumber, "status", order.Status, "err", err)
		}
	})
}

func (s *Service) background(ctx context.Context, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Service) loadSettings(ctx context.Context) models.Settings {
	if s.settings == nil {
		return models.DefaultSettings()
	}
	st, err := s.settings.Get(ctx)
	if err != nil {
		s.log.Warn("settings unavailable for notification, using defaults", "err", err)
		return models.DefaultSettings()
	}
	return st
}

// Receipt renders the HTML receipt for o.
func Receipt(o *models.Order, st models.Settings) ([]byte, error) {
	data := receiptData{
		StoreName: st.StoreName,
		Currency:  strings.ToUpper(st.Currency),
		Order:     o,
	}
	if o.PaymentMethod == models.PaymentMethodBankTransfer && st.BankIBAN != "" {
		bt := &bankTransfer{
			Name:      st.BankAccountName,
			IBAN:      st.BankIBAN,
			BIC:       st.BankBIC,
			Reference: "ORDER-" + o.OrderNumber,
		}
		if bt.Name == "" {
			bt.Name = st.StoreName
		}
		// The QR is an optional convenience; the written details stay.
		if qr, err := SepaQR(bt.IBAN, bt.BIC, bt.Name, bt.Reference, o.Total); err == nil {
			bt.QR = qr
		}
		data.BankTransfer = bt
	}
	return render(receiptTmpl, data)
}

func (s *Service) orderPlaced(ctx context.Context, o *models.Order) error {
	st := s.loadSettings(ctx)
	body, err := Receipt(o, st)
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}

	if s.receipts != nil {
		if err := s.receipts.Put(ctx, ReceiptKey(o.OrderNumber), body, "text/html; charset=utf-8"); err != nil {
			s.log.Error("archive receipt failed", "order_number", o.OrderNumber, "err", err)
		}
	}

	to := o.ContactEmail()
	if s.mailer == nil || to == "" {
		return nil
	}
	subject := fmt.Sprintf("%s: order #%s confirmed", st.StoreName, o.OrderNumber)
	if err := s.mailer.Send(ctx, to, subject, string(body)); err != nil {
		return err
	}
	s.log.Info("order confirmation sent", "order_number", o.OrderNumber)
	return nil
}

func (s *Service) statusChanged(ctx context.Context, o *models.Order) error {
	to := o.ContactEmail()
	if s.mailer == nil || to == "" {
		return nil
	}

	st := s.loadSettings(ctx)
	data := statusData{
		StoreName: st.StoreName,
		Currency:  strings.ToUpper(st.Currency),
		Order:     o,
		Copy:      copyFor(o.Status),
	}
	if n := len(o.Timeline); n > 0 {
		data.Note = o.Timeline[n-1].Note
	}
	body, err := render(statusTmpl, data)
	if err != nil {
		return fmt.Errorf("render status mail: %w", err)
	}

	subject := fmt.Sprintf("%s: %s", st.StoreName, data.Copy.Subject)
	if err := s.mailer.Send(ctx, to, subject, string(body)); err != nil {
		return err
	}
	s.log.Info("status mail sent", "order_number", o.OrderNumber, "status", o.Status)
	return nil
}
