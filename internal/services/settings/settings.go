// Package settings owns the persisted store configuration record. Callers load
// it per operation; nothing is cached process-wide.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/audit"
	"storefront/internal/models"
	"storefront/internal/store"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Patch carries the fields an admin may change; nil leaves a field as is.
type Patch struct {
	StoreName             *string          `json:"storeName"`
	Currency              *string          `json:"currency"`
	ShippingFee           *decimal.Decimal `json:"shippingFee"`
	FreeShippingThreshold *decimal.Decimal `json:"freeShippingThreshold"`
	LowStockThreshold     *int             `json:"lowStockThreshold"`
	BankAccountName       *string          `json:"bankAccountName"`
	BankIBAN              *string          `json:"bankIban"`
	BankBIC               *string          `json:"bankBic"`
}

type Service struct {
	store store.SettingsStore
	audit audit.Recorder
}

func NewService(s store.SettingsStore, rec audit.Recorder) *Service {
	return &Service{store: s, audit: rec}
}

// Get returns the saved record, or the defaults when none was saved yet.
func (s *Service) Get(ctx context.Context) (models.Settings, error) {
	saved, err := s.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return *saved, nil
}

func (s *Service) Update(ctx context.Context, p Patch) (models.Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return models.Settings{}, err
	}
	before := current

	if p.StoreName != nil {
		current.StoreName = strings.TrimSpace(*p.StoreName)
	}
	if p.Currency != nil {
		current.Currency = strings.ToLower(strings.TrimSpace(*p.Currency))
	}
	if p.ShippingFee != nil {
		current.ShippingFee = *p.ShippingFee
	}
	if p.FreeShippingThreshold != nil {
		current.FreeShippingThreshold = *p.FreeShippingThreshold
	}
	if p.LowStockThreshold != nil {
		current.LowStockThreshold = *p.LowStockThreshold
	}
	if p.BankAccountName != nil {
		current.BankAccountName = strings.TrimSpace(*p.BankAccountName)
	}
	if p.BankIBAN != nil {
		current.BankIBAN = strings.ToUpper(strings.ReplaceAll(*p.BankIBAN, " ", ""))
	}
	if p.BankBIC != nil {
		current.BankBIC = strings.ToUpper(strings.TrimSpace(*p.BankBIC))
	}

	if err := validate(current); err != nil {
		return models.Settings{}, err
	}

	current.ID = models.SettingsID
	current.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, &current); err != nil {
		return models.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	audit.Log(ctx, s.audit, audit.Event{
		Action: models.ActionSettingsWrite, Resource: models.ResourceSettings, ResourceID: models.SettingsID,
		Old: before, New: current,
	})
	return current, nil
}

func validate(s models.Settings) error {
	switch {
	case s.StoreName == "":
		return fmt.Errorf("%w: storeName is required", ErrInvalidSettings)
	case len(s.Currency) != 3:
		return fmt.Errorf("%w: currency must be an ISO 4217 code", ErrInvalidSettings)
	case s.ShippingFee.IsNegative():
		return fmt.Errorf("%w: shippingFee must not be negative", ErrInvalidSettings)
	case s.FreeShippingThreshold.IsNegative():
		return fmt.Errorf("%w: freeShippingThreshold must not be negative", ErrInvalidSettings)
	case s.LowStockThreshold < 0:
		return fmt.Errorf("%w: lowStockThreshold must not be negative", ErrInvalidSettings)
	}
	return nil
}
