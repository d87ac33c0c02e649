package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettingsID is the _id of the single persisted settings document.
const SettingsID = "store"

type Settings struct {
	ID                    string          `json:"-" bson:"_id"`
	StoreName             string          `json:"storeName" bson:"storeName"`
	Currency              string          `json:"currency" bson:"currency"`
	ShippingFee           decimal.Decimal `json:"shippingFee" bson:"shippingFee"`
	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold" bson:"freeShippingThreshold"`
	LowStockThreshold     int             `json:"lowStockThreshold" bson:"lowStockThreshold"`
	BankAccountName       string          `json:"bankAccountName,omitempty" bson:"bankAccountName,omitempty"`
	BankIBAN              string          `json:"bankIban,omitempty" bson:"bankIban,omitempty"`
	BankBIC               string          `json:"bankBic,omitempty" bson:"bankBic,omitempty"`
	UpdatedAt             time.Time       `json:"updatedAt" bson:"updatedAt"`
}

func DefaultSettings() Settings {
	return Settings{
		ID:                    SettingsID,
		StoreName:             "Storefront",
		Currency:              "eur",
		ShippingFee:           decimal.Zero,
		FreeShippingThreshold: decimal.Zero,
		LowStockThreshold:     10,
	}
}
