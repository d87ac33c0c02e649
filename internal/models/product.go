package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Product struct {
	ID                primitive.ObjectID `json:"_id" bson:"_id"`
	Title             string             `json:"title" bson:"title"`
	Slug              string             `json:"slug" bson:"slug"`
	Description       string             `json:"description,omitempty" bson:"description,omitempty"`
	Price             decimal.Decimal    `json:"price" bson:"price"`
	Stock             int                `json:"stock" bson:"stock"`
	SalesCount        int                `json:"salesCount" bson:"salesCount"`
	LowStockThreshold int                `json:"lowStockThreshold" bson:"lowStockThreshold"`
	Images            []string           `json:"images" bson:"images"`
	Variants          []ProductVariant   `json:"variants,omitempty" bson:"variants,omitempty"`
	Category          string             `json:"category,omitempty" bson:"category,omitempty"`
	IsActive          bool               `json:"isActive" bson:"isActive"`
	CreatedAt         time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt" bson:"updatedAt"`
}

type ProductVariant struct {
	ID    string          `json:"id" bson:"id"`
	Name  string          `json:"name" bson:"name"`
	Price decimal.Decimal `json:"price" bson:"price"`
}
