package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// StockLevel is a product's stock right after a sale or adjustment.
type StockLevel struct {
	ProductID         primitive.ObjectID `json:"productId"`
	Title             string             `json:"title"`
	Stock             int                `json:"stock"`
	LowStockThreshold int                `json:"lowStockThreshold"`
}

// Low reports whether the level should raise a stock alert, using fallback
// when the product carries no threshold of its own.
func (l StockLevel) Low(fallback int) bool {
	threshold := l.LowStockThreshold
	if threshold == 0 {
		threshold = fallback
	}
	return l.Stock <= threshold
}

// AlertType mirrors the two alert kinds raised after a sale.
func (l StockLevel) AlertType() string {
	if l.Stock == 0 {
		return "out_of_stock"
	}
	return "low_stock"
}
