// Package search indexes orders in Elasticsearch for the admin console.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"storefront/internal/models"
)

const OrdersIndex = "orders"

// ErrUnavailable is returned by Search when no search backend is configured.
var ErrUnavailable = errors.New("search backend unavailable")

type Hit struct {
	OrderID     string  `json:"orderId"`
	OrderNumber string  `json:"orderNumber"`
	Score       float64 `json:"score"`
}

type Indexer interface {
	Index(ctx context.Context, o *models.Order) error
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

// Document is the indexed projection of an order.
type Document struct {
	OrderNumber   string    `json:"orderNumber"`
	CustomerName  string    `json:"customerName"`
	Email         string    `json:"email,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	PaymentMethod string    `json:"paymentMethod"`
	CouponCode    string    `json:"couponCode,omitempty"`
	Items         []string  `json:"items"`
	City          string    `json:"city,omitempty"`
	Total         float64   `json:"total"`
	CreatedAt     time.Time `json:"createdAt"`
}

func NewDocument(o *models.Order) Document {
	items := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		title := it.Title
		if it.VariantName != "" {
			title += " " + it.VariantName
		}
		items = append(items, title)
	}
	total, _ := o.Total.Float64()
	return Document{
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.CustomerName,
		Email:         o.ContactEmail(),
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		PaymentMethod: o.PaymentMethod,
		CouponCode:    o.CouponCode,
		Items:         items,
		City:          o.ShippingAddress.City,
		Total:         total,
		CreatedAt:     o.CreatedAt,
	}
}

// Nop indexes nothing and reports Search as unavailable.
type Nop struct{}

func (Nop) Index(context.Context, *models.Order) error { return nil }

func (Nop) Search(context.Context, string, int) ([]Hit, error) { return nil, ErrUnavailable }

type Elastic struct {
	client *elasticsearch.Client
	index  string
}

func NewElastic(client *elasticsearch.Client) *Elastic {
	return &Elastic{client: client, index: OrdersIndex}
}

func (e *Elastic) Index(ctx context.Context, o *models.Order) error {
	data, err := json.Marshal(NewDocument(o))
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: o.ID.Hex(),
		Body:       bytes.NewReader(data),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("index order %s: %w", o.OrderNumber, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index order %s: %s", o.OrderNumber, res.String())
	}
	return nil
}

func (e *Elastic) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var buf bytes.Buffer
	q := map[string]any{
		"size": limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"orderNumber^3", "customerName^2", "email^2", "items", "couponCode", "city"},
				"fuzziness": "AUTO",
			},
		},
	}
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  &buf,
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("search orders: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		slog.ErrorContext(ctx, "elasticsearch search error", "status", res.StatusCode, "body", string(body))
		return nil, fmt.Errorf("search orders: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				ID     string   `json:"_id"`
				Score  float64  `json:"_score"`
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		hits = append(hits, Hit{OrderID: h.ID, OrderNumber: h.Source.OrderNumber, Score: h.Score})
	}
	return hits, nil
}
