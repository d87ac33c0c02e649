package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

func sampleOrder() *models.Order {
	return &models.Order{
		ID:           primitive.NewObjectID(),
		OrderNumber:  "482913",
		CustomerName: "Ada Lovelace",
		GuestEmail:   "ada@example.com",
		Items: []models.OrderItem{
			{Title: "Mug", VariantName: "Blue", Quantity: 1, UnitPrice: decimal.RequireFromString("12")},
		},
		ShippingAddress: models.Address{City: "London"},
		Status:          models.OrderPending,
		PaymentStatus:   models.PaymentPending,
		Total:           decimal.RequireFromString("17.00"),
		CreatedAt:       time.Now().UTC(),
	}
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument(sampleOrder())
	assert.Equal(t, "482913", doc.OrderNumber)
	assert.Equal(t, "ada@example.com", doc.Email)
	assert.Equal(t, []string{"Mug Blue"}, doc.Items)
	assert.Equal(t, "London", doc.City)
	assert.InDelta(t, 17.0, doc.Total, 0.001)
}

// fakeElastic answers the two endpoints the indexer uses.
func fakeElastic(t *testing.T, indexed *[]Document) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/orders/_doc/"):
			body, _ := io.ReadAll(r.Body)
			var doc Document
			assert.NoError(t, json.Unmarshal(body, &doc))
			*indexed = append(*indexed, doc)
			_, _ = w.Write([]byte(`{"result":"created"}`))
		case strings.HasSuffix(r.URL.Path, "/orders/_search"):
			_, _ = w.Write([]byte(`{"hits":{"hits":[{"_id":"abc","_score":2.5,"_source":{"orderNumber":"482913"}}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticIndexAndSearch(t *testing.T) {
	var indexed []Document
	idx := NewElastic(fakeElastic(t, &indexed))
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, sampleOrder()))
	require.Len(t, indexed, 1)
	assert.Equal(t, "Ada Lovelace", indexed[0].CustomerName)

	hits, err := idx.Search(ctx, "ada", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, Hit{OrderID: "abc", OrderNumber: "482913", Score: 2.5}, hits[0])
}

func TestNopSearchUnavailable(t *testing.T) {
	_, err := Nop{}.Search(context.Background(), "x", 10)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, Nop{}.Index(context.Background(), sampleOrder()))
}
