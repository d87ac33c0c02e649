package mongo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type priced struct {
	Price decimal.Decimal  `bson:"price"`
	Cap   *decimal.Decimal `bson:"cap,omitempty"`
}

func TestDecimalStoredAsDecimal128(t *testing.T) {
	reg := Registry()
	limit := decimal.RequireFromString("15.50")

	raw, err := bson.MarshalWithRegistry(reg, priced{Price: decimal.RequireFromString("19.99"), Cap: &limit})
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	d128, ok := doc["price"].(primitive.Decimal128)
	require.True(t, ok, "price should be a Decimal128, got %T", doc["price"])
	assert.Equal(t, "19.99", d128.String())

	var back priced
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &back))
	assert.True(t, back.Price.Equal(decimal.RequireFromString("19.99")))
	require.NotNil(t, back.Cap)
	assert.True(t, back.Cap.Equal(limit))
}

func TestDecimalDecodesLegacyNumbers(t *testing.T) {
	reg := Registry()
	cases := map[string]any{
		"double": 12.5,
		"int32":  int32(12),
		"int64":  int64(12),
		"string": "12.5",
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			raw, err := bson.Marshal(bson.M{"price": v})
			require.NoError(t, err)

			var out priced
			require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
			assert.False(t, out.Price.IsZero())
			assert.True(t, out.Price.LessThanOrEqual(decimal.RequireFromString("12.5")))
		})
	}
}
