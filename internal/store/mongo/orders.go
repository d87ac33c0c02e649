package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
	"storefront/internal/store"
)

type Orders struct {
	client   *mongo.Client
	orders   *mongo.Collection
	products *mongo.Collection
}

var _ store.OrderStore = (*Orders)(nil)

func (s *Orders) Place(ctx context.Context, order *models.Order) ([]models.StockLevel, error) {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}

	session, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if _, err := s.orders.InsertOne(sc, order); err != nil {
			return nil, translate(err)
		}

		levels := make(map[primitive.ObjectID]models.StockLevel, len(order.Items))
		var seen []primitive.ObjectID
		for _, item := range order.Items {
			var p models.Product
			err := s.products.FindOneAndUpdate(sc,
				bson.M{"_id": item.ProductID, "stock": bson.M{"$gte": item.Quantity}},
				bson.M{
					"$inc": bson.M{"stock": -item.Quantity, "salesCount": item.Quantity},
					"$set": bson.M{"updatedAt": order.CreatedAt},
				},
				options.FindOneAndUpdate().SetReturnDocument(options.After),
			).Decode(&p)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, &store.InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity}
			}
			if err != nil {
				return nil, err
			}
			if _, ok := levels[p.ID]; !ok {
				seen = append(seen, p.ID)
			}
			levels[p.ID] = models.StockLevel{
				ProductID:         p.ID,
				Title:             p.Title,
				Stock:             p.Stock,
				LowStockThreshold: p.LowStockThreshold,
			}
		}

		out := make([]models.StockLevel, 0, len(seen))
		for _, id := range seen {
			out = append(out, levels[id])
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.StockLevel), nil
}

func (s *Orders) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var o models.Order
	if err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *Orders) FindByNumber(ctx context.Context, number string) (*models.Order, error) {
	var o models.Order
	if err := s.orders.FindOne(ctx, bson.M{"orderNumber": number}).Decode(&o); err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *Orders) List(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["userId"] = f.UserID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	cursor, err := s.orders.Find(ctx, filter, findOptions(f.Skip, f.Limit))
	if err != nil {
		return nil, err
	}
	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Update applies upd as a single pipeline update so the timeline entry can
// default to the status the document ends up in.
func (s *Orders) Update(ctx context.Context, id primitive.ObjectID, upd store.OrderUpdate) (*models.Order, error) {
	filter := bson.M{"_id": id}
	if len(upd.Unless) > 0 {
		filter["status"] = bson.M{"$nin": upd.Unless}
	}

	set := bson.M{}
	if upd.Status != "" {
		set["status"] = upd.Status
	}
	if upd.PaymentStatus != "" {
		set["paymentStatus"] = upd.PaymentStatus
	}
	if upd.PaymentIntentID != "" {
		set["paymentIntentId"] = literal(upd.PaymentIntentID)
	}
	if upd.MarkPaid {
		set["isPaid"] = true
	}
	if upd.PaidAt != nil {
		set["paidAt"] = *upd.PaidAt
	}
	if upd.DeliveredAt != nil {
		set["deliveredAt"] = *upd.DeliveredAt
	}
	if upd.RefundedAt != nil {
		set["refundedAt"] = *upd.RefundedAt
	}

	entry := upd.Entry
	if entry.Timestamp.IsZero() {
		entry.Timestamp = nowUTC()
	}
	var entryStatus any = "$status"
	if upd.Status != "" {
		entryStatus = upd.Status
	}
	if entry.Status != "" {
		entryStatus = entry.Status
	}
	entryDoc := bson.M{"status": entryStatus, "timestamp": entry.Timestamp}
	if entry.Note != "" {
		entryDoc["note"] = literal(entry.Note)
	}
	set["updatedAt"] = entry.Timestamp

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: set}},
		{{Key: "$set", Value: bson.M{
			"timeline": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$timeline", bson.A{}}},
				bson.A{entryDoc},
			}},
		}}},
	}

	// "$status" in the second stage reads the status left by the first.
	var o models.Order
	err := s.orders.FindOneAndUpdate(ctx, filter, pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&o)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) || len(upd.Unless) == 0 {
		return nil, translate(err)
	}

	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, store.ErrConflict
}

// literal keeps user strings beginning with "$" from being read as field
// paths inside an aggregation pipeline.
func literal(v string) bson.M {
	return bson.M{"$literal": v}
}
