package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
	"storefront/internal/store"
)

// Settings keeps the single store configuration document under a fixed id.
type Settings struct {
	coll *mongo.Collection
}

var _ store.SettingsStore = (*Settings)(nil)

func (s *Settings) Load(ctx context.Context) (*models.Settings, error) {
	var out models.Settings
	if err := s.coll.FindOne(ctx, bson.M{"_id": models.SettingsID}).Decode(&out); err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *Settings) Save(ctx context.Context, settings *models.Settings) error {
	settings.ID = models.SettingsID
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": models.SettingsID}, settings,
		options.Replace().SetUpsert(true))
	return err
}
