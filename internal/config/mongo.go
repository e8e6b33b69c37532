package config

import (
	"context"
	"fmt"

	"github.com/rongwang/groupbets-server/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// SetupMongo connects to MongoDB, verifies the connection and creates the
// collection indexes. Timeouts are fixed here for the process lifetime.
func SetupMongo(ctx context.Context, cfg *Config) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetServerSelectionTimeout(cfg.Mongo.ServerSelectionTimeout).
		SetConnectTimeout(cfg.Mongo.ConnectTimeout).
		SetSocketTimeout(cfg.Mongo.SocketTimeout).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	if err := CreateIndexes(ctx, client.Database(cfg.Mongo.Database)); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return client, nil
}

// CreateIndexes creates the unique and lookup indexes of every collection
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		repository.UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "group_ids", Value: 1}}},
		},
		repository.GroupsCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_ids", Value: 1}}},
			{Keys: bson.D{{Key: "current_bet_id", Value: 1}}},
			{Keys: bson.D{{Key: "past_bet_ids", Value: 1}}},
		},
		repository.BetsCollection: {
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "status", Value: 1}, {Key: "start_date", Value: 1}}},
			{Keys: bson.D{{Key: "user_progress.user_id", Value: 1}}},
		},
	}

	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("collection %s: %w", name, err)
		}
	}
	return nil
}
