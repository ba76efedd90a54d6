// Package docstore is the MongoDB backend for users and photos. Photo
// documents embed their faces and matches, so every processing result is
// a single document update.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection  = "users"
	photosCollection = "photos"
)

// Connect opens a client and verifies it with a ping. Callers own the
// client and must Disconnect it.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri).
		SetServerSelectionTimeout(20 * time.Second).
		SetConnectTimeout(15 * time.Second).
		SetMaxPoolSize(25).
		SetMinPoolSize(1)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, client.Database(database), nil
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetName("uniq_username").SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = db.Collection(photosCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "uploader_id", Value: 1}, {Key: "uploaded_at", Value: -1}},
			Options: options.Index().SetName("by_uploader_uploaded"),
		},
		{
			Keys:    bson.D{{Key: "matched_user_ids", Value: 1}, {Key: "uploaded_at", Value: -1}},
			Options: options.Index().SetName("by_matched_user_uploaded"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "processing_started_at", Value: 1}},
			Options: options.Index().SetName("by_status_started"),
		},
	})
	if err != nil {
		return fmt.Errorf("create photo indexes: %w", err)
	}
	return nil
}
