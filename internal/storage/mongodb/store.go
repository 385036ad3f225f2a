// Package mongodb implements storage.Store backed by MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-as4-msh/internal/storage"
)

const collMessages = "messages"

// Store is a MongoDB-backed message store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Config holds MongoDB connection settings.
type Config struct {
	URI      string
	Database string
}

// NewStore connects to MongoDB and prepares the message collection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	s := &Store{
		client: client,
		db:     client.Database(cfg.Database),
	}

	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	coll := s.db.Collection(collMessages)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "kind", Value: 1}, {Key: "received_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "service", Value: 1}, {Key: "action", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "ref_to_message_id", Value: 1}},
			Options: options.Index().
				SetPartialFilterExpression(bson.D{{Key: "ref_to_message_id", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
	})
	return err
}

// SaveMessage implements storage.Store.
func (s *Store) SaveMessage(ctx context.Context, rec *storage.Record) error {
	coll := s.db.Collection(collMessages)
	_, err := coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: rec.MessageID}},
		rec,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("saving message %s: %w", rec.MessageID, err)
	}
	return nil
}

// GetMessage implements storage.Store.
func (s *Store) GetMessage(ctx context.Context, messageID string) (*storage.Record, error) {
	coll := s.db.Collection(collMessages)

	var rec storage.Record
	err := coll.FindOne(ctx, bson.D{{Key: "_id", Value: messageID}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", messageID, err)
	}
	return &rec, nil
}

// ListMessages implements storage.Store.
func (s *Store) ListMessages(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	coll := s.db.Collection(collMessages)

	query := bson.D{}
	if filter.Kind != "" {
		query = append(query, bson.E{Key: "kind", Value: filter.Kind})
	}
	if filter.Service != "" {
		query = append(query, bson.E{Key: "service", Value: filter.Service})
	}
	if filter.Action != "" {
		query = append(query, bson.E{Key: "action", Value: filter.Action})
	}
	if filter.Since != nil {
		query = append(query, bson.E{Key: "received_at", Value: bson.D{{Key: "$gte", Value: *filter.Since}}})
	}

	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}})
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*storage.Record
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	return out, nil
}

// Close implements storage.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping implements storage.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

var _ storage.Store = (*Store)(nil)
