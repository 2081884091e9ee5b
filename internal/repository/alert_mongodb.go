package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"universalis-alerts/internal/model"
)

// MongoDBAlertRepository implements AlertRepository using MongoDB.
// Documents use the same field names as the SQL columns.
type MongoDBAlertRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDBAlertRepository connects to MongoDB and ensures the lookup index.
func NewMongoDBAlertRepository(uri, database, collection string, maxPoolSize int) (*MongoDBAlertRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(uint64(maxPoolSize)).
		SetMaxConnIdleTime(5 * time.Minute)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "world_id", Value: 1}, {Key: "item_id", Value: 1}},
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		log.Printf("[MongoDBAlertRepository] Warning: failed to create index: %v", err)
	}

	log.Printf("[MongoDBAlertRepository] Connected to %s/%s", database, collection)
	return &MongoDBAlertRepository{
		client:     client,
		collection: coll,
	}, nil
}

// FindAlerts returns the alerts selected by q. Documents that fail to decode
// are logged and skipped.
func (r *MongoDBAlertRepository) FindAlerts(ctx context.Context, q AlertQuery) ([]model.UserAlert, error) {
	filter := bson.M{
		"world_id": q.WorldID,
		"item_id":  bson.M{"$in": bson.A{q.ItemID, model.WildcardItemID}},
		"trigger_version": bson.M{
			"$gte": q.MinVersion,
			"$lte": q.MaxVersion,
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []model.UserAlert
	for cursor.Next(ctx) {
		var a model.UserAlert
		if err := cursor.Decode(&a); err != nil {
			log.Printf("[MongoDBAlertRepository] Warning: skipping undecodable alert %v: %v", cursor.Current.Lookup("_id"), err)
			continue
		}
		alerts = append(alerts, a)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}
	return alerts, nil
}

// Ping checks the MongoDB connection.
func (r *MongoDBAlertRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (r *MongoDBAlertRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

var _ AlertRepository = (*MongoDBAlertRepository)(nil)
