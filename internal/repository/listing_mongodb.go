package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"carvalue-api/internal/model"
)

const listingSequence = "listings"

// MongoDBListingRepository implements ListingRepository using MongoDB.
// Numeric ids come from a counters collection.
type MongoDBListingRepository struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	counters   *mongo.Collection
}

var _ ListingRepository = (*MongoDBListingRepository)(nil)

// ListingDocument represents a listing in MongoDB.
type ListingDocument struct {
	ID         int64     `bson:"_id"`
	Source     string    `bson:"source"`
	ExternalID string    `bson:"external_id,omitempty"`
	Make       string    `bson:"make"`
	Model      string    `bson:"model"`
	Year       int       `bson:"year"`
	Mileage    int64     `bson:"mileage"`
	Price      int64     `bson:"price"`
	Condition  string    `bson:"condition"`
	CreatedAt  time.Time `bson:"created_at"`
}

// NewMongoDBListingRepository connects and ensures indexes.
func NewMongoDBListingRepository(ctx context.Context, uri, database, collection string) (*MongoDBListingRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	coll := db.Collection(collection)

	// unique only where external_id is present
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"external_id": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{
				{Key: "make", Value: 1},
				{Key: "model", Value: 1},
				{Key: "condition", Value: 1},
				{Key: "mileage", Value: 1},
			},
		},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(connectCtx, indexes); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoDBListingRepository{
		client:     client,
		db:         db,
		collection: coll,
		counters:   db.Collection("counters"),
	}, nil
}

func (r *MongoDBListingRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": listingSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

// InsertIfAbsent stores l unless its external id is already recorded.
func (r *MongoDBListingRepository) InsertIfAbsent(ctx context.Context, l *model.Listing) error {
	normalize(l)

	id, err := r.nextID(ctx)
	if err != nil {
		return fmt.Errorf("failed to allocate listing id: %w", err)
	}

	doc := listingDocument(l)
	doc.ID = id
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	l.ID = id
	return nil
}

func listingDocument(l *model.Listing) ListingDocument {
	return ListingDocument{
		ID:         l.ID,
		Source:     l.Source,
		ExternalID: l.ExternalID,
		Make:       l.Make,
		Model:      l.Model,
		Year:       l.Year,
		Mileage:    l.Mileage,
		Price:      l.Price,
		Condition:  string(l.Condition),
		CreatedAt:  l.CreatedAt.UTC(),
	}
}

// Exists reports whether externalID is stored.
func (r *MongoDBListingRepository) Exists(ctx context.Context, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	n, err := r.collection.CountDocuments(ctx, bson.M{"external_id": externalID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check listing: %w", err)
	}
	return n > 0, nil
}

// comparableFilter mirrors the SQL comparability predicate.
func comparableFilter(q model.ComparableQuery) bson.M {
	filter := bson.M{
		"make":      normalizeName(q.Make),
		"model":     normalizeName(q.Model),
		"condition": string(q.Condition),
		"mileage":   bson.M{"$gte": q.MinMileage, "$lte": q.MaxMileage},
		"year":      bson.M{"$gte": q.MinYear, "$lte": q.MaxYear},
	}
	if q.ExcludeExternalID != "" {
		filter["external_id"] = bson.M{"$ne": q.ExcludeExternalID}
	}
	if q.ExcludeID != 0 {
		filter["_id"] = bson.M{"$ne": q.ExcludeID}
	}
	return filter
}

// QueryComparables returns price points inside the comparability window.
func (r *MongoDBListingRepository) QueryComparables(ctx context.Context, q model.ComparableQuery) ([]model.PricePoint, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, "external_id": 1, "price": 1})
	cursor, err := r.collection.Find(ctx, comparableFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparables: %w", err)
	}
	defer cursor.Close(ctx)

	var points []model.PricePoint
	for cursor.Next(ctx) {
		var doc struct {
			ID         int64  `bson:"_id"`
			ExternalID string `bson:"external_id"`
			Price      int64  `bson:"price"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode comparable: %w", err)
		}
		points = append(points, model.PricePoint{ID: doc.ID, ExternalID: doc.ExternalID, Price: doc.Price})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read comparables: %w", err)
	}
	return points, nil
}

// GetStats returns statistics about the listing collection.
func (r *MongoDBListingRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["backend"] = "mongodb"

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return stats, err
	}
	stats["total_listings"] = count

	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var doc ListingDocument
	if err := r.collection.FindOne(ctx, bson.M{}, opts).Decode(&doc); err == nil {
		stats["last_listing"] = doc.CreatedAt
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return stats, err
	}

	result := r.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: r.collection.Name()}})
	var collStats bson.M
	if err := result.Decode(&collStats); err == nil {
		if size, ok := collStats["size"].(int64); ok {
			stats["db_size_bytes"] = size
		} else if size, ok := collStats["size"].(int32); ok {
			stats["db_size_bytes"] = int64(size)
		}
	}

	return stats, nil
}

// DeleteOlderThan removes listings created before cutoff.
func (r *MongoDBListingRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old listings: %w", err)
	}
	return result.DeletedCount, nil
}

// Ping checks the primary is reachable.
func (r *MongoDBListingRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close closes the MongoDB connection.
func (r *MongoDBListingRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}
