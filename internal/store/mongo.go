package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codeur-agent/codeur-responder/internal/lead"
)

const (
	defaultMongoURI        = "mongodb://localhost:27017"
	defaultMongoDatabase   = "codeur"
	defaultMongoCollection = "projects"
	connectTimeout         = 10 * time.Second
)

// MongoConfig locates the lead collection.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// MongoStore implements Store on a MongoDB collection with a unique index on reference.
type MongoStore struct {
	client *mongo.Client
	leads  *mongo.Collection
	now    func() time.Time
}

var _ Store = (*MongoStore)(nil)

// NewMongo connects, pings and ensures the indexes exist.
func NewMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = defaultMongoURI
	}
	if cfg.Database == "" {
		cfg.Database = defaultMongoDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultMongoCollection
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	s := newMongoStore(client, client.Database(cfg.Database).Collection(cfg.Collection))
	if err := s.createIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

func newMongoStore(client *mongo.Client, leads *mongo.Collection) *MongoStore {
	return &MongoStore{client: client, leads: leads, now: time.Now}
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	_, err := s.leads.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "upserted_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("can't create indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Upsert(ctx context.Context, l *lead.Lead) error {
	if l == nil || l.Reference == "" {
		return errors.New("mongo: lead reference is required")
	}

	now := s.now().UTC()
	created := l.CreatedAt
	if created.IsZero() {
		created = now
	}

	var fields bson.M
	data, err := bson.Marshal(l)
	if err != nil {
		return fmt.Errorf("mongo: marshal lead %s: %w", l.Reference, err)
	}
	if err := bson.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("mongo: unmarshal lead %s: %w", l.Reference, err)
	}
	delete(fields, "_id")
	delete(fields, "created_at")
	fields["updated_at"] = now
	fields["upserted_at"] = now

	update := bson.M{
		"$set":         fields,
		"$setOnInsert": bson.M{"created_at": created},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.leads.UpdateOne(ctx, bson.M{"reference": l.Reference}, update, opts); err != nil {
		return fmt.Errorf("mongo: upsert lead %s: %w", l.Reference, err)
	}

	l.UpdatedAt = now
	l.UpsertedAt = now
	return nil
}

func (s *MongoStore) Get(ctx context.Context, reference string) (*lead.Lead, error) {
	var l lead.Lead
	err := s.leads.FindOne(ctx, bson.M{"reference": reference}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get lead %s: %w", reference, err)
	}
	return &l, nil
}

func (s *MongoStore) List(ctx context.Context, opts ListOptions) ([]*lead.Lead, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "upserted_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.leads.Find(ctx, statusFilter(opts.Status), findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list leads: %w", err)
	}
	defer cursor.Close(ctx)

	leads := []*lead.Lead{}
	if err := cursor.All(ctx, &leads); err != nil {
		return nil, fmt.Errorf("mongo: decode leads: %w", err)
	}
	return leads, nil
}

func (s *MongoStore) Count(ctx context.Context, status lead.Status) (int64, error) {
	n, err := s.leads.CountDocuments(ctx, statusFilter(status))
	if err != nil {
		return 0, fmt.Errorf("mongo: count leads: %w", err)
	}
	return n, nil
}

func (s *MongoStore) UpdateStatus(ctx context.Context, reference string, status lead.Status) error {
	return s.set(ctx, reference, bson.M{"status": status})
}

func (s *MongoStore) Annotate(ctx context.Context, reference, note string) error {
	return s.set(ctx, reference, bson.M{"note": note})
}

func (s *MongoStore) set(ctx context.Context, reference string, fields bson.M) error {
	fields["updated_at"] = s.now().UTC()
	res, err := s.leads.UpdateOne(ctx, bson.M{"reference": reference}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("mongo: update lead %s: %w", reference, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, reference)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, reference string) error {
	res, err := s.leads.DeleteOne(ctx, bson.M{"reference": reference})
	if err != nil {
		return fmt.Errorf("mongo: delete lead %s: %w", reference, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, reference)
	}
	return nil
}

func (s *MongoStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.leads.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo: delete all leads: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func statusFilter(status lead.Status) bson.M {
	if status == "" {
		return bson.M{}
	}
	return bson.M{"status": status}
}
