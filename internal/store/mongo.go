package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wamirror/internal/constants"
	apperrors "wamirror/internal/errors"
	"wamirror/internal/models"
)

// MongoOptions locates the collection holding message documents.
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore keeps one document per message id with the status history as an
// embedded array updated through $push.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *logrus.Logger
}

// OpenMongo connects, verifies the server and ensures the indexes exist.
func OpenMongo(ctx context.Context, opts MongoOptions, logger *logrus.Logger) (*MongoStore, error) {
	if opts.URI == "" {
		return nil, apperrors.NewConfigError("store.mongo_uri", "mongo driver requires a connection URI")
	}
	if opts.Database == "" {
		opts.Database = constants.DefaultMongoDatabase
	}
	if opts.Collection == "" {
		opts.Collection = constants.DefaultMongoCollection
	}

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true, NilSliceAsEmpty: true})
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	collection := client.Database(opts.Database).Collection(opts.Collection)
	_, err = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "messageId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "wa_id", Value: 1}, {Key: "timestamp", Value: 1}},
		},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoStore{client: client, collection: collection, logger: logger}, nil
}

func (s *MongoStore) UpsertOnID(ctx context.Context, delta MessageDelta) (*models.Message, error) {
	record := delta.Record
	if record.CreatedAt.IsZero() {
		record.CreatedAt = delta.TouchedAt
	}
	onInsert, err := insertDocument(&record)
	if err != nil {
		return nil, err
	}

	update := bson.M{
		"$setOnInsert": onInsert,
		"$set": bson.M{
			"rawPayload": delta.RawPayload,
			"updatedAt":  delta.TouchedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	// Two concurrent upserts of a new id can both attempt the insert; the
	// loser gets a duplicate key error and succeeds as an update on retry.
	isTransient := func(err error) bool {
		return mongo.IsDuplicateKeyError(err) || isMongoTransient(err)
	}

	var out models.Message
	err = retryableDBOperation(ctx, s.logger, "upsert", isTransient, func() error {
		return s.collection.FindOneAndUpdate(ctx, bson.M{"messageId": record.MessageID}, update, opts).Decode(&out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MongoStore) AppendStatus(ctx context.Context, messageID string, update StatusUpdate) (*models.Message, error) {
	change := bson.M{
		"$set": bson.M{
			"status":     update.Status,
			"updatedAt":  update.TouchedAt,
			"rawPayload": update.RawPayload,
		},
		"$push": bson.M{"statusHistory": update.Entry},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var (
		out   models.Message
		found = true
	)
	err := retryableDBOperation(ctx, s.logger, "append_status", isMongoTransient, func() error {
		err := s.collection.FindOneAndUpdate(ctx, bson.M{"messageId": messageID}, change, opts).Decode(&out)
		if errors.Is(err, mongo.ErrNoDocuments) {
			found = false
			return nil
		}
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

func (s *MongoStore) InsertIfAbsent(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	record := *msg
	if record.StatusHistory == nil {
		record.StatusHistory = []models.StatusEntry{}
	}

	inserted := true
	err := retryableDBOperation(ctx, s.logger, "insert_if_absent", isMongoTransient, func() error {
		_, err := s.collection.InsertOne(ctx, &record)
		if mongo.IsDuplicateKeyError(err) {
			inserted = false
			return nil
		}
		return err
	})
	if err != nil || !inserted {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *MongoStore) FindByContact(ctx context.Context, contactID string) ([]*models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "createdAt", Value: 1}})

	out := make([]*models.Message, 0)
	err := retryableDBOperation(ctx, s.logger, "find_by_contact", isMongoTransient, func() error {
		cursor, err := s.collection.Find(ctx, bson.M{"wa_id": contactID}, opts)
		if err != nil {
			return err
		}
		out = out[:0]
		return cursor.All(ctx, &out)
	})
	return out, err
}

func (s *MongoStore) LatestPerContact(ctx context.Context) ([]models.ConversationSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: 1}, {Key: "createdAt", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$wa_id"},
			{Key: "contactName", Value: bson.D{{Key: "$first", Value: "$contactName"}}},
			{Key: "lastMessage", Value: bson.D{{Key: "$last", Value: "$text"}}},
			{Key: "lastTimestamp", Value: bson.D{{Key: "$last", Value: "$timestamp"}}},
			{Key: "lastStatus", Value: bson.D{{Key: "$last", Value: "$status"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastTimestamp", Value: -1}}}},
	}

	out := make([]models.ConversationSummary, 0)
	err := retryableDBOperation(ctx, s.logger, "latest_per_contact", isMongoTransient, func() error {
		cursor, err := s.collection.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		out = out[:0]
		return cursor.All(ctx, &out)
	})
	return out, err
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// insertDocument renders the fields written only when the document is created.
func insertDocument(msg *models.Message) (bson.M, error) {
	if msg.StatusHistory == nil {
		msg.StatusHistory = []models.StatusEntry{}
	}
	raw, err := bson.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	delete(doc, "messageId")
	delete(doc, "rawPayload")
	delete(doc, "updatedAt")
	return doc, nil
}

func isMongoTransient(err error) bool {
	return mongo.IsNetworkError(err) || isTransientMessage(err)
}
