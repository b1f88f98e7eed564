package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecotrace-api/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoStore implements Store on a MongoDB collection. Transactions need a
// replica set or sharded cluster.
type MongoStore struct {
	client      *mongo.Client
	collection  *mongo.Collection
	maxAttempts int
}

// mongoDocument is the stored envelope. _id is the document path.
type mongoDocument struct {
	ID        string    `bson:"_id"`
	Parent    string    `bson:"parent"`
	Data      bson.D    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type mongoReadDocument struct {
	ID   string   `bson:"_id"`
	Data bson.Raw `bson:"data"`
}

// NewMongoStore connects to MongoDB and prepares the documents collection.
func NewMongoStore(uri, database, collection string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "parent", Value: 1}, {Key: "_id", Value: 1}},
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		log.Warn().Err(err).Str("component", "MongoStore").Msg("failed to create parent index")
	}

	log.Info().Str("component", "MongoStore").Str("database", database).Str("collection", collection).Msg("connected")
	return &MongoStore{
		client:      client,
		collection:  coll,
		maxAttempts: DefaultMaxAttempts,
	}, nil
}

// Get returns the document at path, or nil when absent.
func (s *MongoStore) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := splitPath(path); err != nil {
		return nil, err
	}

	var doc mongoReadDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": path}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyMongo(err, "get document")
	}
	return rawToDocument(path, doc.Data)
}

// List returns the direct children of collection.
func (s *MongoStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"parent": collection}, opts)
	if err != nil {
		return nil, classifyMongo(err, "list documents")
	}
	defer cursor.Close(ctx)

	prefix := collection + "/"
	var out []Snapshot
	for cursor.Next(ctx) {
		var doc mongoReadDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, model.Wrap(model.KindDataCorruption, err, "failed to decode document")
		}
		data, err := rawToDocument(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{Path: doc.ID, ID: strings.TrimPrefix(doc.ID, prefix), Data: data})
	}
	if err := cursor.Err(); err != nil {
		return nil, classifyMongo(err, "list documents")
	}
	return out, nil
}

// Set writes fields to path.
func (s *MongoStore) Set(ctx context.Context, path string, fields Document, opts ...SetOption) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(ctx, path, fields, opts...)
	})
}

// Update merges fields into an existing document.
func (s *MongoStore) Update(ctx context.Context, path string, fields Document) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(ctx, path, fields)
	})
}

// Delete removes the document at path.
func (s *MongoStore) Delete(ctx context.Context, path string) error {
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": path})
	return classifyMongo(err, "delete document")
}

// RunTransaction runs fn in a multi-document transaction, retrying transient
// transaction errors.
func (s *MongoStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runWithRetry(ctx, s.maxAttempts, func() error {
		return s.runOnce(ctx, fn)
	})
}

func (s *MongoStore) runOnce(ctx context.Context, fn TxFunc) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return classifyMongo(err, "start session")
	}
	defer sess.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sess.StartTransaction(txOpts); err != nil {
			return classifyMongo(err, "start transaction")
		}
		if err := fn(sc, &mongoTx{store: s}); err != nil {
			sess.AbortTransaction(context.Background())
			return err
		}
		if err := sess.CommitTransaction(sc); err != nil {
			return classifyMongo(err, "commit transaction")
		}
		return nil
	})
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) replace(ctx context.Context, path string, doc Document) error {
	parent, _, err := splitPath(path)
	if err != nil {
		return err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return model.Wrap(model.KindInvalidArgument, err, "failed to encode document")
	}
	var fields bson.D
	if err := bson.UnmarshalExtJSON(data, false, &fields); err != nil {
		return model.Wrap(model.KindInvalidArgument, err, "failed to convert document to BSON")
	}

	envelope := mongoDocument{ID: path, Parent: parent, Data: fields, UpdatedAt: time.Now().UTC()}
	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": path}, envelope, options.Replace().SetUpsert(true))
	return classifyMongo(err, "write document")
}

// mongoTx runs its operations on the session context passed by RunTransaction.
type mongoTx struct {
	store *MongoStore
}

func (t *mongoTx) Get(ctx context.Context, path string) (Document, error) {
	return t.store.Get(ctx, path)
}

func (t *mongoTx) List(ctx context.Context, collection string) ([]Snapshot, error) {
	return t.store.List(ctx, collection)
}

func (t *mongoTx) Set(ctx context.Context, path string, fields Document, opts ...SetOption) error {
	o := buildSetOptions(opts)

	var base Document
	if o.merge {
		existing, err := t.store.Get(ctx, path)
		if err != nil {
			return err
		}
		base = existing
	}
	doc, err := applyFields(base, fields, o.merge)
	if err != nil {
		return err
	}
	return t.store.replace(ctx, path, doc)
}

func (t *mongoTx) Update(ctx context.Context, path string, fields Document) error {
	existing, err := t.store.Get(ctx, path)
	if err != nil {
		return err
	}
	if existing == nil {
		return notFound(path)
	}
	doc, err := applyFields(existing, fields, true)
	if err != nil {
		return err
	}
	return t.store.replace(ctx, path, doc)
}

func (t *mongoTx) Delete(ctx context.Context, path string) error {
	return t.store.Delete(ctx, path)
}

func rawToDocument(path string, raw bson.Raw) (Document, error) {
	if len(raw) == 0 {
		return Document{}, nil
	}
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, model.Wrap(model.KindDataCorruption, err, fmt.Sprintf("document %s cannot be converted", path))
	}
	return decodeDocument(path, data)
}

func classifyMongo(err error, action string) error {
	if err == nil {
		return nil
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorLabel("TransientTransactionError") || se.HasErrorLabel("UnknownTransactionCommitResult")) {
		return fmt.Errorf("%s: %w", action, ErrConflict)
	}
	return model.Wrap(model.KindInternal, err, fmt.Sprintf("failed to %s", action))
}

// Ensure MongoStore implements Store
var _ Store = (*MongoStore)(nil)
