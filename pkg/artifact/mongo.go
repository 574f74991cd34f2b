package artifact

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// DefaultMongoCollection holds artifacts when no collection is named.
const DefaultMongoCollection = "artifacts"

// MongoStore stores each artifact as one document keyed by _id.
// Artifacts larger than the 16 MiB document limit must be split by the
// caller, which is what z-slab and tile keys already do.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoDoc struct {
	Key       string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// OpenMongo connects to uri and uses database db and the given collection.
func OpenMongo(ctx context.Context, uri, db, collection string) (*MongoStore, error) {
	if db == "" {
		return nil, emerrors.New(emerrors.ErrCodeInvalidInput, "mongo store needs a database name")
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, emerrors.Wrap(emerrors.ErrCodeStorage, err, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, emerrors.Wrap(emerrors.ErrCodeStorage, err, "ping mongo")
	}
	return &MongoStore{client: client, coll: client.Database(db).Collection(collection)}, nil
}

// Get finds the document for key.
func (s *MongoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := emerrors.ValidateKey(key); err != nil {
		return nil, false, err
	}
	var doc mongoDoc
	found := true
	err := RetryWithBackoff(ctx, func() error {
		err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			found = false
			return nil
		}
		return retryableNetErr(err)
	})
	if err != nil {
		return nil, false, storageErr("read", key, err)
	}
	if !found {
		return nil, false, nil
	}
	return doc.Data, true, nil
}

// Put upserts the document for key.
func (s *MongoStore) Put(ctx context.Context, key string, data []byte) error {
	if err := emerrors.ValidateKey(key); err != nil {
		return err
	}
	doc := mongoDoc{Key: key, Data: data, UpdatedAt: time.Now().UTC()}
	err := RetryWithBackoff(ctx, func() error {
		_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
		return retryableNetErr(err)
	})
	return storageErr("write", key, err)
}

// Has counts documents matching key.
func (s *MongoStore) Has(ctx context.Context, key string) (bool, error) {
	if err := emerrors.ValidateKey(key); err != nil {
		return false, err
	}
	var n int64
	err := RetryWithBackoff(ctx, func() error {
		var err error
		n, err = s.coll.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
		return retryableNetErr(err)
	})
	if err != nil {
		return false, storageErr("stat", key, err)
	}
	return n > 0, nil
}

// Delete removes the document for key.
func (s *MongoStore) Delete(ctx context.Context, key string) error {
	if err := emerrors.ValidateKey(key); err != nil {
		return err
	}
	err := RetryWithBackoff(ctx, func() error {
		_, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
		return retryableNetErr(err)
	})
	return storageErr("delete", key, err)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
