package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection = "users"
	filesCollection = "files"
)

// MongoMetadataStore implements metadata.Store on a MongoDB database.
//
// Accounts live in the "users" collection and file records in "files".
// Conditional updates are expressed as single-document filters
// ($inc guarded by the current value), which MongoDB applies atomically.
// Multi-document operations (DeleteAccount, DeleteFilesUnder) are not
// transactional and are ordered so a partial failure leaves no dangling
// references from surviving records.
type MongoMetadataStore struct {
	client *mongo.Client
	users  *mongo.Collection
	files  *mongo.Collection
}

// MongoMetadataStoreConfig contains connection settings.
type MongoMetadataStoreConfig struct {
	// URI is the MongoDB connection string
	URI string `mapstructure:"uri"`

	// Database is the database holding the users and files collections
	Database string `mapstructure:"database"`

	// ConnectTimeout bounds the initial connection and index setup (default: 10s)
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// NewMongoMetadataStore connects to MongoDB and ensures the unique indexes
// on usernames and (owner, filename) exist.
func NewMongoMetadataStore(ctx context.Context, config MongoMetadataStoreConfig) (*MongoMetadataStore, error) {
	timeout := config.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(config.Database)
	s := &MongoMetadataStore{
		client: client,
		users:  db.Collection(usersCollection),
		files:  db.Collection(filesCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Debug("Connected MongoDB metadata store (database=%s)", config.Database)
	return s, nil
}

func (s *MongoMetadataStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	_, err = s.files.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "filename", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "shared_with", Value: 1}}},
		{Keys: bson.D{{Key: "is_valid", Value: 1}, {Key: "last_chunk_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create files indexes: %w", err)
	}
	return nil
}

// Healthcheck pings the primary.
func (s *MongoMetadataStore) Healthcheck(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoMetadataStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// objectID parses an ID produced by this store. Malformed IDs cannot refer
// to any record and map to ErrNotFound.
func objectID(kind, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, metadata.NewNotFoundError(kind, id)
	}
	return oid, nil
}

// notFound translates mongo.ErrNoDocuments into a store error.
func notFound(err error, kind, path string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return metadata.NewNotFoundError(kind, path)
	}
	return err
}

var _ metadata.Store = (*MongoMetadataStore)(nil)
