package mongo

import (
	"context"

	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoMetadataStore) CreateAccount(ctx context.Context, acct metadata.Account) (*metadata.Account, error) {
	doc := toAccountDoc(&acct, primitive.NewObjectID())
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &metadata.StoreError{
				Code:    metadata.ErrAlreadyExists,
				Message: "username already taken",
				Path:    acct.Username,
			}
		}
		return nil, err
	}
	return doc.toAccount(), nil
}

func (s *MongoMetadataStore) findAccount(ctx context.Context, filter bson.D, path string) (*metadata.Account, error) {
	var doc accountDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err, "account", path)
	}
	return doc.toAccount(), nil
}

func (s *MongoMetadataStore) GetAccount(ctx context.Context, id metadata.AccountID) (*metadata.Account, error) {
	oid, err := objectID("account", string(id))
	if err != nil {
		return nil, err
	}
	return s.findAccount(ctx, bson.D{{Key: "_id", Value: oid}}, string(id))
}

func (s *MongoMetadataStore) GetAccountByUsername(ctx context.Context, username string) (*metadata.Account, error) {
	return s.findAccount(ctx, bson.D{{Key: "username", Value: username}}, username)
}

func (s *MongoMetadataStore) ListAccounts(ctx context.Context) ([]*metadata.Account, error) {
	cursor, err := s.users.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]*metadata.Account, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toAccount())
	}
	return result, nil
}

// updateAccount applies update to one account, reporting ErrNotFound when
// nothing matched.
func (s *MongoMetadataStore) updateAccount(ctx context.Context, id metadata.AccountID, update any) error {
	oid, err := objectID("account", string(id))
	if err != nil {
		return err
	}
	res, err := s.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return metadata.NewNotFoundError("account", string(id))
	}
	return nil
}

func (s *MongoMetadataStore) SetAccountName(ctx context.Context, id metadata.AccountID, name, surname string) error {
	return s.updateAccount(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "name", Value: name},
		{Key: "surname", Value: surname},
	}}})
}

func (s *MongoMetadataStore) SetPasswordHash(ctx context.Context, id metadata.AccountID, hash []byte) error {
	return s.updateAccount(ctx, id, bson.D{{Key: "$set", Value: bson.D{{Key: "password", Value: hash}}}})
}

// conditionalAccountUpdate runs a guarded FindOneAndUpdate. When the guard
// rejects the update, the current record is replayed through check to
// produce the matching store error.
func (s *MongoMetadataStore) conditionalAccountUpdate(ctx context.Context, id metadata.AccountID, guard bson.D, update any, check func(*metadata.Account) error) (*metadata.Account, error) {
	oid, err := objectID("account", string(id))
	if err != nil {
		return nil, err
	}

	filter := append(bson.D{{Key: "_id", Value: oid}}, guard...)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc accountDoc
	err = s.users.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toAccount(), nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	current, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := check(current); err != nil {
		return nil, err
	}
	return nil, &metadata.StoreError{Code: metadata.ErrConflict, Message: "account changed concurrently", Path: current.Username}
}

func (s *MongoMetadataStore) SetTotalSpace(ctx context.Context, id metadata.AccountID, total uint64) (*metadata.Account, error) {
	newTotal := int64(total)
	used := bson.D{{Key: "$subtract", Value: bson.A{"$total_space", "$free_space"}}}

	guard := bson.D{{Key: "$expr", Value: bson.D{{Key: "$lte", Value: bson.A{used, newTotal}}}}}
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "free_space", Value: bson.D{{Key: "$subtract", Value: bson.A{newTotal, used}}}},
		{Key: "total_space", Value: newTotal},
	}}}}

	return s.conditionalAccountUpdate(ctx, id, guard, update, func(a *metadata.Account) error {
		return metadata.ApplyTotalSpace(a, total)
	})
}

func (s *MongoMetadataStore) ChangeFreeSpace(ctx context.Context, id metadata.AccountID, delta int64) (uint64, error) {
	var guard bson.D
	if delta < 0 {
		guard = bson.D{{Key: "free_space", Value: bson.D{{Key: "$gte", Value: -delta}}}}
	} else {
		guard = bson.D{{Key: "$expr", Value: bson.D{{Key: "$lte", Value: bson.A{
			bson.D{{Key: "$add", Value: bson.A{"$free_space", delta}}},
			"$total_space",
		}}}}}
	}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "free_space", Value: delta}}}}

	acct, err := s.conditionalAccountUpdate(ctx, id, guard, update, func(a *metadata.Account) error {
		return metadata.ApplyFreeSpaceDelta(a, delta)
	})
	if err != nil {
		return 0, err
	}
	return acct.FreeSpace, nil
}

func (s *MongoMetadataStore) AddSession(ctx context.Context, id metadata.AccountID, token metadata.SessionToken) error {
	return s.updateAccount(ctx, id, bson.D{{Key: "$push", Value: bson.D{
		{Key: "sessions", Value: sessionDoc{Token: token.Token, IssuedAt: token.IssuedAt}},
	}}})
}

func (s *MongoMetadataStore) HasSession(ctx context.Context, id metadata.AccountID, token []byte) (bool, error) {
	oid, err := objectID("account", string(id))
	if err != nil {
		return false, err
	}
	n, err := s.users.CountDocuments(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, metadata.NewNotFoundError("account", string(id))
	}

	n, err = s.users.CountDocuments(ctx, bson.D{
		{Key: "_id", Value: oid},
		{Key: "sessions.token", Value: token},
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MongoMetadataStore) RemoveSession(ctx context.Context, id metadata.AccountID, token []byte) error {
	return s.updateAccount(ctx, id, bson.D{{Key: "$pull", Value: bson.D{
		{Key: "sessions", Value: bson.D{{Key: "token", Value: token}}},
	}}})
}

func (s *MongoMetadataStore) AddWarning(ctx context.Context, id metadata.AccountID, warning metadata.Warning) error {
	return s.updateAccount(ctx, id, bson.D{{Key: "$push", Value: bson.D{
		{Key: "warnings", Value: warningDoc{Body: warning.Body, CreatedAt: warning.CreatedAt}},
	}}})
}

func (s *MongoMetadataStore) TakeWarnings(ctx context.Context, id metadata.AccountID) ([]metadata.Warning, error) {
	oid, err := objectID("account", string(id))
	if err != nil {
		return nil, err
	}

	var doc accountDoc
	err = s.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "warnings", Value: bson.A{}}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err, "account", string(id))
	}
	return toWarnings(doc.Warnings), nil
}

// DeleteAccount removes owned files first, then grants, then the account
// itself, so a retry after a partial failure finishes the job.
func (s *MongoMetadataStore) DeleteAccount(ctx context.Context, id metadata.AccountID) error {
	oid, err := objectID("account", string(id))
	if err != nil {
		return err
	}
	if _, err := s.GetAccount(ctx, id); err != nil {
		return err
	}

	if _, err := s.files.DeleteMany(ctx, bson.D{{Key: "owner", Value: string(id)}}); err != nil {
		return err
	}
	_, err = s.files.UpdateMany(ctx,
		bson.D{{Key: "shared_with", Value: string(id)}},
		bson.D{{Key: "$pull", Value: bson.D{{Key: "shared_with", Value: string(id)}}}},
	)
	if err != nil {
		return err
	}
	_, err = s.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	return err
}
