package mongo

import (
	"context"
	"regexp"
	"time"

	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var byOwnerAndFilename = bson.D{{Key: "owner", Value: 1}, {Key: "filename", Value: 1}}

func (s *MongoMetadataStore) CreateFile(ctx context.Context, entry metadata.FileEntry) (*metadata.FileEntry, error) {
	doc := toFileDoc(&entry, primitive.NewObjectID())
	if _, err := s.files.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &metadata.StoreError{
				Code:    metadata.ErrAlreadyExists,
				Message: "file already exists",
				Path:    entry.Filename,
			}
		}
		return nil, err
	}
	return doc.toFile(), nil
}

func (s *MongoMetadataStore) findFile(ctx context.Context, filter bson.D, path string, opts ...*options.FindOneOptions) (*metadata.FileEntry, error) {
	var doc fileDoc
	if err := s.files.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		return nil, notFound(err, "file", path)
	}
	return doc.toFile(), nil
}

func (s *MongoMetadataStore) findFiles(ctx context.Context, filter bson.D) ([]*metadata.FileEntry, error) {
	cursor, err := s.files.Find(ctx, filter, options.Find().SetSort(byOwnerAndFilename))
	if err != nil {
		return nil, err
	}
	var docs []fileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]*metadata.FileEntry, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toFile())
	}
	return result, nil
}

func (s *MongoMetadataStore) GetFile(ctx context.Context, id metadata.FileID) (*metadata.FileEntry, error) {
	oid, err := objectID("file", string(id))
	if err != nil {
		return nil, err
	}
	return s.findFile(ctx, bson.D{{Key: "_id", Value: oid}}, string(id))
}

func (s *MongoMetadataStore) GetFileByPath(ctx context.Context, owner metadata.AccountID, filename string) (*metadata.FileEntry, error) {
	return s.findFile(ctx, bson.D{
		{Key: "owner", Value: string(owner)},
		{Key: "filename", Value: filename},
	}, filename)
}

func (s *MongoMetadataStore) FindFilesByLeafAndHash(ctx context.Context, owner metadata.AccountID, leaf string, hash []byte) ([]*metadata.FileEntry, error) {
	return s.findFiles(ctx, bson.D{
		{Key: "owner", Value: string(owner)},
		{Key: "kind", Value: int(metadata.KindRegular)},
		{Key: "hash", Value: hash},
		{Key: "filename", Value: primitive.Regex{Pattern: "/" + regexp.QuoteMeta(leaf) + "$"}},
	})
}

func (s *MongoMetadataStore) ListChildren(ctx context.Context, owner metadata.AccountID, dir string) ([]*metadata.FileEntry, error) {
	return s.findFiles(ctx, bson.D{
		{Key: "owner", Value: string(owner)},
		{Key: "filename", Value: primitive.Regex{Pattern: "^" + regexp.QuoteMeta(dir) + "/[^/]+$"}},
	})
}

func (s *MongoMetadataStore) AdjustChildCount(ctx context.Context, owner metadata.AccountID, dir string, delta int64) error {
	res, err := s.files.UpdateOne(ctx,
		bson.D{
			{Key: "owner", Value: string(owner)},
			{Key: "filename", Value: dir},
			{Key: "kind", Value: int(metadata.KindDirectory)},
		},
		mongo.Pipeline{{{Key: "$set", Value: bson.D{
			{Key: "size", Value: bson.D{{Key: "$max", Value: bson.A{0, bson.D{{Key: "$add", Value: bson.A{"$size", delta}}}}}}},
		}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetFileByPath(ctx, owner, dir); err != nil {
			return metadata.NewNotFoundError("directory", dir)
		}
		return &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "not a directory", Path: dir}
	}
	return nil
}

func (s *MongoMetadataStore) AdvanceLastValid(ctx context.Context, id metadata.FileID, expected, n uint64, at time.Time) (*metadata.FileEntry, error) {
	oid, err := objectID("file", string(id))
	if err != nil {
		return nil, err
	}

	filter := bson.D{
		{Key: "_id", Value: oid},
		{Key: "kind", Value: int(metadata.KindRegular)},
		{Key: "is_valid", Value: false},
		{Key: "last_valid", Value: int64(expected)},
		{Key: "size", Value: bson.D{{Key: "$gte", Value: int64(expected + n)}}},
	}
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "last_valid", Value: int64(n)}}},
		{Key: "$set", Value: bson.D{{Key: "last_chunk_at", Value: at}}},
	}

	var doc fileDoc
	err = s.files.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err == nil {
		return doc.toFile(), nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	current, err := s.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := metadata.ApplyAdvance(current, expected, n, at); err != nil {
		return nil, err
	}
	return nil, &metadata.StoreError{Code: metadata.ErrConflict, Message: "upload offset moved", Path: current.Filename}
}

func (s *MongoMetadataStore) MarkValid(ctx context.Context, id metadata.FileID) error {
	oid, err := objectID("file", string(id))
	if err != nil {
		return err
	}

	res, err := s.files.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: oid},
			{Key: "kind", Value: int(metadata.KindRegular)},
			{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{"$last_valid", "$size"}}}},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "is_valid", Value: true}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		current, err := s.GetFile(ctx, id)
		if err != nil {
			return err
		}
		return metadata.ApplyMarkValid(current)
	}
	return nil
}

func (s *MongoMetadataStore) DeleteFile(ctx context.Context, id metadata.FileID) error {
	oid, err := objectID("file", string(id))
	if err != nil {
		return err
	}
	res, err := s.files.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return metadata.NewNotFoundError("file", string(id))
	}
	return nil
}

func (s *MongoMetadataStore) SumLastValidUnder(ctx context.Context, owner metadata.AccountID, dir string) (uint64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "owner", Value: string(owner)},
			{Key: "kind", Value: int(metadata.KindRegular)},
			{Key: "filename", Value: primitive.Regex{Pattern: "^" + regexp.QuoteMeta(dir) + "/"}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$last_valid"}}},
		}}},
	}

	cursor, err := s.files.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return uint64(rows[0].Total), nil
}

func (s *MongoMetadataStore) DeleteFilesUnder(ctx context.Context, owner metadata.AccountID, dir string) (int, error) {
	res, err := s.files.DeleteMany(ctx, bson.D{
		{Key: "owner", Value: string(owner)},
		{Key: "filename", Value: primitive.Regex{Pattern: "^" + regexp.QuoteMeta(dir) + "($|/)"}},
	})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *MongoMetadataStore) ListInvalidFiles(ctx context.Context, filter metadata.InvalidFileFilter) ([]*metadata.FileEntry, error) {
	query := bson.D{
		{Key: "kind", Value: int(metadata.KindRegular)},
		{Key: "is_valid", Value: false},
	}
	if filter.Owner != "" {
		query = append(query, bson.E{Key: "owner", Value: string(filter.Owner)})
	}
	if !filter.StaleBefore.IsZero() {
		query = append(query, bson.E{Key: "last_chunk_at", Value: bson.D{{Key: "$lt", Value: filter.StaleBefore}}})
	}
	return s.findFiles(ctx, query)
}

func (s *MongoMetadataStore) AddGrant(ctx context.Context, id metadata.FileID, grantee metadata.AccountID) error {
	return s.updateFile(ctx, id, bson.D{{Key: "$addToSet", Value: bson.D{{Key: "shared_with", Value: string(grantee)}}}})
}

func (s *MongoMetadataStore) RemoveGrant(ctx context.Context, id metadata.FileID, grantee metadata.AccountID) error {
	return s.updateFile(ctx, id, bson.D{{Key: "$pull", Value: bson.D{{Key: "shared_with", Value: string(grantee)}}}})
}

func (s *MongoMetadataStore) ListSharedWith(ctx context.Context, grantee metadata.AccountID) ([]*metadata.FileEntry, error) {
	return s.findFiles(ctx, bson.D{
		{Key: "shared_with", Value: string(grantee)},
		{Key: "kind", Value: int(metadata.KindRegular)},
		{Key: "is_valid", Value: true},
	})
}

func (s *MongoMetadataStore) updateFile(ctx context.Context, id metadata.FileID, update bson.D) error {
	oid, err := objectID("file", string(id))
	if err != nil {
		return err
	}
	res, err := s.files.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return metadata.NewNotFoundError("file", string(id))
	}
	return nil
}
