package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoIDField = "_id"

// mongoCollection is the subset of *mongo.Collection used by MongoStore.
type mongoCollection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
	UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// MongoStore maps each collection onto a MongoDB collection with string ids.
type MongoStore struct {
	collection func(name string) mongoCollection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore uses the collections of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	if db == nil {
		panic("docstore: mongo database required")
	}
	return &MongoStore{collection: func(name string) mongoCollection { return db.Collection(name) }}
}

func (s *MongoStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	stored, id := prepareInsert(doc)
	_, err := s.collection(collection).InsertOne(ctx, toMongo(stored))
	if mongo.IsDuplicateKeyError(err) {
		return "", ErrDuplicateID
	}
	if err != nil {
		return "", fmt.Errorf("docstore: insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	raw, err := s.collection(collection).FindOne(ctx, bson.M{mongoIDField: id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s: %w", collection, err)
	}
	return fromMongo(raw)
}

func (s *MongoStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	cur, err := s.collection(collection).Find(ctx, mongoFilter(q))
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var out []Document
	for cur.Next(ctx) {
		doc, err := fromMongo(cur.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	return Finish(out, q), nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, q Query) (int, error) {
	n, err := s.collection(collection).CountDocuments(ctx, mongoFilter(q))
	if err != nil {
		return 0, fmt.Errorf("docstore: count %s: %w", collection, err)
	}
	return int(n), nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, fields Document) error {
	patch := prepareUpdate(fields)
	if len(patch) == 0 {
		_, err := s.Get(ctx, collection, id)
		return err
	}
	res, err := s.collection(collection).UpdateOne(ctx,
		bson.M{mongoIDField: id},
		bson.M{"$set": bson.M(patch)},
	)
	if err != nil {
		return fmt.Errorf("docstore: update %s: %w", collection, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	res, err := s.collection(collection).DeleteOne(ctx, bson.M{mongoIDField: id})
	if err != nil {
		return false, fmt.Errorf("docstore: delete %s: %w", collection, err)
	}
	return res.DeletedCount > 0, nil
}

func mongoField(field string) string {
	if field == IDField {
		return mongoIDField
	}
	return field
}

func mongoFilter(q Query) bson.M {
	filter := bson.M{}
	for _, f := range q.Filters {
		values := make(bson.A, 0, len(f.Values))
		for _, v := range f.Values {
			values = append(values, normalize(v))
		}
		switch f.Op {
		case OpIn:
			filter[mongoField(f.Field)] = bson.M{"$in": values}
		default:
			filter[mongoField(f.Field)] = values[0]
		}
	}
	return filter
}

func toMongo(doc Document) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[mongoField(k)] = v
	}
	return out
}

// fromMongo renders a stored document as relaxed extended JSON, which for
// the plain JSON values this package writes is ordinary JSON.
func fromMongo(raw bson.Raw) (Document, error) {
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("docstore: decode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(ext, &doc); err != nil {
		return nil, fmt.Errorf("docstore: decode document: %w", err)
	}
	if id, ok := doc[mongoIDField]; ok {
		doc[IDField] = id
		delete(doc, mongoIDField)
	}
	return doc, nil
}
