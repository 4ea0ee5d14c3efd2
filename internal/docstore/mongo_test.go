package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type fakeMongoCollection struct {
	inserted   []any
	filters    []any
	updates    []any
	findDocs   []any
	findOne    any
	matched    int64
	deleted    int64
	countValue int64
}

func (f *fakeMongoCollection) InsertOne(_ context.Context, document any, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	f.inserted = append(f.inserted, document)
	return &mongo.InsertOneResult{}, nil
}

func (f *fakeMongoCollection) FindOne(_ context.Context, filter any, _ ...*options.FindOneOptions) *mongo.SingleResult {
	f.filters = append(f.filters, filter)
	if f.findOne == nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(f.findOne, nil, nil)
}

func (f *fakeMongoCollection) Find(_ context.Context, filter any, _ ...*options.FindOptions) (*mongo.Cursor, error) {
	f.filters = append(f.filters, filter)
	return mongo.NewCursorFromDocuments(f.findDocs, nil, nil)
}

func (f *fakeMongoCollection) CountDocuments(_ context.Context, filter any, _ ...*options.CountOptions) (int64, error) {
	f.filters = append(f.filters, filter)
	return f.countValue, nil
}

func (f *fakeMongoCollection) UpdateOne(_ context.Context, filter any, update any, _ ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.filters = append(f.filters, filter)
	f.updates = append(f.updates, update)
	return &mongo.UpdateResult{MatchedCount: f.matched}, nil
}

func (f *fakeMongoCollection) DeleteOne(_ context.Context, filter any, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	f.filters = append(f.filters, filter)
	return &mongo.DeleteResult{DeletedCount: f.deleted}, nil
}

func newFakeMongo() (*fakeMongoCollection, *MongoStore) {
	coll := &fakeMongoCollection{}
	return coll, &MongoStore{collection: func(string) mongoCollection { return coll }}
}

func TestMongoStore_InsertMapsIDToUnderscoreID(t *testing.T) {
	coll, store := newFakeMongo()

	id, err := store.Insert(context.Background(), "patients", Document{"name": "Jane"})
	require.NoError(t, err)

	require.Len(t, coll.inserted, 1)
	doc := coll.inserted[0].(bson.M)
	assert.Equal(t, id, doc["_id"])
	assert.NotContains(t, doc, "id")
}

func TestMongoStore_GetTranslatesDocument(t *testing.T) {
	coll, store := newFakeMongo()
	coll.findOne = bson.M{"_id": "p-1", "name": "Jane", "preferred_channel": bson.A{"email"}, "duration_minutes": 45.0}

	doc, err := store.Get(context.Background(), "patients", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", doc.ID())
	assert.Equal(t, "Jane", doc["name"])
	assert.Equal(t, []any{"email"}, doc["preferred_channel"])
	assert.Equal(t, float64(45), doc["duration_minutes"])
	assert.Equal(t, bson.M{"_id": "p-1"}, coll.filters[0])
}

func TestMongoStore_GetMissing(t *testing.T) {
	_, store := newFakeMongo()
	_, err := store.Get(context.Background(), "patients", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoStore_FindBuildsFilterAndSorts(t *testing.T) {
	coll, store := newFakeMongo()
	coll.findDocs = []any{
		bson.M{"_id": "a", "status": "re_engaged", "updated_at": "2025-03-01T00:00:00Z"},
		bson.M{"_id": "b", "status": "attempting_recovery", "updated_at": "2025-03-04T00:00:00Z"},
	}

	q := Where(Eq("campaign_type", "recovery"), In("status", "attempting_recovery", "re_engaged")).OrderBy(Desc("updated_at"))
	docs, err := store.Find(context.Background(), "campaigns", q)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID())

	filter := coll.filters[0].(bson.M)
	assert.Equal(t, "recovery", filter["campaign_type"])
	assert.Equal(t, bson.M{"$in": bson.A{"attempting_recovery", "re_engaged"}}, filter["status"])
}

func TestMongoStore_UpdateMissing(t *testing.T) {
	coll, store := newFakeMongo()

	err := store.Update(context.Background(), "campaigns", "c-1", Document{"status": "recovered"})
	assert.ErrorIs(t, err, ErrNotFound)

	coll.matched = 1
	require.NoError(t, store.Update(context.Background(), "campaigns", "c-1", Document{"status": "recovered"}))
	assert.Equal(t, bson.M{"$set": bson.M{"status": "recovered"}}, coll.updates[1])
}

func TestMongoStore_DeleteAndCount(t *testing.T) {
	coll, store := newFakeMongo()

	existed, err := store.Delete(context.Background(), "appointments", "a-1")
	require.NoError(t, err)
	assert.False(t, existed)

	coll.deleted = 1
	existed, err = store.Delete(context.Background(), "appointments", "a-1")
	require.NoError(t, err)
	assert.True(t, existed)

	coll.countValue = 7
	n, err := store.Count(context.Background(), "campaigns", Where(Eq("status", "handoff_required")))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
