package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/calendar-service/internal/persistence"
	"github.com/example/calendar-service/internal/persistence/persistencetest"
)

const testURIEnv = "CALENDAR_TEST_MONGO_URI"

func connect(t *testing.T) *mongo.Client {
	t.Helper()

	uri := os.Getenv(testURIEnv)
	if uri == "" {
		t.Skipf("%s not set", testURIEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func newTestStore(t *testing.T, client *mongo.Client) *Store {
	t.Helper()

	store := New(client, "calendar_test_"+uuid.NewString()[:8])
	t.Cleanup(func() { _ = store.db.Drop(context.Background()) })
	require.NoError(t, store.EnsureIndexes(context.Background()))
	return store
}

func TestStoreContract(t *testing.T) {
	client := connect(t)

	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return newTestStore(t, client)
	})
}

func TestEnsureIndexesIsIdempotent(t *testing.T) {
	store := newTestStore(t, connect(t))
	assert.NoError(t, store.EnsureIndexes(context.Background()))
}

func TestEventQuery(t *testing.T) {
	t.Parallel()

	query := eventQuery(persistence.EventFilter{
		OwnerID:          "alice",
		From:             "2024-06-01",
		To:               "2024-06-30",
		IncludeRecurring: true,
		Query:            "a+b",
	})

	assert.Equal(t, "alice", query["owner_id"])
	assert.Equal(t, true, query["active"])

	clauses, ok := query["$and"].([]bson.M)
	require.True(t, ok)
	require.Len(t, clauses, 3)
	assert.Equal(t, bson.M{"start_date": bson.M{"$lte": "2024-06-30"}}, clauses[0])
	assert.Equal(t, bson.M{"$or": bson.A{
		bson.M{"end_date": bson.M{"$gte": "2024-06-01"}},
		bson.M{"repeat_type": bson.M{"$ne": "none"}},
	}}, clauses[1])
	assert.Equal(t, bson.M{"$or": bson.A{
		bson.M{"title": bson.M{"$regex": `a\+b`, "$options": "i"}},
		bson.M{"description": bson.M{"$regex": `a\+b`, "$options": "i"}},
	}}, clauses[2])
}

func TestOpenRequiresURIAndDatabase(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", "calendar")
	assert.Error(t, err)
	_, err = Open(context.Background(), "mongodb://localhost:27017", " ")
	assert.Error(t, err)
}
