package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo(context.Background(), "mongodb://bad:uri")
	assert.Error(t, err, "expected error for bad URI")
	assert.Nil(t, client, "expected nil client on error")
}

// newMongoTestStore connects to MONGO_URI and returns a store on a throwaway
// database. Transactions need a replica set; the test is skipped without one.
func newMongoTestStore(t *testing.T) Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}

	dbName := fmt.Sprintf("fleet_test_%d", time.Now().UnixNano())
	s := NewMongoStore(client, dbName)
	t.Cleanup(func() {
		client.Database(dbName).Drop(context.Background())
		client.Disconnect(context.Background())
	})
	require.NoError(t, s.EnsureIndexes(ctx))

	probe := s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.ListActiveTripsForVehicle(ctx, "probe")
		return err
	})
	if probe != nil {
		t.Skipf("mongo transactions unavailable: %v, skipping integration test", probe)
	}
	return s
}
