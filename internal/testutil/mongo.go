package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"exeat/internal/config"
	"exeat/internal/database"
)

// OpenMongoDB returns a database with a unique name that is dropped when the
// test ends. The test is skipped when TEST_MONGO_URI is unset.
func OpenMongoDB(t *testing.T, prefix string) *mongo.Database {
	t.Helper()

	uri := strings.TrimSpace(os.Getenv("TEST_MONGO_URI"))
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set; skipping MongoDB test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, db, err := database.ConnectMongo(ctx, config.MongoConfig{
		URI:      uri,
		Database: newSchemaName(prefix),
		Timeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = database.DisconnectMongo(context.Background(), client)
	})
	return db
}
