package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only against a real database: TEST_DATABASE_URL=postgres://...
func TestCountSource_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := OpenPool(ctx, Config{DSN: dsn, DialTimeout: 5 * time.Second}, discardLogger())
	require.NoError(t, err)
	defer ClosePool(pool, discardLogger())
	require.NoError(t, HealthCheck(ctx, pool, time.Second, discardLogger()))

	n, err := NewCountSource(pool, "SELECT 3").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
