package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
	"github.com/warp/folio-engine/store/postgres"
	"github.com/warp/folio-engine/store/storetest"
)

// FOLIO_TEST_PG_DSN points at a disposable database. Every table is
// truncated between cases.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("FOLIO_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("FOLIO_TEST_PG_DSN not set")
	}

	s, err := postgres.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	storetest.Run(t, func(t *testing.T) folio.Store {
		require.NoError(t, s.Reset(context.Background()))
		return s
	})
}
