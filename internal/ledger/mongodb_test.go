package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ingest/internal/testutil"
	"ingest/pkg/migrations"
)

func TestMongoLedger_Integration(t *testing.T) {
	db := testutil.Mongo(t)
	require.NoError(t, migrations.EnsureLedgerIndexes(context.Background(), db, "ledger_entries"))
	// Creating the same indexes again must not fail.
	require.NoError(t, migrations.EnsureLedgerIndexes(context.Background(), db, "ledger_entries"))

	exerciseLedger(t, NewMongoLedger(db, "ledger_entries"))
}
