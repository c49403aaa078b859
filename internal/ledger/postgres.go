package ledger

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"

	"ingest/internal/notification"
	"ingest/pkg/metrics"
)

const postgresBackend = "postgres"

//go:embed migrations/postgres/*.sql
var PostgresMigrations embed.FS

const PostgresMigrationsPath = "migrations/postgres"

type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Lookup(ctx context.Context, id notification.ObjectIdentity) (*Entry, error) {
	query := `
		SELECT bucket, object_key, processed_at, output_bucket, output_key,
		       output_parts, record_count, transformer_key
		FROM ledger_entries
		WHERE bucket = $1 AND object_key = $2
	`

	var e Entry
	err := l.db.QueryRowContext(ctx, query, id.Bucket, id.Key).Scan(
		&e.Bucket, &e.Key, &e.ProcessedAt, &e.OutputBucket, &e.OutputKey,
		&e.OutputParts, &e.RecordCount, &e.TransformerKey,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		metrics.IncLedgerLookup(postgresBackend, "miss")
		return nil, nil
	}
	if err != nil {
		metrics.IncLedgerLookup(postgresBackend, "error")
		return nil, ledgerIOError("lookup", id, err)
	}

	e.ProcessedAt = e.ProcessedAt.UTC()
	metrics.IncLedgerLookup(postgresBackend, "hit")
	return &e, nil
}

func (l *PostgresLedger) Record(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO ledger_entries (
			bucket, object_key, processed_at, output_bucket, output_key,
			output_parts, record_count, transformer_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (bucket, object_key) DO NOTHING
	`

	_, err := l.db.ExecContext(ctx, query,
		entry.Bucket, entry.Key, entry.ProcessedAt.UTC(), entry.OutputBucket, entry.OutputKey,
		entry.OutputParts, entry.RecordCount, entry.TransformerKey,
	)
	if err != nil {
		return ledgerIOError("record", entry.Identity(), err)
	}
	return nil
}

func (l *PostgresLedger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT count(*) FROM ledger_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres count failed: %w", err)
	}
	return n, nil
}
