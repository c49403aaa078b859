package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/config"
	"ingest/internal/logger"
)

func TestBase_ShutdownOrder(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NopLogger())

	var order []string
	record := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return err
		}
	}
	b.OnShutdown("ledger", record("ledger", nil))
	b.OnShutdown("queue", record("queue", errors.New("close failed")))
	b.OnShutdown("server", record("server", nil))

	err := b.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue: close failed")
	assert.Equal(t, []string{"server", "queue", "ledger"}, order)

	require.NoError(t, b.Shutdown(context.Background()), "hooks run once")
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host: "db", Port: 5432, User: "ingest", Password: "secret", DBName: "ledger", SSLMode: "disable",
	})
	assert.Equal(t, "postgres://ingest:secret@db:5432/ledger?sslmode=disable", dsn)
}
