package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresDSN returns TEST_PG_DSN after dropping the twirc tables and the
// migration bookkeeping, so each caller starts from an empty schema.
// It skips the test if TEST_PG_DSN environment variable is not set.
func PostgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	for _, table := range []string{"moderation_history", "chat_messages", "schema_migrations"} {
		if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}
	return dsn
}
