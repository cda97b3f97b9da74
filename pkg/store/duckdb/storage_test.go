package duckdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDB_BootstrapsSchema(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "duckdb-test-*")
	require.NoError(t, err)

	defer func() {
		err := os.RemoveAll(tmpDir)
		if err != nil {
			t.Errorf("failed to cleanup test directory: %v", err)
		}
	}()

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := NewDB(Settings{
		DbPath: dbPath,
	})
	require.NoError(t, err)
	require.NotNil(t, db)

	defer func() {
		err := db.Close()
		if err != nil {
			t.Errorf("failed to close database connection: %v", err)
		}
	}()

	now := time.Now().UTC()
	_, err = db.Exec(
		`INSERT INTO tickets (
			ticket_id, finding_id, finding_key, account_id, service,
			severity, title, description, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"TICKET-001", "f-1", "111111111111/f-1", "111111111111", "iam",
		"HIGH", "title", "description", "CREATED", now, now,
	)
	require.NoError(t, err)

	_, err = db.Exec(
		`INSERT INTO finding_index (finding_key, ticket_id, backend, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"111111111111/f-1", "TICKET-001", "local", "CREATED", now, now,
	)
	require.NoError(t, err)

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM tickets WHERE ticket_id = ?", "TICKET-001").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The finding key is the dedup primary key.
	_, err = db.Exec(
		`INSERT INTO finding_index (finding_key, ticket_id, backend, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"111111111111/f-1", "TICKET-002", "local", "CREATED", now, now,
	)
	assert.Error(t, err)
}
