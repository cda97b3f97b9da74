package duckdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecPrefersContextTransaction(t *testing.T) {
	db, err := NewDB(Settings{DbPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	assert.Equal(t, Executor(db), Exec(ctx, db))

	tx, err := db.Begin()
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })

	txCtx := WithTransaction(ctx, tx)
	assert.Equal(t, Executor(tx), Exec(txCtx, db))
	assert.Equal(t, tx, GetTransaction(txCtx))
	assert.Nil(t, GetTransaction(ctx))
}
