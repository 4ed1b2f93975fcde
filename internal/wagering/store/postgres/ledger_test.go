package postgres

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_TransactionsHaveInsertionSequence(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "0003_transactions_seq.sql")

	body, err := migrationsFS.ReadFile("migrations/0003_transactions_seq.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "ADD COLUMN IF NOT EXISTS seq BIGSERIAL")
	assert.Contains(t, string(body), "(user_id, seq DESC)")
}

func TestLedgerQueries_OrderBySequence(t *testing.T) {
	// o último lançamento é o de maior seq; UUID e created_at não definem ordem
	assert.Contains(t, ledgerDiscrepanciesStmt, "ORDER BY t.seq DESC")
	assert.NotContains(t, ledgerDiscrepanciesStmt, "t.id DESC")
	assert.Contains(t, listTransactionsStmt, "ORDER BY seq DESC")
	assert.NotContains(t, listTransactionsStmt, "created_at DESC")
}
