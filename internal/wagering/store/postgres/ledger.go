package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

func (q queries) GetAccount(ctx context.Context, userID string) (model.Account, error) {
	return q.account(ctx, userID, "")
}

func (q queries) account(ctx context.Context, userID, suffix string) (model.Account, error) {
	var a model.Account
	err := q.q.QueryRowContext(ctx,
		`SELECT user_id, balance, currency, updated_at FROM accounts WHERE user_id = $1`+suffix, userID,
	).Scan(&a.UserID, &a.Balance, &a.Currency, &a.UpdatedAt)
	if err != nil {
		return model.Account{}, mapErr(err)
	}
	return a, nil
}

const txColumns = `id, user_id, balance_before, balance_after, amount, category, status, currency, reference, created_at`

func scanTransaction(r rowScanner) (model.Transaction, error) {
	var (
		t   model.Transaction
		ref sql.NullString
	)
	if err := r.Scan(&t.ID, &t.UserID, &t.BalanceBefore, &t.BalanceAfter, &t.Amount, &t.Category, &t.Status,
		&t.Currency, &ref, &t.CreatedAt); err != nil {
		return model.Transaction{}, err
	}
	t.Reference = ref.String
	return t, nil
}

func (q queries) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.q.QueryContext(ctx, listTransactionsStmt, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Lançamentos são ordenados por seq (BIGSERIAL): ids são UUID e created_at empata
// dentro da mesma transação.
const listTransactionsStmt = `SELECT ` + txColumns + ` FROM transactions WHERE user_id = $1 ORDER BY seq DESC LIMIT $2`

const ledgerDiscrepanciesStmt = `
	SELECT a.user_id, a.balance, COALESCE(l.balance_after, 0), COALESCE(c.n, 0)
	FROM accounts a
	LEFT JOIN LATERAL (
	  SELECT balance_after FROM transactions t
	  WHERE t.user_id = a.user_id
	  ORDER BY t.seq DESC
	  LIMIT 1
	) l ON TRUE
	LEFT JOIN LATERAL (
	  SELECT COUNT(*) AS n FROM transactions t WHERE t.user_id = a.user_id
	) c ON TRUE
	WHERE a.balance <> COALESCE(l.balance_after, 0)
	ORDER BY a.user_id`

// LedgerDiscrepancies compara o saldo de cada conta com o balance_after do último lançamento.
func (q queries) LedgerDiscrepancies(ctx context.Context) ([]model.LedgerDiscrepancy, error) {
	rows, err := q.q.QueryContext(ctx, ledgerDiscrepanciesStmt)
	if err != nil {
		return nil, fmt.Errorf("postgres: ledger discrepancies: %w", err)
	}
	defer rows.Close()
	var out []model.LedgerDiscrepancy
	for rows.Next() {
		var d model.LedgerDiscrepancy
		if err := rows.Scan(&d.UserID, &d.Balance, &d.LastBalanceAfter, &d.Transactions); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ---- escrita ----

// LockAccount cria a conta se preciso e bloqueia a linha até o fim da transação.
func (t *txStore) LockAccount(ctx context.Context, userID string) (model.Account, error) {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, currency) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, model.DefaultCurrency); err != nil {
		return model.Account{}, fmt.Errorf("postgres: ensure account: %w", err)
	}
	return t.account(ctx, userID, " FOR UPDATE")
}

func (t *txStore) UpdateBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $2, updated_at = NOW() WHERE user_id = $1`, userID, balance)
	if err != nil {
		return fmt.Errorf("postgres: update balance: %w", err)
	}
	return requireRow(res)
}

func (t *txStore) InsertTransaction(ctx context.Context, tr model.Transaction) error {
	ref := sql.NullString{String: tr.Reference, Valid: tr.Reference != ""}
	const stmt = `
		INSERT INTO transactions (` + txColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := t.tx.ExecContext(ctx, stmt, tr.ID, tr.UserID, tr.BalanceBefore, tr.BalanceAfter, tr.Amount,
		tr.Category, tr.Status, tr.Currency, ref, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert transaction: %w", mapErr(err))
	}
	return nil
}

func (t *txStore) TransactionByReference(ctx context.Context, reference string) (model.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE reference = $1`, reference))
	if err != nil {
		return model.Transaction{}, mapErr(err)
	}
	return tr, nil
}
