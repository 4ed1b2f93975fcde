package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

const slipColumns = `id, user_id, stake, leg_count, combined_odds, win_amount, bonus, tax, payout,
	status, result, paid, bonus_funded, cashout_value, cashout_at, created_at, settled_at`

func scanSlip(r rowScanner) (model.Slip, error) {
	var (
		s            model.Slip
		cashoutValue decimal.NullDecimal
		cashoutAt    sql.NullTime
		settledAt    sql.NullTime
	)
	err := r.Scan(&s.ID, &s.UserID, &s.Stake, &s.LegCount, &s.CombinedOdds, &s.WinAmount, &s.Bonus, &s.Tax, &s.Payout,
		&s.Status, &s.Result, &s.Paid, &s.BonusFunded, &cashoutValue, &cashoutAt, &s.CreatedAt, &settledAt)
	if err != nil {
		return model.Slip{}, err
	}
	if cashoutValue.Valid {
		v := cashoutValue.Decimal
		s.CashoutValue = &v
	}
	if cashoutAt.Valid {
		s.CashoutAt = &cashoutAt.Time
	}
	if settledAt.Valid {
		s.SettledAt = &settledAt.Time
	}
	return s, nil
}

func (q queries) GetSlip(ctx context.Context, id string) (model.Slip, error) {
	s, err := scanSlip(q.q.QueryRowContext(ctx, `SELECT `+slipColumns+` FROM bet_slips WHERE id = $1`, id))
	if err != nil {
		return model.Slip{}, mapErr(err)
	}
	return s, nil
}

const legColumns = `id, slip_id, user_id, fixture_id, market_id, specifier, outcome_id, description, odds,
	product, status, result, void_factor, settled_by, created_at, settled_at`

func (q queries) ListLegs(ctx context.Context, slipID string) ([]model.Leg, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+legColumns+` FROM bets WHERE slip_id = $1 ORDER BY created_at, id`, slipID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list legs: %w", err)
	}
	defer rows.Close()
	var out []model.Leg
	for rows.Next() {
		var (
			l         model.Leg
			settledAt sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.SlipID, &l.UserID, &l.FixtureID, &l.MarketID, &l.Specifier, &l.OutcomeID,
			&l.Description, &l.Odds, &l.Product, &l.Status, &l.Result, &l.VoidFactor, &l.SettledBy,
			&l.CreatedAt, &settledAt); err != nil {
			return nil, err
		}
		if settledAt.Valid {
			l.SettledAt = &settledAt.Time
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q queries) SlipsAwaitingSettlement(ctx context.Context, sel model.LegSelector) ([]string, error) {
	const stmt = `
		SELECT DISTINCT b.slip_id
		FROM bets b JOIN bet_slips s ON s.id = b.slip_id
		WHERE b.fixture_id = $1 AND b.market_id = $2 AND b.specifier = $3
		  AND b.status <> 'Active' AND s.status = 'Active'
		  AND (cardinality($4::text[]) = 0 OR b.outcome_id = ANY($4::text[]))`
	rows, err := q.q.QueryContext(ctx, stmt,
		sel.Key.FixtureID, sel.Key.MarketID, sel.Key.Specifier, pq.Array(nonNil(sel.OutcomeIDs)))
	if err != nil {
		return nil, fmt.Errorf("postgres: slips awaiting settlement: %w", err)
	}
	return distinctIDs(rows)
}

func (q queries) ActiveBonus(ctx context.Context, userID string, now time.Time) (model.BonusCredit, error) {
	return q.activeBonus(ctx, userID, now, "")
}

func (q queries) activeBonus(ctx context.Context, userID string, now time.Time, suffix string) (model.BonusCredit, error) {
	stmt := `
		SELECT id, user_id, amount, status, expires_at
		FROM bonus_credits
		WHERE user_id = $1 AND status = $2 AND expires_at > $3
		ORDER BY expires_at
		LIMIT 1` + suffix
	var b model.BonusCredit
	err := q.q.QueryRowContext(ctx, stmt, userID, model.BonusActive, now).
		Scan(&b.ID, &b.UserID, &b.Amount, &b.Status, &b.ExpiresAt)
	if err != nil {
		return model.BonusCredit{}, mapErr(err)
	}
	return b, nil
}

func (q queries) ActiveBonusBand(ctx context.Context, legCount int) (model.BonusBand, error) {
	const stmt = `
		SELECT id, leg_count, multiplier, active
		FROM bonus_bands
		WHERE leg_count = $1 AND active
		LIMIT 1`
	var b model.BonusBand
	if err := q.q.QueryRowContext(ctx, stmt, legCount).Scan(&b.ID, &b.LegCount, &b.Multiplier, &b.Active); err != nil {
		return model.BonusBand{}, mapErr(err)
	}
	return b, nil
}

func (q queries) WagerTotals(ctx context.Context, userID string, since time.Time) (model.WagerTotals, error) {
	const stmt = `
		SELECT COALESCE(SUM(stake), 0),
		       COALESCE(SUM(payout) FILTER (WHERE status = $3 AND result = $4), 0)
		FROM bet_slips
		WHERE user_id = $1 AND created_at >= $2`
	var t model.WagerTotals
	err := q.q.QueryRowContext(ctx, stmt, userID, since, model.SlipClosed, model.ResultWin).Scan(&t.Stakes, &t.Payouts)
	if err != nil {
		return model.WagerTotals{}, fmt.Errorf("postgres: wager totals: %w", err)
	}
	return t, nil
}

func (q queries) OpenExposure(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	const stmt = `
		SELECT COALESCE(SUM(payout), 0)
		FROM bet_slips
		WHERE user_id = $1 AND status = $2 AND created_at >= $3`
	var sum decimal.Decimal
	if err := q.q.QueryRowContext(ctx, stmt, userID, model.SlipActive, since).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("postgres: open exposure: %w", err)
	}
	return sum, nil
}

// ---- escrita ----

func (t *txStore) LockActiveBonus(ctx context.Context, userID string, now time.Time) (model.BonusCredit, error) {
	return t.activeBonus(ctx, userID, now, " FOR UPDATE")
}

func (t *txStore) RedeemBonus(ctx context.Context, bonusID string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE bonus_credits SET status = $2 WHERE id = $1`, bonusID, model.BonusRedeemed)
	if err != nil {
		return fmt.Errorf("postgres: redeem bonus: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (t *txStore) InsertSlip(ctx context.Context, s model.Slip) error {
	const stmt = `
		INSERT INTO bet_slips (` + slipColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err := t.tx.ExecContext(ctx, stmt,
		s.ID, s.UserID, s.Stake, s.LegCount, s.CombinedOdds, s.WinAmount, s.Bonus, s.Tax, s.Payout,
		s.Status, s.Result, s.Paid, s.BonusFunded, nullDecimal(s.CashoutValue), nullTimePtr(s.CashoutAt),
		s.CreatedAt, nullTimePtr(s.SettledAt))
	if err != nil {
		return fmt.Errorf("postgres: insert slip: %w", mapErr(err))
	}
	return nil
}

// InsertLegs grava todas as pernas num único INSERT via unnest, uma coluna por array.
func (t *txStore) InsertLegs(ctx context.Context, legs []model.Leg) error {
	if len(legs) == 0 {
		return nil
	}
	const columns = 13
	cols := make([][]string, columns)
	for c := range cols {
		cols[c] = make([]string, len(legs))
	}
	for i, l := range legs {
		row := [columns]string{
			l.ID, l.SlipID, l.UserID, l.FixtureID, l.MarketID, l.Specifier, l.OutcomeID, l.Description,
			l.Odds.String(), string(l.Product), string(l.Status), string(l.Result),
			l.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		for c, v := range row {
			cols[c][i] = v
		}
	}
	args := make([]any, columns)
	for c := range cols {
		args[c] = pq.Array(cols[c])
	}

	const stmt = `
		INSERT INTO bets (id, slip_id, user_id, fixture_id, market_id, specifier, outcome_id, description,
		                  odds, product, status, result, created_at)
		SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[],
		                     $8::text[], $9::numeric[], $10::text[], $11::text[], $12::text[], $13::timestamptz[])`
	if _, err := t.tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("postgres: insert legs: %w", mapErr(err))
	}
	return nil
}

func (t *txStore) LockSlip(ctx context.Context, id string) (model.Slip, error) {
	s, err := scanSlip(t.tx.QueryRowContext(ctx, `SELECT `+slipColumns+` FROM bet_slips WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Slip{}, mapErr(err)
	}
	return s, nil
}

func (t *txStore) UpdateSlip(ctx context.Context, s model.Slip) error {
	const stmt = `
		UPDATE bet_slips SET
		  combined_odds = $2, win_amount = $3, bonus = $4, tax = $5, payout = $6,
		  status = $7, result = $8, paid = $9, cashout_value = $10, cashout_at = $11, settled_at = $12
		WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, stmt, s.ID, s.CombinedOdds, s.WinAmount, s.Bonus, s.Tax, s.Payout,
		s.Status, s.Result, s.Paid, nullDecimal(s.CashoutValue), nullTimePtr(s.CashoutAt), nullTimePtr(s.SettledAt))
	if err != nil {
		return fmt.Errorf("postgres: update slip: %w", err)
	}
	return requireRow(res)
}

// CloseLegs é um único UPDATE por seleção; os ids dos bilhetes voltam via RETURNING.
func (t *txStore) CloseLegs(ctx context.Context, sel model.LegSelector, res model.LegResolution, at time.Time) ([]string, error) {
	const stmt = `
		UPDATE bets SET status = $5, result = $6, void_factor = $7, settled_by = $8, settled_at = $9
		WHERE fixture_id = $1 AND market_id = $2 AND specifier = $3
		  AND status = 'Active'
		  AND (cardinality($4::text[]) = 0 OR outcome_id = ANY($4::text[]))
		RETURNING slip_id`
	rows, err := t.tx.QueryContext(ctx, stmt,
		sel.Key.FixtureID, sel.Key.MarketID, sel.Key.Specifier, pq.Array(nonNil(sel.OutcomeIDs)),
		res.Status, res.Result, res.VoidFactor, res.SettledBy, at)
	if err != nil {
		return nil, fmt.Errorf("postgres: close legs: %w", err)
	}
	return distinctIDs(rows)
}

func (t *txStore) CloseSlipLegs(ctx context.Context, slipID string, res model.LegResolution, at time.Time) error {
	const stmt = `
		UPDATE bets SET status = $2, result = $3, void_factor = $4, settled_by = $5, settled_at = $6
		WHERE slip_id = $1`
	if _, err := t.tx.ExecContext(ctx, stmt, slipID, res.Status, res.Result, res.VoidFactor, res.SettledBy, at); err != nil {
		return fmt.Errorf("postgres: close slip legs: %w", err)
	}
	return nil
}

func (t *txStore) ReopenLegs(ctx context.Context, sel model.LegSelector) ([]string, []string, error) {
	const skippedStmt = `
		SELECT DISTINCT b.slip_id
		FROM bets b JOIN bet_slips s ON s.id = b.slip_id
		WHERE b.fixture_id = $1 AND b.market_id = $2 AND b.specifier = $3
		  AND b.status <> 'Active' AND s.status <> 'Active'
		  AND (cardinality($4::text[]) = 0 OR b.outcome_id = ANY($4::text[]))`
	outcomeIDs := pq.Array(nonNil(sel.OutcomeIDs))
	rows, err := t.tx.QueryContext(ctx, skippedStmt, sel.Key.FixtureID, sel.Key.MarketID, sel.Key.Specifier, outcomeIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: rollback scan: %w", err)
	}
	skipped, err := distinctIDs(rows)
	if err != nil {
		return nil, nil, err
	}

	const reopenStmt = `
		UPDATE bets b SET status = 'Active', result = 'Pending', void_factor = 0, settled_by = '', settled_at = NULL
		FROM bet_slips s
		WHERE s.id = b.slip_id AND s.status = 'Active'
		  AND b.fixture_id = $1 AND b.market_id = $2 AND b.specifier = $3
		  AND b.status <> 'Active'
		  AND (cardinality($4::text[]) = 0 OR b.outcome_id = ANY($4::text[]))
		RETURNING b.slip_id`
	rows, err = t.tx.QueryContext(ctx, reopenStmt, sel.Key.FixtureID, sel.Key.MarketID, sel.Key.Specifier, outcomeIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: reopen legs: %w", err)
	}
	reopened, err := distinctIDs(rows)
	if err != nil {
		return nil, nil, err
	}
	return reopened, skipped, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func distinctIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, rows.Err()
}

func (t *txStore) InsertRejection(ctx context.Context, r model.Rejection) error {
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	const stmt = `
		INSERT INTO risk_rejections (id, user_id, reason, tier, limit_amount, stake, bet_type, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9)`
	_, err = t.tx.ExecContext(ctx, stmt, r.ID, r.UserID, r.Reason, r.Tier, r.Limit, r.Stake, r.BetType, string(meta), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert rejection: %w", err)
	}
	return nil
}

func (t *txStore) InsertPointTransaction(ctx context.Context, p model.PointTransaction) error {
	const stmt = `
		INSERT INTO point_transactions (id, user_id, slip_id, points, created_at)
		VALUES ($1,$2,$3,$4,$5)`
	if _, err := t.tx.ExecContext(ctx, stmt, p.ID, p.UserID, p.SlipID, p.Points, p.CreatedAt); err != nil {
		return fmt.Errorf("postgres: insert points: %w", mapErr(err))
	}
	const credit = `
		INSERT INTO accounts (user_id, points) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET points = accounts.points + EXCLUDED.points`
	if _, err := t.tx.ExecContext(ctx, credit, p.UserID, p.Points); err != nil {
		return fmt.Errorf("postgres: accrue points: %w", err)
	}
	return nil
}
