package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

const marketColumns = `m.fixture_id, m.market_id, m.specifier, m.product, m.status, m.outcomes, m.results, m.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(r rowScanner) (model.Market, error) {
	var (
		m                 model.Market
		outcomes, results []byte
	)
	if err := r.Scan(&m.FixtureID, &m.MarketID, &m.Specifier, &m.Product, &m.Status, &outcomes, &results, &m.UpdatedAt); err != nil {
		return model.Market{}, err
	}
	if err := json.Unmarshal(outcomes, &m.Outcomes); err != nil {
		return model.Market{}, fmt.Errorf("decode outcomes: %w", err)
	}
	if err := json.Unmarshal(results, &m.Results); err != nil {
		return model.Market{}, fmt.Errorf("decode results: %w", err)
	}
	if m.Outcomes == nil {
		m.Outcomes = map[string]model.Outcome{}
	}
	if m.Results == nil {
		m.Results = map[string]model.OutcomeResult{}
	}
	return m, nil
}

func collectMarkets(rows *sql.Rows) ([]model.Market, error) {
	defer rows.Close()
	var out []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q queries) FindMarkets(ctx context.Context, keys []model.MarketKey) ([]model.Market, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	fixtures := make([]string, len(keys))
	markets := make([]string, len(keys))
	specifiers := make([]string, len(keys))
	for i, k := range keys {
		fixtures[i], markets[i], specifiers[i] = k.FixtureID, k.MarketID, k.Specifier
	}

	const stmt = `
		SELECT ` + marketColumns + `
		FROM markets m
		JOIN unnest($1::text[], $2::text[], $3::text[]) AS k(fixture_id, market_id, specifier)
		  ON m.fixture_id = k.fixture_id AND m.market_id = k.market_id AND m.specifier = k.specifier
		ORDER BY m.fixture_id, m.market_id, m.specifier, m.product`
	rows, err := q.q.QueryContext(ctx, stmt, pq.Array(fixtures), pq.Array(markets), pq.Array(specifiers))
	if err != nil {
		return nil, fmt.Errorf("postgres: find markets: %w", err)
	}
	return collectMarkets(rows)
}

func (q queries) GetMarket(ctx context.Context, key model.MarketKey, product model.Product) (model.Market, error) {
	return q.getMarket(ctx, key, product, "")
}

func (q queries) getMarket(ctx context.Context, key model.MarketKey, product model.Product, suffix string) (model.Market, error) {
	stmt := `
		SELECT ` + marketColumns + `
		FROM markets m
		WHERE m.fixture_id = $1 AND m.market_id = $2 AND m.specifier = $3 AND m.product = $4` + suffix
	m, err := scanMarket(q.q.QueryRowContext(ctx, stmt, key.FixtureID, key.MarketID, key.Specifier, product))
	if err != nil {
		return model.Market{}, mapErr(err)
	}
	return m, nil
}

func (q queries) ListMarketsByFixture(ctx context.Context, fixtureID string) ([]model.Market, error) {
	const stmt = `
		SELECT ` + marketColumns + `
		FROM markets m
		WHERE m.fixture_id = $1
		ORDER BY m.market_id, m.specifier, m.product`
	rows, err := q.q.QueryContext(ctx, stmt, fixtureID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	return collectMarkets(rows)
}

const fixtureColumns = `f.id, f.tournament_id, f.status, f.home_score, f.away_score, f.match_time, f.starts_at, f.updated_at`

func scanFixture(r rowScanner) (model.Fixture, error) {
	var f model.Fixture
	err := r.Scan(&f.ID, &f.TournamentID, &f.Status, &f.HomeScore, &f.AwayScore, &f.MatchTime, &f.StartsAt, &f.UpdatedAt)
	return f, err
}

func (q queries) GetFixture(ctx context.Context, id string) (model.Fixture, error) {
	f, err := scanFixture(q.q.QueryRowContext(ctx, `SELECT `+fixtureColumns+` FROM fixtures f WHERE f.id = $1`, id))
	if err != nil {
		return model.Fixture{}, mapErr(err)
	}
	return f, nil
}

func (q queries) GetFixtures(ctx context.Context, ids []string) (map[string]model.Fixture, error) {
	out := make(map[string]model.Fixture, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.q.QueryContext(ctx, `SELECT `+fixtureColumns+` FROM fixtures f WHERE f.id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("postgres: get fixtures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		f, err := scanFixture(rows)
		if err != nil {
			return nil, err
		}
		out[f.ID] = f
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (q queries) ListFixtures(ctx context.Context, filter model.FixtureFilter) ([]model.Fixture, error) {
	const stmt = `
		SELECT ` + fixtureColumns + `
		FROM fixtures f
		WHERE ($1::text = '' OR f.tournament_id = $1::text)
		  AND ($2::timestamptz IS NULL OR f.starts_at >= $2::timestamptz)
		  AND ($3::timestamptz IS NULL OR f.starts_at < $3::timestamptz)
		  AND ($4::text = '' OR EXISTS (
		        SELECT 1 FROM markets m WHERE m.fixture_id = f.id AND m.product = $4::text))
		ORDER BY f.starts_at, f.id`
	rows, err := q.q.QueryContext(ctx, stmt,
		filter.TournamentID, nullTime(filter.From), nullTime(filter.To), string(filter.Product))
	if err != nil {
		return nil, fmt.Errorf("postgres: list fixtures: %w", err)
	}
	defer rows.Close()
	var out []model.Fixture
	for rows.Next() {
		f, err := scanFixture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ---- escrita (somente em transação) ----

func (t *txStore) UpsertMarket(ctx context.Context, m model.Market) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}
	results, err := json.Marshal(m.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	const stmt = `
		INSERT INTO markets (fixture_id, market_id, specifier, product, status, outcomes, results, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7::jsonb,$8)
		ON CONFLICT (fixture_id, market_id, specifier, product) DO UPDATE SET
		  status     = EXCLUDED.status,
		  outcomes   = EXCLUDED.outcomes,
		  results    = EXCLUDED.results,
		  updated_at = EXCLUDED.updated_at`
	_, err = t.tx.ExecContext(ctx, stmt,
		m.FixtureID, m.MarketID, m.Specifier, m.Product, m.Status, string(outcomes), string(results), m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert market: %w", err)
	}
	return nil
}

func (t *txStore) LockMarket(ctx context.Context, key model.MarketKey, product model.Product) (model.Market, error) {
	return t.getMarket(ctx, key, product, " FOR UPDATE")
}

func (t *txStore) SetMarketsStatus(ctx context.Context, fixtureID string, product model.Product, from, to model.MarketStatus) (int64, error) {
	const stmt = `
		UPDATE markets SET status = $4, updated_at = NOW()
		WHERE fixture_id = $1 AND product = $2 AND status = $3`
	res, err := t.tx.ExecContext(ctx, stmt, fixtureID, product, from, to)
	if err != nil {
		return 0, fmt.Errorf("postgres: set markets status: %w", err)
	}
	return res.RowsAffected()
}

func (t *txStore) UpsertFixture(ctx context.Context, f model.Fixture) error {
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now().UTC()
	}
	if f.StartsAt.IsZero() {
		f.StartsAt = f.UpdatedAt
	}
	const stmt = `
		INSERT INTO fixtures (id, tournament_id, status, home_score, away_score, match_time, starts_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
		  tournament_id = EXCLUDED.tournament_id,
		  status        = EXCLUDED.status,
		  home_score    = EXCLUDED.home_score,
		  away_score    = EXCLUDED.away_score,
		  match_time    = EXCLUDED.match_time,
		  updated_at    = EXCLUDED.updated_at`
	_, err := t.tx.ExecContext(ctx, stmt,
		f.ID, f.TournamentID, f.Status, f.HomeScore, f.AwayScore, f.MatchTime, f.StartsAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert fixture: %w", err)
	}
	return nil
}
