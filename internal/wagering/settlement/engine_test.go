package settlement_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/pubsub"
	"github.com/radieske/sports-wager-engine/internal/wagering/builder"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/odds"
	"github.com/radieske/sports-wager-engine/internal/wagering/risk"
	"github.com/radieske/sports-wager-engine/internal/wagering/settlement"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
	"github.com/radieske/sports-wager-engine/internal/wagering/store/memory"
	wt "github.com/radieske/sports-wager-engine/internal/wagering/wagertest"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

type notified struct {
	mu    sync.Mutex
	slips []model.Slip
}

func (n *notified) SlipSettled(_ context.Context, s model.Slip) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.slips = append(n.slips, s)
}

type env struct {
	st  *memory.Store
	rec *pubsub.Recorder
	b   *builder.Builder
	eng *settlement.Engine
	n   *notified
}

func setup(t *testing.T, cfg settlement.Config) env {
	t.Helper()
	st := memory.New()
	wt.Seed(t, st,
		[]model.Fixture{wt.Fixture("f1", "t1"), wt.Fixture("f3", "t1")},
		wt.Market(wt.Key("f1", "1", ""), model.ProductPreMatch, model.MarketActive,
			wt.Outcome("1", "f1-home", "2.0"), wt.Outcome("2", "f1-draw", "3.1")),
		wt.Market(wt.Key("f1", "1", ""), model.ProductLive, model.MarketActive,
			wt.Outcome("1", "f1-home", "2.5"), wt.Outcome("2", "f1-draw", "2.9")),
		wt.Market(wt.Key("f3", "1", ""), model.ProductPreMatch, model.MarketActive,
			wt.Outcome("1", "f3-home", "3.0"), wt.Outcome("2", "f3-draw", "3.2")),
	)
	rec := &pubsub.Recorder{}
	rv := risk.NewEngine(zap.NewNop(), st, risk.DefaultLimits()).WithClock(wt.Clock)
	b := builder.New(zap.NewNop(), st, odds.NewCatalog(st), rv, rec, builder.DefaultConfig()).WithClock(wt.Clock)
	n := &notified{}
	eng := settlement.New(zap.NewNop(), st, rec, n, cfg).WithClock(func() time.Time { return wt.Now.Add(2 * time.Hour) })
	return env{st: st, rec: rec, b: b, eng: eng, n: n}
}

func place(t *testing.T, e env, stake string, legs ...builder.LegRequest) model.Slip {
	t.Helper()
	slip, err := e.b.Place(context.Background(), builder.PlaceRequest{UserID: "u1", Stake: wt.Dec(stake), Legs: legs})
	require.NoError(t, err)
	return slip
}

func pick(fixture, outcome string, product model.Product) builder.LegRequest {
	return builder.LegRequest{FixtureID: fixture, MarketID: "1", OutcomeID: outcome, Product: product}
}

func result(code, outcomeID string, status model.OutcomeStatus) map[string]model.OutcomeResult {
	return map[string]model.OutcomeResult{code: {Code: code, OutcomeID: outcomeID, Status: status}}
}

func slipOf(t *testing.T, st *memory.Store, id string) model.Slip {
	t.Helper()
	s, err := st.GetSlip(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestSettleMarket_SingleWinPaysNetOfTax(t *testing.T) {
	e := setup(t, settlement.DefaultConfig())
	wt.Fund(t, e.st, "u1", "1000")
	slip := place(t, e, "100", pick("f1", "f1-home", model.ProductPreMatch))

	affected, err := e.eng.SettleMarket(context.Background(), wt.Key("f1", "1", ""), result("1", "f1-home", model.OutcomeWin))
	require.NoError(t, err)
	assert.Equal(t, []string{slip.ID}, affected)

	got := slipOf(t, e.st, slip.ID)
	assert.Equal(t, model.SlipClosed, got.Status)
	assert.Equal(t, model.ResultWin, got.Result)
	assert.True(t, got.Paid)
	assert.True(t, wt.Dec("200").Equal(got.WinAmount))
	assert.True(t, wt.Dec("15").Equal(got.Tax))
	assert.True(t, wt.Dec("185").Equal(got.Payout))
	require.NotNil(t, got.SettledAt)

	assert.True(t, wt.Dec("1085").Equal(wt.Balance(t, e.st, "u1")))
	tx, err := e.st.ListTransactions(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryWin, tx[0].Category)
	assert.Equal(t, "settle:"+slip.ID, tx[0].Reference)

	assert.Len(t, e.rec.OfType(events.TypeSlipSettled), 1)
	assert.Len(t, e.n.slips, 1)
}

func TestSettleMarket_ClosesBothProducts(t *testing.T) {
	e := setup(t, settlement.DefaultConfig())
	wt.Fund(t, e.st, "u1", "1000")
	pre := place(t, e, "10", pick("f1", "f1-home", model.ProductPreMatch))
	live := place(t, e, "10", pick("f1", "f1-draw", model.ProductLive))

	affected, err := e.eng.SettleMarket(context.Background(), wt.Key("f1", "1", ""), result("1", "f1-home", model.OutcomeWin))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{pre.ID, live.ID}, affected)

	assert.Equal(t, model.ResultWin, slipOf(t, e.st, pre.ID).Result)
	lost := slipOf(t, e.st, live.ID)
	assert.Equal(t, model.ResultLoss, lost.Result)
	assert.False(t, lost.Paid)
	assert.True(t, lost.Payout.IsZero())
	assert.True(t, lost.Tax.IsZero())
}

func TestSettleMarket_AllVoidRefundsStake(t *testing.T) {
	e := setup(t, settlement.DefaultConfig())
	wt.Fund(t, e.st, "u1", "1000")
	slip := place(t, e, "500", pick("f1", "f1-home", model.ProductPreMatch), pick("f3", "f3-home", model.ProductPreMatch))

	_, err := e.eng.SettleMarket(context.Background(), wt.Key("f1", "1", ""), result("1", "f1-home", model.OutcomeCanceled))
	require.NoError(t, err)
	assert.Equal(t, model.SlipActive, slipOf(t, e.st, slip.ID).Status)

	_, err = e.eng.SettleMarket(context.Background(), wt.Key("f3", "1", ""), result("1", "f3-home", model.OutcomeRefund))
	require.NoError(t, err)

	got := slipOf(t, e.st, slip.ID)
	assert.Equal(t, model.ResultVoid, got.Result)
	assert.True(t, wt.Dec("500").Equal(got.Payout))
	assert.True(t, wt.Dec("1000").Equal(wt.Balance(t, e.st, "u1")))

	legs, err := e.st.ListLegs(context.Background(), slip.ID)
	require.NoError(t, err)
	for _, l := range legs {
		assert.True(t, wt.Dec("1").Equal(l.VoidFactor))
	}
	tx, err := e.st.ListTransactions(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryRefund, tx[0].Category)
}

func TestSettleMarket_WinPlusVoidUsesWinningLegsOnly(t *testing.T) {
	e := setup(t, settlement.DefaultConfig())
	wt.Fund(t, e.st, "u1", "1000")
	slip := place(t, e, "100", pick("f1", "f1-home", model.ProductPreMatch), pick("f3", "f3-home", model.ProductPreMatch))

	_, err := e.eng.SettleMarket(context.Background(), wt.Key("f1", "1", ""), result("1", "f1-home", model.OutcomeWin))
	require.NoError(t, err)
	_, err = e.eng.SettleMarket(context.Background(), wt.Key("f3", "1", ""), result("1", "f3-home", model.OutcomeCanceled))
	require.NoError(t, err)

	got := slipOf(t, e.st, slip.ID)
	assert.Equal(t, model.ResultWin, got.Result)
	assert.True(t, wt.Dec("2").Equal(got.CombinedOdds))
	assert.True(t, wt.Dec("185").Equal(got.Payout))
}

func TestSettleMarket_Idempotent(t *testing.T) {
	e := setup(t, settlement.DefaultConfig())
	wt.Fund(t, e.st, "u1", "1000")
	slip := place(t, e, "100", pick("f1", "f1-home", model.ProductPreMatch))
	results := result("1", "f1-home", model.OutcomeWin)

	_, err := e.eng.SettleMarket(context.Background(), wt.Key("f1", "1", ""), results)
	require.NoError(t, err)
	affected, err := e.eng.SettleMarket(context.Background(), wt.Key("f1", "1", ""), results)
	require.NoError(t, err)
	assert.Empty(t, affected)

	done, err := e.eng.SettleSlip(context.Background(), slip.ID)
	require.NoError(t, err)
	assert.False(t, done)

	assert.True(t, wt.Dec("1085").Equal(wt.Balance(t, e.st, "u1")))
	assert.Len(t, e.rec.OfType(events.TypeSlipSettled), 1)
}

func TestSettleSlips_ConcurrentPaysOnce(t *testing.T) {
	e := setup(t, settlement.DefaultConfig())
	wt.Fund(t, e.st, "u1", "1000")
	slip := place(t, e, "100", pick("f1", "f1-home", model.ProductPreMatch))

	require.NoError(t, e.st.InTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.CloseLegs(context.Background(), model.LegSelector{Key: wt.Key("f1", "1", "")},
			model.LegResolution{Status: model.LegClosed, Result: model.ResultWin, SettledBy: model.SettledByMarket}, wt.Now)
		return err
	}))

	require.NoError(t, e.eng.SettleSlips(context.Background(), []string{slip.ID, slip.ID, slip.ID, slip.ID}))

	assert.True(t, wt.Dec("1085").Equal(wt.Balance(t, e.st, "u1")))
	discrepancies, err := e.st.LedgerDiscrepancies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestSettleSlip_WaitsForOpenLegs(t *testing.T) {
	e := setup(t, settlement.DefaultConfig())
	wt.Fund(t, e.st, "u1", "1000")
	slip := place(t, e, "100", pick("f1", "f1-home", model.ProductPreMatch), pick("f3", "f3-home", model.ProductPreMatch))

	_, err := e.eng.SettleMarket(context.Background(), wt.Key("f1", "1", ""), result("1", "f1-home", model.OutcomeWin))
	require.NoError(t, err)

	got := slipOf(t, e.st, slip.ID)
	assert.Equal(t, model.SlipActive, got.Status)
	assert.Equal(t, model.ResultPending, got.Result)
	assert.True(t, wt.Dec("900").Equal(wt.Balance(t, e.st, "u1")))
}

func TestSettleSlip_LoyaltyPoints(t *testing.T) {
	cfg := settlement.DefaultConfig()
	cfg.LoyaltyEnabled = true
	cfg.PointsPerSlip = 2
	e := setup(t, cfg)
	wt.Fund(t, e.st, "u1", "10000")
	place(t, e, "2500", pick("f1", "f1-draw", model.ProductPreMatch))

	_, err := e.eng.SettleMarket(context.Background(), wt.Key("f1", "1", ""), result("1", "f1-home", model.OutcomeWin))
	require.NoError(t, err)
	assert.Equal(t, int64(4), e.st.Points("u1"))
}

func TestHandleJob_SettleMarket(t *testing.T) {
	e := setup(t, settlement.DefaultConfig())
	wt.Fund(t, e.st, "u1", "1000")
	slip := place(t, e, "100", pick("f1", "f1-home", model.ProductPreMatch))

	m := wt.Market(wt.Key("f1", "1", ""), model.ProductPreMatch, model.MarketSettled)
	m.Results = result("1", "f1-home", model.OutcomeWin)
	wt.Seed(t, e.st, nil, m)

	var results []string
	e.eng.OnSettled = func(r string) { results = append(results, r) }
	err := e.eng.HandleJob(context.Background(), events.SettlementJob{
		Kind: events.JobSettleMarket, FixtureID: "f1", MarketID: "1", Product: string(model.ProductPreMatch),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ResultWin, slipOf(t, e.st, slip.ID).Result)
	assert.Equal(t, []string{"Win"}, results)

	// mercado desconhecido não é erro
	assert.NoError(t, e.eng.HandleJob(context.Background(), events.SettlementJob{Kind: events.JobSettleMarket, FixtureID: "f9", MarketID: "1"}))
}

func TestSettleMarket_FailsClosedWithoutResult(t *testing.T) {
	cases := []struct {
		name    string
		results map[string]model.OutcomeResult
	}{
		{name: "nil results", results: nil},
		{name: "empty results", results: map[string]model.OutcomeResult{}},
		{name: "only another outcome", results: result("2", "f1-draw", model.OutcomeWin)},
		{name: "result without outcome id", results: map[string]model.OutcomeResult{
			"1": {Code: "1", Status: model.OutcomeWin},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := setup(t, settlement.DefaultConfig())
			wt.Fund(t, e.st, "u1", "1000")
			slip := place(t, e, "100", pick("f1", "f1-home", model.ProductPreMatch))

			affected, err := e.eng.SettleMarket(context.Background(), wt.Key("f1", "1", ""), tc.results)
			require.NoError(t, err)
			assert.Equal(t, []string{slip.ID}, affected)

			legs, err := e.st.ListLegs(context.Background(), slip.ID)
			require.NoError(t, err)
			require.Len(t, legs, 1)
			assert.Equal(t, model.LegClosed, legs[0].Status)
			assert.Equal(t, model.ResultLoss, legs[0].Result)
			assert.Equal(t, model.SettledByMarket, legs[0].SettledBy)

			got := slipOf(t, e.st, slip.ID)
			assert.Equal(t, model.SlipClosed, got.Status)
			assert.Equal(t, model.ResultLoss, got.Result)
			assert.True(t, got.Payout.IsZero())
			assert.True(t, wt.Dec("900").Equal(wt.Balance(t, e.st, "u1")))
		})
	}
}

func TestSettleMarket_VoidFactorVoidsLeg(t *testing.T) {
	cases := []struct {
		name   string
		result model.OutcomeResult
		wantVF string
	}{
		{
			name:   "win with partial void factor",
			result: model.OutcomeResult{Code: "1", OutcomeID: "f1-home", Status: model.OutcomeWin, VoidFactor: wt.Dec("0.5")},
			wantVF: "0.5",
		},
		{
			name:   "refund keeps explicit factor",
			result: model.OutcomeResult{Code: "1", OutcomeID: "f1-home", Status: model.OutcomeRefund, VoidFactor: wt.Dec("0.25")},
			wantVF: "0.25",
		},
		{
			name:   "cancel without factor voids whole leg",
			result: model.OutcomeResult{Code: "1", OutcomeID: "f1-home", Status: model.OutcomeCanceled},
			wantVF: "1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := setup(t, settlement.DefaultConfig())
			wt.Fund(t, e.st, "u1", "1000")
			slip := place(t, e, "100", pick("f1", "f1-home", model.ProductPreMatch))

			_, err := e.eng.SettleMarket(context.Background(), wt.Key("f1", "1", ""),
				map[string]model.OutcomeResult{tc.result.Code: tc.result})
			require.NoError(t, err)

			legs, err := e.st.ListLegs(context.Background(), slip.ID)
			require.NoError(t, err)
			require.Len(t, legs, 1)
			assert.Equal(t, model.LegClosed, legs[0].Status)
			assert.Equal(t, model.ResultVoid, legs[0].Result)
			assert.True(t, wt.Dec(tc.wantVF).Equal(legs[0].VoidFactor), "void factor %s", legs[0].VoidFactor)

			got := slipOf(t, e.st, slip.ID)
			assert.Equal(t, model.ResultVoid, got.Result)
			assert.True(t, wt.Dec("100").Equal(got.Payout))
			assert.True(t, wt.Dec("1000").Equal(wt.Balance(t, e.st, "u1")))
		})
	}
}

// flakyStore faz UpdateSlip falhar nas primeiras chamadas, como um conflito de escrita.
type flakyStore struct {
	*memory.Store
	failures atomic.Int32
}

func (s *flakyStore) InTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(flakyTx{Tx: tx, s: s})
	})
}

type flakyTx struct {
	store.Tx
	s *flakyStore
}

func (t flakyTx) UpdateSlip(ctx context.Context, slip model.Slip) error {
	if t.s.failures.Add(-1) >= 0 {
		return errors.New("transient write conflict")
	}
	return t.Tx.UpdateSlip(ctx, slip)
}

func TestHandleJob_RedeliveryAggregatesSlipsLeftActive(t *testing.T) {
	e := setup(t, settlement.DefaultConfig())
	wt.Fund(t, e.st, "u1", "1000")
	pre := place(t, e, "100", pick("f1", "f1-home", model.ProductPreMatch))
	live := place(t, e, "10", pick("f1", "f1-home", model.ProductLive))

	m := wt.Market(wt.Key("f1", "1", ""), model.ProductPreMatch, model.MarketSettled)
	m.Results = result("1", "f1-home", model.OutcomeWin)
	wt.Seed(t, e.st, nil, m)

	fs := &flakyStore{Store: e.st}
	fs.failures.Store(1)
	eng := settlement.New(zap.NewNop(), fs, e.rec, e.n, settlement.DefaultConfig()).
		WithClock(func() time.Time { return wt.Now.Add(2 * time.Hour) })
	job := events.SettlementJob{
		Kind: events.JobSettleMarket, FixtureID: "f1", MarketID: "1", Product: string(model.ProductPreMatch),
	}

	err := eng.HandleJob(context.Background(), job)
	require.ErrorContains(t, err, "transient write conflict")

	// pernas fechadas; só um bilhete falhou e o outro não foi cancelado
	active := 0
	for _, id := range []string{pre.ID, live.ID} {
		if slipOf(t, e.st, id).Status == model.SlipActive {
			active++
		}
	}
	assert.Equal(t, 1, active)

	require.NoError(t, eng.HandleJob(context.Background(), job))

	var paid []model.Slip
	for _, id := range []string{pre.ID, live.ID} {
		got := slipOf(t, e.st, id)
		assert.Equal(t, model.SlipClosed, got.Status)
		assert.Equal(t, model.ResultWin, got.Result)
		assert.True(t, got.Paid)
		paid = append(paid, got)
	}
	want := wt.Dec("890").Add(paid[0].Payout).Add(paid[1].Payout)
	assert.True(t, want.Equal(wt.Balance(t, e.st, "u1")))
	assert.True(t, wt.Dec("185").Equal(paid[0].Payout))

	discrepancies, err := e.st.LedgerDiscrepancies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discrepancies)

	// terceira entrega não paga de novo
	require.NoError(t, eng.HandleJob(context.Background(), job))
	assert.True(t, want.Equal(wt.Balance(t, e.st, "u1")))
}
