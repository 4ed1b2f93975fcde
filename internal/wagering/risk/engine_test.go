package risk_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/odds"
	"github.com/radieske/sports-wager-engine/internal/wagering/risk"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
	"github.com/radieske/sports-wager-engine/internal/wagering/store/memory"
	wt "github.com/radieske/sports-wager-engine/internal/wagering/wagertest"
)

func leg(fixture, market, spec, odd string) odds.Price {
	return odds.Price{
		Selection: odds.Selection{Key: wt.Key(fixture, market, spec), OutcomeID: "o-" + market, Product: model.ProductPreMatch},
		Odd:       wt.Dec(odd),
	}
}

func insertSlip(t *testing.T, st store.Store, s model.Slip) {
	t.Helper()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertSlip(context.Background(), s)
	}))
}

func newEngine(st store.Store) *risk.Engine {
	return risk.NewEngine(zap.NewNop(), st, risk.DefaultLimits()).WithClock(wt.Clock)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, model.BetSingle, risk.Classify([]odds.Price{leg("f1", "1", "", "2")}))
	assert.Equal(t, model.BetParlay, risk.Classify([]odds.Price{leg("f1", "1", "", "2"), leg("f2", "1", "", "2")}))
	assert.Equal(t, model.BetSGM, risk.Classify([]odds.Price{leg("f1", "1", "", "2"), leg("f2", "1", "", "2"), leg("f1", "18", "total=2.5", "2")}))
}

func TestTierFor(t *testing.T) {
	l := risk.DefaultLimits()
	assert.Equal(t, 1, l.TierFor(wt.Dec("-500")))
	assert.Equal(t, 1, l.TierFor(wt.Dec("9999.99")))
	assert.Equal(t, 2, l.TierFor(wt.Dec("10000")))
	assert.Equal(t, 3, l.TierFor(wt.Dec("75000")))
}

func TestValidate_StrictestTierDeniedDespiteBalance(t *testing.T) {
	st := memory.New()
	wt.Fund(t, st, "u1", "1000000")
	// 60.000 líquidos nos últimos 7 dias -> tier 3
	insertSlip(t, st, model.Slip{
		UserID: "u1", Stake: wt.Dec("1000"), Payout: wt.Dec("61000"),
		Status: model.SlipClosed, Result: model.ResultWin, CreatedAt: wt.Now.Add(-48 * time.Hour),
	})
	// fora da janela, não conta
	insertSlip(t, st, model.Slip{
		UserID: "u1", Stake: wt.Dec("500000"), Status: model.SlipClosed, Result: model.ResultLoss,
		CreatedAt: wt.Now.Add(-8 * 24 * time.Hour),
	})

	eng := newEngine(st)
	tier, _, err := eng.Tier(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, tier)

	err = eng.Validate(context.Background(), risk.Candidate{UserID: "u1", Stake: wt.Dec("10001"), Legs: []odds.Price{leg("f1", "1", "", "1.5")}})
	var denial *risk.Denial
	require.True(t, errors.As(err, &denial))
	assert.Equal(t, risk.CodeStakeLimit, denial.Code)
	assert.Equal(t, 3, denial.Tier)
	assert.True(t, wt.Dec("10000").Equal(denial.Limit))

	rejections := st.Rejections()
	require.Len(t, rejections, 1)
	assert.Equal(t, risk.CodeStakeLimit, rejections[0].Reason)
	assert.Equal(t, model.BetSingle, rejections[0].BetType)

	assert.NoError(t, eng.Validate(context.Background(), risk.Candidate{UserID: "u1", Stake: wt.Dec("10000"), Legs: []odds.Price{leg("f1", "1", "", "1.5")}}))
}

func TestValidate_MaxWin(t *testing.T) {
	eng := newEngine(memory.New())
	err := eng.Validate(context.Background(), risk.Candidate{
		UserID: "u1", Stake: wt.Dec("100000"),
		Legs: []odds.Price{leg("f1", "1", "", "20"), leg("f2", "1", "", "10")},
	})
	var denial *risk.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, risk.CodeMaxWin, denial.Code)
	assert.Equal(t, model.BetParlay, denial.BetType)
}

func TestValidate_DailyExposure(t *testing.T) {
	st := memory.New()
	insertSlip(t, st, model.Slip{
		UserID: "u1", Stake: wt.Dec("100000"), Payout: wt.Dec("19999000"),
		Status: model.SlipActive, Result: model.ResultPending, CreatedAt: wt.Now.Add(-time.Hour),
	})
	eng := newEngine(st)

	err := eng.Validate(context.Background(), risk.Candidate{UserID: "u1", Stake: wt.Dec("1000"), Legs: []odds.Price{leg("f1", "1", "", "2")}})
	var denial *risk.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, risk.CodeDailyExceeded, denial.Code)

	assert.NoError(t, eng.Validate(context.Background(), risk.Candidate{UserID: "u1", Stake: wt.Dec("500"), Legs: []odds.Price{leg("f1", "1", "", "2")}}))

	insertSlip(t, st, model.Slip{
		UserID: "u1", Stake: wt.Dec("10"), Payout: wt.Dec("1000"),
		Status: model.SlipActive, Result: model.ResultPending, CreatedAt: wt.Now.Add(-time.Minute),
	})
	err = eng.Validate(context.Background(), risk.Candidate{UserID: "u1", Stake: wt.Dec("1"), Legs: []odds.Price{leg("f1", "1", "", "2")}})
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, risk.CodeDailyCap, denial.Code)
}

func TestValidate_SGMPolicyFlag(t *testing.T) {
	legs := []odds.Price{leg("f1", "1", "", "2"), leg("f1", "18", "total=4.5", "2")}

	off := newEngine(memory.New())
	assert.NoError(t, off.Validate(context.Background(), risk.Candidate{UserID: "u1", Stake: wt.Dec("10"), Legs: legs}))

	limits := risk.DefaultLimits()
	limits.SGM.Enforce = true
	on := risk.NewEngine(zap.NewNop(), memory.New(), limits).WithClock(wt.Clock)
	err := on.Validate(context.Background(), risk.Candidate{UserID: "u1", Stake: wt.Dec("10"), Legs: legs})
	var denial *risk.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, risk.CodeSGMGoalLine, denial.Code)
}

type failingAudit struct {
	*memory.Store
}

func (failingAudit) InTx(context.Context, func(store.Tx) error) error {
	return errors.New("db down")
}

func TestValidate_AuditFailureStillDenies(t *testing.T) {
	eng := risk.NewEngine(zap.NewNop(), failingAudit{memory.New()}, risk.DefaultLimits()).WithClock(wt.Clock)
	err := eng.Validate(context.Background(), risk.Candidate{UserID: "u1", Stake: wt.Dec("600000"), Legs: []odds.Price{leg("f1", "1", "", "2")}})
	var denial *risk.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, "Stake exceeds the limit for this bet type", denial.Error())
}

func TestParseLimits(t *testing.T) {
	_, err := risk.ParseLimits([]byte("tiers: [{id: 1, min_net: 0}]\nstake_limits: {1: {singles: 10}}\nmax_win_per_bet: 1\ndaily_win_cap: 1\n"))
	assert.ErrorContains(t, err, "missing parlays")

	l, err := risk.ParseLimits([]byte(`
tiers: [{id: 2, min_net: 100}, {id: 1, min_net: 0}]
stake_limits:
  1: {singles: 10, parlays: 5, sgm: 1}
  2: {singles: 1, parlays: 1, sgm: 1}
max_win_per_bet: 1000
daily_win_cap: 5000
`))
	require.NoError(t, err)
	assert.Equal(t, 1, l.Tiers[0].ID)
	assert.True(t, decimal.NewFromInt(5).Equal(l.StakeLimits[1][model.BetParlay]))
	assert.False(t, l.SGM.Enforce)
}
