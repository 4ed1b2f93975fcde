// Package risk valida bilhetes contra limites por tier antes do aceite.
package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/odds"
	"github.com/radieske/sports-wager-engine/internal/wagering/payout"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
)

// Janela do cálculo de tier.
const TierWindow = 7 * 24 * time.Hour

// Códigos de negação gravados na auditoria.
const (
	CodeStakeLimit    = "stake_limit"
	CodeMaxWin        = "max_win"
	CodeDailyCap      = "daily_cap"
	CodeDailyExceeded = "daily_cap_exceeded"
	CodeSGMMarket     = "sgm_market"
	CodeSGMGoalLine   = "sgm_goal_line"
)

var messages = map[string]string{
	CodeStakeLimit:    "Stake exceeds the limit for this bet type",
	CodeMaxWin:        "Potential win exceeds the maximum allowed per bet",
	CodeDailyCap:      "Daily win limit reached",
	CodeDailyExceeded: "Potential win exceeds the remaining daily limit",
	CodeSGMMarket:     "Market not allowed in same game multiples",
	CodeSGMGoalLine:   "Goal line not allowed in same game multiples",
}

// Denial é a recusa de um bilhete; Error() é a mensagem exibida ao usuário.
type Denial struct {
	Code    string
	Tier    int
	Limit   decimal.Decimal
	BetType model.BetType
}

func (d *Denial) Error() string { return messages[d.Code] }

// Candidate é o bilhete já precificado que será validado.
type Candidate struct {
	UserID string
	Stake  decimal.Decimal
	Legs   []odds.Price
}

// Classify: uma perna = singles; partida repetida = sgm; caso contrário parlays.
func Classify(legs []odds.Price) model.BetType {
	if len(legs) <= 1 {
		return model.BetSingle
	}
	seen := make(map[string]bool, len(legs))
	for _, l := range legs {
		if seen[l.Key.FixtureID] {
			return model.BetSGM
		}
		seen[l.Key.FixtureID] = true
	}
	return model.BetParlay
}

type Engine struct {
	log    *zap.Logger
	store  store.Store
	limits Limits
	now    func() time.Time
}

func NewEngine(log *zap.Logger, st store.Store, limits Limits) *Engine {
	return &Engine{log: log, store: st, limits: limits, now: time.Now}
}

// WithClock troca o relógio (testes).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Tier calcula o tier corrente do usuário a partir da janela de 7 dias.
func (e *Engine) Tier(ctx context.Context, userID string) (int, model.WagerTotals, error) {
	totals, err := e.store.WagerTotals(ctx, userID, e.now().Add(-TierWindow))
	if err != nil {
		return 0, model.WagerTotals{}, fmt.Errorf("risk: wager totals: %w", err)
	}
	return e.limits.TierFor(totals.Net()), totals, nil
}

// Validate retorna nil ou *Denial. Toda negação é auditada; falha na auditoria só é logada.
func (e *Engine) Validate(ctx context.Context, c Candidate) error {
	tier, totals, err := e.Tier(ctx, c.UserID)
	if err != nil {
		return err
	}
	betType := Classify(c.Legs)

	legOdds := make([]decimal.Decimal, len(c.Legs))
	for i, l := range c.Legs {
		legOdds[i] = l.Odd
	}
	potential := payout.Money(c.Stake.Mul(payout.CombinedOdds(legOdds)))

	meta := map[string]any{
		"net":           totals.Net().String(),
		"potential_win": potential.String(),
		"legs":          len(c.Legs),
	}
	deny := func(code string, limit decimal.Decimal) error {
		d := &Denial{Code: code, Tier: tier, Limit: limit, BetType: betType}
		e.audit(ctx, c, d, meta)
		return d
	}

	if limit := e.limits.StakeLimits[tier][betType]; c.Stake.GreaterThan(limit) {
		return deny(CodeStakeLimit, limit)
	}
	if potential.GreaterThan(e.limits.MaxWinPerBet) {
		return deny(CodeMaxWin, e.limits.MaxWinPerBet)
	}

	now := e.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	exposure, err := e.store.OpenExposure(ctx, c.UserID, dayStart)
	if err != nil {
		return fmt.Errorf("risk: open exposure: %w", err)
	}
	meta["exposure"] = exposure.String()
	if exposure.GreaterThanOrEqual(e.limits.DailyWinCap) {
		return deny(CodeDailyCap, e.limits.DailyWinCap)
	}
	if exposure.Add(potential).GreaterThan(e.limits.DailyWinCap) {
		return deny(CodeDailyExceeded, e.limits.DailyWinCap)
	}

	if betType == model.BetSGM && e.limits.SGM.Enforce {
		if code := e.checkSGM(c.Legs); code != "" {
			return deny(code, decimal.Zero)
		}
	}
	return nil
}

func (e *Engine) checkSGM(legs []odds.Price) string {
	for _, l := range legs {
		if !e.limits.SGM.AllowedMarkets[l.Key.MarketID] {
			return CodeSGMMarket
		}
		if line, ok := goalLine(l.Key.Specifier); ok && !e.limits.SGM.AllowedGoalLines[line] {
			return CodeSGMGoalLine
		}
	}
	return ""
}

// goalLine extrai o valor de "total=2.5" (specifiers podem ter vários pares separados por |).
func goalLine(specifier string) (string, bool) {
	for _, part := range strings.Split(specifier, "|") {
		if v, ok := strings.CutPrefix(part, "total="); ok {
			return v, true
		}
	}
	return "", false
}

func (e *Engine) audit(ctx context.Context, c Candidate, d *Denial, meta map[string]any) {
	r := model.Rejection{
		ID:        uuid.NewString(),
		UserID:    c.UserID,
		Reason:    d.Code,
		Tier:      d.Tier,
		Limit:     d.Limit,
		Stake:     c.Stake,
		BetType:   d.BetType,
		Metadata:  meta,
		CreatedAt: e.now().UTC(),
	}
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertRejection(ctx, r)
	})
	if err != nil {
		e.log.Warn("risk rejection audit failed",
			zap.String("user_id", c.UserID), zap.String("reason", d.Code), zap.Error(err))
	}
	e.log.Info("wager denied by risk",
		zap.String("user_id", c.UserID), zap.String("reason", d.Code), zap.Int("tier", d.Tier))
}
