// Package cashout cota e executa o encerramento antecipado de bilhetes.
package cashout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/pubsub"
	"github.com/radieske/sports-wager-engine/internal/wagering/ledger"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/odds"
	"github.com/radieske/sports-wager-engine/internal/wagering/payout"
	"github.com/radieske/sports-wager-engine/internal/wagering/settlement"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
)

// Motivos de indisponibilidade.
const (
	ReasonNotActive       = "slip_not_active"
	ReasonNoLegs          = "no_legs"
	ReasonLegLost         = "leg_lost"
	ReasonFixtureVoid     = "fixture_void"
	ReasonOddsUnavailable = "odds_unavailable"
	ReasonNoValue         = "no_value"
)

type Quote struct {
	SlipID       string
	Available    bool
	Value        decimal.Decimal
	PotentialWin decimal.Decimal
	Stake        decimal.Decimal
	CurrentOdds  decimal.Decimal
	Reason       string
}

type Engine struct {
	log   *zap.Logger
	store store.Store
	pub   pubsub.Publisher
	rules payout.Rules
	now   func() time.Time

	OnExecuted func() // métricas
}

func New(log *zap.Logger, st store.Store, pub pubsub.Publisher, rules payout.Rules) *Engine {
	return &Engine{log: log, store: st, pub: pub, rules: rules, now: time.Now}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Quote calcula o valor corrente sem alterar nada.
func (e *Engine) Quote(ctx context.Context, slipID string) (Quote, error) {
	slip, err := e.store.GetSlip(ctx, slipID)
	if err != nil {
		return Quote{}, fmt.Errorf("cashout: slip %s: %w", slipID, err)
	}
	legs, err := e.store.ListLegs(ctx, slipID)
	if err != nil {
		return Quote{}, fmt.Errorf("cashout: legs %s: %w", slipID, err)
	}
	return e.quote(ctx, e.store, slip, legs)
}

func (e *Engine) quote(ctx context.Context, q store.Queries, slip model.Slip, legs []model.Leg) (Quote, error) {
	out := Quote{SlipID: slip.ID, Stake: slip.Stake, PotentialWin: slip.Payout}
	unavailable := func(reason string) (Quote, error) {
		out.Reason = reason
		return out, nil
	}

	if slip.Status != model.SlipActive {
		return unavailable(ReasonNotActive)
	}
	if len(legs) == 0 {
		return unavailable(ReasonNoLegs)
	}

	fixtureIDs := make([]string, 0, len(legs))
	for _, l := range legs {
		if l.Result == model.ResultLoss {
			return unavailable(ReasonLegLost)
		}
		fixtureIDs = append(fixtureIDs, l.FixtureID)
	}
	fixtures, err := q.GetFixtures(ctx, fixtureIDs)
	if err != nil {
		return Quote{}, fmt.Errorf("cashout: fixtures: %w", err)
	}
	for _, f := range fixtures {
		if f.Status.Void() {
			return unavailable(ReasonFixtureVoid)
		}
	}

	// pernas fechadas usam a odd congelada; abertas, o preço ao vivo do mesmo outcome
	current := make([]decimal.Decimal, 0, len(legs))
	var open []odds.Selection
	for _, l := range legs {
		if l.Status == model.LegActive {
			open = append(open, odds.Selection{Key: l.Key(), OutcomeID: l.OutcomeID, Product: l.Product})
			continue
		}
		current = append(current, l.Odds)
	}
	prices, err := odds.NewCatalog(q).Resolve(ctx, open)
	if errors.Is(err, model.ErrStaleOdds) {
		return unavailable(ReasonOddsUnavailable)
	}
	if err != nil {
		return Quote{}, fmt.Errorf("cashout: prices: %w", err)
	}
	for _, p := range prices {
		current = append(current, p.Odd)
	}

	out.CurrentOdds = payout.CombinedOdds(current)
	value := e.rules.CashoutValue(slip.Stake, slip.CombinedOdds, out.CurrentOdds)
	if !value.IsPositive() {
		return unavailable(ReasonNoValue)
	}
	out.Available = true
	out.Value = value
	return out, nil
}

// Execute recota sob lock do bilhete e credita o valor líquido de imposto.
func (e *Engine) Execute(ctx context.Context, slipID, userID string) (model.Slip, error) {
	now := e.now().UTC()
	var (
		slip   model.Slip
		credit model.Transaction
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		slip, err = tx.LockSlip(ctx, slipID)
		if err != nil {
			return err
		}
		if slip.UserID != userID {
			return model.ErrForbidden
		}
		if slip.Status != model.SlipActive {
			return model.ErrSlipNotActive
		}
		legs, err := tx.ListLegs(ctx, slipID)
		if err != nil {
			return err
		}
		q, err := e.quote(ctx, tx, slip, legs)
		if err != nil {
			return err
		}
		if !q.Available {
			return fmt.Errorf("%w: %s", model.ErrCashoutUnavailable, q.Reason)
		}

		tax := e.rules.NetTax(q.Value, slip.Stake)
		net := q.Value.Sub(tax)
		value := q.Value
		slip.Status = model.SlipClosed
		slip.Result = model.ResultWin
		slip.CashoutValue = &value
		slip.CashoutAt = &now
		slip.SettledAt = &now
		slip.WinAmount = value
		slip.Bonus = decimal.Zero
		slip.Tax = tax
		slip.Payout = net
		slip.Paid = true

		if err := tx.CloseSlipLegs(ctx, slip.ID, model.LegResolution{
			Status: model.LegClosed, Result: model.ResultWin, VoidFactor: decimal.Zero, SettledBy: model.SettledByCashout,
		}, now); err != nil {
			return err
		}
		credit, err = ledger.Post(ctx, tx, ledger.Entry{
			UserID:    slip.UserID,
			Amount:    net,
			Category:  model.CategoryCashout,
			Reference: "cashout:" + uuid.NewString(),
		}, now)
		if err != nil {
			return err
		}
		return tx.UpdateSlip(ctx, slip)
	})
	if err != nil {
		return model.Slip{}, err
	}

	if err := e.pub.Publish(ctx, ledger.BalanceEvent(credit)); err != nil {
		e.log.Warn("balance update publish failed", zap.String("slip_id", slip.ID), zap.Error(err))
	}
	if err := e.pub.Publish(ctx, settlement.SlipEvent(slip, "cashout", &now)); err != nil {
		e.log.Warn("slip settled publish failed", zap.String("slip_id", slip.ID), zap.Error(err))
	}
	e.log.Info("slip cashed out",
		zap.String("slip_id", slip.ID), zap.String("user_id", slip.UserID),
		zap.String("value", slip.CashoutValue.StringFixed(2)), zap.String("payout", slip.Payout.StringFixed(2)))
	if e.OnExecuted != nil {
		e.OnExecuted()
	}
	return slip, nil
}
