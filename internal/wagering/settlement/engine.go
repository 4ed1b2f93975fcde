// Package settlement fecha pernas de mercados liquidados e agrega bilhetes
// em Win, Loss ou Void, creditando o ledger.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/sports-wager-engine/internal/shared/pubsub"
	"github.com/radieske/sports-wager-engine/internal/wagering/ledger"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/payout"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

type Config struct {
	Rules          payout.Rules
	LoyaltyEnabled bool
	PointsPerSlip  int64
	// Parallelism limita quantos bilhetes são agregados ao mesmo tempo.
	Parallelism int
}

func DefaultConfig() Config {
	return Config{Rules: payout.DefaultRules(), Parallelism: 8}
}

// Notifier recebe o bilhete liquidado (SMS/e-mail ficam fora daqui).
type Notifier interface {
	SlipSettled(ctx context.Context, slip model.Slip)
}

// LogNotifier só registra no log.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) SlipSettled(_ context.Context, slip model.Slip) {
	n.Log.Info("notify slip settled",
		zap.String("user_id", slip.UserID), zap.String("slip_id", slip.ID),
		zap.String("result", string(slip.Result)), zap.String("payout", slip.Payout.StringFixed(2)))
}

type Engine struct {
	log      *zap.Logger
	store    store.Store
	pub      pubsub.Publisher
	notifier Notifier
	cfg      Config
	now      func() time.Time

	OnLegsClosed func(n int)         // métricas
	OnSettled    func(result string) // métricas por resultado
	OnError      func(stage string)  // métricas por fase
}

func New(log *zap.Logger, st store.Store, pub pubsub.Publisher, notifier Notifier, cfg Config) *Engine {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Engine{log: log, store: st, pub: pub, notifier: notifier, cfg: cfg, now: time.Now}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// HandleJob executa um SettlementJob recebido da fila.
func (e *Engine) HandleJob(ctx context.Context, job events.SettlementJob) error {
	switch job.Kind {
	case events.JobSettleMarket:
		key := model.MarketKey{FixtureID: job.FixtureID, MarketID: job.MarketID, Specifier: job.Specifier}
		product := model.Product(job.Product)
		if product == "" {
			product = model.ProductLive
		}
		m, err := e.store.GetMarket(ctx, key, product)
		if errors.Is(err, model.ErrNotFound) {
			e.log.Warn("settlement job for unknown market", zap.String("fixture_id", key.FixtureID),
				zap.String("market_id", key.MarketID), zap.String("specifier", key.Specifier))
			return nil
		}
		if err != nil {
			return fmt.Errorf("settlement: load market: %w", err)
		}
		if m.Status != model.MarketSettled {
			e.log.Info("market no longer settled, skipping job",
				zap.String("fixture_id", key.FixtureID), zap.String("market_id", key.MarketID), zap.String("status", string(m.Status)))
			return nil
		}
		_, err = e.SettleMarket(ctx, key, m.Results)
		return err
	case events.JobSettleSlips:
		return e.SettleSlips(ctx, job.SlipIDs)
	default:
		e.log.Warn("unknown settlement job", zap.String("kind", job.Kind))
		return nil
	}
}

// SettleMarket fecha, numa única transação, todas as pernas ativas do mercado
// (de qualquer produto) e depois agrega os bilhetes afetados.
//
// Ordem: void (C, R ou void_factor > 0), depois W, e todo o resto vira Loss.
func (e *Engine) SettleMarket(ctx context.Context, key model.MarketKey, results map[string]model.OutcomeResult) ([]string, error) {
	now := e.now().UTC()
	var voids, wins []model.OutcomeResult
	for _, code := range sortedCodes(results) {
		r := results[code]
		if r.OutcomeID == "" {
			e.log.Warn("result without outcome id", zap.String("market_id", key.MarketID), zap.String("code", code))
			continue
		}
		switch {
		case r.Voids():
			voids = append(voids, r)
		case r.Status == model.OutcomeWin:
			wins = append(wins, r)
		}
	}

	var affected []string
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		affected = nil
		add := func(ids []string) {
			for _, id := range ids {
				affected = appendUnique(affected, id)
			}
		}
		for _, r := range voids {
			ids, err := tx.CloseLegs(ctx, model.LegSelector{Key: key, OutcomeIDs: []string{r.OutcomeID}}, model.LegResolution{
				Status: model.LegClosed, Result: model.ResultVoid, VoidFactor: voidFactor(r), SettledBy: model.SettledByMarket,
			}, now)
			if err != nil {
				return err
			}
			add(ids)
		}
		for _, r := range wins {
			ids, err := tx.CloseLegs(ctx, model.LegSelector{Key: key, OutcomeIDs: []string{r.OutcomeID}}, model.LegResolution{
				Status: model.LegClosed, Result: model.ResultWin, VoidFactor: r.VoidFactor, SettledBy: model.SettledByMarket,
			}, now)
			if err != nil {
				return err
			}
			add(ids)
		}
		// sem resultado = perdida
		ids, err := tx.CloseLegs(ctx, model.LegSelector{Key: key}, model.LegResolution{
			Status: model.LegClosed, Result: model.ResultLoss, VoidFactor: decimal.Zero, SettledBy: model.SettledByMarket,
		}, now)
		if err != nil {
			return err
		}
		add(ids)
		return nil
	})
	if err != nil {
		e.stage("close_legs")
		return nil, fmt.Errorf("settlement: close legs %s/%s/%s: %w", key.FixtureID, key.MarketID, key.Specifier, err)
	}
	if e.OnLegsClosed != nil {
		e.OnLegsClosed(len(affected))
	}
	e.log.Info("market legs closed",
		zap.String("fixture_id", key.FixtureID), zap.String("market_id", key.MarketID),
		zap.String("specifier", key.Specifier), zap.Int("slips", len(affected)))

	// numa reentrega as pernas já estão fechadas e CloseLegs não devolve nada;
	// os bilhetes que ficaram ativos precisam ser agregados de novo
	pending, err := e.store.SlipsAwaitingSettlement(ctx, model.LegSelector{Key: key})
	if err != nil {
		e.stage("close_legs")
		return affected, fmt.Errorf("settlement: pending slips %s/%s/%s: %w", key.FixtureID, key.MarketID, key.Specifier, err)
	}
	for _, id := range pending {
		affected = appendUnique(affected, id)
	}
	return affected, e.SettleSlips(ctx, affected)
}

// voidFactor: C/R sem fator explícito anulam a perna inteira.
func voidFactor(r model.OutcomeResult) decimal.Decimal {
	if r.VoidFactor.IsPositive() {
		return r.VoidFactor
	}
	return decimal.NewFromInt(1)
}

// SettleSlips agrega os bilhetes em paralelo, cada um na sua transação.
// A falha de um bilhete não cancela os demais; o primeiro erro é devolvido
// para que a mensagem seja reentregue.
func (e *Engine) SettleSlips(ctx context.Context, slipIDs []string) error {
	var g errgroup.Group
	g.SetLimit(max(e.cfg.Parallelism, 1))
	for _, id := range slipIDs {
		id := id
		g.Go(func() error {
			_, err := e.SettleSlip(ctx, id)
			return err
		})
	}
	return g.Wait()
}

// SettleSlip agrega um bilhete quando todas as pernas estão terminais.
// Retorna false sem erro quando o bilhete já estava fechado ou ainda tem perna aberta.
func (e *Engine) SettleSlip(ctx context.Context, slipID string) (bool, error) {
	now := e.now().UTC()
	var (
		settled model.Slip
		credit  *model.Transaction
		done    bool
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		done, credit = false, nil
		slip, err := tx.LockSlip(ctx, slipID)
		if err != nil {
			return err
		}
		if slip.Status == model.SlipClosed {
			return nil
		}
		legs, err := tx.ListLegs(ctx, slipID)
		if err != nil {
			return err
		}
		if len(legs) == 0 || !allTerminal(legs) {
			return nil
		}

		settled, err = e.aggregate(ctx, tx, slip, legs, now)
		if err != nil {
			return err
		}
		if settled.Payout.IsPositive() {
			category := model.CategoryWin
			if settled.Result == model.ResultVoid {
				category = model.CategoryRefund
			}
			t, err := ledger.Post(ctx, tx, ledger.Entry{
				UserID:    slip.UserID,
				Amount:    settled.Payout,
				Category:  category,
				Reference: "settle:" + slip.ID,
			}, now)
			if err != nil {
				return err
			}
			credit = &t
		}
		if err := tx.UpdateSlip(ctx, settled); err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil {
		e.stage("aggregate")
		return false, fmt.Errorf("settlement: slip %s: %w", slipID, err)
	}
	if !done {
		return false, nil
	}

	e.afterSettle(ctx, settled, credit)
	return true, nil
}

func allTerminal(legs []model.Leg) bool {
	for _, l := range legs {
		if !l.Status.Terminal() || l.Result == model.ResultPending {
			return false
		}
	}
	return true
}

// aggregate aplica as regras de resultado:
// qualquer Loss perde; tudo Void devolve o stake; Win ou Win+Void paga pelas
// pernas vencedoras com bônus por faixa e imposto sobre o lucro.
func (e *Engine) aggregate(ctx context.Context, q store.Queries, slip model.Slip, legs []model.Leg, now time.Time) (model.Slip, error) {
	var (
		winOdds []decimal.Decimal
		loss    bool
	)
	for _, l := range legs {
		switch l.Result {
		case model.ResultLoss:
			loss = true
		case model.ResultWin:
			winOdds = append(winOdds, l.Odds)
		case model.ResultVoid, model.ResultPending:
		}
	}

	slip.Status = model.SlipClosed
	slip.SettledAt = &now
	switch {
	case loss:
		slip.Result = model.ResultLoss
		slip.WinAmount, slip.Bonus, slip.Tax, slip.Payout = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
		slip.Paid = false
	case len(winOdds) == 0:
		slip.Result = model.ResultVoid
		slip.CombinedOdds = decimal.NewFromInt(1)
		slip.WinAmount, slip.Bonus, slip.Tax = decimal.Zero, decimal.Zero, decimal.Zero
		slip.Payout = slip.Stake
		slip.Paid = true
	default:
		multiplier, err := store.BonusMultiplier(ctx, q, len(winOdds))
		if err != nil {
			return model.Slip{}, err
		}
		b := e.cfg.Rules.Settle(slip.Stake, winOdds, multiplier)
		slip.Result = model.ResultWin
		slip.CombinedOdds = b.CombinedOdds
		slip.WinAmount, slip.Bonus, slip.Tax, slip.Payout = b.WinAmount, b.Bonus, b.Tax, b.Payout
		slip.Paid = true
	}
	return slip, nil
}

func (e *Engine) afterSettle(ctx context.Context, slip model.Slip, credit *model.Transaction) {
	e.log.Info("slip settled",
		zap.String("slip_id", slip.ID), zap.String("user_id", slip.UserID),
		zap.String("result", string(slip.Result)), zap.String("payout", slip.Payout.StringFixed(2)))

	if err := e.pub.Publish(ctx, SlipEvent(slip, "settlement", slip.SettledAt)); err != nil {
		e.log.Warn("slip settled publish failed", zap.String("slip_id", slip.ID), zap.Error(err))
	}
	if credit != nil {
		if err := e.pub.Publish(ctx, ledger.BalanceEvent(*credit)); err != nil {
			e.log.Warn("balance update publish failed", zap.String("slip_id", slip.ID), zap.Error(err))
		}
	}
	e.notifier.SlipSettled(ctx, slip)
	e.accruePoints(ctx, slip)
	if e.OnSettled != nil {
		e.OnSettled(string(slip.Result))
	}
}

// accruePoints roda fora da transação de liquidação; falhas só vão para o log.
func (e *Engine) accruePoints(ctx context.Context, slip model.Slip) {
	if !e.cfg.LoyaltyEnabled || slip.Result == model.ResultVoid {
		return
	}
	points := payout.LoyaltyPoints(slip.Stake, e.cfg.PointsPerSlip)
	if points == 0 {
		return
	}
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertPointTransaction(ctx, model.PointTransaction{
			ID:        uuid.NewString(),
			UserID:    slip.UserID,
			SlipID:    slip.ID,
			Points:    points,
			CreatedAt: e.now().UTC(),
		})
	})
	if err != nil && !errors.Is(err, model.ErrDuplicate) {
		e.stage("points")
		e.log.Warn("loyalty points failed", zap.String("slip_id", slip.ID), zap.Error(err))
	}
}

// SlipEvent monta o update de bilhete fechado.
func SlipEvent(slip model.Slip, source string, at *time.Time) events.Update {
	ts := time.Now().UTC()
	if at != nil {
		ts = *at
	}
	return events.Update{
		Type:  events.TypeSlipSettled,
		Topic: events.UserTopic(slip.UserID),
		Payload: events.SlipSettled{
			SlipID: slip.ID,
			UserID: slip.UserID,
			Result: string(slip.Result),
			Payout: slip.Payout.StringFixed(2),
			Tax:    slip.Tax.StringFixed(2),
			Source: source,
			Ts:     ts,
		},
	}
}

func (e *Engine) stage(name string) {
	if e.OnError != nil {
		e.OnError(name)
	}
}

func sortedCodes(results map[string]model.OutcomeResult) []string {
	codes := make([]string, 0, len(results))
	for c := range results {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
