// Package feed aplica os eventos do provedor ao catálogo de mercados e às
// pernas abertas, e encaminha o que precisa de liquidação para a fila.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/internal/shared/pubsub"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// JobQueue recebe trabalhos de liquidação (Kafka em produção).
type JobQueue interface {
	Enqueue(ctx context.Context, job events.SettlementJob) error
}

// FixtureCache é o cache da listagem de partidas do odds-service.
type FixtureCache interface {
	InvalidateFixtures(ctx context.Context) error
}

type Config struct {
	// TwoUpTournaments vazio desliga a regra.
	TwoUpTournaments []string
	TwoUpMarkets     []string
}

type Processor struct {
	log   *zap.Logger
	store store.Store
	queue JobQueue
	pub   pubsub.Publisher
	cache FixtureCache
	cfg   Config
	now   func() time.Time

	OnHandled func(msgType string) // métricas por tipo
	OnError   func(stage string)   // métricas por fase
}

func New(log *zap.Logger, st store.Store, queue JobQueue, pub pubsub.Publisher, cfg Config) *Processor {
	if len(cfg.TwoUpMarkets) == 0 {
		cfg.TwoUpMarkets = []string{"1"}
	}
	return &Processor{log: log, store: st, queue: queue, pub: pub, cfg: cfg, now: time.Now}
}

func (p *Processor) WithCache(c FixtureCache) *Processor {
	p.cache = c
	return p
}

func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// KafkaHandler adapta Handle ao consumer. Payload inválido vai direto para a DLQ.
func (p *Processor) KafkaHandler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var fm events.FeedMessage
		if err := json.Unmarshal(msg.Value, &fm); err != nil {
			p.stage("decode")
			return kafka.Permanent(fmt.Errorf("decode feed message: %w", err))
		}
		return p.Handle(ctx, fm)
	}
}

// Handle aplica uma mensagem. Partida ou mercado desconhecido é logado e ignorado;
// só falhas de persistência ou da fila voltam como erro (a mensagem é reprocessada).
func (p *Processor) Handle(ctx context.Context, msg events.FeedMessage) error {
	if msg.MatchID == "" {
		p.log.Warn("feed message without match id", zap.String("type", msg.Type))
		return nil
	}
	product := model.ProductLive
	if msg.Product != "" {
		product = model.Product(msg.Product)
	}
	if !product.Valid() {
		p.log.Warn("feed message with unknown product", zap.String("match_id", msg.MatchID), zap.String("product", msg.Product))
		return nil
	}

	var err error
	switch msg.Type {
	case events.FeedMatchStart:
		err = p.lifecycle(ctx, msg, model.MarketSuspended, model.MarketActive)
	case events.FeedMatchStop:
		err = p.lifecycle(ctx, msg, model.MarketActive, model.MarketSuspended)
	case events.FeedOddsChange:
		err = p.oddsChange(ctx, msg, product)
	case events.FeedMarketSettle:
		err = p.marketSettle(ctx, msg, product)
	case events.FeedCancelOutcome:
		err = p.cancelOutcome(ctx, msg, product)
	case events.FeedRollback:
		err = p.rollback(ctx, msg, product)
	default:
		p.log.Warn("unknown feed message type", zap.String("type", msg.Type), zap.String("match_id", msg.MatchID))
		return nil
	}
	if err != nil {
		p.stage(msg.Type)
		return fmt.Errorf("feed: %s %s: %w", msg.Type, msg.MatchID, err)
	}
	if p.OnHandled != nil {
		p.OnHandled(msg.Type)
	}
	return nil
}

// lifecycle liga/desliga os mercados Live da partida (match_start / match_stop).
func (p *Processor) lifecycle(ctx context.Context, msg events.FeedMessage, from, to model.MarketStatus) error {
	var (
		n      int64
		change *events.FixtureStatusChanged
	)
	err := p.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		change, err = p.applyFixture(ctx, tx, msg, false)
		if err != nil {
			return err
		}
		n, err = tx.SetMarketsStatus(ctx, msg.MatchID, model.ProductLive, from, to)
		return err
	})
	if err != nil {
		return err
	}
	p.log.Info("live markets switched",
		zap.String("match_id", msg.MatchID), zap.String("to", string(to)), zap.Int64("markets", n))
	p.fixtureChanged(ctx, change)
	return nil
}

func (p *Processor) oddsChange(ctx context.Context, msg events.FeedMessage, product model.Product) error {
	now := p.now().UTC()
	var (
		fixture  model.Fixture
		change   *events.FixtureStatusChanged
		snapshot []events.MarketSnapshot
	)
	err := p.store.InTx(ctx, func(tx store.Tx) error {
		snapshot = nil
		var err error
		change, err = p.applyFixture(ctx, tx, msg, true)
		if err != nil {
			return err
		}
		if fixture, err = tx.GetFixture(ctx, msg.MatchID); err != nil {
			return err
		}
		for _, fm := range msg.Markets {
			m, ok, err := p.priceMarket(ctx, tx, msg.MatchID, product, fm, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := tx.UpsertMarket(ctx, m); err != nil {
				return err
			}
			snapshot = append(snapshot, marketSnapshot(m))
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.fixtureChanged(ctx, change)
	if len(snapshot) > 0 {
		p.publish(ctx, events.Update{
			Type:  events.TypeOddsChanged,
			Topic: events.FixtureTopic(msg.MatchID),
			Payload: events.OddsChanged{
				FixtureID: msg.MatchID, Product: string(product), Markets: snapshot, Ts: now,
			},
		})
	}
	return p.twoUp(ctx, fixture)
}

// priceMarket mescla as odds recebidas no mercado. Mercado liquidado não volta a ser cotado.
func (p *Processor) priceMarket(ctx context.Context, tx store.Tx, fixtureID string, product model.Product, fm events.FeedMarket, now time.Time) (model.Market, bool, error) {
	key := model.MarketKey{FixtureID: fixtureID, MarketID: fm.MarketID, Specifier: fm.Specifier}
	m, err := tx.LockMarket(ctx, key, product)
	switch {
	case errors.Is(err, model.ErrNotFound):
		m = model.Market{MarketKey: key, Product: product, Status: model.MarketActive}
	case err != nil:
		return model.Market{}, false, err
	case m.Status == model.MarketSettled:
		p.log.Warn("odds change on settled market ignored",
			zap.String("match_id", fixtureID), zap.String("market_id", fm.MarketID), zap.String("specifier", fm.Specifier))
		return model.Market{}, false, nil
	}

	if fm.Status != "" {
		status := model.MarketStatus(fm.Status)
		switch status {
		case model.MarketActive, model.MarketSuspended, model.MarketInactive:
			m.Status = status
		default:
			p.log.Warn("unexpected market status in odds change",
				zap.String("match_id", fixtureID), zap.String("market_id", fm.MarketID), zap.String("status", fm.Status))
		}
	}
	if m.Outcomes == nil {
		m.Outcomes = map[string]model.Outcome{}
	}
	for _, o := range fm.Outcomes {
		odd, err := decimal.NewFromString(o.Odd)
		if err != nil {
			p.log.Warn("invalid odd", zap.String("match_id", fixtureID), zap.String("market_id", fm.MarketID),
				zap.String("code", o.Code), zap.String("odd", o.Odd))
			continue
		}
		m.Outcomes[o.Code] = model.Outcome{Code: o.Code, OutcomeID: o.OutcomeID, Odd: odd}
	}
	m.UpdatedAt = now
	return m, true, nil
}

func marketSnapshot(m model.Market) events.MarketSnapshot {
	odds := make(map[string]string, len(m.Outcomes))
	for code, o := range m.Outcomes {
		odds[code] = o.Odd.String()
	}
	return events.MarketSnapshot{MarketID: m.MarketID, Specifier: m.Specifier, Status: string(m.Status), Odds: odds}
}

// applyFixture grava status, placar e relógio da partida. Com create=true a partida
// é criada quando ainda não existe (odds_change é quem apresenta a partida).
func (p *Processor) applyFixture(ctx context.Context, tx store.Tx, msg events.FeedMessage, create bool) (*events.FixtureStatusChanged, error) {
	f, err := tx.GetFixture(ctx, msg.MatchID)
	if errors.Is(err, model.ErrNotFound) {
		if !create {
			p.log.Info("fixture not found", zap.String("match_id", msg.MatchID), zap.String("type", msg.Type))
			return nil, nil
		}
		f = model.Fixture{ID: msg.MatchID, Status: model.FixtureNotStarted}
	} else if err != nil {
		return nil, err
	}

	before := f.Status
	if msg.TournamentID != "" {
		f.TournamentID = msg.TournamentID
	}
	if msg.Status != "" {
		f.Status = model.FixtureStatus(msg.Status)
	}
	if msg.Score != nil {
		f.HomeScore, f.AwayScore = msg.Score.Home, msg.Score.Away
	}
	if msg.MatchTime != "" {
		f.MatchTime = msg.MatchTime
	}
	if msg.StartsAt != nil {
		f.StartsAt = msg.StartsAt.UTC()
	}
	f.UpdatedAt = p.now().UTC()
	if err := tx.UpsertFixture(ctx, f); err != nil {
		return nil, err
	}
	if f.Status == before {
		return nil, nil
	}
	return &events.FixtureStatusChanged{FixtureID: f.ID, From: string(before), To: string(f.Status), Ts: f.UpdatedAt}, nil
}

// fixtureChanged invalida a listagem em cache e avisa os clientes.
func (p *Processor) fixtureChanged(ctx context.Context, change *events.FixtureStatusChanged) {
	if change == nil {
		return
	}
	if p.cache != nil {
		if err := p.cache.InvalidateFixtures(ctx); err != nil {
			p.stage("cache")
			p.log.Warn("fixture cache invalidation failed", zap.String("match_id", change.FixtureID), zap.Error(err))
		}
	}
	p.publish(ctx, events.Update{
		Type:    events.TypeFixtureStatusChanged,
		Topic:   events.FixtureTopic(change.FixtureID),
		Payload: *change,
	})
}

func (p *Processor) marketSettle(ctx context.Context, msg events.FeedMessage, product model.Product) error {
	var jobs []events.SettlementJob
	err := p.store.InTx(ctx, func(tx store.Tx) error {
		jobs = nil
		for _, fm := range msg.Markets {
			key := model.MarketKey{FixtureID: msg.MatchID, MarketID: fm.MarketID, Specifier: fm.Specifier}
			m, err := tx.LockMarket(ctx, key, product)
			if errors.Is(err, model.ErrNotFound) {
				p.log.Warn("settlement for unknown market",
					zap.String("match_id", msg.MatchID), zap.String("market_id", fm.MarketID), zap.String("specifier", fm.Specifier))
				continue
			}
			if err != nil {
				return err
			}
			if m.Results == nil {
				m.Results = map[string]model.OutcomeResult{}
			}
			for _, o := range fm.Outcomes {
				r, ok := p.outcomeResult(msg.MatchID, fm, o)
				if ok {
					m.Results[o.Code] = r
				}
			}
			m.Status = model.MarketSettled
			m.UpdatedAt = p.now().UTC()
			if err := tx.UpsertMarket(ctx, m); err != nil {
				return err
			}
			jobs = append(jobs, events.SettlementJob{
				Kind:      events.JobSettleMarket,
				FixtureID: msg.MatchID,
				MarketID:  fm.MarketID,
				Specifier: fm.Specifier,
				Product:   string(product),
				Reason:    events.FeedMarketSettle,
				Ts:        m.UpdatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := p.queue.Enqueue(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) outcomeResult(matchID string, fm events.FeedMarket, o events.FeedOutcome) (model.OutcomeResult, bool) {
	status := model.OutcomeStatus(o.Status)
	switch status {
	case model.OutcomeWin, model.OutcomeLoss, model.OutcomeCanceled, model.OutcomeRefund:
	default:
		p.log.Warn("invalid outcome result", zap.String("match_id", matchID),
			zap.String("market_id", fm.MarketID), zap.String("code", o.Code), zap.String("status", o.Status))
		return model.OutcomeResult{}, false
	}
	vf := decimal.Zero
	if o.VoidFactor != "" {
		parsed, err := decimal.NewFromString(o.VoidFactor)
		if err != nil || parsed.IsNegative() || parsed.GreaterThan(decimal.NewFromInt(1)) {
			p.log.Warn("invalid void factor", zap.String("match_id", matchID),
				zap.String("market_id", fm.MarketID), zap.String("code", o.Code), zap.String("void_factor", o.VoidFactor))
			return model.OutcomeResult{}, false
		}
		vf = parsed
	}
	return model.OutcomeResult{Code: o.Code, OutcomeID: o.OutcomeID, Specifier: fm.Specifier, Status: status, VoidFactor: vf}, true
}

// cancelOutcome anula as pernas ainda abertas exatamente nos outcomes cancelados.
func (p *Processor) cancelOutcome(ctx context.Context, msg events.FeedMessage, product model.Product) error {
	now := p.now().UTC()
	var slipIDs []string
	err := p.store.InTx(ctx, func(tx store.Tx) error {
		slipIDs = nil
		for _, fm := range msg.Markets {
			key := model.MarketKey{FixtureID: msg.MatchID, MarketID: fm.MarketID, Specifier: fm.Specifier}
			m, err := tx.LockMarket(ctx, key, product)
			if errors.Is(err, model.ErrNotFound) {
				p.log.Warn("cancel for unknown market",
					zap.String("match_id", msg.MatchID), zap.String("market_id", fm.MarketID), zap.String("specifier", fm.Specifier))
				continue
			}
			if err != nil {
				return err
			}
			outcomeIDs := make([]string, 0, len(fm.Outcomes))
			if m.Results == nil {
				m.Results = map[string]model.OutcomeResult{}
			}
			for _, o := range fm.Outcomes {
				if o.OutcomeID == "" {
					continue
				}
				m.Results[o.Code] = model.OutcomeResult{
					Code: o.Code, OutcomeID: o.OutcomeID, Specifier: fm.Specifier,
					Status: model.OutcomeCanceled, VoidFactor: decimal.NewFromInt(1),
				}
				outcomeIDs = append(outcomeIDs, o.OutcomeID)
			}
			if len(outcomeIDs) == 0 {
				continue
			}
			m.UpdatedAt = now
			if err := tx.UpsertMarket(ctx, m); err != nil {
				return err
			}
			ids, err := closeLegs(ctx, tx, model.LegSelector{Key: key, OutcomeIDs: outcomeIDs}, model.LegResolution{
				Status: model.LegCancelled, Result: model.ResultVoid, VoidFactor: decimal.NewFromInt(1), SettledBy: model.SettledByCancel,
			}, now)
			if err != nil {
				return err
			}
			slipIDs = appendUnique(slipIDs, ids...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return p.enqueueSlips(ctx, msg.MatchID, slipIDs, events.FeedCancelOutcome)
}

// rollback reabre pernas de bilhetes ainda ativos e devolve o mercado a suspended.
// Bilhetes já fechados não são reabertos, só reportados.
func (p *Processor) rollback(ctx context.Context, msg events.FeedMessage, product model.Product) error {
	var reopened, skipped []string
	err := p.store.InTx(ctx, func(tx store.Tx) error {
		reopened, skipped = nil, nil
		for _, fm := range msg.Markets {
			key := model.MarketKey{FixtureID: msg.MatchID, MarketID: fm.MarketID, Specifier: fm.Specifier}
			m, err := tx.LockMarket(ctx, key, product)
			if errors.Is(err, model.ErrNotFound) {
				p.log.Warn("rollback for unknown market",
					zap.String("match_id", msg.MatchID), zap.String("market_id", fm.MarketID), zap.String("specifier", fm.Specifier))
				continue
			}
			if err != nil {
				return err
			}

			sel := model.LegSelector{Key: key}
			for _, o := range fm.Outcomes {
				if o.OutcomeID != "" {
					sel.OutcomeIDs = append(sel.OutcomeIDs, o.OutcomeID)
				}
			}
			r, s, err := tx.ReopenLegs(ctx, sel)
			if err != nil {
				return err
			}
			reopened = appendUnique(reopened, r...)
			skipped = appendUnique(skipped, s...)

			if len(fm.Outcomes) == 0 {
				m.Results = map[string]model.OutcomeResult{}
			}
			for _, o := range fm.Outcomes {
				delete(m.Results, o.Code)
			}
			m.Status = model.MarketSuspended
			m.UpdatedAt = p.now().UTC()
			if err := tx.UpsertMarket(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		p.log.Warn("rollback touched closed slips, not reopened",
			zap.String("match_id", msg.MatchID), zap.Strings("slip_ids", skipped))
	}
	p.log.Info("settlement rolled back", zap.String("match_id", msg.MatchID), zap.Int("slips", len(reopened)))
	return nil
}

// twoUp fecha como Win as pernas abertas no vencedor quando a vantagem chega a 2 gols.
func (p *Processor) twoUp(ctx context.Context, f model.Fixture) error {
	if !contains(p.cfg.TwoUpTournaments, f.TournamentID) {
		return nil
	}
	var leader string
	switch diff := f.HomeScore - f.AwayScore; {
	case diff >= 2:
		leader = "1"
	case diff <= -2:
		leader = "3"
	default:
		return nil
	}

	markets, err := p.store.ListMarketsByFixture(ctx, f.ID)
	if err != nil {
		return err
	}
	now := p.now().UTC()
	var slipIDs []string
	err = p.store.InTx(ctx, func(tx store.Tx) error {
		slipIDs = nil
		for _, m := range markets {
			if !contains(p.cfg.TwoUpMarkets, m.MarketID) {
				continue
			}
			o, ok := m.Outcomes[leader]
			if !ok || o.OutcomeID == "" {
				continue
			}
			ids, err := closeLegs(ctx, tx, model.LegSelector{Key: m.MarketKey, OutcomeIDs: []string{o.OutcomeID}}, model.LegResolution{
				Status: model.LegClosed, Result: model.ResultWin, VoidFactor: decimal.Zero, SettledBy: model.SettledByTwoUp,
			}, now)
			if err != nil {
				return err
			}
			slipIDs = appendUnique(slipIDs, ids...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(slipIDs) > 0 {
		p.log.Info("two-up early win", zap.String("match_id", f.ID), zap.String("leader", leader), zap.Int("slips", len(slipIDs)))
	}
	return p.enqueueSlips(ctx, f.ID, slipIDs, "two_up")
}

// closeLegs fecha as pernas ativas da seleção e devolve os bilhetes a agregar:
// os afetados agora e os que continuam ativos com perna já fechada ali, caso
// uma entrega anterior tenha commitado as pernas sem conseguir enfileirar.
func closeLegs(ctx context.Context, tx store.Tx, sel model.LegSelector, res model.LegResolution, now time.Time) ([]string, error) {
	closed, err := tx.CloseLegs(ctx, sel, res, now)
	if err != nil {
		return nil, err
	}
	pending, err := tx.SlipsAwaitingSettlement(ctx, sel)
	if err != nil {
		return nil, err
	}
	return appendUnique(closed, pending...), nil
}

func (p *Processor) enqueueSlips(ctx context.Context, fixtureID string, slipIDs []string, reason string) error {
	if len(slipIDs) == 0 {
		return nil
	}
	return p.queue.Enqueue(ctx, events.SettlementJob{
		Kind:      events.JobSettleSlips,
		FixtureID: fixtureID,
		SlipIDs:   slipIDs,
		Reason:    reason,
		Ts:        p.now().UTC(),
	})
}

func (p *Processor) publish(ctx context.Context, u events.Update) {
	if err := p.pub.Publish(ctx, u); err != nil {
		p.stage("publish")
		p.log.Warn("update publish failed", zap.String("type", u.Type), zap.String("topic", u.Topic), zap.Error(err))
	}
}

func (p *Processor) stage(name string) {
	if p.OnError != nil {
		p.OnError(name)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func appendUnique(ids []string, more ...string) []string {
	for _, id := range more {
		dup := false
		for _, existing := range ids {
			if existing == id {
				dup = true
				break
			}
		}
		if !dup {
			ids = append(ids, id)
		}
	}
	return ids
}
