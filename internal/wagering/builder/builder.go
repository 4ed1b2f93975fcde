// Package builder precifica, valida e grava bilhetes de forma atômica.
package builder

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
	"github.com/radieske/sports-wager-engine/internal/wagering/risk"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
)

// LegRequest é uma seleção pedida pelo cliente.
type LegRequest struct {
	FixtureID string
	MarketID  string
	Specifier string
	OutcomeID string
	Product   model.Product
}

type PlaceRequest struct {
	UserID string
	Stake  decimal.Decimal
	Bonus  bool
	Legs   []LegRequest
}

// StakeRangeError carrega os limites para a mensagem ao usuário.
type StakeRangeError struct {
	Min, Max decimal.Decimal
}

func (e *StakeRangeError) Error() string {
	return fmt.Sprintf("Amount should be between %s and %s", e.Min.String(), e.Max.String())
}

func (e *StakeRangeError) Unwrap() error { return model.ErrStakeOutOfRange }

// Validator é o contrato do motor de risco.
type Validator interface {
	Validate(ctx context.Context, c risk.Candidate) error
}

type Config struct {
	MinStake decimal.Decimal
	MaxStake decimal.Decimal
	Rules    payout.Rules
}

func DefaultConfig() Config {
	return Config{
		MinStake: decimal.NewFromInt(1),
		MaxStake: decimal.NewFromInt(4_000_000),
		Rules:    payout.DefaultRules(),
	}
}

type Builder struct {
	log     *zap.Logger
	store   store.Store
	catalog *odds.Catalog
	risk    Validator
	pub     pubsub.Publisher
	cfg     Config
	now     func() time.Time

	OnPlaced   func()              // métricas
	OnRejected func(reason string) // métricas por motivo
}

func New(log *zap.Logger, st store.Store, catalog *odds.Catalog, rv Validator, pub pubsub.Publisher, cfg Config) *Builder {
	return &Builder{log: log, store: st, catalog: catalog, risk: rv, pub: pub, cfg: cfg, now: time.Now}
}

func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Place cria o bilhete ou falha sem efeitos colaterais.
func (b *Builder) Place(ctx context.Context, req PlaceRequest) (model.Slip, error) {
	slip, err := b.place(ctx, req)
	if err != nil {
		b.rejected(err)
		return model.Slip{}, err
	}
	if b.OnPlaced != nil {
		b.OnPlaced()
	}
	return slip, nil
}

func (b *Builder) place(ctx context.Context, req PlaceRequest) (model.Slip, error) {
	if err := validateLegs(req.Legs); err != nil {
		return model.Slip{}, err
	}
	if req.Stake.LessThan(b.cfg.MinStake) || req.Stake.GreaterThan(b.cfg.MaxStake) {
		return model.Slip{}, &StakeRangeError{Min: b.cfg.MinStake, Max: b.cfg.MaxStake}
	}
	now := b.now().UTC()
	if err := b.precheckFunds(ctx, req, now); err != nil {
		return model.Slip{}, err
	}

	sels := make([]odds.Selection, len(req.Legs))
	for i, l := range req.Legs {
		sels[i] = odds.Selection{
			Key:       model.MarketKey{FixtureID: l.FixtureID, MarketID: l.MarketID, Specifier: l.Specifier},
			OutcomeID: l.OutcomeID,
			Product:   l.Product,
		}
	}
	prices, err := b.catalog.Resolve(ctx, sels)
	if err != nil {
		return model.Slip{}, err
	}

	multiplier, err := store.BonusMultiplier(ctx, b.store, len(prices))
	if err != nil {
		return model.Slip{}, err
	}
	legOdds := make([]decimal.Decimal, len(prices))
	for i, p := range prices {
		legOdds[i] = p.Odd
	}
	est := b.cfg.Rules.Estimate(req.Stake, legOdds, multiplier)

	if err := b.risk.Validate(ctx, risk.Candidate{UserID: req.UserID, Stake: req.Stake, Legs: prices}); err != nil {
		return model.Slip{}, err
	}

	slip := model.Slip{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		Stake:        payout.Money(req.Stake),
		LegCount:     len(prices),
		CombinedOdds: est.CombinedOdds,
		WinAmount:    est.WinAmount,
		Bonus:        est.Bonus,
		Tax:          est.Tax,
		Payout:       est.Payout,
		Status:       model.SlipActive,
		Result:       model.ResultPending,
		BonusFunded:  req.Bonus,
		CreatedAt:    now,
	}
	legs := make([]model.Leg, len(prices))
	for i, p := range prices {
		legs[i] = model.Leg{
			ID:          uuid.NewString(),
			SlipID:      slip.ID,
			UserID:      req.UserID,
			FixtureID:   p.Key.FixtureID,
			MarketID:    p.Key.MarketID,
			Specifier:   p.Key.Specifier,
			OutcomeID:   p.OutcomeID,
			Description: p.Code,
			Odds:        p.Odd,
			Product:     p.Product,
			Status:      model.LegActive,
			Result:      model.ResultPending,
			VoidFactor:  decimal.Zero,
			CreatedAt:   now,
		}
	}

	var debit *model.Transaction
	err = b.store.InTx(ctx, func(tx store.Tx) error {
		if req.Bonus {
			if err := redeemBonus(ctx, tx, req, now); err != nil {
				return err
			}
		} else {
			t, err := ledger.Post(ctx, tx, ledger.Entry{
				UserID:    req.UserID,
				Amount:    slip.Stake,
				Category:  model.CategoryBet,
				Reference: "bet:" + slip.ID,
			}, now)
			if err != nil {
				return err
			}
			debit = &t
		}
		if err := tx.InsertSlip(ctx, slip); err != nil {
			return err
		}
		return tx.InsertLegs(ctx, legs)
	})
	if err != nil {
		return model.Slip{}, err
	}

	if debit != nil {
		if err := b.pub.Publish(ctx, ledger.BalanceEvent(*debit)); err != nil {
			b.log.Warn("balance update publish failed", zap.String("slip_id", slip.ID), zap.Error(err))
		}
	}
	b.log.Info("slip placed",
		zap.String("slip_id", slip.ID), zap.String("user_id", slip.UserID),
		zap.String("stake", slip.Stake.String()), zap.Int("legs", slip.LegCount), zap.Bool("bonus", slip.BonusFunded))
	return slip, nil
}

func validateLegs(legs []LegRequest) error {
	if len(legs) == 0 {
		return fmt.Errorf("%w: no legs", model.ErrInvalidLeg)
	}
	for i, l := range legs {
		if l.FixtureID == "" || l.MarketID == "" || l.OutcomeID == "" {
			return fmt.Errorf("%w: leg %d incomplete", model.ErrInvalidLeg, i)
		}
	}
	return nil
}

// precheckFunds recusa cedo; a checagem definitiva roda sob lock dentro da transação.
func (b *Builder) precheckFunds(ctx context.Context, req PlaceRequest, now time.Time) error {
	if req.Bonus {
		bonus, err := b.store.ActiveBonus(ctx, req.UserID, now)
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrNoActiveBonus
		}
		if err != nil {
			return fmt.Errorf("builder: active bonus: %w", err)
		}
		if req.Stake.GreaterThan(bonus.Amount) {
			return model.ErrInsufficientBonus
		}
		return nil
	}
	acc, err := b.store.GetAccount(ctx, req.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return model.ErrInsufficientBalance
	}
	if err != nil {
		return fmt.Errorf("builder: account: %w", err)
	}
	if req.Stake.GreaterThan(acc.Balance) {
		return model.ErrInsufficientBalance
	}
	return nil
}

func redeemBonus(ctx context.Context, tx store.Tx, req PlaceRequest, now time.Time) error {
	bonus, err := tx.LockActiveBonus(ctx, req.UserID, now)
	if errors.Is(err, model.ErrNotFound) {
		return model.ErrNoActiveBonus
	}
	if err != nil {
		return fmt.Errorf("builder: lock bonus: %w", err)
	}
	if req.Stake.GreaterThan(bonus.Amount) {
		return model.ErrInsufficientBonus
	}
	return tx.RedeemBonus(ctx, bonus.ID)
}

func (b *Builder) rejected(err error) {
	reason := "error"
	var denial *risk.Denial
	var rangeErr *StakeRangeError
	switch {
	case errors.As(err, &denial):
		reason = denial.Code
	case errors.As(err, &rangeErr):
		reason = "stake_range"
	case errors.Is(err, model.ErrInsufficientBalance):
		reason = "insufficient_balance"
	case errors.Is(err, model.ErrStaleOdds):
		reason = "stale_odds"
	case errors.Is(err, model.ErrNoActiveBonus), errors.Is(err, model.ErrInsufficientBonus):
		reason = "bonus"
	case errors.Is(err, model.ErrInvalidLeg):
		reason = "invalid_leg"
	}
	if b.OnRejected != nil {
		b.OnRejected(reason)
	}
	if reason == "error" {
		b.log.Error("slip placement failed", zap.Error(err))
	}
}
