// Package store define o contrato de persistência do motor de apostas.
// Implementações: postgres (produção) e memory (testes e simulações locais).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

// Queries são as leituras disponíveis fora e dentro de uma transação.
// Métodos que buscam um único registro retornam model.ErrNotFound quando ausente.
type Queries interface {
	// FindMarkets busca em lote os mercados das chaves informadas, de ambos os produtos.
	FindMarkets(ctx context.Context, keys []model.MarketKey) ([]model.Market, error)
	GetMarket(ctx context.Context, key model.MarketKey, product model.Product) (model.Market, error)
	ListMarketsByFixture(ctx context.Context, fixtureID string) ([]model.Market, error)

	GetFixture(ctx context.Context, id string) (model.Fixture, error)
	GetFixtures(ctx context.Context, ids []string) (map[string]model.Fixture, error)
	ListFixtures(ctx context.Context, filter model.FixtureFilter) ([]model.Fixture, error)

	GetSlip(ctx context.Context, id string) (model.Slip, error)
	ListLegs(ctx context.Context, slipID string) ([]model.Leg, error)
	// SlipsAwaitingSettlement lista bilhetes ainda ativos que têm alguma perna
	// já fechada na seleção. Cobre reentregas depois de uma agregação que falhou.
	SlipsAwaitingSettlement(ctx context.Context, sel model.LegSelector) ([]string, error)

	GetAccount(ctx context.Context, userID string) (model.Account, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)

	ActiveBonus(ctx context.Context, userID string, now time.Time) (model.BonusCredit, error)
	ActiveBonusBand(ctx context.Context, legCount int) (model.BonusBand, error)

	// WagerTotals soma stakes e payouts de bilhetes ganhos e fechados criados desde since.
	WagerTotals(ctx context.Context, userID string, since time.Time) (model.WagerTotals, error)
	// OpenExposure soma o payout dos bilhetes ativos criados desde since.
	OpenExposure(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error)

	LedgerDiscrepancies(ctx context.Context) ([]model.LedgerDiscrepancy, error)
}

// Tx é uma unidade atômica. Tudo que for escrito é descartado se a função
// passada a Store.InTx retornar erro.
type Tx interface {
	Queries

	// LockAccount bloqueia (e cria, se preciso) a conta do usuário.
	LockAccount(ctx context.Context, userID string) (model.Account, error)
	UpdateBalance(ctx context.Context, userID string, balance decimal.Decimal) error
	InsertTransaction(ctx context.Context, t model.Transaction) error
	TransactionByReference(ctx context.Context, reference string) (model.Transaction, error)

	LockActiveBonus(ctx context.Context, userID string, now time.Time) (model.BonusCredit, error)
	RedeemBonus(ctx context.Context, bonusID string) error

	InsertSlip(ctx context.Context, s model.Slip) error
	InsertLegs(ctx context.Context, legs []model.Leg) error
	LockSlip(ctx context.Context, id string) (model.Slip, error)
	UpdateSlip(ctx context.Context, s model.Slip) error

	// CloseLegs aplica res às pernas ativas selecionadas e retorna os bilhetes afetados.
	CloseLegs(ctx context.Context, sel model.LegSelector, res model.LegResolution, at time.Time) ([]string, error)
	// CloseSlipLegs aplica res a todas as pernas do bilhete.
	CloseSlipLegs(ctx context.Context, slipID string, res model.LegResolution, at time.Time) error
	// ReopenLegs reativa pernas fechadas cujo bilhete ainda está ativo. Retorna os
	// bilhetes reabertos e os bilhetes já fechados que foram ignorados.
	ReopenLegs(ctx context.Context, sel model.LegSelector) (reopened, skipped []string, err error)

	UpsertMarket(ctx context.Context, m model.Market) error
	LockMarket(ctx context.Context, key model.MarketKey, product model.Product) (model.Market, error)
	// SetMarketsStatus move os mercados da partida/produto de from para to.
	SetMarketsStatus(ctx context.Context, fixtureID string, product model.Product, from, to model.MarketStatus) (int64, error)
	UpsertFixture(ctx context.Context, f model.Fixture) error

	InsertRejection(ctx context.Context, r model.Rejection) error
	InsertPointTransaction(ctx context.Context, p model.PointTransaction) error
}

// Store é o ponto de entrada da persistência.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// BonusMultiplier retorna o percentual da faixa de bônus ativa para legCount
// pernas, ou zero quando não há faixa.
func BonusMultiplier(ctx context.Context, q Queries, legCount int) (decimal.Decimal, error) {
	band, err := q.ActiveBonusBand(ctx, legCount)
	if errors.Is(err, model.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("bonus band: %w", err)
	}
	return band.Multiplier, nil
}
