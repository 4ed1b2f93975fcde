// Package wagertest tem construtores de cenário compartilhados pelos testes do motor.
package wagertest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/radieske/sports-wager-engine/internal/wagering/ledger"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
)

// Now é o relógio fixo dos testes.
var Now = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func Clock() time.Time { return Now }

func Dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func Outcome(code, outcomeID, odd string) model.Outcome {
	return model.Outcome{Code: code, OutcomeID: outcomeID, Odd: Dec(odd)}
}

func Key(fixtureID, marketID, specifier string) model.MarketKey {
	return model.MarketKey{FixtureID: fixtureID, MarketID: marketID, Specifier: specifier}
}

// Market monta um mercado com os outcomes indexados pelo code.
func Market(key model.MarketKey, product model.Product, status model.MarketStatus, outcomes ...model.Outcome) model.Market {
	m := model.Market{
		MarketKey: key,
		Product:   product,
		Status:    status,
		Outcomes:  map[string]model.Outcome{},
		Results:   map[string]model.OutcomeResult{},
	}
	for _, o := range outcomes {
		m.Outcomes[o.Code] = o
	}
	return m
}

// Seed grava mercados e partidas numa transação.
func Seed(t testing.TB, st store.Store, fixtures []model.Fixture, markets ...model.Market) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		for _, f := range fixtures {
			if err := tx.UpsertFixture(ctx, f); err != nil {
				return err
			}
		}
		for _, m := range markets {
			if err := tx.UpsertMarket(ctx, m); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Fund deposita amount na conta do usuário.
func Fund(t testing.TB, st store.Store, userID, amount string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		_, err := ledger.Post(ctx, tx, ledger.Entry{UserID: userID, Amount: Dec(amount), Category: model.CategoryDeposit}, Now)
		return err
	}))
}

// Balance retorna o saldo atual (zero se a conta não existe).
func Balance(t testing.TB, st store.Store, userID string) decimal.Decimal {
	t.Helper()
	acc, err := st.GetAccount(context.Background(), userID)
	if err != nil {
		return decimal.Zero
	}
	return acc.Balance
}

// Fixture cria uma partida não iniciada.
func Fixture(id, tournamentID string) model.Fixture {
	return model.Fixture{ID: id, TournamentID: tournamentID, Status: model.FixtureNotStarted, StartsAt: Now.Add(time.Hour)}
}
