package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketKey identifica um mercado: partida, identificador do mercado e specifier
// (ex.: "total=2.5"). Specifier vazio quando o mercado não tem qualificador.
type MarketKey struct {
	FixtureID string `json:"fixture_id"`
	MarketID  string `json:"market_id"`
	Specifier string `json:"specifier,omitempty"`
}

// Outcome é um resultado cotado de um mercado.
type Outcome struct {
	Code      string          `json:"code"`
	OutcomeID string          `json:"outcome_id"`
	Odd       decimal.Decimal `json:"odd"`
}

// OutcomeResult é o resultado liquidado de um outcome.
type OutcomeResult struct {
	Code       string          `json:"code"`
	OutcomeID  string          `json:"outcome_id"`
	Specifier  string          `json:"specifier,omitempty"`
	Status     OutcomeStatus   `json:"status"`
	VoidFactor decimal.Decimal `json:"void_factor"`
}

// Voids informa se o resultado anula a perna (cancelado, reembolso ou void factor > 0).
func (r OutcomeResult) Voids() bool {
	return r.Status == OutcomeCanceled || r.Status == OutcomeRefund || r.VoidFactor.IsPositive()
}

// Market é um mercado do catálogo de odds, por produto.
type Market struct {
	MarketKey
	Product   Product
	Status    MarketStatus
	Outcomes  map[string]Outcome
	Results   map[string]OutcomeResult
	UpdatedAt time.Time
}

// OutcomeByID procura o outcome cotado com o outcome_id informado.
func (m Market) OutcomeByID(outcomeID string) (Outcome, bool) {
	for _, o := range m.Outcomes {
		if o.OutcomeID == outcomeID {
			return o, true
		}
	}
	return Outcome{}, false
}

// Fixture é o estado vivo de uma partida mantido pelo feed.
type Fixture struct {
	ID           string
	TournamentID string
	Status       FixtureStatus
	HomeScore    int
	AwayScore    int
	MatchTime    string
	StartsAt     time.Time
	UpdatedAt    time.Time
}

// FixtureFilter é o formato de consulta da listagem de partidas.
type FixtureFilter struct {
	Product      Product
	TournamentID string
	From         time.Time
	To           time.Time
}
