package dto

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

// Fixture representa uma partida na listagem
type Fixture struct {
	ID           string    `json:"id"`
	TournamentID string    `json:"tournament_id"`
	Status       string    `json:"status"`
	HomeScore    int       `json:"home_score"`
	AwayScore    int       `json:"away_score"`
	MatchTime    string    `json:"match_time,omitempty"`
	StartsAt     time.Time `json:"starts_at"`
}

// Market representa um mercado de aposta com as odds correntes
type Market struct {
	MarketID  string    `json:"market_identifier"`
	Specifier string    `json:"specifier,omitempty"`
	BetType   string    `json:"bet_type"`
	Status    string    `json:"status"`
	Outcomes  []Outcome `json:"outcomes"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Outcome struct {
	Code      string          `json:"code"`
	OutcomeID string          `json:"outcome_id"`
	Odd       decimal.Decimal `json:"odd"`
}

func NewFixture(f model.Fixture) Fixture {
	return Fixture{
		ID:           f.ID,
		TournamentID: f.TournamentID,
		Status:       string(f.Status),
		HomeScore:    f.HomeScore,
		AwayScore:    f.AwayScore,
		MatchTime:    f.MatchTime,
		StartsAt:     f.StartsAt,
	}
}

// NewMarket ordena os outcomes pelo code para a resposta ser estável.
func NewMarket(m model.Market) Market {
	out := Market{
		MarketID:  m.MarketID,
		Specifier: m.Specifier,
		BetType:   string(m.Product),
		Status:    string(m.Status),
		Outcomes:  make([]Outcome, 0, len(m.Outcomes)),
		UpdatedAt: m.UpdatedAt,
	}
	for _, o := range m.Outcomes {
		out.Outcomes = append(out.Outcomes, Outcome{Code: o.Code, OutcomeID: o.OutcomeID, Odd: o.Odd})
	}
	sort.Slice(out.Outcomes, func(i, j int) bool { return out.Outcomes[i].Code < out.Outcomes[j].Code })
	return out
}
