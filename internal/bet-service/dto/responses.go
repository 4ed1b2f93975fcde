package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wagering/cashout"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

type PlaceBetResponse struct {
	BetSlipID string `json:"bet_slip_id"`
}

type LegResponse struct {
	ID          string          `json:"id"`
	FixtureID   string          `json:"fixture_id"`
	MarketID    string          `json:"market_identifier"`
	Specifier   string          `json:"specifier,omitempty"`
	OutcomeID   string          `json:"outcome_id"`
	Description string          `json:"description"`
	Odds        decimal.Decimal `json:"odds"`
	BetType     string          `json:"bet_type"`
	Status      string          `json:"status"`
	Result      string          `json:"result"`
	VoidFactor  decimal.Decimal `json:"void_factor"`
	SettledBy   string          `json:"settled_by,omitempty"`
	SettledAt   *time.Time      `json:"settled_at,omitempty"`
}

type SlipResponse struct {
	ID           string           `json:"id"`
	Stake        decimal.Decimal  `json:"stake"`
	CombinedOdds decimal.Decimal  `json:"combined_odds"`
	WinAmount    decimal.Decimal  `json:"win_amount"`
	Bonus        decimal.Decimal  `json:"bonus"`
	Tax          decimal.Decimal  `json:"tax"`
	Payout       decimal.Decimal  `json:"payout"`
	Status       string           `json:"status"`
	Result       string           `json:"result"`
	Paid         bool             `json:"paid"`
	BonusFunded  bool             `json:"bonus_funded"`
	CashoutValue *decimal.Decimal `json:"cashout_value,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	SettledAt    *time.Time       `json:"settled_at,omitempty"`
	Legs         []LegResponse    `json:"legs"`
}

type CashoutResponse struct {
	Available    bool            `json:"available"`
	CashoutValue decimal.Decimal `json:"cashout_value"`
	PotentialWin decimal.Decimal `json:"potential_win"`
	Stake        decimal.Decimal `json:"stake"`
	CurrentOdds  decimal.Decimal `json:"current_odds"`
	Reason       string          `json:"reason,omitempty"`
}

func NewSlipResponse(s model.Slip, legs []model.Leg) SlipResponse {
	out := SlipResponse{
		ID:           s.ID,
		Stake:        s.Stake,
		CombinedOdds: s.CombinedOdds,
		WinAmount:    s.WinAmount,
		Bonus:        s.Bonus,
		Tax:          s.Tax,
		Payout:       s.Payout,
		Status:       string(s.Status),
		Result:       string(s.Result),
		Paid:         s.Paid,
		BonusFunded:  s.BonusFunded,
		CashoutValue: s.CashoutValue,
		CreatedAt:    s.CreatedAt,
		SettledAt:    s.SettledAt,
		Legs:         make([]LegResponse, 0, len(legs)),
	}
	for _, l := range legs {
		out.Legs = append(out.Legs, LegResponse{
			ID:          l.ID,
			FixtureID:   l.FixtureID,
			MarketID:    l.MarketID,
			Specifier:   l.Specifier,
			OutcomeID:   l.OutcomeID,
			Description: l.Description,
			Odds:        l.Odds,
			BetType:     string(l.Product),
			Status:      string(l.Status),
			Result:      string(l.Result),
			VoidFactor:  l.VoidFactor,
			SettledBy:   l.SettledBy,
			SettledAt:   l.SettledAt,
		})
	}
	return out
}

func NewCashoutResponse(q cashout.Quote) CashoutResponse {
	return CashoutResponse{
		Available:    q.Available,
		CashoutValue: q.Value,
		PotentialWin: q.PotentialWin,
		Stake:        q.Stake,
		CurrentOdds:  q.CurrentOdds,
		Reason:       q.Reason,
	}
}
