package dto

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

// PlaceBetRequest é o corpo de POST /bets. Uma única perna é uma aposta simples.
type PlaceBetRequest struct {
	Stake decimal.Decimal `json:"stake"`
	Bonus bool            `json:"bonus,omitempty"`
	Bets  []BetLeg        `json:"bets"`
}

type BetLeg struct {
	FixtureID        string `json:"fixture_id"`
	MarketIdentifier string `json:"market_identifier"`
	Specifier        string `json:"specifier,omitempty"`
	OutcomeID        string `json:"outcome_id"`
	BetType          string `json:"bet_type"` // "prematch" | "live"
}

// Product converte bet_type; vazio ou desconhecido retorna false.
func (l BetLeg) Product() (model.Product, bool) {
	switch strings.ToLower(strings.TrimSpace(l.BetType)) {
	case "prematch", "pre_match", "pre-match":
		return model.ProductPreMatch, true
	case "live":
		return model.ProductLive, true
	}
	return "", false
}
