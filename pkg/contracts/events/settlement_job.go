package events

import "time"

const (
	JobSettleMarket = "settle_market"
	JobSettleSlips  = "settle_slips"
)

// SettlementJob é publicado no tópico "settlement_jobs" com chave = FixtureID.
// settle_market: fecha as pernas do mercado e agrega os bilhetes afetados.
// settle_slips: só agrega os bilhetes listados.
type SettlementJob struct {
	Kind      string    `json:"kind"`
	FixtureID string    `json:"fixture_id"`
	MarketID  string    `json:"market_id,omitempty"`
	Specifier string    `json:"specifier,omitempty"`
	Product   string    `json:"product,omitempty"`
	SlipIDs   []string  `json:"slip_ids,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Ts        time.Time `json:"ts"`
}
