package events

import "time"

// Tipos de mensagem do feed publicados no tópico "feed_events".
const (
	FeedMatchStart    = "match_start"
	FeedMatchStop     = "match_stop"
	FeedOddsChange    = "odds_change"
	FeedMarketSettle  = "market_settle"
	FeedCancelOutcome = "cancel_outcome"
	FeedRollback      = "rollback"
)

// FeedMessage é o formato normalizado de um evento do provedor.
// Chave Kafka = MatchID, o que garante ordem por partida.
type FeedMessage struct {
	Type         string       `json:"type"`
	MatchID      string       `json:"match_id"`
	Product      string       `json:"product,omitempty"` // PreMatch | Live (default Live)
	TournamentID string       `json:"tournament_id,omitempty"`
	Status       string       `json:"status,omitempty"` // status da partida
	Score        *FeedScore   `json:"score,omitempty"`
	MatchTime    string       `json:"match_time,omitempty"`
	StartsAt     *time.Time   `json:"starts_at,omitempty"`
	Markets      []FeedMarket `json:"markets,omitempty"`
	ReceivedAt   time.Time    `json:"received_at"`
}

type FeedScore struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

type FeedMarket struct {
	MarketID  string        `json:"market_id"`
	Specifier string        `json:"specifier,omitempty"`
	Status    string        `json:"status,omitempty"`
	Outcomes  []FeedOutcome `json:"outcomes"`
}

// FeedOutcome carrega odd (odds_change) ou resultado (market_settle, cancel, rollback).
// Odd e VoidFactor são strings decimais para não perder precisão.
type FeedOutcome struct {
	Code       string `json:"code"`
	OutcomeID  string `json:"outcome_id"`
	Odd        string `json:"odd,omitempty"`
	Status     string `json:"status,omitempty"` // W | L | C | R
	VoidFactor string `json:"void_factor,omitempty"`
}
