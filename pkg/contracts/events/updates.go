package events

import "time"

// Tipos de Update publicados no canal Redis Pub/Sub e repassados ao WebSocket.
const (
	TypeBalanceChanged       = "balance_changed"
	TypeOddsChanged          = "odds_changed"
	TypeSlipSettled          = "slip_settled"
	TypeFixtureStatusChanged = "fixture_status_changed"
)

// Update é o envelope de broadcast. Topic identifica quem recebe:
// "user:<id>" para eventos de carteira/bilhete, "fixture:<id>" para odds e status.
type Update struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

func UserTopic(userID string) string       { return "user:" + userID }
func FixtureTopic(fixtureID string) string { return "fixture:" + fixtureID }

type BalanceChanged struct {
	UserID    string    `json:"user_id"`
	Balance   string    `json:"balance"`
	Amount    string    `json:"amount"`
	Category  string    `json:"category"`
	Reference string    `json:"reference,omitempty"`
	Ts        time.Time `json:"ts"`
}

type OddsChanged struct {
	FixtureID string           `json:"fixture_id"`
	Product   string           `json:"product"`
	Markets   []MarketSnapshot `json:"markets"`
	Ts        time.Time        `json:"ts"`
}

type MarketSnapshot struct {
	MarketID  string            `json:"market_id"`
	Specifier string            `json:"specifier,omitempty"`
	Status    string            `json:"status"`
	Odds      map[string]string `json:"odds"` // code -> odd
}

type SlipSettled struct {
	SlipID string    `json:"slip_id"`
	UserID string    `json:"user_id"`
	Result string    `json:"result"`
	Payout string    `json:"payout"`
	Tax    string    `json:"tax"`
	Source string    `json:"source"` // settlement | cashout
	Ts     time.Time `json:"ts"`
}

type FixtureStatusChanged struct {
	FixtureID string    `json:"fixture_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Ts        time.Time `json:"ts"`
}
