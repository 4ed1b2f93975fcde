package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WagerTotals soma apostas e prêmios de um usuário em uma janela.
type WagerTotals struct {
	Stakes  decimal.Decimal
	Payouts decimal.Decimal
}

// Net retorna prêmios menos apostas.
func (t WagerTotals) Net() decimal.Decimal { return t.Payouts.Sub(t.Stakes) }

// Rejection é o registro de auditoria de um bilhete negado pelo risco.
type Rejection struct {
	ID        string
	UserID    string
	Reason    string
	Tier      int
	Limit     decimal.Decimal
	Stake     decimal.Decimal
	BetType   BetType
	Metadata  map[string]any
	CreatedAt time.Time
}
