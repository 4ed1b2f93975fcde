package dto

import "github.com/shopspring/decimal"

// MovementRequest é o corpo de depósito e saque.
// Reference é opcional; quando presente torna a operação idempotente.
type MovementRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}
