package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

type WalletResponse struct {
	UserID   string          `json:"user_id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

type TransactionResponse struct {
	ID            string          `json:"id"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	Status        string          `json:"status"`
	Currency      string          `json:"currency"`
	Reference     string          `json:"reference,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewTransactionResponse(t model.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Amount:        t.Amount,
		Category:      string(t.Category),
		Status:        t.Status,
		Currency:      t.Currency,
		Reference:     t.Reference,
		CreatedAt:     t.CreatedAt,
	}
}
