package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency é a moeda das contas criadas implicitamente.
const DefaultCurrency = "BRL"

// Account é o saldo de um usuário.
type Account struct {
	UserID    string
	Balance   decimal.Decimal
	Currency  string
	UpdatedAt time.Time
}

// Transaction é um lançamento imutável do ledger.
// BalanceAfter = BalanceBefore ± Amount, conforme a categoria.
type Transaction struct {
	ID            string
	UserID        string
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Amount        decimal.Decimal
	Category      TxCategory
	Status        string
	Currency      string
	Reference     string
	CreatedAt     time.Time
}

// TxCompleted é o único status gravado hoje: lançamentos só existem quando efetivados.
const TxCompleted = "Completed"

// PointTransaction registra pontos de fidelidade concedidos por bilhete liquidado.
type PointTransaction struct {
	ID        string
	UserID    string
	SlipID    string
	Points    int64
	CreatedAt time.Time
}

// LedgerDiscrepancy é uma conta cujo saldo diverge do último lançamento.
type LedgerDiscrepancy struct {
	UserID           string
	Balance          decimal.Decimal
	LastBalanceAfter decimal.Decimal
	Transactions     int64
}
