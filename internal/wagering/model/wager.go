package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Leg é uma seleção dentro de um bilhete ("Bet").
// Odds é congelada no aceite e nunca muda depois.
type Leg struct {
	ID          string
	SlipID      string
	UserID      string
	FixtureID   string
	MarketID    string
	Specifier   string
	OutcomeID   string
	Description string
	Odds        decimal.Decimal
	Product     Product
	Status      LegStatus
	Result      LegResult
	VoidFactor  decimal.Decimal
	SettledBy   string
	CreatedAt   time.Time
	SettledAt   *time.Time
}

// Key retorna a chave do mercado referenciado pela perna.
func (l Leg) Key() MarketKey {
	return MarketKey{FixtureID: l.FixtureID, MarketID: l.MarketID, Specifier: l.Specifier}
}

// Slip é um bilhete acumulador com 1..N pernas ("BetSlip").
type Slip struct {
	ID           string
	UserID       string
	Stake        decimal.Decimal
	LegCount     int
	CombinedOdds decimal.Decimal
	WinAmount    decimal.Decimal
	Bonus        decimal.Decimal
	Tax          decimal.Decimal
	Payout       decimal.Decimal
	Status       SlipStatus
	Result       LegResult
	Paid         bool
	BonusFunded  bool
	CashoutValue *decimal.Decimal
	CashoutAt    *time.Time
	CreatedAt    time.Time
	SettledAt    *time.Time
}

// BonusCredit é um bônus acumulado que pode financiar um bilhete.
type BonusCredit struct {
	ID        string
	UserID    string
	Amount    decimal.Decimal
	Status    BonusStatus
	ExpiresAt time.Time
}

// Usable informa se o bônus ainda pode ser resgatado em now.
func (b BonusCredit) Usable(now time.Time) bool {
	return b.Status == BonusActive && now.Before(b.ExpiresAt)
}

// BonusBand é o multiplicador (em %) aplicado a bilhetes com LegCount pernas.
type BonusBand struct {
	ID         string
	LegCount   int
	Multiplier decimal.Decimal
	Active     bool
}

// LegSelector seleciona pernas de um mercado para fechamento/reabertura em lote.
// OutcomeIDs vazio seleciona todas as pernas do mercado.
type LegSelector struct {
	Key        MarketKey
	OutcomeIDs []string
}

// LegResolution descreve o estado final aplicado a um lote de pernas.
type LegResolution struct {
	Status     LegStatus
	Result     LegResult
	VoidFactor decimal.Decimal
	SettledBy  string
}
