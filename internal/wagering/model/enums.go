package model

// Enumerações fechadas do domínio. Os valores string são os persistidos no banco
// e trafegados nos contratos JSON.

// Product identifica o produto de odds de uma perna (pré-jogo ou ao vivo).
type Product string

const (
	ProductPreMatch Product = "PreMatch"
	ProductLive     Product = "Live"
)

// Valid informa se o produto é conhecido.
func (p Product) Valid() bool {
	switch p {
	case ProductPreMatch, ProductLive:
		return true
	}
	return false
}

// LegStatus é o ciclo de vida de uma perna.
type LegStatus string

const (
	LegActive    LegStatus = "Active"
	LegClosed    LegStatus = "Closed"
	LegCancelled LegStatus = "Cancelled"
)

// Terminal informa se a perna já não será mais alterada pela liquidação normal.
func (s LegStatus) Terminal() bool {
	switch s {
	case LegClosed, LegCancelled:
		return true
	case LegActive:
		return false
	}
	return false
}

// LegResult é o resultado de uma perna.
type LegResult string

const (
	ResultPending LegResult = "Pending"
	ResultWin     LegResult = "Win"
	ResultLoss    LegResult = "Loss"
	ResultVoid    LegResult = "Void"
)

// SlipStatus é o ciclo de vida de um bilhete.
type SlipStatus string

const (
	SlipActive SlipStatus = "Active"
	SlipClosed SlipStatus = "Closed"
)

// MarketStatus é o estado de um mercado no catálogo de odds.
type MarketStatus string

const (
	MarketActive    MarketStatus = "active"
	MarketSuspended MarketStatus = "suspended"
	MarketSettled   MarketStatus = "settled"
	MarketInactive  MarketStatus = "inactive"
)

// Priced informa se o mercado aceita apostas/cotação.
func (s MarketStatus) Priced() bool { return s == MarketActive }

// OutcomeStatus é o resultado de um outcome enviado pelo provedor.
// W = ganhou, L = perdeu, C = cancelado, R = reembolso.
type OutcomeStatus string

const (
	OutcomeWin      OutcomeStatus = "W"
	OutcomeLoss     OutcomeStatus = "L"
	OutcomeCanceled OutcomeStatus = "C"
	OutcomeRefund   OutcomeStatus = "R"
)

// FixtureStatus é o estado de uma partida.
type FixtureStatus string

const (
	FixtureNotStarted FixtureStatus = "not_started"
	FixtureLive       FixtureStatus = "live"
	FixtureSuspended  FixtureStatus = "suspended"
	FixtureEnded      FixtureStatus = "ended"
	FixtureClosed     FixtureStatus = "closed"
	FixtureCancelled  FixtureStatus = "cancelled"
	FixturePostponed  FixtureStatus = "postponed"
	FixtureAbandoned  FixtureStatus = "abandoned"
)

// Void informa se a partida não vai acontecer (cancelada, adiada ou abandonada).
func (s FixtureStatus) Void() bool {
	switch s {
	case FixtureCancelled, FixturePostponed, FixtureAbandoned:
		return true
	}
	return false
}

// TxCategory classifica um lançamento no ledger.
type TxCategory string

const (
	CategoryBet      TxCategory = "Bet"
	CategoryWin      TxCategory = "Win"
	CategoryRefund   TxCategory = "Refund"
	CategoryCashout  TxCategory = "Cashout"
	CategoryDeposit  TxCategory = "Deposit"
	CategoryWithdraw TxCategory = "Withdraw"
)

// Debit informa se a categoria reduz o saldo.
func (c TxCategory) Debit() bool {
	switch c {
	case CategoryBet, CategoryWithdraw:
		return true
	}
	return false
}

// BonusStatus é o estado de um crédito de bônus.
type BonusStatus string

const (
	BonusActive   BonusStatus = "Active"
	BonusRedeemed BonusStatus = "Redeemed"
	BonusExpired  BonusStatus = "Expired"
)

// BetType é a classificação de risco de um bilhete.
type BetType string

const (
	BetSingle BetType = "singles"
	BetParlay BetType = "parlays"
	BetSGM    BetType = "sgm"
)

// Settlement info gravado nas pernas.
const (
	SettledByMarket   = "market"
	SettledByCancel   = "cancel"
	SettledByTwoUp    = "two_up"
	SettledByCashout  = "cashout"
	SettledByRollback = "rollback"
)
