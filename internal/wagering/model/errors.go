package model

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrStakeOutOfRange     = errors.New("stake out of range")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoActiveBonus       = errors.New("no active bonus")
	ErrInsufficientBonus   = errors.New("stake exceeds bonus amount")
	ErrStaleOdds           = errors.New("stale or unavailable odds")
	ErrInvalidLeg          = errors.New("invalid leg request")
	ErrSlipNotActive       = errors.New("slip is not active")
	ErrCashoutUnavailable  = errors.New("cashout unavailable")
	ErrForbidden           = errors.New("slip belongs to another user")
)

// ErrDuplicate indica violação de unicidade (referência de ledger, id de bilhete, pontos já lançados).
var ErrDuplicate = errors.New("duplicate record")
