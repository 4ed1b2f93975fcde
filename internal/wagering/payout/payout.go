// Package payout concentra a matemática de odds, bônus, imposto e cashout.
// Todas as funções são puras; valores monetários saem arredondados em 2 casas.
package payout

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Rules são os parâmetros financeiros configuráveis.
type Rules struct {
	TaxRate       decimal.Decimal
	CashoutMargin decimal.Decimal
}

// DefaultRules: imposto de 15% e margem de cashout de 80%.
func DefaultRules() Rules {
	return Rules{
		TaxRate:       decimal.RequireFromString("0.15"),
		CashoutMargin: decimal.RequireFromString("0.80"),
	}
}

// Breakdown é o resultado de um cálculo de retorno.
type Breakdown struct {
	CombinedOdds decimal.Decimal
	WinAmount    decimal.Decimal
	Bonus        decimal.Decimal
	Tax          decimal.Decimal
	Payout       decimal.Decimal
}

// Money arredonda para centavos.
func Money(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// CombinedOdds é o produto das odds na ordem recebida. Lista vazia resulta em 1.
func CombinedOdds(odds []decimal.Decimal) decimal.Decimal {
	combined := one
	for _, o := range odds {
		combined = combined.Mul(o)
	}
	return combined
}

// BonusAmount aplica o multiplicador percentual da faixa sobre o ganho.
func BonusAmount(win, multiplierPct decimal.Decimal) decimal.Decimal {
	if !multiplierPct.IsPositive() {
		return decimal.Zero
	}
	return Money(win.Mul(multiplierPct).Div(hundred))
}

// Estimate calcula a previsão gravada no bilhete no aceite: imposto sobre o retorno bruto.
// O valor não é cobrado; a liquidação usa Settle.
func (r Rules) Estimate(stake decimal.Decimal, odds []decimal.Decimal, bonusPct decimal.Decimal) Breakdown {
	combined := CombinedOdds(odds)
	win := Money(stake.Mul(combined))
	bonus := BonusAmount(win, bonusPct)
	tax := Money(win.Add(bonus).Mul(r.TaxRate))
	return Breakdown{
		CombinedOdds: combined,
		WinAmount:    win,
		Bonus:        bonus,
		Tax:          tax,
		Payout:       win.Add(bonus).Sub(tax),
	}
}

// Settle calcula o pagamento final de um bilhete vencedor a partir das odds das pernas contadas.
// Imposto só sobre o lucro líquido (bruto - stake) quando positivo.
func (r Rules) Settle(stake decimal.Decimal, winningOdds []decimal.Decimal, bonusPct decimal.Decimal) Breakdown {
	combined := CombinedOdds(winningOdds)
	win := Money(stake.Mul(combined))
	bonus := BonusAmount(win, bonusPct)
	gross := win.Add(bonus)
	tax := r.NetTax(gross, stake)
	return Breakdown{
		CombinedOdds: combined,
		WinAmount:    win,
		Bonus:        bonus,
		Tax:          tax,
		Payout:       gross.Sub(tax),
	}
}

// NetTax retorna o imposto sobre max(gross - stake, 0).
func (r Rules) NetTax(gross, stake decimal.Decimal) decimal.Decimal {
	net := gross.Sub(stake)
	if !net.IsPositive() {
		return decimal.Zero
	}
	return Money(net.Mul(r.TaxRate))
}

// CashoutValue = stake × (original / current) × margem. Zero quando current não é positivo.
func (r Rules) CashoutValue(stake, originalCombined, currentCombined decimal.Decimal) decimal.Decimal {
	if !currentCombined.IsPositive() {
		return decimal.Zero
	}
	return Money(stake.Mul(originalCombined).Div(currentCombined).Mul(r.CashoutMargin))
}

// LoyaltyPoints = floor(stake / 1000) × pontos por bilhete.
func LoyaltyPoints(stake decimal.Decimal, perSlip int64) int64 {
	if perSlip <= 0 || !stake.IsPositive() {
		return 0
	}
	return stake.Div(decimal.NewFromInt(1000)).Floor().IntPart() * perSlip
}
