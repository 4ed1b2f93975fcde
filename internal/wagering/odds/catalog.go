// Package odds resolve preços correntes de outcomes no catálogo de mercados.
package odds

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
)

// Selection aponta para um outcome exato de um mercado num produto.
type Selection struct {
	Key       model.MarketKey
	OutcomeID string
	Product   model.Product
}

// Price é o preço corrente de uma seleção.
type Price struct {
	Selection
	Code string
	Odd  decimal.Decimal
}

type Catalog struct {
	q store.Queries
}

func NewCatalog(q store.Queries) *Catalog {
	return &Catalog{q: q}
}

type productKey struct {
	key     model.MarketKey
	product model.Product
}

// Resolve busca todos os mercados referenciados numa única consulta e casa cada
// seleção pelo outcome_id dentro do seu produto. Qualquer seleção sem preço
// (mercado ausente ou não ativo, outcome ausente, odd <= 0) falha o lote
// inteiro com model.ErrStaleOdds.
func (c *Catalog) Resolve(ctx context.Context, sels []Selection) ([]Price, error) {
	if len(sels) == 0 {
		return nil, nil
	}
	seen := make(map[model.MarketKey]bool, len(sels))
	keys := make([]model.MarketKey, 0, len(sels))
	for _, s := range sels {
		if !s.Product.Valid() {
			return nil, fmt.Errorf("%w: unknown product %q", model.ErrInvalidLeg, s.Product)
		}
		if !seen[s.Key] {
			seen[s.Key] = true
			keys = append(keys, s.Key)
		}
	}

	markets, err := c.q.FindMarkets(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("odds: find markets: %w", err)
	}
	index := make(map[productKey]model.Market, len(markets))
	for _, m := range markets {
		index[productKey{key: m.MarketKey, product: m.Product}] = m
	}

	prices := make([]Price, 0, len(sels))
	for _, s := range sels {
		p, err := price(index, s)
		if err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, nil
}

func price(index map[productKey]model.Market, s Selection) (Price, error) {
	m, ok := index[productKey{key: s.Key, product: s.Product}]
	if !ok {
		return Price{}, stale(s, "market not found")
	}
	if !m.Status.Priced() {
		return Price{}, stale(s, "market "+string(m.Status))
	}
	o, ok := m.OutcomeByID(s.OutcomeID)
	if !ok {
		return Price{}, stale(s, "outcome not found")
	}
	if !o.Odd.IsPositive() {
		return Price{}, stale(s, "odd not positive")
	}
	return Price{Selection: s, Code: o.Code, Odd: o.Odd}, nil
}

func stale(s Selection, why string) error {
	return fmt.Errorf("%w: %s/%s/%s outcome %s: %s",
		model.ErrStaleOdds, s.Key.FixtureID, s.Key.MarketID, s.Key.Specifier, s.OutcomeID, why)
}
