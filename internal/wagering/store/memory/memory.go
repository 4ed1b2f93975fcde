// Package memory implementa store.Store em memória. Um único mutex serializa
// todas as operações e InTx restaura um snapshot quando a função falha.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
)

var _ store.Store = (*Store)(nil)
var _ store.Tx = (*tx)(nil)

type marketID struct {
	key     model.MarketKey
	product model.Product
}

type data struct {
	accounts   map[string]model.Account
	points     map[string]int64
	txs        []model.Transaction
	bonuses    []model.BonusCredit
	bands      map[int]model.BonusBand
	slips      map[string]model.Slip
	legs       []model.Leg
	markets    map[marketID]model.Market
	fixtures   map[string]model.Fixture
	rejections []model.Rejection
	pointTxs   []model.PointTransaction
}

func newData() *data {
	return &data{
		accounts: map[string]model.Account{},
		points:   map[string]int64{},
		bands:    map[int]model.BonusBand{},
		slips:    map[string]model.Slip{},
		markets:  map[marketID]model.Market{},
		fixtures: map[string]model.Fixture{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.points {
		c.points[k] = v
	}
	for k, v := range d.bands {
		c.bands[k] = v
	}
	for k, v := range d.slips {
		c.slips[k] = v
	}
	for k, v := range d.markets {
		c.markets[k] = copyMarket(v)
	}
	for k, v := range d.fixtures {
		c.fixtures[k] = v
	}
	c.txs = append([]model.Transaction(nil), d.txs...)
	c.bonuses = append([]model.BonusCredit(nil), d.bonuses...)
	c.legs = append([]model.Leg(nil), d.legs...)
	c.rejections = append([]model.Rejection(nil), d.rejections...)
	c.pointTxs = append([]model.PointTransaction(nil), d.pointTxs...)
	return c
}

func copyMarket(m model.Market) model.Market {
	outcomes := make(map[string]model.Outcome, len(m.Outcomes))
	for k, v := range m.Outcomes {
		outcomes[k] = v
	}
	results := make(map[string]model.OutcomeResult, len(m.Results))
	for k, v := range m.Results {
		results[k] = v
	}
	m.Outcomes = outcomes
	m.Results = results
	return m
}

// Store é a implementação em memória.
type Store struct {
	mu sync.Mutex
	d  *data
}

func New() *Store {
	return &Store{d: newData()}
}

type tx struct {
	*data
}

func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(&tx{data: s.d}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

func (s *Store) view() (*data, func()) {
	s.mu.Lock()
	return s.d, s.mu.Unlock
}

// Helpers de carga usados por testes e pelo simulador local.

func (s *Store) AddBonus(b model.BonusCredit) {
	d, unlock := s.view()
	defer unlock()
	d.bonuses = append(d.bonuses, b)
}

func (s *Store) AddBonusBand(b model.BonusBand) {
	d, unlock := s.view()
	defer unlock()
	d.bands[b.LegCount] = b
}

func (s *Store) Rejections() []model.Rejection {
	d, unlock := s.view()
	defer unlock()
	return append([]model.Rejection(nil), d.rejections...)
}

func (s *Store) Points(userID string) int64 {
	d, unlock := s.view()
	defer unlock()
	return d.points[userID]
}

func (s *Store) Bonus(id string) (model.BonusCredit, bool) {
	d, unlock := s.view()
	defer unlock()
	for _, b := range d.bonuses {
		if b.ID == id {
			return b, true
		}
	}
	return model.BonusCredit{}, false
}

// SlipCount retorna o total de bilhetes e pernas gravados.
func (s *Store) SlipCount() (slips, legs int) {
	d, unlock := s.view()
	defer unlock()
	return len(d.slips), len(d.legs)
}

// ---- Queries (Store) ----

func (s *Store) FindMarkets(ctx context.Context, keys []model.MarketKey) ([]model.Market, error) {
	d, unlock := s.view()
	defer unlock()
	return d.FindMarkets(ctx, keys)
}

func (s *Store) GetMarket(ctx context.Context, key model.MarketKey, product model.Product) (model.Market, error) {
	d, unlock := s.view()
	defer unlock()
	return d.GetMarket(ctx, key, product)
}

func (s *Store) ListMarketsByFixture(ctx context.Context, fixtureID string) ([]model.Market, error) {
	d, unlock := s.view()
	defer unlock()
	return d.ListMarketsByFixture(ctx, fixtureID)
}

func (s *Store) GetFixture(ctx context.Context, id string) (model.Fixture, error) {
	d, unlock := s.view()
	defer unlock()
	return d.GetFixture(ctx, id)
}

func (s *Store) GetFixtures(ctx context.Context, ids []string) (map[string]model.Fixture, error) {
	d, unlock := s.view()
	defer unlock()
	return d.GetFixtures(ctx, ids)
}

func (s *Store) ListFixtures(ctx context.Context, filter model.FixtureFilter) ([]model.Fixture, error) {
	d, unlock := s.view()
	defer unlock()
	return d.ListFixtures(ctx, filter)
}

func (s *Store) GetSlip(ctx context.Context, id string) (model.Slip, error) {
	d, unlock := s.view()
	defer unlock()
	return d.GetSlip(ctx, id)
}

func (s *Store) ListLegs(ctx context.Context, slipID string) ([]model.Leg, error) {
	d, unlock := s.view()
	defer unlock()
	return d.ListLegs(ctx, slipID)
}

func (s *Store) SlipsAwaitingSettlement(ctx context.Context, sel model.LegSelector) ([]string, error) {
	d, unlock := s.view()
	defer unlock()
	return d.SlipsAwaitingSettlement(ctx, sel)
}

func (s *Store) GetAccount(ctx context.Context, userID string) (model.Account, error) {
	d, unlock := s.view()
	defer unlock()
	return d.GetAccount(ctx, userID)
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	d, unlock := s.view()
	defer unlock()
	return d.ListTransactions(ctx, userID, limit)
}

func (s *Store) ActiveBonus(ctx context.Context, userID string, now time.Time) (model.BonusCredit, error) {
	d, unlock := s.view()
	defer unlock()
	return d.ActiveBonus(ctx, userID, now)
}

func (s *Store) ActiveBonusBand(ctx context.Context, legCount int) (model.BonusBand, error) {
	d, unlock := s.view()
	defer unlock()
	return d.ActiveBonusBand(ctx, legCount)
}

func (s *Store) WagerTotals(ctx context.Context, userID string, since time.Time) (model.WagerTotals, error) {
	d, unlock := s.view()
	defer unlock()
	return d.WagerTotals(ctx, userID, since)
}

func (s *Store) OpenExposure(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	d, unlock := s.view()
	defer unlock()
	return d.OpenExposure(ctx, userID, since)
}

func (s *Store) LedgerDiscrepancies(ctx context.Context) ([]model.LedgerDiscrepancy, error) {
	d, unlock := s.view()
	defer unlock()
	return d.LedgerDiscrepancies(ctx)
}

// ---- Queries (data) ----

func sortMarkets(out []model.Market) {
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FixtureID != b.FixtureID {
			return a.FixtureID < b.FixtureID
		}
		if a.MarketID != b.MarketID {
			return a.MarketID < b.MarketID
		}
		if a.Specifier != b.Specifier {
			return a.Specifier < b.Specifier
		}
		return a.Product < b.Product
	})
}

func (d *data) FindMarkets(_ context.Context, keys []model.MarketKey) ([]model.Market, error) {
	want := make(map[model.MarketKey]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	var out []model.Market
	for id, m := range d.markets {
		if _, ok := want[id.key]; ok {
			out = append(out, copyMarket(m))
		}
	}
	sortMarkets(out)
	return out, nil
}

func (d *data) GetMarket(_ context.Context, key model.MarketKey, product model.Product) (model.Market, error) {
	m, ok := d.markets[marketID{key: key, product: product}]
	if !ok {
		return model.Market{}, model.ErrNotFound
	}
	return copyMarket(m), nil
}

func (d *data) ListMarketsByFixture(_ context.Context, fixtureID string) ([]model.Market, error) {
	var out []model.Market
	for id, m := range d.markets {
		if id.key.FixtureID == fixtureID {
			out = append(out, copyMarket(m))
		}
	}
	sortMarkets(out)
	return out, nil
}

func (d *data) GetFixture(_ context.Context, id string) (model.Fixture, error) {
	f, ok := d.fixtures[id]
	if !ok {
		return model.Fixture{}, model.ErrNotFound
	}
	return f, nil
}

func (d *data) GetFixtures(_ context.Context, ids []string) (map[string]model.Fixture, error) {
	out := make(map[string]model.Fixture, len(ids))
	for _, id := range ids {
		if f, ok := d.fixtures[id]; ok {
			out[id] = f
		}
	}
	return out, nil
}

func (d *data) ListFixtures(_ context.Context, filter model.FixtureFilter) ([]model.Fixture, error) {
	var out []model.Fixture
	for _, f := range d.fixtures {
		if filter.TournamentID != "" && f.TournamentID != filter.TournamentID {
			continue
		}
		if !filter.From.IsZero() && f.StartsAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !f.StartsAt.Before(filter.To) {
			continue
		}
		if filter.Product != "" && !d.hasProduct(f.ID, filter.Product) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *data) hasProduct(fixtureID string, product model.Product) bool {
	for id := range d.markets {
		if id.key.FixtureID == fixtureID && id.product == product {
			return true
		}
	}
	return false
}

func (d *data) GetSlip(_ context.Context, id string) (model.Slip, error) {
	s, ok := d.slips[id]
	if !ok {
		return model.Slip{}, model.ErrNotFound
	}
	return s, nil
}

func (d *data) ListLegs(_ context.Context, slipID string) ([]model.Leg, error) {
	var out []model.Leg
	for _, l := range d.legs {
		if l.SlipID == slipID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (d *data) SlipsAwaitingSettlement(_ context.Context, sel model.LegSelector) ([]string, error) {
	var out []string
	for _, l := range d.legs {
		if l.Status == model.LegActive || !matches(l, sel) {
			continue
		}
		if d.slips[l.SlipID].Status == model.SlipActive {
			out = appendUnique(out, l.SlipID)
		}
	}
	return out, nil
}

func (d *data) GetAccount(_ context.Context, userID string) (model.Account, error) {
	a, ok := d.accounts[userID]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return a, nil
}

func (d *data) ListTransactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	var out []model.Transaction
	for i := len(d.txs) - 1; i >= 0; i-- {
		if d.txs[i].UserID != userID {
			continue
		}
		out = append(out, d.txs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (d *data) ActiveBonus(_ context.Context, userID string, now time.Time) (model.BonusCredit, error) {
	var found *model.BonusCredit
	for i := range d.bonuses {
		b := d.bonuses[i]
		if b.UserID != userID || !b.Usable(now) {
			continue
		}
		if found == nil || b.ExpiresAt.Before(found.ExpiresAt) {
			found = &d.bonuses[i]
		}
	}
	if found == nil {
		return model.BonusCredit{}, model.ErrNotFound
	}
	return *found, nil
}

func (d *data) ActiveBonusBand(_ context.Context, legCount int) (model.BonusBand, error) {
	b, ok := d.bands[legCount]
	if !ok || !b.Active {
		return model.BonusBand{}, model.ErrNotFound
	}
	return b, nil
}

func (d *data) WagerTotals(_ context.Context, userID string, since time.Time) (model.WagerTotals, error) {
	totals := model.WagerTotals{Stakes: decimal.Zero, Payouts: decimal.Zero}
	for _, s := range d.slips {
		if s.UserID != userID || s.CreatedAt.Before(since) {
			continue
		}
		totals.Stakes = totals.Stakes.Add(s.Stake)
		if s.Status == model.SlipClosed && s.Result == model.ResultWin {
			totals.Payouts = totals.Payouts.Add(s.Payout)
		}
	}
	return totals, nil
}

func (d *data) OpenExposure(_ context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, s := range d.slips {
		if s.UserID == userID && s.Status == model.SlipActive && !s.CreatedAt.Before(since) {
			sum = sum.Add(s.Payout)
		}
	}
	return sum, nil
}

func (d *data) LedgerDiscrepancies(_ context.Context) ([]model.LedgerDiscrepancy, error) {
	type last struct {
		after decimal.Decimal
		count int64
	}
	seen := map[string]last{}
	for _, t := range d.txs {
		l := seen[t.UserID]
		seen[t.UserID] = last{after: t.BalanceAfter, count: l.count + 1}
	}
	var out []model.LedgerDiscrepancy
	for userID, a := range d.accounts {
		l := seen[userID]
		after := l.after
		if l.count == 0 {
			after = decimal.Zero
		}
		if !a.Balance.Equal(after) {
			out = append(out, model.LedgerDiscrepancy{
				UserID:           userID,
				Balance:          a.Balance,
				LastBalanceAfter: after,
				Transactions:     l.count,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ---- Tx ----

func (d *data) LockAccount(_ context.Context, userID string) (model.Account, error) {
	a, ok := d.accounts[userID]
	if !ok {
		a = model.Account{UserID: userID, Balance: decimal.Zero, Currency: model.DefaultCurrency, UpdatedAt: time.Now()}
		d.accounts[userID] = a
	}
	return a, nil
}

func (d *data) UpdateBalance(_ context.Context, userID string, balance decimal.Decimal) error {
	a, ok := d.accounts[userID]
	if !ok {
		return model.ErrNotFound
	}
	a.Balance = balance
	a.UpdatedAt = time.Now()
	d.accounts[userID] = a
	return nil
}

func (d *data) InsertTransaction(_ context.Context, t model.Transaction) error {
	if t.Reference != "" {
		for _, existing := range d.txs {
			if existing.Reference == t.Reference {
				return model.ErrDuplicate
			}
		}
	}
	d.txs = append(d.txs, t)
	return nil
}

func (d *data) TransactionByReference(_ context.Context, reference string) (model.Transaction, error) {
	for _, t := range d.txs {
		if t.Reference == reference {
			return t, nil
		}
	}
	return model.Transaction{}, model.ErrNotFound
}

func (d *data) LockActiveBonus(ctx context.Context, userID string, now time.Time) (model.BonusCredit, error) {
	return d.ActiveBonus(ctx, userID, now)
}

func (d *data) RedeemBonus(_ context.Context, bonusID string) error {
	for i := range d.bonuses {
		if d.bonuses[i].ID == bonusID {
			d.bonuses[i].Status = model.BonusRedeemed
			return nil
		}
	}
	return model.ErrNotFound
}

func (d *data) InsertSlip(_ context.Context, s model.Slip) error {
	if _, ok := d.slips[s.ID]; ok {
		return model.ErrDuplicate
	}
	d.slips[s.ID] = s
	return nil
}

func (d *data) InsertLegs(_ context.Context, legs []model.Leg) error {
	for _, l := range legs {
		if _, ok := d.slips[l.SlipID]; !ok {
			return model.ErrNotFound
		}
	}
	d.legs = append(d.legs, legs...)
	return nil
}

func (d *data) LockSlip(ctx context.Context, id string) (model.Slip, error) {
	return d.GetSlip(ctx, id)
}

func (d *data) UpdateSlip(_ context.Context, s model.Slip) error {
	if _, ok := d.slips[s.ID]; !ok {
		return model.ErrNotFound
	}
	d.slips[s.ID] = s
	return nil
}

func matches(l model.Leg, sel model.LegSelector) bool {
	if l.Key() != sel.Key {
		return false
	}
	if len(sel.OutcomeIDs) == 0 {
		return true
	}
	for _, id := range sel.OutcomeIDs {
		if l.OutcomeID == id {
			return true
		}
	}
	return false
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func resolve(l *model.Leg, res model.LegResolution, at time.Time) {
	settled := at
	l.Status = res.Status
	l.Result = res.Result
	l.VoidFactor = res.VoidFactor
	l.SettledBy = res.SettledBy
	l.SettledAt = &settled
}

func (d *data) CloseLegs(_ context.Context, sel model.LegSelector, res model.LegResolution, at time.Time) ([]string, error) {
	var slips []string
	for i := range d.legs {
		l := &d.legs[i]
		if l.Status != model.LegActive || !matches(*l, sel) {
			continue
		}
		resolve(l, res, at)
		slips = appendUnique(slips, l.SlipID)
	}
	return slips, nil
}

func (d *data) CloseSlipLegs(_ context.Context, slipID string, res model.LegResolution, at time.Time) error {
	for i := range d.legs {
		if d.legs[i].SlipID == slipID {
			resolve(&d.legs[i], res, at)
		}
	}
	return nil
}

func (d *data) ReopenLegs(_ context.Context, sel model.LegSelector) ([]string, []string, error) {
	var reopened, skipped []string
	for i := range d.legs {
		l := &d.legs[i]
		if l.Status == model.LegActive || !matches(*l, sel) {
			continue
		}
		if d.slips[l.SlipID].Status != model.SlipActive {
			skipped = appendUnique(skipped, l.SlipID)
			continue
		}
		l.Status = model.LegActive
		l.Result = model.ResultPending
		l.VoidFactor = decimal.Zero
		l.SettledBy = ""
		l.SettledAt = nil
		reopened = appendUnique(reopened, l.SlipID)
	}
	return reopened, skipped, nil
}

func (d *data) UpsertMarket(_ context.Context, m model.Market) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	d.markets[marketID{key: m.MarketKey, product: m.Product}] = copyMarket(m)
	return nil
}

func (d *data) LockMarket(ctx context.Context, key model.MarketKey, product model.Product) (model.Market, error) {
	return d.GetMarket(ctx, key, product)
}

func (d *data) SetMarketsStatus(_ context.Context, fixtureID string, product model.Product, from, to model.MarketStatus) (int64, error) {
	var n int64
	for id, m := range d.markets {
		if id.key.FixtureID != fixtureID || id.product != product || m.Status != from {
			continue
		}
		m.Status = to
		m.UpdatedAt = time.Now()
		d.markets[id] = m
		n++
	}
	return n, nil
}

func (d *data) UpsertFixture(_ context.Context, f model.Fixture) error {
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now()
	}
	d.fixtures[f.ID] = f
	return nil
}

func (d *data) InsertRejection(_ context.Context, r model.Rejection) error {
	d.rejections = append(d.rejections, r)
	return nil
}

func (d *data) InsertPointTransaction(_ context.Context, p model.PointTransaction) error {
	for _, existing := range d.pointTxs {
		if existing.SlipID == p.SlipID {
			return model.ErrDuplicate
		}
	}
	d.pointTxs = append(d.pointTxs, p)
	d.points[p.UserID] += p.Points
	return nil
}
