// Package scenario gera o ciclo de vida simulado das partidas: odds pré-jogo,
// início, odds ao vivo com gols, encerramento e liquidação dos mercados.
package scenario

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

type Match struct {
	ID         string
	Tournament string
	Home       string
	Away       string
}

// Catálogo fixo de partidas simuladas
var DefaultCatalog = []Match{
	{ID: "MATCH_001", Tournament: "brasileirao", Home: "Flamengo", Away: "Palmeiras"},
	{ID: "MATCH_002", Tournament: "brasileirao", Home: "Grêmio", Away: "Internacional"},
	{ID: "MATCH_003", Tournament: "brasileirao", Home: "Corinthians", Away: "Santos"},
	{ID: "MATCH_004", Tournament: "copa-do-brasil", Home: "São Paulo", Away: "Vasco"},
}

// Mercados publicados: 1X2 e total de gols 2.5.
const (
	MarketResult = "1"
	MarketTotal  = "18"
	TotalLine    = "total=2.5"
)

// Ticks de cada fase dentro de uma rodada.
const (
	tickKickoff = 3
	tickStop    = 10
	tickSettle  = 11
	roundLength = 12
)

type matchState struct {
	Match
	round     int
	tick      int
	home      int
	away      int
	strength  float64 // vantagem do mandante, [-0.15, 0.15]
	kickoffAt time.Time
}

// Scenario avança todas as partidas do catálogo a cada Step. Não é seguro
// para uso concorrente.
type Scenario struct {
	rnd      *rand.Rand
	now      func() time.Time
	interval time.Duration
	goalProb float64
	matches  []*matchState
}

// New cria o cenário. interval é o intervalo entre ticks, usado para estimar o
// horário de início enviado nas odds pré-jogo.
func New(seed int64, catalog []Match, interval time.Duration, now func() time.Time) *Scenario {
	s := &Scenario{
		rnd:      rand.New(rand.NewSource(seed)),
		now:      now,
		interval: interval,
		goalProb: 0.25,
	}
	for _, m := range catalog {
		st := &matchState{Match: m}
		s.reset(st)
		s.matches = append(s.matches, st)
	}
	return s
}

func (s *Scenario) reset(m *matchState) {
	m.round++
	m.tick = 0
	m.home, m.away = 0, 0
	m.strength = s.rnd.Float64()*0.3 - 0.15
	m.kickoffAt = s.now().UTC().Add(time.Duration(tickKickoff) * s.interval).Truncate(time.Second)
}

// MatchID identifica a partida da rodada atual (MATCH_001-1, MATCH_001-2, ...).
func (m *matchState) MatchID() string { return fmt.Sprintf("%s-%d", m.ID, m.round) }

// Step avança um tick e devolve as mensagens geradas, na ordem de envio.
func (s *Scenario) Step() []events.FeedMessage {
	var out []events.FeedMessage
	for _, m := range s.matches {
		out = append(out, s.advance(m)...)
		m.tick++
		if m.tick == roundLength {
			s.reset(m)
		}
	}
	return out
}

func (s *Scenario) advance(m *matchState) []events.FeedMessage {
	now := s.now().UTC()
	switch {
	case m.tick < tickKickoff:
		msg := s.base(m, events.FeedOddsChange, "PreMatch", "not_started", now)
		starts := m.kickoffAt
		msg.StartsAt = &starts
		msg.Markets = s.prices(m)
		return []events.FeedMessage{msg}

	case m.tick == tickKickoff:
		start := s.base(m, events.FeedMatchStart, "PreMatch", "live", now)
		start.Score = m.score()
		// pré-jogo fecha no apito inicial
		closing := s.base(m, events.FeedOddsChange, "PreMatch", "live", now)
		closing.Markets = s.prices(m)
		for i := range closing.Markets {
			closing.Markets[i].Status = "suspended"
		}
		odds := s.base(m, events.FeedOddsChange, "Live", "live", now)
		odds.Score = m.score()
		odds.MatchTime = "0:00"
		odds.Markets = s.prices(m)
		return []events.FeedMessage{start, closing, odds}

	case m.tick < tickStop:
		if s.rnd.Float64() < s.goalProb {
			if s.rnd.Float64() < 0.5+m.strength {
				m.home++
			} else {
				m.away++
			}
		}
		msg := s.base(m, events.FeedOddsChange, "Live", "live", now)
		msg.Score = m.score()
		msg.MatchTime = fmt.Sprintf("%d:00", (m.tick-tickKickoff)*15)
		msg.Markets = s.prices(m)
		return []events.FeedMessage{msg}

	case m.tick == tickStop:
		msg := s.base(m, events.FeedMatchStop, "Live", "ended", now)
		msg.Score = m.score()
		return []events.FeedMessage{msg}

	default:
		// os bilhetes guardam o produto da perna: liquida os dois
		var out []events.FeedMessage
		for _, product := range []string{"PreMatch", "Live"} {
			msg := s.base(m, events.FeedMarketSettle, product, "closed", now)
			msg.Score = m.score()
			msg.Markets = m.results()
			out = append(out, msg)
		}
		return out
	}
}

func (s *Scenario) base(m *matchState, typ, product, status string, now time.Time) events.FeedMessage {
	return events.FeedMessage{
		Type:         typ,
		MatchID:      m.MatchID(),
		Product:      product,
		TournamentID: m.Tournament,
		Status:       status,
		ReceivedAt:   now,
	}
}

func (m *matchState) score() *events.FeedScore {
	return &events.FeedScore{Home: m.home, Away: m.away}
}

// prices deriva as odds do placar e da força do mandante, com ruído e margem de 5%.
func (s *Scenario) prices(m *matchState) []events.FeedMarket {
	diff := float64(m.home - m.away)
	pHome := clamp(0.40+m.strength+0.2*diff+s.noise(), 0.05, 0.90)
	pAway := clamp(0.30-m.strength-0.2*diff+s.noise(), 0.05, 0.90)
	pDraw := clamp(1-pHome-pAway, 0.05, 0.90)

	goals := float64(m.home + m.away)
	pOver := clamp(0.50+0.15*goals+s.noise(), 0.05, 0.95)

	id := m.MatchID()
	return []events.FeedMarket{
		{
			MarketID: MarketResult, Status: "active",
			Outcomes: []events.FeedOutcome{
				{Code: "1", OutcomeID: id + "-home", Odd: price(pHome, pHome+pDraw+pAway)},
				{Code: "2", OutcomeID: id + "-draw", Odd: price(pDraw, pHome+pDraw+pAway)},
				{Code: "3", OutcomeID: id + "-away", Odd: price(pAway, pHome+pDraw+pAway)},
			},
		},
		{
			MarketID: MarketTotal, Specifier: TotalLine, Status: "active",
			Outcomes: []events.FeedOutcome{
				{Code: "12", OutcomeID: id + "-over", Odd: price(pOver, 1)},
				{Code: "13", OutcomeID: id + "-under", Odd: price(1-pOver, 1)},
			},
		},
	}
}

// results monta a liquidação a partir do placar final.
func (m *matchState) results() []events.FeedMarket {
	res := func(win bool) string {
		if win {
			return "W"
		}
		return "L"
	}
	over := m.home+m.away > 2
	id := m.MatchID()
	return []events.FeedMarket{
		{
			MarketID: MarketResult,
			Outcomes: []events.FeedOutcome{
				{Code: "1", OutcomeID: id + "-home", Status: res(m.home > m.away)},
				{Code: "2", OutcomeID: id + "-draw", Status: res(m.home == m.away)},
				{Code: "3", OutcomeID: id + "-away", Status: res(m.home < m.away)},
			},
		},
		{
			MarketID: MarketTotal, Specifier: TotalLine,
			Outcomes: []events.FeedOutcome{
				{Code: "12", OutcomeID: id + "-over", Status: res(over)},
				{Code: "13", OutcomeID: id + "-under", Status: res(!over)},
			},
		},
	}
}

func (s *Scenario) noise() float64 { return (s.rnd.Float64() - 0.5) * 0.04 }

// price converte a probabilidade normalizada em odd decimal com margem.
func price(p, total float64) string {
	odd := decimal.NewFromFloat(total / (p * 1.05)).Round(2)
	if floor := decimal.RequireFromString("1.01"); odd.LessThan(floor) {
		odd = floor
	}
	return odd.StringFixed(2)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
