// Package provider decodifica as mensagens XML do fornecedor de odds para o
// formato normalizado events.FeedMessage.
package provider

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// ErrUnsupported indica um elemento raiz que o motor não consome (alive, snapshot_complete, ...).
var ErrUnsupported = errors.New("provider: unsupported message")

// rootElements é o elemento usado na escrita de cada tipo normalizado.
var rootElements = map[string]string{
	events.FeedOddsChange:    "odds_change",
	events.FeedMatchStart:    "match_start",
	events.FeedMatchStop:     "bet_stop",
	events.FeedMarketSettle:  "bet_settlement",
	events.FeedCancelOutcome: "bet_cancel",
	events.FeedRollback:      "rollback_bet_settlement",
}

// Elementos raiz do fornecedor -> tipo normalizado.
var messageTypes = map[string]string{
	"odds_change":             events.FeedOddsChange,
	"match_start":             events.FeedMatchStart,
	"bet_start":               events.FeedMatchStart,
	"bet_stop":                events.FeedMatchStop,
	"bet_settlement":          events.FeedMarketSettle,
	"bet_cancel":              events.FeedCancelOutcome,
	"rollback_bet_settlement": events.FeedRollback,
}

type xmlMessage struct {
	XMLName      xml.Name
	EventID      string      `xml:"event_id,attr"`
	Product      string      `xml:"product,attr,omitempty"`
	TournamentID string      `xml:"tournament_id,attr,omitempty"`
	StartTime    string      `xml:"start_time,attr,omitempty"`
	Status       *xmlStatus  `xml:"sport_event_status"`
	Odds         []xmlMarket `xml:"odds>market"`
	Outcomes     []xmlMarket `xml:"outcomes>market"`
	Markets      []xmlMarket `xml:"market"`
}

type xmlStatus struct {
	Status    string `xml:"status,attr,omitempty"`
	HomeScore *int   `xml:"home_score,attr"`
	AwayScore *int   `xml:"away_score,attr"`
	MatchTime string `xml:"match_time,attr,omitempty"`
}

type xmlMarket struct {
	ID         string       `xml:"id,attr"`
	Specifiers string       `xml:"specifiers,attr,omitempty"`
	Status     string       `xml:"status,attr,omitempty"`
	Outcomes   []xmlOutcome `xml:"outcome"`
}

type xmlOutcome struct {
	ID         string `xml:"id,attr"`
	OutcomeID  string `xml:"outcome_id,attr,omitempty"`
	Odds       string `xml:"odds,attr,omitempty"`
	Result     string `xml:"result,attr,omitempty"`
	VoidFactor string `xml:"void_factor,attr,omitempty"`
}

// Decode converte uma mensagem do fornecedor. receivedAt é carimbado na mensagem.
func Decode(raw []byte, receivedAt time.Time) (events.FeedMessage, error) {
	var m xmlMessage
	if err := xml.Unmarshal(raw, &m); err != nil {
		return events.FeedMessage{}, fmt.Errorf("provider: decode xml: %w", err)
	}
	typ, ok := messageTypes[m.XMLName.Local]
	if !ok {
		return events.FeedMessage{}, fmt.Errorf("%w: %s", ErrUnsupported, m.XMLName.Local)
	}
	if m.EventID == "" {
		return events.FeedMessage{}, fmt.Errorf("provider: %s without event_id", m.XMLName.Local)
	}

	out := events.FeedMessage{
		Type:         typ,
		MatchID:      m.EventID,
		Product:      product(m.Product),
		TournamentID: m.TournamentID,
		ReceivedAt:   receivedAt.UTC(),
	}
	if m.StartTime != "" {
		t, err := time.Parse(time.RFC3339, m.StartTime)
		if err != nil {
			return events.FeedMessage{}, fmt.Errorf("provider: start_time %q: %w", m.StartTime, err)
		}
		out.StartsAt = &t
	}
	if s := m.Status; s != nil {
		out.Status = s.Status
		out.MatchTime = s.MatchTime
		if s.HomeScore != nil && s.AwayScore != nil {
			out.Score = &events.FeedScore{Home: *s.HomeScore, Away: *s.AwayScore}
		}
	}

	all := append(append(m.Odds, m.Outcomes...), m.Markets...)
	for _, xm := range all {
		fm := events.FeedMarket{MarketID: xm.ID, Specifier: xm.Specifiers, Status: xm.Status}
		for _, xo := range xm.Outcomes {
			fm.Outcomes = append(fm.Outcomes, events.FeedOutcome{
				Code:       xo.ID,
				OutcomeID:  xo.OutcomeID,
				Odd:        xo.Odds,
				Status:     strings.ToUpper(xo.Result),
				VoidFactor: xo.VoidFactor,
			})
		}
		out.Markets = append(out.Markets, fm)
	}
	return out, nil
}

// Encode escreve a mensagem no formato do fornecedor (usado pelo simulador de feed).
func Encode(m events.FeedMessage) ([]byte, error) {
	root, ok := rootElements[m.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, m.Type)
	}
	out := xmlMessage{
		XMLName:      xml.Name{Local: root},
		EventID:      m.MatchID,
		Product:      strings.ToLower(m.Product),
		TournamentID: m.TournamentID,
	}
	if m.StartsAt != nil {
		out.StartTime = m.StartsAt.UTC().Format(time.RFC3339)
	}
	if m.Status != "" || m.Score != nil || m.MatchTime != "" {
		st := &xmlStatus{Status: m.Status, MatchTime: m.MatchTime}
		if m.Score != nil {
			home, away := m.Score.Home, m.Score.Away
			st.HomeScore, st.AwayScore = &home, &away
		}
		out.Status = st
	}

	markets := make([]xmlMarket, 0, len(m.Markets))
	for _, fm := range m.Markets {
		xm := xmlMarket{ID: fm.MarketID, Specifiers: fm.Specifier, Status: fm.Status}
		for _, o := range fm.Outcomes {
			xm.Outcomes = append(xm.Outcomes, xmlOutcome{
				ID: o.Code, OutcomeID: o.OutcomeID, Odds: o.Odd, Result: o.Status, VoidFactor: o.VoidFactor,
			})
		}
		markets = append(markets, xm)
	}
	switch m.Type {
	case events.FeedOddsChange:
		out.Odds = markets
	case events.FeedMarketSettle:
		out.Outcomes = markets
	default:
		out.Markets = markets
	}
	return xml.Marshal(out)
}

// product aceita os apelidos do fornecedor; valor desconhecido segue cru e o
// processador descarta.
func product(p string) string {
	switch strings.ToLower(p) {
	case "":
		return ""
	case "prematch", "pre", "3":
		return "PreMatch"
	case "live", "1":
		return "Live"
	}
	return p
}
