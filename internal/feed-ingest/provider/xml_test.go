package provider_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/sports-wager-engine/internal/feed-ingest/provider"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

var received = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func TestDecode_OddsChange(t *testing.T) {
	raw := `<odds_change event_id="m1" product="live" tournament_id="t1" start_time="2026-03-14T18:00:00Z">
  <sport_event_status status="live" home_score="1" away_score="0" match_time="35:00"/>
  <odds>
    <market id="1" status="active">
      <outcome id="1" outcome_id="m1-home" odds="1.85"/>
      <outcome id="2" outcome_id="m1-draw" odds="3.40"/>
    </market>
    <market id="18" specifiers="total=2.5" status="suspended">
      <outcome id="12" outcome_id="m1-over" odds="2.05"/>
    </market>
  </odds>
</odds_change>`

	msg, err := provider.Decode([]byte(raw), received)
	require.NoError(t, err)
	assert.Equal(t, events.FeedOddsChange, msg.Type)
	assert.Equal(t, "m1", msg.MatchID)
	assert.Equal(t, "Live", msg.Product)
	assert.Equal(t, "t1", msg.TournamentID)
	assert.Equal(t, "live", msg.Status)
	require.NotNil(t, msg.Score)
	assert.Equal(t, events.FeedScore{Home: 1, Away: 0}, *msg.Score)
	assert.Equal(t, "35:00", msg.MatchTime)
	require.NotNil(t, msg.StartsAt)
	assert.Equal(t, 18, msg.StartsAt.Hour())
	assert.Equal(t, received, msg.ReceivedAt)

	require.Len(t, msg.Markets, 2)
	assert.Equal(t, "total=2.5", msg.Markets[1].Specifier)
	assert.Equal(t, "suspended", msg.Markets[1].Status)
	require.Len(t, msg.Markets[0].Outcomes, 2)
	assert.Equal(t, events.FeedOutcome{Code: "1", OutcomeID: "m1-home", Odd: "1.85"}, msg.Markets[0].Outcomes[0])
}

func TestDecode_Settlement(t *testing.T) {
	raw := `<bet_settlement event_id="m1" product="prematch">
  <outcomes>
    <market id="1">
      <outcome id="1" outcome_id="m1-home" result="w"/>
      <outcome id="2" outcome_id="m1-draw" result="L"/>
      <outcome id="3" outcome_id="m1-away" result="L" void_factor="0.5"/>
    </market>
  </outcomes>
</bet_settlement>`

	msg, err := provider.Decode([]byte(raw), received)
	require.NoError(t, err)
	assert.Equal(t, events.FeedMarketSettle, msg.Type)
	assert.Equal(t, "PreMatch", msg.Product)
	assert.Nil(t, msg.Score)
	require.Len(t, msg.Markets, 1)
	outs := msg.Markets[0].Outcomes
	require.Len(t, outs, 3)
	assert.Equal(t, "W", outs[0].Status)
	assert.Equal(t, "0.5", outs[2].VoidFactor)
}

func TestDecode_TypesAndErrors(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`<bet_stop event_id="m1"/>`, events.FeedMatchStop},
		{`<match_start event_id="m1"/>`, events.FeedMatchStart},
		{`<bet_cancel event_id="m1"><market id="1"><outcome id="1" outcome_id="x"/></market></bet_cancel>`, events.FeedCancelOutcome},
		{`<rollback_bet_settlement event_id="m1"><market id="1"/></rollback_bet_settlement>`, events.FeedRollback},
	}
	for _, tc := range cases {
		msg, err := provider.Decode([]byte(tc.raw), received)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, msg.Type)
	}

	_, err := provider.Decode([]byte(`<alive product="1"/>`), received)
	assert.ErrorIs(t, err, provider.ErrUnsupported)

	_, err = provider.Decode([]byte(`<odds_change/>`), received)
	assert.Error(t, err)

	_, err = provider.Decode([]byte(`not xml`), received)
	assert.Error(t, err)
}

func TestEncode_ReadableByDecode(t *testing.T) {
	starts := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	in := events.FeedMessage{
		Type:         events.FeedOddsChange,
		MatchID:      "m1",
		Product:      "PreMatch",
		TournamentID: "t1",
		Status:       "not_started",
		Score:        &events.FeedScore{Home: 0, Away: 0},
		StartsAt:     &starts,
		Markets: []events.FeedMarket{{
			MarketID: "1", Status: "active",
			Outcomes: []events.FeedOutcome{{Code: "1", OutcomeID: "m1-1", Odd: "2.10"}},
		}},
	}
	raw, err := provider.Encode(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `<odds_change event_id="m1" product="prematch"`)

	out, err := provider.Decode(raw, received)
	require.NoError(t, err)
	in.ReceivedAt = received
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Product, out.Product)
	assert.Equal(t, in.Markets, out.Markets)
	require.NotNil(t, out.Score)
	assert.Equal(t, *in.Score, *out.Score)
	assert.True(t, starts.Equal(*out.StartsAt))

	_, err = provider.Encode(events.FeedMessage{Type: "unknown"})
	assert.ErrorIs(t, err, provider.ErrUnsupported)
}
