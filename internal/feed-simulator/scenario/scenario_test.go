package scenario_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/sports-wager-engine/internal/feed-ingest/provider"
	"github.com/radieske/sports-wager-engine/internal/feed-simulator/scenario"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

var now = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func newScenario(seed int64) *scenario.Scenario {
	return scenario.New(seed, scenario.DefaultCatalog[:1], 3*time.Second, clock)
}

func types(msgs []events.FeedMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

func TestStep_RoundLifecycle(t *testing.T) {
	s := newScenario(42)

	var steps [][]events.FeedMessage
	for i := 0; i < 13; i++ {
		steps = append(steps, s.Step())
	}

	for i := 0; i < 3; i++ {
		require.Len(t, steps[i], 1)
		m := steps[i][0]
		assert.Equal(t, events.FeedOddsChange, m.Type)
		assert.Equal(t, "PreMatch", m.Product)
		assert.Equal(t, "MATCH_001-1", m.MatchID)
		assert.Equal(t, "brasileirao", m.TournamentID)
		require.NotNil(t, m.StartsAt)
		assert.Equal(t, now.Add(9*time.Second), *m.StartsAt)
		require.Len(t, m.Markets, 2)
		for _, fm := range m.Markets {
			for _, o := range fm.Outcomes {
				odd, err := decimal.NewFromString(o.Odd)
				require.NoError(t, err)
				assert.True(t, odd.GreaterThan(decimal.NewFromInt(1)), o.Odd)
			}
		}
	}

	assert.Equal(t, []string{events.FeedMatchStart, events.FeedOddsChange, events.FeedOddsChange}, types(steps[3]))
	assert.Equal(t, "PreMatch", steps[3][1].Product)
	for _, fm := range steps[3][1].Markets {
		assert.Equal(t, "suspended", fm.Status)
	}
	assert.Equal(t, "Live", steps[3][2].Product)
	for i := 4; i < 10; i++ {
		assert.Equal(t, []string{events.FeedOddsChange}, types(steps[i]))
		assert.Equal(t, "live", steps[i][0].Status)
	}

	require.Equal(t, []string{events.FeedMatchStop}, types(steps[10]))
	final := *steps[10][0].Score
	assert.Equal(t, final, *steps[9][0].Score)

	require.Equal(t, []string{events.FeedMarketSettle, events.FeedMarketSettle}, types(steps[11]))
	assert.Equal(t, "PreMatch", steps[11][0].Product)
	assert.Equal(t, "Live", steps[11][1].Product)
	result := steps[11][0].Markets[0]
	assert.Equal(t, scenario.MarketResult, result.MarketID)
	winner := map[bool]string{true: "W", false: "L"}
	assert.Equal(t, winner[final.Home > final.Away], result.Outcomes[0].Status)
	assert.Equal(t, winner[final.Home == final.Away], result.Outcomes[1].Status)
	assert.Equal(t, winner[final.Home < final.Away], result.Outcomes[2].Status)
	total := steps[11][0].Markets[1]
	assert.Equal(t, scenario.TotalLine, total.Specifier)
	assert.Equal(t, winner[final.Home+final.Away > 2], total.Outcomes[0].Status)

	// nova rodada com outra partida e placar zerado
	require.Len(t, steps[12], 1)
	assert.Equal(t, "MATCH_001-2", steps[12][0].MatchID)
	assert.Equal(t, "not_started", steps[12][0].Status)
}

func TestStep_Deterministic(t *testing.T) {
	a, b := newScenario(7), newScenario(7)
	for i := 0; i < 24; i++ {
		assert.Equal(t, a.Step(), b.Step())
	}
}

func TestStep_MessagesAreValidProviderXML(t *testing.T) {
	s := scenario.New(1, scenario.DefaultCatalog, 3*time.Second, clock)
	for i := 0; i < 12; i++ {
		for _, m := range s.Step() {
			raw, err := provider.Encode(m)
			require.NoError(t, err)
			back, err := provider.Decode(raw, now)
			require.NoError(t, err)
			assert.Equal(t, m.Type, back.Type)
			assert.Equal(t, m.MatchID, back.MatchID)
			assert.Equal(t, m.Product, back.Product)
			assert.Equal(t, m.Markets, back.Markets)
		}
	}
}
