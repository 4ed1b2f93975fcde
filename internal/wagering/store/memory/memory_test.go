package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
	"github.com/radieske/sports-wager-engine/internal/wagering/store/memory"
)

func leg(id, slipID, outcomeID string, status model.LegStatus) model.Leg {
	return model.Leg{
		ID: id, SlipID: slipID, UserID: "u1", FixtureID: "f1", MarketID: "1", OutcomeID: outcomeID,
		Status: status, Result: model.ResultPending,
	}
}

func TestSlipsAwaitingSettlement(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		for _, s := range []model.Slip{
			{ID: "s-open", UserID: "u1", Status: model.SlipActive},
			{ID: "s-pending", UserID: "u1", Status: model.SlipActive},
			{ID: "s-done", UserID: "u1", Status: model.SlipClosed},
			{ID: "s-other", UserID: "u1", Status: model.SlipActive},
		} {
			if err := tx.InsertSlip(ctx, s); err != nil {
				return err
			}
		}
		return tx.InsertLegs(ctx, []model.Leg{
			leg("l1", "s-open", "home", model.LegActive),
			leg("l2", "s-pending", "home", model.LegClosed),
			leg("l3", "s-pending", "draw", model.LegClosed),
			leg("l4", "s-done", "home", model.LegClosed),
			leg("l5", "s-other", "away", model.LegCancelled),
		})
	}))

	key := model.MarketKey{FixtureID: "f1", MarketID: "1"}
	ids, err := st.SlipsAwaitingSettlement(ctx, model.LegSelector{Key: key})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s-pending", "s-other"}, ids)

	ids, err = st.SlipsAwaitingSettlement(ctx, model.LegSelector{Key: key, OutcomeIDs: []string{"home"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"s-pending"}, ids)

	ids, err = st.SlipsAwaitingSettlement(ctx, model.LegSelector{Key: model.MarketKey{FixtureID: "f2", MarketID: "1"}})
	require.NoError(t, err)
	assert.Empty(t, ids)
}
