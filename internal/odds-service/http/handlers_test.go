package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/odds-service/cache"
	"github.com/radieske/sports-wager-engine/internal/odds-service/dto"
	httpapi "github.com/radieske/sports-wager-engine/internal/odds-service/http"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/store/memory"
	wt "github.com/radieske/sports-wager-engine/internal/wagering/wagertest"
)

// memCache guarda o JSON por chave, como o Redis faria.
type memCache struct {
	entries map[string][]byte
	sets    int
}

func (c *memCache) Get(_ context.Context, f model.FixtureFilter, dst any) (bool, error) {
	b, ok := c.entries[cache.Key(f)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) Set(_ context.Context, f model.FixtureFilter, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.entries[cache.Key(f)] = b
	c.sets++
	return nil
}

func setup(t *testing.T) (*httpapi.API, *memory.Store, *memCache) {
	t.Helper()
	st := memory.New()
	tomorrow := wt.Fixture("f9", "t1")
	tomorrow.StartsAt = wt.Now.Add(24 * time.Hour)
	wt.Seed(t, st,
		[]model.Fixture{wt.Fixture("f1", "t1"), wt.Fixture("f2", "t2"), tomorrow},
		wt.Market(wt.Key("f1", "1", ""), model.ProductPreMatch, model.MarketActive,
			wt.Outcome("3", "f1-away", "4.1"), wt.Outcome("1", "f1-home", "2.0")),
		wt.Market(wt.Key("f1", "18", "total=2.5"), model.ProductLive, model.MarketSuspended,
			wt.Outcome("12", "f1-over", "1.9")),
		wt.Market(wt.Key("f2", "1", ""), model.ProductPreMatch, model.MarketActive, wt.Outcome("1", "f2-home", "1.5")),
	)
	c := &memCache{entries: map[string][]byte{}}
	return &httpapi.API{Log: zap.NewNop(), Catalog: st, Cache: c, Now: wt.Clock}, st, c
}

func get(t *testing.T, api *httpapi.API, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	api.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestListFixtures_TodayAndCached(t *testing.T) {
	api, st, c := setup(t)

	rr := get(t, api, "/v1/fixtures")
	require.Equal(t, http.StatusOK, rr.Code)
	var fixtures []dto.Fixture
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fixtures))
	require.Len(t, fixtures, 2)
	assert.Equal(t, "f1", fixtures[0].ID)
	assert.Equal(t, 1, c.sets)

	// novo registro não aparece enquanto a entrada do cache vale
	wt.Seed(t, st, []model.Fixture{wt.Fixture("f3", "t1")})
	rr = get(t, api, "/v1/fixtures")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fixtures))
	assert.Len(t, fixtures, 2)
	assert.Equal(t, 1, c.sets)

	// outro formato de consulta tem a sua própria entrada
	rr = get(t, api, "/v1/fixtures?bet_type=live")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fixtures))
	require.Len(t, fixtures, 1)
	assert.Equal(t, "f1", fixtures[0].ID)
	assert.Equal(t, 2, c.sets)

	rr = get(t, api, "/v1/fixtures?bet_type=outright")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListMarkets(t *testing.T) {
	api, _, _ := setup(t)

	rr := get(t, api, "/v1/fixtures/f1/markets")
	require.Equal(t, http.StatusOK, rr.Code)
	var markets []dto.Market
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &markets))
	require.Len(t, markets, 2)

	var prematch dto.Market
	for _, m := range markets {
		if m.MarketID == "1" {
			prematch = m
		}
	}
	require.Len(t, prematch.Outcomes, 2)
	assert.Equal(t, "1", prematch.Outcomes[0].Code)
	assert.True(t, wt.Dec("2").Equal(prematch.Outcomes[0].Odd))
	assert.Equal(t, string(model.ProductPreMatch), prematch.BetType)

	rr = get(t, api, "/v1/fixtures/missing/markets")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
