package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/odds-service/dto"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

// Catalog é a leitura de partidas e mercados (store.Queries).
type Catalog interface {
	GetFixture(ctx context.Context, id string) (model.Fixture, error)
	ListFixtures(ctx context.Context, filter model.FixtureFilter) ([]model.Fixture, error)
	ListMarketsByFixture(ctx context.Context, fixtureID string) ([]model.Market, error)
}

// ListCache guarda a listagem por formato de consulta (cache.FixtureCache).
type ListCache interface {
	Get(ctx context.Context, f model.FixtureFilter, dst any) (bool, error)
	Set(ctx context.Context, f model.FixtureFilter, v any) error
}

// API expõe os endpoints REST de consulta de partidas e odds
type API struct {
	Log     *zap.Logger
	Catalog Catalog
	Cache   ListCache
	WS      http.HandlerFunc // /ws; nil desliga
	Now     func() time.Time
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/v1/fixtures", a.listFixtures)             // Partidas do dia
	r.Get("/v1/fixtures/{id}/markets", a.listMarkets) // Mercados de uma partida
	if a.WS != nil {
		r.Get("/ws", a.WS)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// listFixtures retorna as partidas do dia (UTC), preferencialmente do cache
// Filtros opcionais: ?bet_type=prematch|live&tournament_id=
func (a *API) listFixtures(w http.ResponseWriter, r *http.Request) {
	day := a.now().UTC().Truncate(24 * time.Hour)
	filter := model.FixtureFilter{
		TournamentID: r.URL.Query().Get("tournament_id"),
		From:         day,
		To:           day.Add(24 * time.Hour),
	}
	switch strings.ToLower(r.URL.Query().Get("bet_type")) {
	case "":
	case "prematch":
		filter.Product = model.ProductPreMatch
	case "live":
		filter.Product = model.ProductLive
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid bet type"})
		return
	}

	var cached []dto.Fixture
	if ok, err := a.Cache.Get(r.Context(), filter, &cached); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	} else if err != nil {
		a.Log.Warn("fixture cache read failed", zap.Error(err))
	}

	fixtures, err := a.Catalog.ListFixtures(r.Context(), filter)
	if err != nil {
		a.Log.Error("list fixtures", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal error"})
		return
	}
	out := make([]dto.Fixture, 0, len(fixtures))
	for _, f := range fixtures {
		out = append(out, dto.NewFixture(f))
	}
	if err := a.Cache.Set(r.Context(), filter, out); err != nil {
		a.Log.Warn("fixture cache write failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, out)
}

// listMarkets retorna os mercados de uma partida, sem cache: odds mudam a todo momento
func (a *API) listMarkets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.Catalog.GetFixture(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Fixture not found"})
			return
		}
		a.Log.Error("get fixture", zap.String("fixture_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal error"})
		return
	}
	markets, err := a.Catalog.ListMarketsByFixture(r.Context(), id)
	if err != nil {
		a.Log.Error("list markets", zap.String("fixture_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal error"})
		return
	}
	out := make([]dto.Market, 0, len(markets))
	for _, m := range markets {
		out = append(out, dto.NewMarket(m))
	}
	writeJSON(w, http.StatusOK, out)
}
