// Package gateway expõe as APIs públicas sob /api e repassa cada prefixo ao
// serviço dono da rota.
package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/httpx"
)

type Targets struct {
	Odds   string
	Wallet string
	Bet    string
}

func proxy(log *zap.Logger, name, to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("gateway: invalid %s url %q", name, to)
	}
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("upstream failed", zap.String("upstream", name), zap.String("path", r.URL.Path), zap.Error(err))
		httpx.WriteError(w, http.StatusBadGateway, "Service unavailable")
	}
	return rp, nil
}

// New monta o roteamento:
//
//	/api/odds/*   -> odds-service   (sem o prefixo /api/odds, inclui /ws)
//	/api/wallet/* -> wallet-service (sem /api)
//	/api/bets/*   -> bet-service    (sem /api)
func New(log *zap.Logger, t Targets) (http.Handler, error) {
	odds, err := proxy(log, "odds", t.Odds)
	if err != nil {
		return nil, err
	}
	wallet, err := proxy(log, "wallet", t.Wallet)
	if err != nil {
		return nil, err
	}
	bet, err := proxy(log, "bet", t.Bet)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Mount("/api/odds", http.StripPrefix("/api/odds", odds))
	r.Mount("/api/wallet", http.StripPrefix("/api", wallet))
	r.Mount("/api/bets", http.StripPrefix("/api", bet))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "Route not found")
	})
	return r, nil
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+httpx.UserHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
