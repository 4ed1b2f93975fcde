package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/bet-service/dto"
	"github.com/radieske/sports-wager-engine/internal/shared/httpx"
	"github.com/radieske/sports-wager-engine/internal/wagering/builder"
	"github.com/radieske/sports-wager-engine/internal/wagering/cashout"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/risk"
)

// Placer cria bilhetes (builder.Builder).
type Placer interface {
	Place(ctx context.Context, req builder.PlaceRequest) (model.Slip, error)
}

// Cashouts cota e executa cashout (cashout.Engine).
type Cashouts interface {
	Quote(ctx context.Context, slipID string) (cashout.Quote, error)
	Execute(ctx context.Context, slipID, userID string) (model.Slip, error)
}

// Slips é a leitura de bilhetes usada por GET /bets/{id}.
type Slips interface {
	GetSlip(ctx context.Context, id string) (model.Slip, error)
	ListLegs(ctx context.Context, slipID string) ([]model.Leg, error)
}

// Server expõe a API pública de apostas.
type Server struct {
	log     *zap.Logger
	placer  Placer
	cashout Cashouts
	slips   Slips
	limiter *httpx.UserLimiter
}

func NewServer(log *zap.Logger, p Placer, c Cashouts, s Slips, limiter *httpx.UserLimiter) *Server {
	return &Server{log: log, placer: p, cashout: c, slips: s, limiter: limiter}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequireUser)

	r.Get("/bets/{id}", s.getBet)
	r.Get("/bets/{id}/cashout", s.quoteCashout)
	r.Group(func(r chi.Router) {
		// escrita limitada por usuário
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Post("/bets", s.placeBet)
		r.Post("/bets/{id}/cashout", s.executeCashout)
	})
	return r
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	legs := make([]builder.LegRequest, 0, len(req.Bets))
	for _, b := range req.Bets {
		product, ok := b.Product()
		if !ok {
			httpx.WriteError(w, http.StatusBadRequest, "Invalid bet type")
			return
		}
		legs = append(legs, builder.LegRequest{
			FixtureID: b.FixtureID,
			MarketID:  b.MarketIdentifier,
			Specifier: b.Specifier,
			OutcomeID: b.OutcomeID,
			Product:   product,
		})
	}

	slip, err := s.placer.Place(r.Context(), builder.PlaceRequest{
		UserID: httpx.UserID(r),
		Stake:  req.Stake,
		Bonus:  req.Bonus,
		Legs:   legs,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dto.PlaceBetResponse{BetSlipID: slip.ID})
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	slip, ok := s.ownedSlip(w, r)
	if !ok {
		return
	}
	legs, err := s.slips.ListLegs(r.Context(), slip.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.NewSlipResponse(slip, legs))
}

func (s *Server) quoteCashout(w http.ResponseWriter, r *http.Request) {
	slip, ok := s.ownedSlip(w, r)
	if !ok {
		return
	}
	q, err := s.cashout.Quote(r.Context(), slip.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.NewCashoutResponse(q))
}

func (s *Server) executeCashout(w http.ResponseWriter, r *http.Request) {
	slip, err := s.cashout.Execute(r.Context(), chi.URLParam(r, "id"), httpx.UserID(r))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	legs, err := s.slips.ListLegs(r.Context(), slip.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.NewSlipResponse(slip, legs))
}

// ownedSlip carrega o bilhete do path e confere o dono; escreve o erro quando falha.
func (s *Server) ownedSlip(w http.ResponseWriter, r *http.Request) (model.Slip, bool) {
	slip, err := s.slips.GetSlip(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, err)
		return model.Slip{}, false
	}
	if slip.UserID != httpx.UserID(r) {
		s.writeErr(w, model.ErrForbidden)
		return model.Slip{}, false
	}
	return slip, true
}

// writeErr traduz erros de domínio nas mensagens estáveis da API.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status, msg := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("bet request failed", zap.Error(err))
	}
	httpx.WriteError(w, status, msg)
}

// StatusFor mapeia um erro para status HTTP e mensagem ao usuário.
func StatusFor(err error) (int, string) {
	var denial *risk.Denial
	var rangeErr *builder.StakeRangeError
	switch {
	case errors.As(err, &rangeErr):
		return http.StatusBadRequest, rangeErr.Error()
	case errors.As(err, &denial):
		return http.StatusBadRequest, denial.Error()
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusBadRequest, "Insufficient balance"
	case errors.Is(err, model.ErrStaleOdds):
		return http.StatusBadRequest, "One of the bets has changed odds or is no longer available"
	case errors.Is(err, model.ErrNoActiveBonus):
		return http.StatusBadRequest, "No active bonus"
	case errors.Is(err, model.ErrInsufficientBonus):
		return http.StatusBadRequest, "Stake exceeds the available bonus"
	case errors.Is(err, model.ErrInvalidLeg):
		return http.StatusBadRequest, "Invalid bet selection"
	case errors.Is(err, model.ErrCashoutUnavailable):
		return http.StatusBadRequest, "Cashout is not available"
	case errors.Is(err, model.ErrSlipNotActive):
		return http.StatusBadRequest, "Bet is already settled"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "Bet not found"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "Bet belongs to another user"
	}
	return http.StatusInternalServerError, "Internal error"
}
