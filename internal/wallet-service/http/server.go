package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/httpx"
	"github.com/radieske/sports-wager-engine/internal/wagering/ledger"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wallet-service/dto"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Ledger define as operações de carteira usadas pelo handler HTTP (ledger.Service)
type Ledger interface {
	Balance(ctx context.Context, userID string) (model.Account, error)
	History(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (model.Transaction, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal, reference string) (model.Transaction, error)
}

// Server expõe endpoints HTTP para operações de carteira (wallet)
type Server struct {
	log    *zap.Logger
	ledger Ledger
}

// NewServer instancia o servidor HTTP de wallet
func NewServer(log *zap.Logger, l Ledger) *Server { return &Server{log: log, ledger: l} }

// Router retorna as rotas da API de wallet; o usuário vem do gateway (X-User-ID)
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequireUser)
	r.Get("/wallet", s.getWallet)
	r.Get("/wallet/transactions", s.transactions) // ?limit=
	r.Post("/wallet/deposit", s.deposit)
	r.Post("/wallet/withdraw", s.withdraw)
	return r
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ledger.Balance(r.Context(), httpx.UserID(r))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.WalletResponse{UserID: acc.UserID, Balance: acc.Balance, Currency: acc.Currency})
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	txs, err := s.ledger.History(r.Context(), httpx.UserID(r), limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	out := make([]dto.TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, dto.NewTransactionResponse(t))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// deposit credita um depósito já confirmado pelo processador de pagamento
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	s.movement(w, r, "deposit:", s.ledger.Deposit)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	s.movement(w, r, "withdraw:", s.ledger.Withdraw)
}

type movementFunc func(ctx context.Context, userID string, amount decimal.Decimal, reference string) (model.Transaction, error)

func (s *Server) movement(w http.ResponseWriter, r *http.Request, prefix string, apply movementFunc) {
	var req dto.MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// prefixo separa as referências do cliente das internas (bet:, settle:, cashout:)
	ref := ""
	if req.Reference != "" {
		ref = prefix + req.Reference
	}
	t, err := apply(r.Context(), httpx.UserID(r), req.Amount, ref)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.NewTransactionResponse(t))
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		httpx.WriteError(w, http.StatusBadRequest, "Amount must be positive")
	case errors.Is(err, model.ErrInsufficientBalance):
		httpx.WriteError(w, http.StatusBadRequest, "Insufficient balance")
	case errors.Is(err, model.ErrDuplicate):
		httpx.WriteError(w, http.StatusConflict, "Reference already used")
	default:
		s.log.Error("wallet request failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "Internal error")
	}
}
