// Package ledger aplica débitos e créditos no saldo do usuário, sempre em par
// com um lançamento imutável (saldo antes/depois).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/pubsub"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/payout"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

var ErrInvalidAmount = errors.New("amount must be positive")

// Entry é um pedido de lançamento. Reference, quando presente, é única no ledger.
type Entry struct {
	UserID    string
	Amount    decimal.Decimal
	Category  model.TxCategory
	Reference string
}

// Post aplica o lançamento dentro de tx: bloqueia a conta, valida o saldo em
// débitos, grava o lançamento e o novo saldo. Uma referência já lançada
// devolve o lançamento existente sem alterar o saldo.
func Post(ctx context.Context, tx store.Tx, e Entry, now time.Time) (model.Transaction, error) {
	amount := payout.Money(e.Amount)
	if !amount.IsPositive() {
		return model.Transaction{}, ErrInvalidAmount
	}
	if e.Reference != "" {
		existing, err := tx.TransactionByReference(ctx, e.Reference)
		if err == nil {
			if existing.UserID != e.UserID || existing.Category != e.Category {
				return model.Transaction{}, fmt.Errorf("ledger: reference %s: %w", e.Reference, model.ErrDuplicate)
			}
			return existing, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return model.Transaction{}, fmt.Errorf("ledger: lookup reference: %w", err)
		}
	}

	acc, err := tx.LockAccount(ctx, e.UserID)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("ledger: lock account: %w", err)
	}

	after := acc.Balance.Add(amount)
	if e.Category.Debit() {
		if amount.GreaterThan(acc.Balance) {
			return model.Transaction{}, model.ErrInsufficientBalance
		}
		after = acc.Balance.Sub(amount)
	}

	t := model.Transaction{
		ID:            uuid.NewString(),
		UserID:        e.UserID,
		BalanceBefore: acc.Balance,
		BalanceAfter:  after,
		Amount:        amount,
		Category:      e.Category,
		Status:        model.TxCompleted,
		Currency:      acc.Currency,
		Reference:     e.Reference,
		CreatedAt:     now,
	}
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return model.Transaction{}, fmt.Errorf("ledger: insert transaction: %w", err)
	}
	if err := tx.UpdateBalance(ctx, e.UserID, after); err != nil {
		return model.Transaction{}, fmt.Errorf("ledger: update balance: %w", err)
	}
	return t, nil
}

// BalanceEvent monta o update de saldo para um lançamento efetivado.
func BalanceEvent(t model.Transaction) events.Update {
	return events.Update{
		Type:  events.TypeBalanceChanged,
		Topic: events.UserTopic(t.UserID),
		Payload: events.BalanceChanged{
			UserID:    t.UserID,
			Balance:   t.BalanceAfter.StringFixed(2),
			Amount:    t.Amount.StringFixed(2),
			Category:  string(t.Category),
			Reference: t.Reference,
			Ts:        t.CreatedAt,
		},
	}
}

// Service expõe o ledger para a carteira: saldo, extrato, depósito e saque.
type Service struct {
	log   *zap.Logger
	store store.Store
	pub   pubsub.Publisher
	now   func() time.Time
}

func NewService(log *zap.Logger, st store.Store, pub pubsub.Publisher) *Service {
	return &Service{log: log, store: st, pub: pub, now: time.Now}
}

// Balance retorna a conta; usuário sem conta tem saldo zero.
func (s *Service) Balance(ctx context.Context, userID string) (model.Account, error) {
	acc, err := s.store.GetAccount(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Account{UserID: userID, Balance: decimal.Zero, Currency: model.DefaultCurrency}, nil
	}
	return acc, err
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	return s.store.ListTransactions(ctx, userID, limit)
}

// Deposit credita um depósito já concluído pelo processador de pagamento.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (model.Transaction, error) {
	return s.post(ctx, Entry{UserID: userID, Amount: amount, Category: model.CategoryDeposit, Reference: reference})
}

// Withdraw debita um saque; falha com ErrInsufficientBalance se não houver saldo.
func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, reference string) (model.Transaction, error) {
	return s.post(ctx, Entry{UserID: userID, Amount: amount, Category: model.CategoryWithdraw, Reference: reference})
}

func (s *Service) post(ctx context.Context, e Entry) (model.Transaction, error) {
	var t model.Transaction
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		t, err = Post(ctx, tx, e, s.now().UTC())
		return err
	})
	if err != nil {
		return model.Transaction{}, err
	}
	if err := s.pub.Publish(ctx, BalanceEvent(t)); err != nil {
		s.log.Warn("balance update publish failed", zap.String("user_id", t.UserID), zap.Error(err))
	}
	return t, nil
}
