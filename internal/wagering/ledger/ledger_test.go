package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/pubsub"
	"github.com/radieske/sports-wager-engine/internal/wagering/ledger"
	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
	"github.com/radieske/sports-wager-engine/internal/wagering/store/memory"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestService_DepositWithdraw(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	rec := &pubsub.Recorder{}
	svc := ledger.NewService(zap.NewNop(), st, rec)

	dep, err := svc.Deposit(ctx, "u1", d("100"), "dep-1")
	require.NoError(t, err)
	assert.True(t, dep.BalanceBefore.IsZero())
	assert.True(t, d("100").Equal(dep.BalanceAfter))

	wd, err := svc.Withdraw(ctx, "u1", d("30.50"), "wd-1")
	require.NoError(t, err)
	assert.True(t, d("100").Equal(wd.BalanceBefore))
	assert.True(t, d("69.50").Equal(wd.BalanceAfter))

	acc, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(wd.BalanceAfter))

	history, err := svc.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.CategoryWithdraw, history[0].Category)

	assert.Len(t, rec.OfType(events.TypeBalanceChanged), 2)
}

func TestService_WithdrawInsufficient(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := ledger.NewService(zap.NewNop(), st, &pubsub.Recorder{})

	_, err := svc.Deposit(ctx, "u1", d("10"), "")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, "u1", d("10.01"), "")
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	acc, _ := svc.Balance(ctx, "u1")
	assert.True(t, d("10").Equal(acc.Balance))
}

func TestPost_IdempotentByReference(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	post := func() model.Transaction {
		var out model.Transaction
		require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
			var err error
			out, err = ledger.Post(ctx, tx, ledger.Entry{
				UserID: "u1", Amount: d("50"), Category: model.CategoryWin, Reference: "settle:s1",
			}, testNow)
			return err
		}))
		return out
	}

	first := post()
	second := post()
	assert.Equal(t, first.ID, second.ID)

	acc, err := st.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d("50").Equal(acc.Balance))
}

func TestPost_RejectsNonPositive(t *testing.T) {
	st := memory.New()
	err := st.InTx(context.Background(), func(tx store.Tx) error {
		_, err := ledger.Post(context.Background(), tx, ledger.Entry{UserID: "u1", Amount: decimal.Zero, Category: model.CategoryDeposit}, testNow)
		return err
	})
	assert.True(t, errors.Is(err, ledger.ErrInvalidAmount))
}

func TestPost_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := ledger.NewService(zap.NewNop(), st, &pubsub.Recorder{})
	_, err := svc.Deposit(ctx, "u1", d("100"), "")
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Withdraw(ctx, "u1", d("10"), ""); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	acc, _ := svc.Balance(ctx, "u1")
	assert.True(t, acc.Balance.IsZero())

	discrepancies, err := st.LedgerDiscrepancies(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}
