package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testAccount = "ACC001"

func newTestService(t *testing.T) *Service {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "balances.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Balance{}, &Transaction{}))

	return NewService(db)
}

func seedAccount(t *testing.T, s *Service, accountNumber string, amount float64) {
	t.Helper()

	err := s.db.db.Create(&Balance{
		AccountNumber:    accountNumber,
		Balance:          amount,
		AvailableBalance: amount,
		Currency:         "BRL",
	}).Error
	require.NoError(t, err)
}

func TestGetBalance(t *testing.T) {
	service := newTestService(t)
	seedAccount(t, service, testAccount, 50000)
	ctx := context.Background()

	balance, err := service.GetBalance(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, testAccount, balance.AccountNumber)
	require.Equal(t, 50000.0, balance.AvailableBalance)

	_, err = service.GetBalance(ctx, "ACC999")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestWithdrawAndDeposit(t *testing.T) {
	service := newTestService(t)
	seedAccount(t, service, testAccount, 1000)
	ctx := context.Background()

	balance, txn, err := service.Withdraw(ctx, testAccount, 400, "test debit", "")
	require.NoError(t, err)
	require.Equal(t, 600.0, balance.Balance)
	require.Equal(t, 600.0, balance.AvailableBalance)
	require.Equal(t, TypeWithdrawal, txn.Type)
	require.Equal(t, 400.0, txn.Amount)
	require.Equal(t, "completed", txn.Status)
	require.NotEmpty(t, txn.TransactionID)

	balance, txn, err = service.Deposit(ctx, testAccount, 150, "test credit", "")
	require.NoError(t, err)
	require.Equal(t, 750.0, balance.AvailableBalance)
	require.Equal(t, TypeDeposit, txn.Type)

	// Every movement leaves exactly one ledger entry
	transactions, err := service.ListTransactions(ctx, testAccount, 50)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	service := newTestService(t)
	seedAccount(t, service, testAccount, 100)
	ctx := context.Background()

	_, _, err := service.Withdraw(ctx, testAccount, 100.01, "too much", "")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// The failed debit must leave no trace in either table
	balance, err := service.GetBalance(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, 100.0, balance.AvailableBalance)

	transactions, err := service.ListTransactions(ctx, testAccount, 50)
	require.NoError(t, err)
	require.Empty(t, transactions)
}

func TestWithdrawExactBalance(t *testing.T) {
	service := newTestService(t)
	seedAccount(t, service, testAccount, 250)
	ctx := context.Background()

	balance, _, err := service.Withdraw(ctx, testAccount, 250, "drain", "")
	require.NoError(t, err)
	require.Equal(t, 0.0, balance.AvailableBalance)
}

func TestMovementUnknownAccount(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, _, err := service.Withdraw(ctx, "ACC999", 10, "", "")
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, _, err = service.Deposit(ctx, "ACC999", 10, "", "")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestMovementInvalidAmount(t *testing.T) {
	service := newTestService(t)
	seedAccount(t, service, testAccount, 100)
	ctx := context.Background()

	_, _, err := service.Withdraw(ctx, testAccount, 0, "", "")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = service.Withdraw(ctx, testAccount, -50, "", "")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = service.Deposit(ctx, testAccount, -50, "", "")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestIdempotentReplay(t *testing.T) {
	service := newTestService(t)
	seedAccount(t, service, testAccount, 1000)
	ctx := context.Background()

	const reference = "order-123"

	_, first, err := service.Withdraw(ctx, testAccount, 300, "buy order", reference)
	require.NoError(t, err)

	// A replay under the same reference returns the recorded entry and does
	// not debit again
	balance, replayed, err := service.Withdraw(ctx, testAccount, 300, "buy order", reference)
	require.NoError(t, err)
	require.Equal(t, first.TransactionID, replayed.TransactionID)
	require.Equal(t, 700.0, balance.AvailableBalance)

	transactions, err := service.ListTransactions(ctx, testAccount, 50)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
}

func TestFindTransaction(t *testing.T) {
	service := newTestService(t)
	seedAccount(t, service, testAccount, 1000)
	ctx := context.Background()

	found, err := service.FindTransaction(ctx, testAccount, "order-1")
	require.NoError(t, err)
	require.Nil(t, found)

	_, txn, err := service.Withdraw(ctx, testAccount, 100, "buy", "order-1")
	require.NoError(t, err)

	found, err = service.FindTransaction(ctx, testAccount, "order-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, txn.TransactionID, found.TransactionID)

	// Deposits are found under their reference too
	_, txn, err = service.Deposit(ctx, testAccount, 100, "sell", "order-2")
	require.NoError(t, err)

	found, err = service.FindTransaction(ctx, testAccount, "order-2")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, txn.TransactionID, found.TransactionID)
}

func TestConcurrentWithdrawals(t *testing.T) {
	service := newTestService(t)
	seedAccount(t, service, testAccount, 1000)
	ctx := context.Background()

	// 20 concurrent debits of 100 against a balance of 1000: exactly 10 can
	// succeed and the balance must land on zero, never below
	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := service.Withdraw(ctx, testAccount, 100, "concurrent", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInsufficientFunds)
		}
	}
	require.Equal(t, 10, succeeded)

	balance, err := service.GetBalance(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, 0.0, balance.AvailableBalance)

	transactions, err := service.ListTransactions(ctx, testAccount, 50)
	require.NoError(t, err)
	require.Len(t, transactions, 10)
}

func TestListTransactionsNewestFirstWithLimit(t *testing.T) {
	service := newTestService(t)
	seedAccount(t, service, testAccount, 1000)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, _, err := service.Deposit(ctx, testAccount, float64(i), fmt.Sprintf("deposit %d", i), "")
		require.NoError(t, err)
	}

	transactions, err := service.ListTransactions(ctx, testAccount, 3)
	require.NoError(t, err)
	require.Len(t, transactions, 3)
	require.Equal(t, 5.0, transactions[0].Amount)
	require.Equal(t, 4.0, transactions[1].Amount)
	require.Equal(t, 3.0, transactions[2].Amount)
}

func TestSeedDefaultBalances(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.SeedDefaultBalances(ctx))

	// Seeding twice must not duplicate or reset accounts
	_, _, err := service.Withdraw(ctx, "ACC001", 10000, "spend", "")
	require.NoError(t, err)
	require.NoError(t, service.SeedDefaultBalances(ctx))

	balance, err := service.GetBalance(ctx, "ACC001")
	require.NoError(t, err)
	require.Equal(t, 40000.0, balance.AvailableBalance)

	balance, err = service.GetBalance(ctx, "ACC003")
	require.NoError(t, err)
	require.Equal(t, 15000.0, balance.AvailableBalance)
}
