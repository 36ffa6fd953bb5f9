// Package trading implements the order coordinator: it validates buy and
// sell requests, persists the order intent, and drives the ledger and
// holdings legs as a saga with explicit compensation. The two stores own
// independent databases, so the coordinator never reports an order executed
// unless both legs committed, and either compensates or durably marks the
// order for reconciliation when a leg fails mid-flight.
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/aiecon/banking-api/internal/holdings"
	"github.com/aiecon/banking-api/internal/ledger"
	"github.com/aiecon/banking-api/pkg/accountlock"
)

var (
	ErrInvalidOrder      = errors.New("invalid quantity or price")
	ErrOrderNotFound     = errors.New("order not found")
	ErrDependencyFailure = errors.New("dependency failure")
)

const (
	defaultOrderLimit  = 20
	defaultCallTimeout = 5 * time.Second
)

// LedgerStore is the coordinator's view of the ledger service.
type LedgerStore interface {
	GetBalance(ctx context.Context, accountNumber string) (*ledger.Balance, error)
	Withdraw(ctx context.Context, accountNumber string, amount float64, description, referenceID string) (*ledger.Balance, *ledger.Transaction, error)
	Deposit(ctx context.Context, accountNumber string, amount float64, description, referenceID string) (*ledger.Balance, *ledger.Transaction, error)
	FindTransaction(ctx context.Context, accountNumber, referenceID string) (*ledger.Transaction, error)
}

// HoldingsStore is the coordinator's view of the holdings service.
type HoldingsStore interface {
	List(ctx context.Context, accountNumber string) ([]holdings.Holding, error)
	Get(ctx context.Context, accountNumber, symbol string) (*holdings.Holding, error)
	ApplyBuy(ctx context.Context, accountNumber, symbol string, quantity int64, price float64) (*holdings.Holding, error)
	ApplySell(ctx context.Context, accountNumber, symbol string, quantity int64) (*holdings.Holding, error)
	Restore(ctx context.Context, accountNumber, symbol string, quantity int64, averagePrice, totalInvested float64) error
}

// Service coordinates buy and sell orders across the ledger and holdings
// stores. Sagas for the same account are serialized through a per-account
// mutex; store calls run under a bounded timeout and a shared circuit
// breaker so a failing store surfaces as a dependency failure instead of
// hanging the coordinator.
type Service struct {
	db          *Database
	ledger      LedgerStore
	holdings    HoldingsStore
	locks       *accountlock.Arena
	breaker     *gobreaker.CircuitBreaker
	callTimeout time.Duration
}

// NewService creates a new order coordinator with the given database
// connection and store dependencies
func NewService(gormDB *gorm.DB, ledgerStore LedgerStore, holdingsStore HoldingsStore) *Service {
	settings := gobreaker.Settings{
		Name:    "stores",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Service{
		db:          NewDatabase(gormDB),
		ledger:      ledgerStore,
		holdings:    holdingsStore,
		locks:       accountlock.New(),
		breaker:     gobreaker.NewCircuitBreaker(settings),
		callTimeout: defaultCallTimeout,
	}
}

// guard runs a store call under the shared circuit breaker with a bounded
// timeout. Business outcomes (insufficient funds/shares, unknown account)
// pass through without counting against the breaker; infrastructure
// failures and timeouts are wrapped as ErrDependencyFailure.
func (s *Service) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()

		if err := fn(callCtx); err != nil {
			if isBusinessError(err) {
				return err, nil
			}
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyFailure, err)
	}
	if res != nil {
		return res.(error)
	}
	return nil
}

func isBusinessError(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientFunds) ||
		errors.Is(err, ledger.ErrAccountNotFound) ||
		errors.Is(err, holdings.ErrInsufficientShares)
}

// Buy executes a buy order: check funds, debit the ledger, apply the
// purchase to holdings. The order row is persisted before either store is
// touched; the ledger leg is idempotent by order id. If the holdings leg
// fails after the debit, the debit is compensated with a refund deposit; if
// the refund also fails the order stays pending with a reconcile marker for
// the background sweep.
func (s *Service) Buy(ctx context.Context, accountNumber, symbol string, quantity int64, price float64, idempotencyKey string) (*Order, error) {
	if quantity <= 0 || price <= 0 || symbol == "" {
		return nil, ErrInvalidOrder
	}

	if order, err := s.replayIdempotent(ctx, idempotencyKey); order != nil || err != nil {
		return order, err
	}

	order := &Order{
		OrderID:       uuid.New().String(),
		AccountNumber: accountNumber,
		Symbol:        symbol,
		Side:          SideBuy,
		Quantity:      quantity,
		Price:         price,
		TotalAmount:   float64(quantity) * price,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}
	if err := s.createOrder(ctx, order, idempotencyKey); err != nil {
		return nil, err
	}

	logger := log.With().
		Str("order_id", order.OrderID).
		Str("account_number", accountNumber).
		Str("symbol", symbol).
		Str("side", SideBuy).
		Logger()

	s.locks.Lock(accountNumber)
	defer s.locks.Unlock(accountNumber)

	// Funds check before the debit. The debit enforces the same rule
	// atomically, so losing the race here only changes which step reports
	// the failure.
	var balance *ledger.Balance
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		balance, err = s.ledger.GetBalance(ctx, accountNumber)
		return err
	})
	if err != nil {
		return order, s.failOrder(ctx, order, "balance check failed", err)
	}
	if balance.AvailableBalance < order.TotalAmount {
		return order, s.failOrder(ctx, order, "insufficient funds", ledger.ErrInsufficientFunds)
	}

	description := fmt.Sprintf("Purchase of %d shares of %s", quantity, symbol)
	err = s.guard(ctx, func(ctx context.Context) error {
		_, _, err := s.ledger.Withdraw(ctx, accountNumber, order.TotalAmount, description, order.OrderID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDependencyFailure) {
			// The debit outcome is unknown; leave the order pending for the
			// reconciler, which can verify the ledger by reference id.
			s.markForReconciliation(ctx, order, "withdrawal outcome unknown")
			return order, err
		}
		return order, s.failOrder(ctx, order, "withdrawal rejected", err)
	}

	order.Notes = NoteFundsDebited
	if err := s.db.UpdateOrder(ctx, order); err != nil {
		logger.Error().Err(err).Msg("failed to record saga progress")
		return order, err
	}

	err = s.guard(ctx, func(ctx context.Context) error {
		_, err := s.holdings.ApplyBuy(ctx, accountNumber, symbol, quantity, price)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("holdings leg failed after debit, compensating")
		refundErr := s.guard(ctx, func(ctx context.Context) error {
			_, _, err := s.ledger.Deposit(ctx, accountNumber, order.TotalAmount,
				fmt.Sprintf("Refund for failed order %s", order.OrderID), refundReference(order.OrderID))
			return err
		})
		if refundErr != nil {
			logger.Error().Err(refundErr).Msg("compensating refund failed")
			s.markForReconciliation(ctx, order, "funds debited, refund pending")
			return order, ErrDependencyFailure
		}
		return order, s.failOrder(ctx, order, "holdings update failed, funds refunded", err)
	}

	// Both legs committed. Record that before the final status write so a
	// crash here resolves to executed, not a refund on top of kept shares.
	order.Notes = NoteSharesApplied
	if err := s.db.UpdateOrder(ctx, order); err != nil {
		logger.Error().Err(err).Msg("failed to record saga progress")
		return order, err
	}

	return order, s.finalizeOrder(ctx, order)
}

// Sell executes a sell order: check the position, remove the shares, credit
// the ledger. If the credit fails after the shares are removed, the
// position is restored from the snapshot captured before the sell; if the
// restore also fails the order stays pending with a reconcile marker.
func (s *Service) Sell(ctx context.Context, accountNumber, symbol string, quantity int64, price float64, idempotencyKey string) (*Order, error) {
	if quantity <= 0 || price <= 0 || symbol == "" {
		return nil, ErrInvalidOrder
	}

	if order, err := s.replayIdempotent(ctx, idempotencyKey); order != nil || err != nil {
		return order, err
	}

	order := &Order{
		OrderID:       uuid.New().String(),
		AccountNumber: accountNumber,
		Symbol:        symbol,
		Side:          SideSell,
		Quantity:      quantity,
		Price:         price,
		TotalAmount:   float64(quantity) * price,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}
	if err := s.createOrder(ctx, order, idempotencyKey); err != nil {
		return nil, err
	}

	logger := log.With().
		Str("order_id", order.OrderID).
		Str("account_number", accountNumber).
		Str("symbol", symbol).
		Str("side", SideSell).
		Logger()

	s.locks.Lock(accountNumber)
	defer s.locks.Unlock(accountNumber)

	// Shares check short-circuits before any ledger call. The snapshot
	// keeps the pre-sell cost basis for compensation.
	var holding *holdings.Holding
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		holding, err = s.holdings.Get(ctx, accountNumber, symbol)
		return err
	})
	if err != nil {
		return order, s.failOrder(ctx, order, "holdings check failed", err)
	}
	if holding == nil || holding.Quantity < quantity {
		return order, s.failOrder(ctx, order, "insufficient shares", holdings.ErrInsufficientShares)
	}
	snapshot := *holding

	err = s.guard(ctx, func(ctx context.Context) error {
		_, err := s.holdings.ApplySell(ctx, accountNumber, symbol, quantity)
		return err
	})
	if err != nil {
		return order, s.failOrder(ctx, order, "holdings update rejected", err)
	}

	order.Notes = NoteSharesRemoved
	if err := s.db.UpdateOrder(ctx, order); err != nil {
		logger.Error().Err(err).Msg("failed to record saga progress")
		return order, err
	}

	description := fmt.Sprintf("Sale of %d shares of %s", quantity, symbol)
	err = s.guard(ctx, func(ctx context.Context) error {
		_, _, err := s.ledger.Deposit(ctx, accountNumber, order.TotalAmount, description, order.OrderID)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("ledger leg failed after share removal, compensating")
		restoreErr := s.guard(ctx, func(ctx context.Context) error {
			return s.holdings.Restore(ctx, accountNumber, symbol, quantity, snapshot.AveragePrice, snapshot.TotalInvested)
		})
		if restoreErr != nil {
			logger.Error().Err(restoreErr).Msg("compensating restore failed")
			s.markForReconciliation(ctx, order, "shares removed, credit pending")
			return order, ErrDependencyFailure
		}
		return order, s.failOrder(ctx, order, "deposit failed, shares restored", err)
	}

	return order, s.finalizeOrder(ctx, order)
}

// GetPortfolio returns the account's current positions
func (s *Service) GetPortfolio(ctx context.Context, accountNumber string) ([]holdings.Holding, error) {
	var positions []holdings.Holding
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		positions, err = s.holdings.List(ctx, accountNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// GetOrders returns the account's most recent orders, newest first
func (s *Service) GetOrders(ctx context.Context, accountNumber string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = defaultOrderLimit
	}
	return s.db.ListOrders(ctx, accountNumber, limit)
}

// PortfolioSummary aggregates an account's balance, positions and recent
// orders in one response.
type PortfolioSummary struct {
	AccountNumber string             `json:"account_number"`
	Balance       *ledger.Balance    `json:"balance"`
	Holdings      []holdings.Holding `json:"holdings"`
	TotalInvested float64            `json:"total_invested"`
	RecentOrders  []Order            `json:"recent_orders"`
}

// GetPortfolioSummary fetches balance, positions and recent orders
// concurrently
func (s *Service) GetPortfolioSummary(ctx context.Context, accountNumber string) (*PortfolioSummary, error) {
	summary := &PortfolioSummary{AccountNumber: accountNumber}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.guard(gctx, func(ctx context.Context) error {
			var err error
			summary.Balance, err = s.ledger.GetBalance(ctx, accountNumber)
			return err
		})
	})
	g.Go(func() error {
		return s.guard(gctx, func(ctx context.Context) error {
			var err error
			summary.Holdings, err = s.holdings.List(ctx, accountNumber)
			return err
		})
	})
	g.Go(func() error {
		var err error
		summary.RecentOrders, err = s.db.ListOrders(gctx, accountNumber, 5)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, h := range summary.Holdings {
		summary.TotalInvested += h.TotalInvested
	}
	return summary, nil
}

// replayIdempotent returns the order previously created under the given
// idempotency key, or nil when the key is new or expired.
func (s *Service) replayIdempotent(ctx context.Context, idempotencyKey string) (*Order, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	record, err := s.db.GetIdempotencyRecord(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if record == nil || record.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}

	order, err := s.db.GetOrder(ctx, record.ResourceID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) createOrder(ctx context.Context, order *Order, idempotencyKey string) error {
	if idempotencyKey != "" {
		return s.db.CreateOrderWithIdempotency(ctx, order, idempotencyKey)
	}
	return s.db.CreateOrder(ctx, order)
}

// failOrder marks the order failed with the given note and returns cause.
// Used when no state was mutated, or after successful compensation.
func (s *Service) failOrder(ctx context.Context, order *Order, note string, cause error) error {
	order.Status = StatusFailed
	order.Notes = note
	if err := s.db.UpdateOrder(ctx, order); err != nil {
		log.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to mark order failed")
	}
	return cause
}

// markForReconciliation leaves the order pending with a durable marker so
// the background sweep can finish or compensate the saga.
func (s *Service) markForReconciliation(ctx context.Context, order *Order, detail string) {
	order.Notes = NoteReconcile + ": " + detail
	if err := s.db.UpdateOrder(ctx, order); err != nil {
		log.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to mark order for reconciliation")
	}
}

func (s *Service) finalizeOrder(ctx context.Context, order *Order) error {
	now := time.Now()
	order.Status = StatusExecuted
	order.ExecutedAt = &now
	order.Notes = ""
	if err := s.db.UpdateOrder(ctx, order); err != nil {
		return err
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("account_number", order.AccountNumber).
		Str("symbol", order.Symbol).
		Str("side", order.Side).
		Int64("quantity", order.Quantity).
		Float64("total_amount", order.TotalAmount).
		Msg("order executed")
	return nil
}

func refundReference(orderID string) string {
	return "refund:" + orderID
}
