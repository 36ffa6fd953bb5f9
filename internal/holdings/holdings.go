// Package holdings owns per-account, per-symbol positions with their
// weighted-average cost basis. Positions are mutated only by the order
// coordinator after the matching ledger movement is confirmed.
package holdings

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/aiecon/banking-api/pkg/accountlock"
)

var (
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidOrder       = errors.New("quantity and price must be positive")
)

// Service handles position queries and mutations. Mutations on the same
// account are serialized through a per-account mutex.
type Service struct {
	db    *Database
	locks *accountlock.Arena
}

// NewService creates a new holdings service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		locks: accountlock.New(),
	}
}

// List returns every position held by the account
func (s *Service) List(ctx context.Context, accountNumber string) ([]Holding, error) {
	return s.db.ListHoldings(ctx, accountNumber)
}

// Get returns the position in one symbol, or nil when the account holds none
func (s *Service) Get(ctx context.Context, accountNumber, symbol string) (*Holding, error) {
	return s.db.GetHolding(ctx, accountNumber, symbol)
}

// ApplyBuy folds a confirmed purchase into the account's position,
// recomputing the weighted-average cost:
// new_avg = (old_total + qty*price) / (old_qty + qty)
func (s *Service) ApplyBuy(ctx context.Context, accountNumber, symbol string, quantity int64, price float64) (*Holding, error) {
	if quantity <= 0 || price <= 0 {
		return nil, ErrInvalidOrder
	}

	s.locks.Lock(accountNumber)
	defer s.locks.Unlock(accountNumber)

	holding, err := s.db.UpsertBuy(ctx, accountNumber, symbol, quantity, price)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("account_number", accountNumber).
		Str("symbol", symbol).
		Int64("quantity", holding.Quantity).
		Float64("average_price", holding.AveragePrice).
		Msg("buy applied to holdings")

	return holding, nil
}

// ApplySell removes a confirmed sale from the account's position. Fails
// with ErrInsufficientShares when the position is missing or too small;
// the position is deleted when it reaches exactly zero.
func (s *Service) ApplySell(ctx context.Context, accountNumber, symbol string, quantity int64) (*Holding, error) {
	if quantity <= 0 {
		return nil, ErrInvalidOrder
	}

	s.locks.Lock(accountNumber)
	defer s.locks.Unlock(accountNumber)

	holding, err := s.db.ApplySell(ctx, accountNumber, symbol, quantity)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("account_number", accountNumber).
		Str("symbol", symbol).
		Int64("remaining_quantity", holding.Quantity).
		Msg("sell applied to holdings")

	return holding, nil
}

// Restore reinstates a position removed by a sell whose cash leg failed,
// using the cost basis captured before the sell
func (s *Service) Restore(ctx context.Context, accountNumber, symbol string, quantity int64, averagePrice, totalInvested float64) error {
	if quantity <= 0 {
		return ErrInvalidOrder
	}

	s.locks.Lock(accountNumber)
	defer s.locks.Unlock(accountNumber)

	return s.db.RestorePosition(ctx, accountNumber, symbol, quantity, averagePrice, totalInvested)
}
