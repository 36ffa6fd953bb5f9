// Package database opens the three SQLite databases the services own:
// users (directory), balances (ledger) and transactions (orders and
// holdings). Each store migrates only its own schema; the files stay
// independent so no cross-store transaction is possible by construction.
package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aiecon/banking-api/internal/database/migrations"
	"github.com/aiecon/banking-api/internal/directory"
	"github.com/aiecon/banking-api/internal/trading"
)

func open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return db, nil
}

// NewUsersDatabase opens the account directory database
func NewUsersDatabase(path string) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&directory.User{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// NewBalancesDatabase opens the ledger database
func NewBalancesDatabase(path string) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.AddLedgerTables(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// NewTransactionsDatabase opens the order and holdings database
func NewTransactionsDatabase(path string) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.AddPortfolioHoldings(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := db.AutoMigrate(
		&trading.Order{},
		&trading.IdempotencyRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
