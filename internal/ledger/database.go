package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetBalance(ctx context.Context, accountNumber string) (*Balance, error) {
	var balance Balance
	if err := d.db.WithContext(ctx).Where("account_number = ?", accountNumber).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// FindTransactionByReference looks up a ledger entry of the given type by
// its reference id. Returns nil when no such entry exists.
func (d *Database) FindTransactionByReference(ctx context.Context, accountNumber, referenceID, txType string) (*Transaction, error) {
	var txn Transaction
	err := d.db.WithContext(ctx).
		Where("account_number = ? AND reference_id = ? AND type = ?", accountNumber, referenceID, txType).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// ApplyMovement atomically adjusts both balance fields by delta and appends
// the paired ledger entry. A negative delta that would drive the available
// balance below zero fails with ErrInsufficientFunds and leaves both tables
// unchanged.
func (d *Database) ApplyMovement(ctx context.Context, accountNumber string, delta float64, txn *Transaction) (*Balance, error) {
	var balance Balance
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_number = ?", accountNumber).First(&balance).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		if delta < 0 && balance.AvailableBalance+delta < 0 {
			return ErrInsufficientFunds
		}

		balance.Balance += delta
		balance.AvailableBalance += delta
		balance.LastUpdated = time.Now()

		if err := tx.Save(&balance).Error; err != nil {
			return err
		}

		return tx.Create(txn).Error
	})
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (d *Database) ListTransactions(ctx context.Context, accountNumber string, limit int) ([]Transaction, error) {
	var transactions []Transaction
	err := d.db.WithContext(ctx).
		Where("account_number = ?", accountNumber).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// SeedBalances creates the given account balances unless they already exist.
func (d *Database) SeedBalances(ctx context.Context, balances []Balance) error {
	for i := range balances {
		err := d.db.WithContext(ctx).
			Where("account_number = ?", balances[i].AccountNumber).
			FirstOrCreate(&balances[i]).Error
		if err != nil {
			return err
		}
	}
	return nil
}
