package holdings

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

func (d *Database) ListHoldings(ctx context.Context, accountNumber string) ([]Holding, error) {
	var holdings []Holding
	err := d.db.WithContext(ctx).
		Where("account_number = ?", accountNumber).
		Order("symbol ASC").
		Find(&holdings).Error
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

func (d *Database) GetHolding(ctx context.Context, accountNumber, symbol string) (*Holding, error) {
	var holding Holding
	err := d.db.WithContext(ctx).
		Where("account_number = ? AND symbol = ?", accountNumber, symbol).
		First(&holding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &holding, nil
}

// UpsertBuy folds a purchase into the position, recomputing the weighted
// average cost, or creates the position when none exists.
func (d *Database) UpsertBuy(ctx context.Context, accountNumber, symbol string, quantity int64, price float64) (*Holding, error) {
	var result Holding
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holding Holding
		err := tx.Where("account_number = ? AND symbol = ?", accountNumber, symbol).First(&holding).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			result = Holding{
				AccountNumber: accountNumber,
				Symbol:        symbol,
				Quantity:      quantity,
				AveragePrice:  price,
				TotalInvested: float64(quantity) * price,
				LastUpdated:   time.Now(),
			}
			return tx.Create(&result).Error
		case err != nil:
			return err
		}

		holding.Quantity += quantity
		holding.TotalInvested += float64(quantity) * price
		holding.AveragePrice = holding.TotalInvested / float64(holding.Quantity)
		holding.LastUpdated = time.Now()

		if err := tx.Save(&holding).Error; err != nil {
			return err
		}
		result = holding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ApplySell removes quantity from the position, deleting it when the
// remaining quantity is exactly zero. The cost basis is left unchanged on
// partial sells.
func (d *Database) ApplySell(ctx context.Context, accountNumber, symbol string, quantity int64) (*Holding, error) {
	var result Holding
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holding Holding
		err := tx.Where("account_number = ? AND symbol = ?", accountNumber, symbol).First(&holding).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInsufficientShares
		}
		if err != nil {
			return err
		}

		if holding.Quantity < quantity {
			return ErrInsufficientShares
		}

		holding.Quantity -= quantity
		holding.LastUpdated = time.Now()

		if holding.Quantity == 0 {
			if err := tx.Unscoped().Delete(&holding).Error; err != nil {
				return err
			}
			result = holding
			return nil
		}

		if err := tx.Save(&holding).Error; err != nil {
			return err
		}
		result = holding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RestorePosition re-adds quantity removed by a sell whose cash leg failed.
// The previous cost basis is reinstated as captured before the sell.
func (d *Database) RestorePosition(ctx context.Context, accountNumber, symbol string, quantity int64, averagePrice, totalInvested float64) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holding Holding
		err := tx.Where("account_number = ? AND symbol = ?", accountNumber, symbol).First(&holding).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&Holding{
				AccountNumber: accountNumber,
				Symbol:        symbol,
				Quantity:      quantity,
				AveragePrice:  averagePrice,
				TotalInvested: totalInvested,
				LastUpdated:   time.Now(),
			}).Error
		case err != nil:
			return err
		}

		holding.Quantity += quantity
		holding.LastUpdated = time.Now()
		return tx.Save(&holding).Error
	})
}
