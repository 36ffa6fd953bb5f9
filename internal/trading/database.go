package trading

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

func (d *Database) CreateOrder(ctx context.Context, order *Order) error {
	return d.db.WithContext(ctx).Create(order).Error
}

func (d *Database) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := d.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) UpdateOrder(ctx context.Context, order *Order) error {
	return d.db.WithContext(ctx).Save(order).Error
}

func (d *Database) ListOrders(ctx context.Context, accountNumber string, limit int) ([]Order, error) {
	var orders []Order
	err := d.db.WithContext(ctx).
		Where("account_number = ?", accountNumber).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetStuckPendingOrders returns pending orders older than the given cutoff.
// These are orphans from a crashed or half-finished saga.
func (d *Database) GetStuckPendingOrders(ctx context.Context, olderThan time.Time) ([]Order, error) {
	var orders []Order
	err := d.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", StatusPending, olderThan).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateOrderWithIdempotency creates a new order and idempotency record in
// a single transaction
func (d *Database) CreateOrderWithIdempotency(ctx context.Context, order *Order, idempotencyKey string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		record := IdempotencyRecord{
			IdempotencyKey: idempotencyKey,
			ResourceID:     order.OrderID,
			ResourceType:   "order",
			ExpiresAt:      time.Now().Add(24 * time.Hour),
		}
		return tx.Create(&record).Error
	})
}

// GetIdempotencyRecord retrieves an idempotency record by key. Returns nil
// when the key has not been seen.
func (d *Database) GetIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
