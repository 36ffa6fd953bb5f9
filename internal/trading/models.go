package trading

import (
	"time"

	"gorm.io/gorm"
)

// Order sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order statuses. An order is terminal once executed or failed; a pending
// order older than the reconciler threshold is an orphan from a crashed or
// half-finished saga.
const (
	StatusPending  = "pending"
	StatusExecuted = "executed"
	StatusFailed   = "failed"
)

// Durable saga progress markers kept in the order notes. The coordinator
// writes a marker after each leg commits so a crash before the final status
// write can be resolved from the order row alone.
const (
	NoteFundsDebited  = "funds debited"
	NoteSharesApplied = "shares applied"
	NoteSharesRemoved = "shares removed"
	NoteReconcile     = "needs reconciliation"
)

// Order is the durable intent record for one buy or sell. It is created in
// pending state before either store is touched and finalized to executed
// only after both legs commit.
type Order struct {
	gorm.Model    `json:"-"`
	OrderID       string     `gorm:"uniqueIndex" json:"order_id"`
	AccountNumber string     `gorm:"index" json:"account_number"`
	Symbol        string     `json:"symbol"`
	Side          string     `json:"side"` // buy or sell
	Quantity      int64      `json:"quantity"`
	Price         float64    `json:"price"`
	TotalAmount   float64    `json:"total_amount"`
	Status        string     `json:"status"` // pending, executed, failed
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
}

// IdempotencyRecord maps a client-supplied idempotency key to the order it
// produced, so replayed requests return the original order.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
