package ledger

import (
	"time"

	"gorm.io/gorm"
)

// Transaction types
const (
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
)

// Balance is the current book and spendable value for one account.
// Mutated only through Withdraw and Deposit.
type Balance struct {
	gorm.Model       `json:"-"`
	AccountNumber    string    `gorm:"uniqueIndex" json:"account_number"`
	Balance          float64   `json:"balance"`
	AvailableBalance float64   `json:"available_balance"`
	Currency         string    `json:"currency"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Transaction is one append-only ledger entry. Rows are never updated or
// deleted after creation.
type Transaction struct {
	gorm.Model    `json:"-"`
	TransactionID string    `gorm:"uniqueIndex" json:"transaction_id"`
	AccountNumber string    `gorm:"index" json:"account_number"`
	Type          string    `json:"transaction_type"` // deposit or withdrawal
	Amount        float64   `json:"amount"`
	Description   string    `json:"description"`
	ReferenceID   string    `gorm:"index" json:"reference_id,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// SeedBalance describes a default account balance provisioned at startup.
type SeedBalance struct {
	AccountNumber string
	Balance       float64
}

// DefaultBalances mirror the demo accounts seeded by the account directory.
var DefaultBalances = []SeedBalance{
	{AccountNumber: "ACC001", Balance: 50000.00},
	{AccountNumber: "ACC002", Balance: 25000.00},
	{AccountNumber: "ACC003", Balance: 15000.00},
}
