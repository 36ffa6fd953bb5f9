package holdings

import (
	"time"

	"gorm.io/gorm"
)

// Holding is the current position in one symbol for one account, keyed
// uniquely by (account number, symbol). A holding whose quantity reaches
// zero is deleted rather than kept as an empty row.
type Holding struct {
	gorm.Model    `json:"-"`
	AccountNumber string    `gorm:"uniqueIndex:idx_holdings_account_symbol" json:"account_number"`
	Symbol        string    `gorm:"uniqueIndex:idx_holdings_account_symbol" json:"symbol"`
	Quantity      int64     `json:"quantity"`
	AveragePrice  float64   `json:"average_price"`
	TotalInvested float64   `json:"total_invested"`
	LastUpdated   time.Time `json:"last_updated"`
}
