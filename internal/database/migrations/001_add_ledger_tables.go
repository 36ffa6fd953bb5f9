package migrations

import (
	"github.com/aiecon/banking-api/internal/ledger"
	"gorm.io/gorm"
)

func AddLedgerTables(db *gorm.DB) error {
	if err := db.AutoMigrate(&ledger.Balance{}); err != nil {
		return err
	}

	// Transactions carry indexed account and reference columns so the
	// coordinator can verify a saga leg by order id.
	if err := db.AutoMigrate(&ledger.Transaction{}); err != nil {
		return err
	}

	return nil
}
