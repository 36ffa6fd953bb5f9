package migrations

import (
	"github.com/aiecon/banking-api/internal/holdings"
	"gorm.io/gorm"
)

func AddPortfolioHoldings(db *gorm.DB) error {
	// The composite unique index on (account_number, symbol) comes from the
	// model tags; AutoMigrate creates it with the table
	if err := db.AutoMigrate(&holdings.Holding{}); err != nil {
		return err
	}

	return nil
}
