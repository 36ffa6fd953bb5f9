package directory

import (
	"time"

	"gorm.io/gorm"
)

// User is an account holder known to the directory. The account number is
// assigned at provisioning time and never changes.
type User struct {
	gorm.Model    `json:"-"`
	Username      string    `gorm:"uniqueIndex" json:"username"`
	Email         string    `gorm:"uniqueIndex" json:"email"`
	PasswordHash  string    `json:"-"`
	FullName      string    `json:"full_name"`
	AccountNumber string    `gorm:"uniqueIndex" json:"account_number"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}

// SeedUser describes a default demo user provisioned at startup.
type SeedUser struct {
	Username        string
	Email           string
	Password        string
	FullName        string
	AccountNumber   string
	StartingBalance float64
}

// DefaultUsers are the demo accounts created on first run.
var DefaultUsers = []SeedUser{
	{
		Username:        "admin",
		Email:           "admin@aieconomic.com",
		Password:        "admin123",
		FullName:        "Administrator",
		AccountNumber:   "ACC001",
		StartingBalance: 50000.00,
	},
	{
		Username:        "investor",
		Email:           "investor@aieconomic.com",
		Password:        "investor123",
		FullName:        "Joao Silva",
		AccountNumber:   "ACC002",
		StartingBalance: 25000.00,
	},
	{
		Username:        "trader",
		Email:           "trader@aieconomic.com",
		Password:        "trader123",
		FullName:        "Maria Santos",
		AccountNumber:   "ACC003",
		StartingBalance: 15000.00,
	},
}
