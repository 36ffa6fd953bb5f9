package directory

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateUser(ctx context.Context, user *User) error {
	return d.db.WithContext(ctx).Create(user).Error
}

func (d *Database) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := d.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (d *Database) GetUserByAccountNumber(ctx context.Context, accountNumber string) (*User, error) {
	var user User
	if err := d.db.WithContext(ctx).Where("account_number = ?", accountNumber).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SeedUsers creates the given users unless they already exist.
func (d *Database) SeedUsers(ctx context.Context, users []User) error {
	for i := range users {
		err := d.db.WithContext(ctx).
			Where("username = ?", users[i].Username).
			FirstOrCreate(&users[i]).Error
		if err != nil {
			return err
		}
	}
	return nil
}
