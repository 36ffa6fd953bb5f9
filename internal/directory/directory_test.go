package directory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "users.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))

	service, err := NewService(db)
	require.NoError(t, err)
	require.NoError(t, service.SeedDefaultUsers(context.Background()))
	return service
}

func TestAuthenticate(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Authenticate(ctx, "investor", "investor123")
	require.NoError(t, err)
	require.Equal(t, "ACC002", user.AccountNumber)
	require.Equal(t, "Joao Silva", user.FullName)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.Authenticate(ctx, "investor", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	// Unknown usernames fail with the same error as wrong passwords
	_, err := service.Authenticate(ctx, "nobody", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGetUser(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.GetUser(ctx, "ACC003")
	require.NoError(t, err)
	require.Equal(t, "trader", user.Username)
	require.Equal(t, "BRL", user.Currency)

	_, err = service.GetUser(ctx, "ACC999")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSeedIsIdempotent(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	// Reseeding must not duplicate users or reset credentials
	require.NoError(t, service.SeedDefaultUsers(ctx))

	var count int64
	require.NoError(t, service.db.db.Model(&User{}).Count(&count).Error)
	require.Equal(t, int64(len(DefaultUsers)), count)

	_, err := service.Authenticate(ctx, "admin", "admin123")
	require.NoError(t, err)
}
