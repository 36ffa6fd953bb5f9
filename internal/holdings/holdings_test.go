package holdings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testAccount = "ACC001"

func newTestService(t *testing.T) *Service {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "transactions.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Holding{}))

	return NewService(db)
}

func TestApplyBuyCreatesPosition(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	holding, err := service.ApplyBuy(ctx, testAccount, "PETR4", 100, 20.00)
	require.NoError(t, err)
	require.Equal(t, int64(100), holding.Quantity)
	require.Equal(t, 20.00, holding.AveragePrice)
	require.Equal(t, 2000.00, holding.TotalInvested)
}

func TestApplyBuyWeightedAverage(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.ApplyBuy(ctx, testAccount, "PETR4", 100, 20.00)
	require.NoError(t, err)

	// 100 @ 20.00 then 50 @ 22.00: avg = (2000 + 1100) / 150
	holding, err := service.ApplyBuy(ctx, testAccount, "PETR4", 50, 22.00)
	require.NoError(t, err)
	require.Equal(t, int64(150), holding.Quantity)
	require.Equal(t, 3100.00, holding.TotalInvested)
	require.InDelta(t, 3100.0/150.0, holding.AveragePrice, 1e-9)
}

func TestApplyBuyInvalidOrder(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.ApplyBuy(ctx, testAccount, "PETR4", 0, 20.00)
	require.ErrorIs(t, err, ErrInvalidOrder)

	_, err = service.ApplyBuy(ctx, testAccount, "PETR4", 10, -1)
	require.ErrorIs(t, err, ErrInvalidOrder)
}

func TestApplySellPartialKeepsBasis(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.ApplyBuy(ctx, testAccount, "VALE3", 100, 50.00)
	require.NoError(t, err)

	holding, err := service.ApplySell(ctx, testAccount, "VALE3", 40)
	require.NoError(t, err)
	require.Equal(t, int64(60), holding.Quantity)
	require.Equal(t, 50.00, holding.AveragePrice)
}

func TestApplySellFullRemovesPosition(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.ApplyBuy(ctx, testAccount, "VALE3", 100, 50.00)
	require.NoError(t, err)

	holding, err := service.ApplySell(ctx, testAccount, "VALE3", 100)
	require.NoError(t, err)
	require.Equal(t, int64(0), holding.Quantity)

	got, err := service.Get(ctx, testAccount, "VALE3")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestApplySellInsufficientShares(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	// No position at all
	_, err := service.ApplySell(ctx, testAccount, "ITUB4", 10)
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, err = service.ApplyBuy(ctx, testAccount, "ITUB4", 5, 30.00)
	require.NoError(t, err)

	_, err = service.ApplySell(ctx, testAccount, "ITUB4", 6)
	require.ErrorIs(t, err, ErrInsufficientShares)

	// The rejected sell must not change the position
	holding, err := service.Get(ctx, testAccount, "ITUB4")
	require.NoError(t, err)
	require.Equal(t, int64(5), holding.Quantity)
}

func TestRestoreRecreatesDeletedPosition(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.ApplyBuy(ctx, testAccount, "PETR4", 100, 20.00)
	require.NoError(t, err)
	_, err = service.ApplySell(ctx, testAccount, "PETR4", 100)
	require.NoError(t, err)

	// Compensation path: the full sell deleted the row, restore recreates it
	// with the captured basis
	err = service.Restore(ctx, testAccount, "PETR4", 100, 20.00, 2000.00)
	require.NoError(t, err)

	holding, err := service.Get(ctx, testAccount, "PETR4")
	require.NoError(t, err)
	require.Equal(t, int64(100), holding.Quantity)
	require.Equal(t, 20.00, holding.AveragePrice)
	require.Equal(t, 2000.00, holding.TotalInvested)
}

func TestRestoreOnExistingPosition(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.ApplyBuy(ctx, testAccount, "PETR4", 100, 20.00)
	require.NoError(t, err)
	_, err = service.ApplySell(ctx, testAccount, "PETR4", 40)
	require.NoError(t, err)

	err = service.Restore(ctx, testAccount, "PETR4", 40, 20.00, 2000.00)
	require.NoError(t, err)

	holding, err := service.Get(ctx, testAccount, "PETR4")
	require.NoError(t, err)
	require.Equal(t, int64(100), holding.Quantity)
}

func TestListOrderedBySymbol(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	for _, symbol := range []string{"VALE3", "ABEV3", "PETR4"} {
		_, err := service.ApplyBuy(ctx, testAccount, symbol, 10, 10.00)
		require.NoError(t, err)
	}
	_, err := service.ApplyBuy(ctx, "ACC002", "PETR4", 10, 10.00)
	require.NoError(t, err)

	positions, err := service.List(ctx, testAccount)
	require.NoError(t, err)
	require.Len(t, positions, 3)
	require.Equal(t, "ABEV3", positions[0].Symbol)
	require.Equal(t, "PETR4", positions[1].Symbol)
	require.Equal(t, "VALE3", positions[2].Symbol)
}
