package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grainworks/grainstock-backend/internal/balances"
	"github.com/grainworks/grainstock-backend/internal/ledger"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
	"github.com/grainworks/grainstock-backend/pkg/enums"
	"github.com/grainworks/grainstock-backend/pkg/logger"
	"github.com/grainworks/grainstock-backend/pkg/outbox"
)

func newJobFixture(t *testing.T) (Job, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:reconcile_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.StockMovement{}, &models.StockBalance{}, &models.OutboxEvent{}))

	ledgerRepo := ledger.NewRepository(conn)
	balanceRepo := balances.NewRepository(conn)
	balanceSvc, err := balances.NewService(conn, balanceRepo, ledgerRepo, nil, nil)
	require.NoError(t, err)

	job, err := NewStaleBalancesJob(StaleBalancesJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "reconcile-test"}),
		DB:          conn,
		LedgerRepo:  ledgerRepo,
		BalanceRepo: balanceRepo,
		BalanceSvc:  balanceSvc,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return job, conn
}

func appendMovements(t *testing.T, conn *gorm.DB, warehouseID, commodityID uuid.UUID, quantities ...string) {
	t.Helper()
	for i, qty := range quantities {
		require.NoError(t, conn.Create(&models.StockMovement{
			ID:             uuid.New(),
			WarehouseID:    warehouseID,
			CommodityID:    commodityID,
			Seq:            int64(i + 1),
			Kind:           enums.MovementKindAdjustment,
			Quantity:       decimal.RequireFromString(qty),
			IdempotencyKey: uuid.NewString(),
		}).Error)
	}
}

func TestStaleBalancesJobRebuildsLaggingKeys(t *testing.T) {
	job, conn := newJobFixture(t)
	ctx := context.Background()

	warehouseID := uuid.New()
	commodityID := uuid.New()
	appendMovements(t, conn, warehouseID, commodityID, "100", "-30")

	// Cache stuck at seq 1.
	require.NoError(t, conn.Create(&models.StockBalance{
		WarehouseID: warehouseID,
		CommodityID: commodityID,
		Quantity:    decimal.RequireFromString("100"),
		LastSeq:     1,
	}).Error)

	require.NoError(t, job.Run(ctx))

	var balance models.StockBalance
	require.NoError(t, conn.
		Where("warehouse_id = ? AND commodity_id = ?", warehouseID, commodityID).
		First(&balance).Error)
	require.Equal(t, "70", balance.Quantity.String())
	require.EqualValues(t, 2, balance.LastSeq)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventStaleBalancesFound).
		Count(&events).Error)
	require.EqualValues(t, 1, events)
}

func TestStaleBalancesJobBuildsMissingRows(t *testing.T) {
	job, conn := newJobFixture(t)
	ctx := context.Background()

	warehouseID := uuid.New()
	commodityID := uuid.New()
	appendMovements(t, conn, warehouseID, commodityID, "40")

	require.NoError(t, job.Run(ctx))

	var balance models.StockBalance
	require.NoError(t, conn.
		Where("warehouse_id = ? AND commodity_id = ?", warehouseID, commodityID).
		First(&balance).Error)
	require.Equal(t, "40", balance.Quantity.String())
	require.EqualValues(t, 1, balance.LastSeq)
}

func TestStaleBalancesJobNoopWhenFresh(t *testing.T) {
	job, conn := newJobFixture(t)
	ctx := context.Background()

	warehouseID := uuid.New()
	commodityID := uuid.New()
	appendMovements(t, conn, warehouseID, commodityID, "10")
	require.NoError(t, conn.Create(&models.StockBalance{
		WarehouseID: warehouseID,
		CommodityID: commodityID,
		Quantity:    decimal.RequireFromString("10"),
		LastSeq:     1,
	}).Error)

	require.NoError(t, job.Run(ctx))

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&events).Error)
	require.EqualValues(t, 0, events)
}
