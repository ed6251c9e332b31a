package balances

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grainworks/grainstock-backend/internal/ledger"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
	"github.com/grainworks/grainstock-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:balances_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.StockMovement{}, &models.StockBalance{}))
	return conn
}

func newTestService(t *testing.T, db *gorm.DB) (Service, ledger.Repository) {
	t.Helper()
	ledgerRepo := ledger.NewRepository(db)
	svc, err := NewService(db, NewRepository(db), ledgerRepo, nil, nil)
	require.NoError(t, err)
	return svc, ledgerRepo
}

func seedMovement(t *testing.T, repo ledger.Repository, warehouseID, commodityID uuid.UUID, seq int64, qty string) *models.StockMovement {
	t.Helper()
	movement := &models.StockMovement{
		WarehouseID:    warehouseID,
		CommodityID:    commodityID,
		Seq:            seq,
		Kind:           enums.MovementKindAdjustment,
		Quantity:       decimal.RequireFromString(qty),
		IdempotencyKey: uuid.NewString(),
		OccurredAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.Append(context.Background(), movement))
	return movement
}

func TestReadMissingKeyReturnsZero(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTestService(t, db)

	balance, err := svc.Read(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.True(t, balance.Quantity.IsZero())
	require.EqualValues(t, 0, balance.LastSeq)
}

func TestApplyFoldsMovementsInSeqOrder(t *testing.T) {
	db := newTestDB(t)
	svc, ledgerRepo := newTestService(t, db)
	ctx := context.Background()

	warehouseID := uuid.New()
	commodityID := uuid.New()

	first := seedMovement(t, ledgerRepo, warehouseID, commodityID, 1, "100")
	second := seedMovement(t, ledgerRepo, warehouseID, commodityID, 2, "-30")

	balance, err := svc.Apply(ctx, db, first)
	require.NoError(t, err)
	require.True(t, balance.Quantity.Equal(decimal.RequireFromString("100")))
	require.EqualValues(t, 1, balance.LastSeq)

	balance, err = svc.Apply(ctx, db, second)
	require.NoError(t, err)
	require.True(t, balance.Quantity.Equal(decimal.RequireFromString("70")))
	require.EqualValues(t, 2, balance.LastSeq)
	require.NotNil(t, balance.LastMovementID)
	require.Equal(t, second.ID, *balance.LastMovementID)
}

func TestApplyIsIdempotentPerSeq(t *testing.T) {
	db := newTestDB(t)
	svc, ledgerRepo := newTestService(t, db)
	ctx := context.Background()

	warehouseID := uuid.New()
	commodityID := uuid.New()
	movement := seedMovement(t, ledgerRepo, warehouseID, commodityID, 1, "100")

	_, err := svc.Apply(ctx, db, movement)
	require.NoError(t, err)

	balance, err := svc.Apply(ctx, db, movement)
	require.NoError(t, err)
	require.True(t, balance.Quantity.Equal(decimal.RequireFromString("100")), "re-applying the same seq must not double-count")
}

func TestApplyDetectsGapAsStale(t *testing.T) {
	db := newTestDB(t)
	svc, ledgerRepo := newTestService(t, db)
	ctx := context.Background()

	warehouseID := uuid.New()
	commodityID := uuid.New()
	seedMovement(t, ledgerRepo, warehouseID, commodityID, 1, "100")
	seedMovement(t, ledgerRepo, warehouseID, commodityID, 2, "-30")
	third := seedMovement(t, ledgerRepo, warehouseID, commodityID, 3, "-5")

	_, err := svc.Apply(ctx, db, third)
	require.True(t, errors.Is(err, ErrCacheStale))
}

func TestRebuildMatchesLedgerSumAndIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc, ledgerRepo := newTestService(t, db)
	ctx := context.Background()

	warehouseID := uuid.New()
	commodityID := uuid.New()
	seedMovement(t, ledgerRepo, warehouseID, commodityID, 1, "100")
	seedMovement(t, ledgerRepo, warehouseID, commodityID, 2, "-30")
	last := seedMovement(t, ledgerRepo, warehouseID, commodityID, 3, "-50.5")

	balance, err := svc.Rebuild(ctx, warehouseID, commodityID)
	require.NoError(t, err)
	require.True(t, balance.Quantity.Equal(decimal.RequireFromString("19.5")), "got %s", balance.Quantity)
	require.EqualValues(t, 3, balance.LastSeq)
	require.NotNil(t, balance.LastMovementID)
	require.Equal(t, last.ID, *balance.LastMovementID)

	again, err := svc.Rebuild(ctx, warehouseID, commodityID)
	require.NoError(t, err)
	require.True(t, again.Quantity.Equal(balance.Quantity))
	require.EqualValues(t, balance.LastSeq, again.LastSeq)
}

func TestRebuildHealsDivergedCache(t *testing.T) {
	db := newTestDB(t)
	svc, ledgerRepo := newTestService(t, db)
	ctx := context.Background()

	warehouseID := uuid.New()
	commodityID := uuid.New()
	seedMovement(t, ledgerRepo, warehouseID, commodityID, 1, "100")

	// simulate a diverged cache row
	repo := NewRepository(db)
	require.NoError(t, repo.Save(ctx, &models.StockBalance{
		WarehouseID: warehouseID,
		CommodityID: commodityID,
		Quantity:    decimal.RequireFromString("999"),
		LastSeq:     0,
	}))

	balance, err := svc.Rebuild(ctx, warehouseID, commodityID)
	require.NoError(t, err)
	require.True(t, balance.Quantity.Equal(decimal.RequireFromString("100")))
	require.EqualValues(t, 1, balance.LastSeq)
}
