package queries

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grainworks/grainstock-backend/internal/balances"
	"github.com/grainworks/grainstock-backend/internal/ledger"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
	"github.com/grainworks/grainstock-backend/pkg/enums"
	pkgerrors "github.com/grainworks/grainstock-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:queries_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.StockMovement{}, &models.StockBalance{}))
	return conn
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := newTestDB(t)
	svc, err := NewService(balances.NewRepository(conn), ledger.NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func seedMovement(t *testing.T, conn *gorm.DB, warehouseID, commodityID uuid.UUID, seq int64, qty string, at time.Time) models.StockMovement {
	t.Helper()
	movement := models.StockMovement{
		ID:             uuid.New(),
		WarehouseID:    warehouseID,
		CommodityID:    commodityID,
		Seq:            seq,
		Kind:           enums.MovementKindAdjustment,
		Quantity:       decimal.RequireFromString(qty),
		IdempotencyKey: uuid.NewString(),
		OccurredAt:     at,
	}
	require.NoError(t, conn.Create(&movement).Error)
	return movement
}

func seedBalance(t *testing.T, conn *gorm.DB, warehouseID, commodityID uuid.UUID, qty string, lastSeq int64) {
	t.Helper()
	require.NoError(t, conn.Create(&models.StockBalance{
		WarehouseID: warehouseID,
		CommodityID: commodityID,
		Quantity:    decimal.RequireFromString(qty),
		LastSeq:     lastSeq,
	}).Error)
}

func TestCurrentBalanceFreshAndStale(t *testing.T) {
	service, db := newTestService(t)

	warehouseID := uuid.New()
	commodityID := uuid.New()
	now := time.Now()

	seedMovement(t, db, warehouseID, commodityID, 1, "100", now)
	seedBalance(t, db, warehouseID, commodityID, "100", 1)

	view, err := service.CurrentBalance(context.Background(), warehouseID, commodityID)
	require.NoError(t, err)
	require.False(t, view.Stale)
	require.Equal(t, "100", view.Quantity.String())

	seedMovement(t, db, warehouseID, commodityID, 2, "-30", now)

	view, err = service.CurrentBalance(context.Background(), warehouseID, commodityID)
	require.NoError(t, err)
	require.True(t, view.Stale)
	require.EqualValues(t, 1, view.LastSeq)
	require.EqualValues(t, 2, view.LedgerSeq)
}

func TestCurrentBalanceMissingRowIsZero(t *testing.T) {
	service, _ := newTestService(t)

	view, err := service.CurrentBalance(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.True(t, view.Quantity.IsZero())
	require.False(t, view.Stale)
}

func TestWarehouseBalancesFlagsStaleRows(t *testing.T) {
	service, db := newTestService(t)

	warehouseID := uuid.New()
	wheat := uuid.New()
	maize := uuid.New()
	now := time.Now()

	seedMovement(t, db, warehouseID, wheat, 1, "100", now)
	seedBalance(t, db, warehouseID, wheat, "100", 1)

	seedMovement(t, db, warehouseID, maize, 1, "40", now)
	seedMovement(t, db, warehouseID, maize, 2, "10", now)
	seedBalance(t, db, warehouseID, maize, "40", 1)

	views, err := service.WarehouseBalances(context.Background(), warehouseID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	byCommodity := make(map[uuid.UUID]BalanceView, len(views))
	for _, v := range views {
		byCommodity[v.CommodityID] = v
	}
	require.False(t, byCommodity[wheat].Stale)
	require.True(t, byCommodity[maize].Stale)
	require.EqualValues(t, 2, byCommodity[maize].LedgerSeq)
}

func TestWarehouseBalancesIncludesUncachedKeys(t *testing.T) {
	service, db := newTestService(t)

	warehouseID := uuid.New()
	commodityID := uuid.New()
	seedMovement(t, db, warehouseID, commodityID, 1, "25", time.Now())

	views, err := service.WarehouseBalances(context.Background(), warehouseID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.True(t, views[0].Stale)
	require.True(t, views[0].Quantity.IsZero())
}

func TestHistoryPagesBySeqCursor(t *testing.T) {
	service, db := newTestService(t)

	warehouseID := uuid.New()
	commodityID := uuid.New()
	now := time.Now()
	for seq := int64(1); seq <= 5; seq++ {
		seedMovement(t, db, warehouseID, commodityID, seq, "10", now.Add(time.Duration(seq)*time.Minute))
	}

	first, err := service.History(context.Background(), HistoryInput{
		WarehouseID: warehouseID,
		CommodityID: commodityID,
		Limit:       2,
	})
	require.NoError(t, err)
	require.Len(t, first.Movements, 2)
	require.True(t, first.HasMore)
	require.EqualValues(t, 1, first.Movements[0].Seq)
	require.EqualValues(t, 2, first.Movements[1].Seq)

	second, err := service.History(context.Background(), HistoryInput{
		WarehouseID: warehouseID,
		CommodityID: commodityID,
		Limit:       2,
		Cursor:      first.NextCursor,
	})
	require.NoError(t, err)
	require.Len(t, second.Movements, 2)
	require.EqualValues(t, 3, second.Movements[0].Seq)

	third, err := service.History(context.Background(), HistoryInput{
		WarehouseID: warehouseID,
		CommodityID: commodityID,
		Limit:       2,
		Cursor:      second.NextCursor,
	})
	require.NoError(t, err)
	require.Len(t, third.Movements, 1)
	require.False(t, third.HasMore)
	require.Empty(t, third.NextCursor)
}

func TestHistoryFiltersByTimeRange(t *testing.T) {
	service, db := newTestService(t)

	warehouseID := uuid.New()
	commodityID := uuid.New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for seq := int64(1); seq <= 4; seq++ {
		seedMovement(t, db, warehouseID, commodityID, seq, "10", base.AddDate(0, 0, int(seq)))
	}

	from := base.AddDate(0, 0, 2)
	to := base.AddDate(0, 0, 4)
	page, err := service.History(context.Background(), HistoryInput{
		WarehouseID: warehouseID,
		CommodityID: commodityID,
		From:        &from,
		To:          &to,
	})
	require.NoError(t, err)
	require.Len(t, page.Movements, 2)
	require.EqualValues(t, 2, page.Movements[0].Seq)
	require.EqualValues(t, 3, page.Movements[1].Seq)
}

func TestHistoryRejectsBadInput(t *testing.T) {
	service, _ := newTestService(t)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err := service.History(context.Background(), HistoryInput{
		WarehouseID: uuid.New(),
		CommodityID: uuid.New(),
		From:        &from,
		To:          &to,
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = service.History(context.Background(), HistoryInput{
		WarehouseID: uuid.New(),
		CommodityID: uuid.New(),
		Cursor:      "not-base64!!",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
