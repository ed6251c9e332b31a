package movements

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
	"github.com/grainworks/grainstock-backend/internal/commodities"
	"github.com/grainworks/grainstock-backend/internal/ledger"
	"github.com/grainworks/grainstock-backend/internal/warehouses"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
	"github.com/grainworks/grainstock-backend/pkg/enums"
	pkgerrors "github.com/grainworks/grainstock-backend/pkg/errors"
	"github.com/grainworks/grainstock-backend/pkg/outbox"
)

type fixture struct {
	svc       Service
	conn      *gorm.DB
	warehouse *models.Warehouse
	altWH     *models.Warehouse
	commodity *models.Commodity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:movements_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&models.Warehouse{},
		&models.Commodity{},
		&models.StockMovement{},
		&models.StockBalance{},
		&models.OutboxEvent{},
	))

	warehouse := &models.Warehouse{ID: uuid.New(), Code: "WH-A", Name: "Depot A", IsActive: true}
	altWH := &models.Warehouse{ID: uuid.New(), Code: "WH-B", Name: "Depot B", IsActive: true}
	commodity := &models.Commodity{ID: uuid.New(), Code: "WHEAT", Name: "Wheat", Unit: enums.CommodityUnitKilogram, IsActive: true}
	require.NoError(t, conn.Create(warehouse).Error)
	require.NoError(t, conn.Create(altWH).Error)
	require.NoError(t, conn.Create(commodity).Error)

	ledgerRepo := ledger.NewRepository(conn)
	balanceSvc, err := balances.NewService(conn, balances.NewRepository(conn), ledgerRepo, nil, nil)
	require.NoError(t, err)

	box := outbox.NewService(outbox.NewRepository(conn), nil)

	svc, err := NewService(conn, ledgerRepo, balanceSvc,
		commodities.NewRepository(conn), warehouses.NewRepository(conn), box, nil, nil)
	require.NoError(t, err)

	return &fixture{svc: svc, conn: conn, warehouse: warehouse, altWH: altWH, commodity: commodity}
}

func (f *fixture) record(t *testing.T, kind enums.MovementKind, qty string, key string) *MovementResult {
	t.Helper()
	result, err := f.svc.RecordMovement(context.Background(), RecordMovementInput{
		WarehouseID:    f.warehouse.ID,
		CommodityID:    f.commodity.ID,
		Kind:           kind,
		Quantity:       decimal.RequireFromString(qty),
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	return result
}

func TestRecordMovementPurchaseThenSale(t *testing.T) {
	f := newFixture(t)

	purchase := f.record(t, enums.MovementKindPurchase, "100", "po-1")
	require.EqualValues(t, 1, purchase.Movement.Seq)
	require.Equal(t, "100", purchase.Balance.Quantity.String())
	require.False(t, purchase.Replayed)

	sale := f.record(t, enums.MovementKindSale, "-30", "inv-77")
	require.EqualValues(t, 2, sale.Movement.Seq)
	require.Equal(t, "70", sale.Balance.Quantity.String())

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventMovementRecorded).
		Count(&events).Error)
	require.EqualValues(t, 2, events)
}

func TestRecordMovementRejectsOverdraw(t *testing.T) {
	f := newFixture(t)
	f.record(t, enums.MovementKindPurchase, "100", "po-1")

	_, err := f.svc.RecordMovement(context.Background(), RecordMovementInput{
		WarehouseID:    f.warehouse.ID,
		CommodityID:    f.commodity.ID,
		Kind:           enums.MovementKindSale,
		Quantity:       decimal.RequireFromString("-1000"),
		IdempotencyKey: "inv-99",
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeInsufficientStock, appErr.Code())

	details, ok := appErr.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "100", details["available"])
	require.Equal(t, "1000", details["requested"])

	var rows int64
	require.NoError(t, f.conn.Model(&models.StockMovement{}).Count(&rows).Error)
	require.EqualValues(t, 1, rows, "rejected movement must not reach the ledger")
}

func TestRecordMovementValidatesSignAgainstKind(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		kind enums.MovementKind
		qty  string
	}{
		{enums.MovementKindPurchase, "-10"},
		{enums.MovementKindSale, "10"},
		{enums.MovementKindAdjustment, "0"},
	}
	for _, tc := range cases {
		_, err := f.svc.RecordMovement(context.Background(), RecordMovementInput{
			WarehouseID:    f.warehouse.ID,
			CommodityID:    f.commodity.ID,
			Kind:           tc.kind,
			Quantity:       decimal.RequireFromString(tc.qty),
			IdempotencyKey: "k-" + string(tc.kind),
		})
		require.Error(t, err, "kind %s qty %s", tc.kind, tc.qty)
		require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	}
}

func TestRecordMovementIdempotentRetry(t *testing.T) {
	f := newFixture(t)

	first := f.record(t, enums.MovementKindPurchase, "100", "po-1")
	retry := f.record(t, enums.MovementKindPurchase, "100", "po-1")

	require.True(t, retry.Replayed)
	require.Equal(t, first.Movement.ID, retry.Movement.ID)
	require.Equal(t, "100", retry.Balance.Quantity.String())

	var rows int64
	require.NoError(t, f.conn.Model(&models.StockMovement{}).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestRecordMovementRejectsUnknownAndRetiredRefs(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordMovement(context.Background(), RecordMovementInput{
		WarehouseID:    uuid.New(),
		CommodityID:    f.commodity.ID,
		Kind:           enums.MovementKindPurchase,
		Quantity:       decimal.NewFromInt(10),
		IdempotencyKey: "po-x",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	require.NoError(t, f.conn.Model(&models.Commodity{}).
		Where("id = ?", f.commodity.ID).
		Update("is_active", false).Error)

	_, err = f.svc.RecordMovement(context.Background(), RecordMovementInput{
		WarehouseID:    f.warehouse.ID,
		CommodityID:    f.commodity.ID,
		Kind:           enums.MovementKindPurchase,
		Quantity:       decimal.NewFromInt(10),
		IdempotencyKey: "po-y",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestRecordMovementHealsStaleCache(t *testing.T) {
	f := newFixture(t)
	f.record(t, enums.MovementKindPurchase, "100", "po-1")

	// Corrupt the watermark so the next apply sees a gap.
	require.NoError(t, f.conn.Model(&models.StockBalance{}).
		Where("warehouse_id = ? AND commodity_id = ?", f.warehouse.ID, f.commodity.ID).
		Updates(map[string]any{"last_seq": 0, "quantity": "0"}).Error)

	sale := f.record(t, enums.MovementKindSale, "-30", "inv-1")
	require.Equal(t, "70", sale.Balance.Quantity.String())
	require.EqualValues(t, 2, sale.Balance.LastSeq)
}

func TestRecordTransferMovesStockBetweenWarehouses(t *testing.T) {
	f := newFixture(t)
	f.record(t, enums.MovementKindPurchase, "70", "po-1")

	result, err := f.svc.RecordTransfer(context.Background(), RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.altWH.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(50),
		IdempotencyKey:    "tr-1",
	})
	require.NoError(t, err)

	require.Equal(t, "20", result.SourceBalance.Quantity.String())
	require.Equal(t, "50", result.DestBalance.Quantity.String())

	require.NotNil(t, result.OutMovement.TransferID)
	require.NotNil(t, result.InMovement.TransferID)
	require.Equal(t, result.TransferID, *result.OutMovement.TransferID)
	require.Equal(t, result.TransferID, *result.InMovement.TransferID)

	require.NotNil(t, result.OutMovement.PairedMovementID)
	require.NotNil(t, result.InMovement.PairedMovementID)
	require.Equal(t, result.InMovement.ID, *result.OutMovement.PairedMovementID)
	require.Equal(t, result.OutMovement.ID, *result.InMovement.PairedMovementID)

	require.Equal(t, "-50", result.OutMovement.Quantity.String())
	require.Equal(t, "50", result.InMovement.Quantity.String())
}

func TestRecordTransferRejectsOverdraw(t *testing.T) {
	f := newFixture(t)
	f.record(t, enums.MovementKindPurchase, "10", "po-1")

	_, err := f.svc.RecordTransfer(context.Background(), RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.altWH.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(50),
		IdempotencyKey:    "tr-1",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.As(err).Code())

	var rows int64
	require.NoError(t, f.conn.Model(&models.StockMovement{}).
		Where("kind IN ?", []string{"transfer_out", "transfer_in"}).
		Count(&rows).Error)
	require.EqualValues(t, 0, rows)
}

func TestRecordTransferIdempotentRetry(t *testing.T) {
	f := newFixture(t)
	f.record(t, enums.MovementKindPurchase, "70", "po-1")

	first, err := f.svc.RecordTransfer(context.Background(), RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.altWH.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(50),
		IdempotencyKey:    "tr-1",
	})
	require.NoError(t, err)

	retry, err := f.svc.RecordTransfer(context.Background(), RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.altWH.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(50),
		IdempotencyKey:    "tr-1",
	})
	require.NoError(t, err)
	require.True(t, retry.Replayed)
	require.Equal(t, first.TransferID, retry.TransferID)
	require.Equal(t, first.OutMovement.ID, retry.OutMovement.ID)
	require.Equal(t, first.InMovement.ID, retry.InMovement.ID)
	require.Equal(t, "20", retry.SourceBalance.Quantity.String())
	require.Equal(t, "50", retry.DestBalance.Quantity.String())
}

// failTransferInRepo refuses transfer-in appends so the reversal path
// can be exercised against an otherwise real ledger.
type failTransferInRepo struct {
	ledger.Repository
}

func (r failTransferInRepo) WithTx(tx *gorm.DB) ledger.Repository {
	return failTransferInRepo{Repository: r.Repository.WithTx(tx)}
}

func (r failTransferInRepo) Append(ctx context.Context, movement *models.StockMovement) error {
	if movement.Kind == enums.MovementKindTransferIn {
		return fmt.Errorf("simulated storage failure")
	}
	return r.Repository.Append(ctx, movement)
}

func TestRecordTransferReversesOutLegOnInFailure(t *testing.T) {
	f := newFixture(t)
	f.record(t, enums.MovementKindPurchase, "70", "po-1")

	ledgerRepo := failTransferInRepo{Repository: ledger.NewRepository(f.conn)}
	balanceSvc, err := balances.NewService(f.conn, balances.NewRepository(f.conn), ledgerRepo, nil, nil)
	require.NoError(t, err)
	box := outbox.NewService(outbox.NewRepository(f.conn), nil)
	svc, err := NewService(f.conn, ledgerRepo, balanceSvc,
		commodities.NewRepository(f.conn), warehouses.NewRepository(f.conn), box, nil, nil)
	require.NoError(t, err)

	_, err = svc.RecordTransfer(context.Background(), RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.altWH.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(50),
		IdempotencyKey:    "tr-1",
	})
	require.Error(t, err)

	// The out leg and its compensating adjustment both stay visible in
	// the ledger while the net source balance is restored.
	source, err := balanceSvc.Read(context.Background(), f.warehouse.ID, f.commodity.ID)
	require.NoError(t, err)
	require.Equal(t, "70", source.Quantity.String())

	dest, err := balanceSvc.Read(context.Background(), f.altWH.ID, f.commodity.ID)
	require.NoError(t, err)
	require.True(t, dest.Quantity.IsZero())

	var kinds []string
	require.NoError(t, f.conn.Model(&models.StockMovement{}).
		Where("warehouse_id = ?", f.warehouse.ID).
		Order("seq ASC").
		Pluck("kind", &kinds).Error)
	require.Equal(t, []string{"purchase", "transfer_out", "adjustment"}, kinds)

	// Retrying the reversed transfer's key demands a fresh key.
	_, err = svc.RecordTransfer(context.Background(), RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.altWH.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(50),
		IdempotencyKey:    "tr-1",
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestRecordMovementWritesEventInSameTransaction(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.conn.Migrator().DropTable(&models.OutboxEvent{}))

	_, err := f.svc.RecordMovement(context.Background(), RecordMovementInput{
		WarehouseID:    f.warehouse.ID,
		CommodityID:    f.commodity.ID,
		Kind:           enums.MovementKindPurchase,
		Quantity:       decimal.NewFromInt(10),
		IdempotencyKey: "po-1",
	})
	require.Error(t, err)

	// The failed event write must roll back the ledger append with it.
	var rows int64
	require.NoError(t, f.conn.Model(&models.StockMovement{}).Count(&rows).Error)
	require.EqualValues(t, 0, rows)
}

func TestRecordTransferAbortsCleanlyWhenEventWriteFails(t *testing.T) {
	f := newFixture(t)
	f.record(t, enums.MovementKindPurchase, "70", "po-1")
	require.NoError(t, f.conn.Migrator().DropTable(&models.OutboxEvent{}))

	_, err := f.svc.RecordTransfer(context.Background(), RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.altWH.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(50),
		IdempotencyKey:    "tr-1",
	})
	require.Error(t, err)

	var kinds []string
	require.NoError(t, f.conn.Model(&models.StockMovement{}).
		Where("warehouse_id = ?", f.warehouse.ID).
		Order("seq ASC").
		Pluck("kind", &kinds).Error)
	require.Equal(t, []string{"purchase"}, kinds)

	source, err := balances.NewService(f.conn, balances.NewRepository(f.conn), ledger.NewRepository(f.conn), nil, nil)
	require.NoError(t, err)
	balance, err := source.Read(context.Background(), f.warehouse.ID, f.commodity.ID)
	require.NoError(t, err)
	require.Equal(t, "70", balance.Quantity.String())
}

// cancelingTransferInRepo aborts the request context while failing the
// in leg, the way a caller disconnect mid-transfer looks to the service.
type cancelingTransferInRepo struct {
	ledger.Repository
	cancel context.CancelFunc
}

func (r cancelingTransferInRepo) WithTx(tx *gorm.DB) ledger.Repository {
	return cancelingTransferInRepo{Repository: r.Repository.WithTx(tx), cancel: r.cancel}
}

func (r cancelingTransferInRepo) Append(ctx context.Context, movement *models.StockMovement) error {
	if movement.Kind == enums.MovementKindTransferIn {
		r.cancel()
		return fmt.Errorf("append aborted: %w", context.Canceled)
	}
	return r.Repository.Append(ctx, movement)
}

func TestRecordTransferReversalSurvivesCanceledRequest(t *testing.T) {
	f := newFixture(t)
	f.record(t, enums.MovementKindPurchase, "70", "po-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledgerRepo := cancelingTransferInRepo{Repository: ledger.NewRepository(f.conn), cancel: cancel}
	balanceSvc, err := balances.NewService(f.conn, balances.NewRepository(f.conn), ledgerRepo, nil, nil)
	require.NoError(t, err)
	box := outbox.NewService(outbox.NewRepository(f.conn), nil)
	svc, err := NewService(f.conn, ledgerRepo, balanceSvc,
		commodities.NewRepository(f.conn), warehouses.NewRepository(f.conn), box, nil, nil)
	require.NoError(t, err)

	_, err = svc.RecordTransfer(ctx, RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.altWH.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(50),
		IdempotencyKey:    "tr-1",
	})
	require.Error(t, err)

	// The compensation must land even though the request context died.
	var kinds []string
	require.NoError(t, f.conn.Model(&models.StockMovement{}).
		Where("warehouse_id = ?", f.warehouse.ID).
		Order("seq ASC").
		Pluck("kind", &kinds).Error)
	require.Equal(t, []string{"purchase", "transfer_out", "adjustment"}, kinds)

	balance, err := balanceSvc.Read(context.Background(), f.warehouse.ID, f.commodity.ID)
	require.NoError(t, err)
	require.Equal(t, "70", balance.Quantity.String())
}

// brokenDestBalances refuses cache writes for one warehouse so the
// in leg can commit while its balance apply fails.
type brokenDestBalances struct {
	balances.Service
	dest uuid.UUID
}

func (b brokenDestBalances) Apply(ctx context.Context, tx *gorm.DB, movement *models.StockMovement) (*models.StockBalance, error) {
	if movement.WarehouseID == b.dest {
		return nil, fmt.Errorf("cache write refused")
	}
	return b.Service.Apply(ctx, tx, movement)
}

func (b brokenDestBalances) Rebuild(ctx context.Context, warehouseID, commodityID uuid.UUID) (*models.StockBalance, error) {
	if warehouseID == b.dest {
		return nil, fmt.Errorf("cache rebuild refused")
	}
	return b.Service.Rebuild(ctx, warehouseID, commodityID)
}

func TestRecordTransferKeepsCommittedInLeg(t *testing.T) {
	f := newFixture(t)
	f.record(t, enums.MovementKindPurchase, "70", "po-1")

	ledgerRepo := ledger.NewRepository(f.conn)
	realBalances, err := balances.NewService(f.conn, balances.NewRepository(f.conn), ledgerRepo, nil, nil)
	require.NoError(t, err)
	balanceSvc := brokenDestBalances{Service: realBalances, dest: f.altWH.ID}
	box := outbox.NewService(outbox.NewRepository(f.conn), nil)
	svc, err := NewService(f.conn, ledgerRepo, balanceSvc,
		commodities.NewRepository(f.conn), warehouses.NewRepository(f.conn), box, nil, nil)
	require.NoError(t, err)

	_, err = svc.RecordTransfer(context.Background(), RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.altWH.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(50),
		IdempotencyKey:    "tr-1",
	})
	require.Error(t, err)

	// Both legs are durable, so no compensation may be appended: a
	// reversal here would create stock out of thin air.
	var kinds []string
	require.NoError(t, f.conn.Model(&models.StockMovement{}).
		Order("id ASC").
		Pluck("kind", &kinds).Error)
	require.ElementsMatch(t, []string{"purchase", "transfer_out", "transfer_in"}, kinds)

	// A retry replays the completed pair instead of failing again.
	result, err := svc.RecordTransfer(context.Background(), RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.altWH.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(50),
		IdempotencyKey:    "tr-1",
	})
	require.NoError(t, err)
	require.True(t, result.Replayed)
	require.NotNil(t, result.OutMovement)
	require.NotNil(t, result.InMovement)
}

func TestRecordTransferRejectsSameWarehouse(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordTransfer(context.Background(), RecordTransferInput{
		SourceWarehouseID: f.warehouse.ID,
		DestWarehouseID:   f.warehouse.ID,
		CommodityID:       f.commodity.ID,
		Quantity:          decimal.NewFromInt(5),
		IdempotencyKey:    "tr-1",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestKeyLockManyReleasesCleanly(t *testing.T) {
	locks := newKeyLock()

	unlock := locks.LockMany("b/1", "a/1", "a/1")
	unlock()

	// After release the entry map must be empty again.
	locks.mu.Lock()
	defer locks.mu.Unlock()
	require.Empty(t, locks.entries)
}
