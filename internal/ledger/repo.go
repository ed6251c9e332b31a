package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grainworks/grainstock-backend/pkg/db/models"
)

// HistoryQuery filters a per-key ledger scan. AfterSeq is an exclusive cursor;
// zero means start from the beginning of the key's history.
type HistoryQuery struct {
	WarehouseID uuid.UUID
	CommodityID uuid.UUID
	From        *time.Time
	To          *time.Time
	AfterSeq    int64
	Limit       int
}

// ReplayTotals is the result of replaying one key's full movement history.
type ReplayTotals struct {
	Quantity       decimal.Decimal
	MaxSeq         int64
	LastMovementID *uuid.UUID
}

// KeyWatermark pairs a ledger key with its latest sequence number.
type KeyWatermark struct {
	WarehouseID uuid.UUID
	CommodityID uuid.UUID
	MaxSeq      int64
}

// Repository manages persistence for the append-only stock ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, movement *models.StockMovement) error
	Get(ctx context.Context, id uuid.UUID) (*models.StockMovement, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.StockMovement, error)
	MaxSeq(ctx context.Context, warehouseID, commodityID uuid.UUID) (int64, error)
	ListByKey(ctx context.Context, query HistoryQuery) ([]models.StockMovement, error)
	ListByTransferID(ctx context.Context, transferID uuid.UUID) ([]models.StockMovement, error)
	Replay(ctx context.Context, warehouseID, commodityID uuid.UUID) (ReplayTotals, error)
	KeyWatermarks(ctx context.Context) ([]KeyWatermark, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, movement *models.StockMovement) error {
	if movement.ID == uuid.Nil {
		movement.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.StockMovement, error) {
	var movement models.StockMovement
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&movement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &movement, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.StockMovement, error) {
	var movement models.StockMovement
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&movement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &movement, nil
}

func (r *repository) MaxSeq(ctx context.Context, warehouseID, commodityID uuid.UUID) (int64, error) {
	var maxSeq *int64
	err := r.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Select("MAX(seq)").
		Where("warehouse_id = ? AND commodity_id = ?", warehouseID, commodityID).
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	if maxSeq == nil {
		return 0, nil
	}
	return *maxSeq, nil
}

func (r *repository) ListByKey(ctx context.Context, query HistoryQuery) ([]models.StockMovement, error) {
	q := r.db.WithContext(ctx).
		Where("warehouse_id = ? AND commodity_id = ?", query.WarehouseID, query.CommodityID)
	if query.From != nil {
		q = q.Where("occurred_at >= ?", *query.From)
	}
	if query.To != nil {
		q = q.Where("occurred_at < ?", *query.To)
	}
	if query.AfterSeq > 0 {
		q = q.Where("seq > ?", query.AfterSeq)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var movements []models.StockMovement
	if err := q.Order("seq ASC").Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repository) ListByTransferID(ctx context.Context, transferID uuid.UUID) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("transfer_id = ?", transferID).
		Order("seq ASC").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// Replay walks the key's full history in seq order and sums the deltas in Go,
// keeping the arithmetic in decimal space regardless of the SQL driver.
func (r *repository) Replay(ctx context.Context, warehouseID, commodityID uuid.UUID) (ReplayTotals, error) {
	totals := ReplayTotals{Quantity: decimal.Zero}

	var movements []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("warehouse_id = ? AND commodity_id = ?", warehouseID, commodityID).
		Order("seq ASC").
		Find(&movements).Error
	if err != nil {
		return totals, err
	}

	for i := range movements {
		totals.Quantity = totals.Quantity.Add(movements[i].Quantity)
		totals.MaxSeq = movements[i].Seq
		id := movements[i].ID
		totals.LastMovementID = &id
	}
	return totals, nil
}

func (r *repository) KeyWatermarks(ctx context.Context) ([]KeyWatermark, error) {
	var rows []KeyWatermark
	err := r.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Select("warehouse_id, commodity_id, MAX(seq) AS max_seq").
		Group("warehouse_id, commodity_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
