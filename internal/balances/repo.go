package balances

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grainworks/grainstock-backend/internal/repo"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
)

// Repository manages persistence for cached stock balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, warehouseID, commodityID uuid.UUID) (*models.StockBalance, error)
	ListByWarehouse(ctx context.Context, warehouseID uuid.UUID) ([]models.StockBalance, error)
	All(ctx context.Context) ([]models.StockBalance, error)
	Save(ctx context.Context, balance *models.StockBalance) error
}

type repository struct {
	repo.Base
}

// NewRepository returns a balance repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Get(ctx context.Context, warehouseID, commodityID uuid.UUID) (*models.StockBalance, error) {
	var balance models.StockBalance
	err := r.DB(ctx).
		Where("warehouse_id = ? AND commodity_id = ?", warehouseID, commodityID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) ListByWarehouse(ctx context.Context, warehouseID uuid.UUID) ([]models.StockBalance, error) {
	var rows []models.StockBalance
	err := r.DB(ctx).
		Where("warehouse_id = ?", warehouseID).
		Order("commodity_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) All(ctx context.Context) ([]models.StockBalance, error) {
	var rows []models.StockBalance
	err := r.DB(ctx).
		Order("warehouse_id ASC, commodity_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Save upserts the balance row keyed by (warehouse_id, commodity_id).
func (r *repository) Save(ctx context.Context, balance *models.StockBalance) error {
	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "warehouse_id"}, {Name: "commodity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"quantity", "last_movement_id", "last_seq", "updated_at",
			}),
		}).
		Create(balance).Error
}
