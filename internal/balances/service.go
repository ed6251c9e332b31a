package balances

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grainworks/grainstock-backend/internal/ledger"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
	"github.com/grainworks/grainstock-backend/pkg/logger"
	"github.com/grainworks/grainstock-backend/pkg/metrics"
)

// ErrCacheStale signals that the cached row lags the ledger and must be
// rebuilt before the write can be applied.
var ErrCacheStale = errors.New("balance cache lags ledger")

// Service maintains the derived balance view for each (warehouse, commodity)
// key. Writes come exclusively from the transaction coordinator; everything
// else treats the cache as read-only.
type Service interface {
	Read(ctx context.Context, warehouseID, commodityID uuid.UUID) (*models.StockBalance, error)
	Apply(ctx context.Context, tx *gorm.DB, movement *models.StockMovement) (*models.StockBalance, error)
	Rebuild(ctx context.Context, warehouseID, commodityID uuid.UUID) (*models.StockBalance, error)
	RebuildTx(ctx context.Context, tx *gorm.DB, warehouseID, commodityID uuid.UUID) (*models.StockBalance, error)
}

type service struct {
	db         *gorm.DB
	repo       Repository
	ledgerRepo ledger.Repository
	metrics    *metrics.LedgerMetrics
	logg       *logger.Logger
}

// NewService wires a balance cache service.
func NewService(db *gorm.DB, repo Repository, ledgerRepo ledger.Repository, m *metrics.LedgerMetrics, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, errors.New("database connection required")
	}
	if repo == nil {
		return nil, errors.New("balance repository required")
	}
	if ledgerRepo == nil {
		return nil, errors.New("ledger repository required")
	}
	return &service{db: db, repo: repo, ledgerRepo: ledgerRepo, metrics: m, logg: logg}, nil
}

// Read returns the cached balance, or a zero-valued row when the key has no
// movements yet.
func (s *service) Read(ctx context.Context, warehouseID, commodityID uuid.UUID) (*models.StockBalance, error) {
	balance, err := s.repo.Get(ctx, warehouseID, commodityID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return &models.StockBalance{
			WarehouseID: warehouseID,
			CommodityID: commodityID,
			Quantity:    decimal.Zero,
		}, nil
	}
	return balance, nil
}

// Apply folds one movement into the cached row. The movement must be the
// direct successor of the cached watermark: an already applied seq is a
// no-op, a gap returns ErrCacheStale.
func (s *service) Apply(ctx context.Context, tx *gorm.DB, movement *models.StockMovement) (*models.StockBalance, error) {
	repo := s.repo.WithTx(tx)

	balance, err := repo.Get(ctx, movement.WarehouseID, movement.CommodityID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		balance = &models.StockBalance{
			WarehouseID: movement.WarehouseID,
			CommodityID: movement.CommodityID,
			Quantity:    decimal.Zero,
		}
	}

	if movement.Seq <= balance.LastSeq {
		return balance, nil
	}
	if movement.Seq != balance.LastSeq+1 {
		return nil, ErrCacheStale
	}

	movementID := movement.ID
	balance.Quantity = balance.Quantity.Add(movement.Quantity)
	balance.LastMovementID = &movementID
	balance.LastSeq = movement.Seq

	if err := repo.Save(ctx, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// Rebuild replays the key's full ledger history and overwrites the cached row.
func (s *service) Rebuild(ctx context.Context, warehouseID, commodityID uuid.UUID) (*models.StockBalance, error) {
	var rebuilt *models.StockBalance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		rebuilt, txErr = s.RebuildTx(ctx, tx, warehouseID, commodityID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return rebuilt, nil
}

// RebuildTx is Rebuild running inside a caller-owned transaction.
func (s *service) RebuildTx(ctx context.Context, tx *gorm.DB, warehouseID, commodityID uuid.UUID) (*models.StockBalance, error) {
	totals, err := s.ledgerRepo.WithTx(tx).Replay(ctx, warehouseID, commodityID)
	if err != nil {
		return nil, err
	}

	balance := &models.StockBalance{
		WarehouseID:    warehouseID,
		CommodityID:    commodityID,
		Quantity:       totals.Quantity,
		LastMovementID: totals.LastMovementID,
		LastSeq:        totals.MaxSeq,
	}
	if err := s.repo.WithTx(tx).Save(ctx, balance); err != nil {
		return nil, err
	}

	s.metrics.IncRebuild()
	if s.logg != nil {
		logCtx := s.logg.WithStockKey(ctx, warehouseID.String(), commodityID.String())
		s.logg.Info(logCtx, "balance rebuilt from ledger replay")
	}
	return balance, nil
}
