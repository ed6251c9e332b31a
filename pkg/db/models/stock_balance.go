package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockBalance is the cached on-hand quantity for one (warehouse, commodity)
// pair. LastSeq is the ledger watermark the cache has applied; comparing it
// against the ledger's max seq detects staleness without replaying rows.
type StockBalance struct {
	WarehouseID    uuid.UUID       `gorm:"column:warehouse_id;type:uuid;primaryKey"`
	CommodityID    uuid.UUID       `gorm:"column:commodity_id;type:uuid;primaryKey"`
	Quantity       decimal.Decimal `gorm:"column:quantity;type:numeric(18,3);not null"`
	LastMovementID *uuid.UUID      `gorm:"column:last_movement_id;type:uuid"`
	LastSeq        int64           `gorm:"column:last_seq;not null;default:0"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
