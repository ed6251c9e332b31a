package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grainworks/grainstock-backend/pkg/enums"
)

// StockMovement is one immutable row in the append-only stock ledger.
// Quantity is a signed delta: inbound kinds carry positive values and
// outbound kinds negative ones. Seq is assigned contiguously per
// (warehouse, commodity) pair and never reused.
type StockMovement struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	WarehouseID      uuid.UUID          `gorm:"column:warehouse_id;type:uuid;not null;uniqueIndex:ux_stock_movements_key_seq,priority:1"`
	CommodityID      uuid.UUID          `gorm:"column:commodity_id;type:uuid;not null;uniqueIndex:ux_stock_movements_key_seq,priority:2"`
	Seq              int64              `gorm:"column:seq;not null;uniqueIndex:ux_stock_movements_key_seq,priority:3"`
	Kind             enums.MovementKind `gorm:"column:kind;type:movement_kind_enum;not null"`
	Quantity         decimal.Decimal    `gorm:"column:quantity;type:numeric(18,3);not null"`
	Reference        *string            `gorm:"column:reference"`
	TransferID       *uuid.UUID         `gorm:"column:transfer_id;type:uuid;index:ix_stock_movements_transfer"`
	PairedMovementID *uuid.UUID         `gorm:"column:paired_movement_id;type:uuid"`
	IdempotencyKey   string             `gorm:"column:idempotency_key;uniqueIndex:ux_stock_movements_idem_key;not null"`
	OccurredAt       time.Time          `gorm:"column:occurred_at;not null"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
}
