package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/grainworks/grainstock-backend/pkg/enums"
)

// Commodity is a tracked grain or oil product, identified by a stable code.
type Commodity struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Code        string              `gorm:"column:code;uniqueIndex:ux_commodities_code;not null"`
	Name        string              `gorm:"column:name;not null"`
	Unit        enums.CommodityUnit `gorm:"column:unit;type:commodity_unit_enum;not null"`
	Description *string             `gorm:"column:description"`
	IsActive    bool                `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
