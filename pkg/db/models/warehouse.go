package models

import (
	"time"

	"github.com/google/uuid"
)

// Warehouse is a physical storage site that holds commodity stock.
type Warehouse struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Code      string    `gorm:"column:code;uniqueIndex:ux_warehouses_code;not null"`
	Name      string    `gorm:"column:name;not null"`
	Region    *string   `gorm:"column:region"`
	Address   *string   `gorm:"column:address"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
