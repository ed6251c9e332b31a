package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/grainworks/grainstock-backend/internal/queries"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
)

type movementResponse struct {
	ID               uuid.UUID  `json:"id"`
	WarehouseID      uuid.UUID  `json:"warehouse_id"`
	CommodityID      uuid.UUID  `json:"commodity_id"`
	Seq              int64      `json:"seq"`
	Kind             string     `json:"kind"`
	Quantity         string     `json:"quantity"`
	Reference        *string    `json:"reference,omitempty"`
	TransferID       *uuid.UUID `json:"transfer_id,omitempty"`
	PairedMovementID *uuid.UUID `json:"paired_movement_id,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toMovementResponse(m *models.StockMovement) movementResponse {
	return movementResponse{
		ID:               m.ID,
		WarehouseID:      m.WarehouseID,
		CommodityID:      m.CommodityID,
		Seq:              m.Seq,
		Kind:             m.Kind.String(),
		Quantity:         m.Quantity.String(),
		Reference:        m.Reference,
		TransferID:       m.TransferID,
		PairedMovementID: m.PairedMovementID,
		OccurredAt:       m.OccurredAt,
		CreatedAt:        m.CreatedAt,
	}
}

type balanceResponse struct {
	WarehouseID uuid.UUID `json:"warehouse_id"`
	CommodityID uuid.UUID `json:"commodity_id"`
	Quantity    string    `json:"quantity"`
	LastSeq     int64     `json:"last_seq"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toBalanceResponse(b *models.StockBalance) balanceResponse {
	return balanceResponse{
		WarehouseID: b.WarehouseID,
		CommodityID: b.CommodityID,
		Quantity:    b.Quantity.String(),
		LastSeq:     b.LastSeq,
		UpdatedAt:   b.UpdatedAt,
	}
}

type balanceViewResponse struct {
	WarehouseID uuid.UUID `json:"warehouse_id"`
	CommodityID uuid.UUID `json:"commodity_id"`
	Quantity    string    `json:"quantity"`
	LastSeq     int64     `json:"last_seq"`
	LedgerSeq   int64     `json:"ledger_seq"`
	Stale       bool      `json:"stale"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toBalanceViewResponse(v queries.BalanceView) balanceViewResponse {
	return balanceViewResponse{
		WarehouseID: v.WarehouseID,
		CommodityID: v.CommodityID,
		Quantity:    v.Quantity.String(),
		LastSeq:     v.LastSeq,
		LedgerSeq:   v.LedgerSeq,
		Stale:       v.Stale,
		UpdatedAt:   v.UpdatedAt,
	}
}

type commodityResponse struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Unit        string    `json:"unit"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toCommodityResponse(c *models.Commodity) commodityResponse {
	return commodityResponse{
		ID:          c.ID,
		Code:        c.Code,
		Name:        c.Name,
		Unit:        c.Unit.String(),
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type warehouseResponse struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Region    *string   `json:"region,omitempty"`
	Address   *string   `json:"address,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toWarehouseResponse(w *models.Warehouse) warehouseResponse {
	return warehouseResponse{
		ID:        w.ID,
		Code:      w.Code,
		Name:      w.Name,
		Region:    w.Region,
		Address:   w.Address,
		IsActive:  w.IsActive,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}
