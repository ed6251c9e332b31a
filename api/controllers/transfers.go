package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grainworks/grainstock-backend/api/responses"
	"github.com/grainworks/grainstock-backend/api/validators"
	movementsvc "github.com/grainworks/grainstock-backend/internal/movements"
	pkgerrors "github.com/grainworks/grainstock-backend/pkg/errors"
	"github.com/grainworks/grainstock-backend/pkg/logger"
)

type recordTransferRequest struct {
	SourceWarehouseID string     `json:"source_warehouse_id" validate:"required,uuid"`
	DestWarehouseID   string     `json:"dest_warehouse_id" validate:"required,uuid"`
	CommodityID       string     `json:"commodity_id" validate:"required,uuid"`
	Quantity          string     `json:"quantity" validate:"required"`
	Reference         *string    `json:"reference,omitempty" validate:"omitempty,max=255"`
	OccurredAt        *time.Time `json:"occurred_at,omitempty"`
}

type transferResultResponse struct {
	TransferID    string           `json:"transfer_id"`
	OutMovement   movementResponse `json:"out_movement"`
	InMovement    movementResponse `json:"in_movement"`
	SourceBalance balanceResponse  `json:"source_balance"`
	DestBalance   balanceResponse  `json:"dest_balance"`
	Replayed      bool             `json:"replayed"`
}

// RecordTransfer handles POST /transfers.
func RecordTransfer(svc movementsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movement service unavailable"))
			return
		}

		idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if idempotencyKey == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}

		var payload recordTransferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sourceID, err := validators.ParsePathUUID(payload.SourceWarehouseID, "source_warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		destID, err := validators.ParsePathUUID(payload.DestWarehouseID, "dest_warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commodityID, err := validators.ParsePathUUID(payload.CommodityID, "commodity_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quantity, err := decimal.NewFromString(strings.TrimSpace(payload.Quantity))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "quantity must be a decimal number"))
			return
		}

		input := movementsvc.RecordTransferInput{
			SourceWarehouseID: sourceID,
			DestWarehouseID:   destID,
			CommodityID:       commodityID,
			Quantity:          quantity,
			Reference:         payload.Reference,
			IdempotencyKey:    idempotencyKey,
		}
		if payload.OccurredAt != nil {
			input.OccurredAt = *payload.OccurredAt
		}

		result, err := svc.RecordTransfer(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, transferResultResponse{
			TransferID:    result.TransferID.String(),
			OutMovement:   toMovementResponse(result.OutMovement),
			InMovement:    toMovementResponse(result.InMovement),
			SourceBalance: toBalanceResponse(result.SourceBalance),
			DestBalance:   toBalanceResponse(result.DestBalance),
			Replayed:      result.Replayed,
		})
	}
}
