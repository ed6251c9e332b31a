package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grainworks/grainstock-backend/api/responses"
	"github.com/grainworks/grainstock-backend/api/validators"
	movementsvc "github.com/grainworks/grainstock-backend/internal/movements"
	"github.com/grainworks/grainstock-backend/internal/queries"
	"github.com/grainworks/grainstock-backend/pkg/enums"
	pkgerrors "github.com/grainworks/grainstock-backend/pkg/errors"
	"github.com/grainworks/grainstock-backend/pkg/logger"
	"github.com/grainworks/grainstock-backend/pkg/pagination"
)

type recordMovementRequest struct {
	WarehouseID string     `json:"warehouse_id" validate:"required,uuid"`
	CommodityID string     `json:"commodity_id" validate:"required,uuid"`
	Kind        string     `json:"kind" validate:"required"`
	Quantity    string     `json:"quantity" validate:"required"`
	Reference   *string    `json:"reference,omitempty" validate:"omitempty,max=255"`
	OccurredAt  *time.Time `json:"occurred_at,omitempty"`
}

func (r recordMovementRequest) toInput(idempotencyKey string) (movementsvc.RecordMovementInput, error) {
	warehouseID, err := validators.ParsePathUUID(r.WarehouseID, "warehouse_id")
	if err != nil {
		return movementsvc.RecordMovementInput{}, err
	}
	commodityID, err := validators.ParsePathUUID(r.CommodityID, "commodity_id")
	if err != nil {
		return movementsvc.RecordMovementInput{}, err
	}
	kind, err := enums.ParseMovementKind(strings.TrimSpace(r.Kind))
	if err != nil {
		return movementsvc.RecordMovementInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement kind")
	}
	quantity, err := decimal.NewFromString(strings.TrimSpace(r.Quantity))
	if err != nil {
		return movementsvc.RecordMovementInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "quantity must be a decimal number")
	}

	input := movementsvc.RecordMovementInput{
		WarehouseID:    warehouseID,
		CommodityID:    commodityID,
		Kind:           kind,
		Quantity:       quantity,
		Reference:      r.Reference,
		IdempotencyKey: idempotencyKey,
	}
	if r.OccurredAt != nil {
		input.OccurredAt = *r.OccurredAt
	}
	return input, nil
}

type movementResultResponse struct {
	Movement movementResponse `json:"movement"`
	Balance  balanceResponse  `json:"balance"`
	Replayed bool             `json:"replayed"`
}

// RecordMovement handles POST /movements.
func RecordMovement(svc movementsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload recordMovementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(idempotencyKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RecordMovement(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, movementResultResponse{
			Movement: toMovementResponse(result.Movement),
			Balance:  toBalanceResponse(result.Balance),
			Replayed: result.Replayed,
		})
	}
}

// ListMovements handles GET /movements with the key selected by query
// parameters instead of the path.
func ListMovements(svc queries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "query service unavailable"))
			return
		}

		warehouseID, err := validators.ParsePathUUID(r.URL.Query().Get("warehouse_id"), "warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commodityID, err := validators.ParsePathUUID(r.URL.Query().Get("commodity_id"), "commodity_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		serveHistory(w, r, svc, logg, warehouseID, commodityID)
	}
}

type historyResponse struct {
	Movements  []movementResponse `json:"movements"`
	NextCursor string             `json:"next_cursor,omitempty"`
	HasMore    bool               `json:"has_more"`
}

// MovementHistory handles GET /warehouses/{warehouseID}/commodities/{commodityID}/movements.
func MovementHistory(svc queries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "query service unavailable"))
			return
		}

		warehouseID, err := validators.ParsePathUUID(chi.URLParam(r, "warehouseID"), "warehouseID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commodityID, err := validators.ParsePathUUID(chi.URLParam(r, "commodityID"), "commodityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		serveHistory(w, r, svc, logg, warehouseID, commodityID)
	}
}

func serveHistory(w http.ResponseWriter, r *http.Request, svc queries.Service, logg *logger.Logger, warehouseID, commodityID uuid.UUID) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	page, err := svc.History(r.Context(), queries.HistoryInput{
		WarehouseID: warehouseID,
		CommodityID: commodityID,
		From:        from,
		To:          to,
		Limit:       limit,
		Cursor:      r.URL.Query().Get("cursor"),
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	out := historyResponse{
		Movements:  make([]movementResponse, 0, len(page.Movements)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	for i := range page.Movements {
		out.Movements = append(out.Movements, toMovementResponse(&page.Movements[i]))
	}
	responses.WriteSuccess(w, out)
}
