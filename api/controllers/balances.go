package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grainworks/grainstock-backend/api/responses"
	"github.com/grainworks/grainstock-backend/api/validators"
	"github.com/grainworks/grainstock-backend/internal/queries"
	pkgerrors "github.com/grainworks/grainstock-backend/pkg/errors"
	"github.com/grainworks/grainstock-backend/pkg/logger"
)

// GetBalance handles GET /warehouses/{warehouseID}/commodities/{commodityID}/balance.
func GetBalance(svc queries.Service, logg *logger.Logger) http.HandlerFunc {
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

		view, err := svc.CurrentBalance(r.Context(), warehouseID, commodityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBalanceViewResponse(*view))
	}
}

// ListWarehouseBalances handles GET /warehouses/{warehouseID}/balances.
func ListWarehouseBalances(svc queries.Service, logg *logger.Logger) http.HandlerFunc {
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

		views, err := svc.WarehouseBalances(r.Context(), warehouseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]balanceViewResponse, 0, len(views))
		for _, view := range views {
			out = append(out, toBalanceViewResponse(view))
		}
		responses.WriteSuccess(w, out)
	}
}
