package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/grainworks/grainstock-backend/api/responses"
	"github.com/grainworks/grainstock-backend/api/validators"
	commoditysvc "github.com/grainworks/grainstock-backend/internal/commodities"
	"github.com/grainworks/grainstock-backend/pkg/enums"
	pkgerrors "github.com/grainworks/grainstock-backend/pkg/errors"
	"github.com/grainworks/grainstock-backend/pkg/logger"
)

type createCommodityRequest struct {
	Code        string  `json:"code" validate:"required,max=64"`
	Name        string  `json:"name" validate:"required,max=255"`
	Unit        string  `json:"unit" validate:"required"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1024"`
}

type updateCommodityRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1024"`
}

// CreateCommodity handles POST /commodities.
func CreateCommodity(svc commoditysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commodity service unavailable"))
			return
		}

		var payload createCommodityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		unit, err := enums.ParseCommodityUnit(strings.TrimSpace(payload.Unit))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit"))
			return
		}

		commodity, err := svc.Create(r.Context(), commoditysvc.CreateInput{
			Code:        payload.Code,
			Name:        payload.Name,
			Unit:        unit,
			Description: payload.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toCommodityResponse(commodity))
	}
}

// GetCommodity handles GET /commodities/{commodityID}.
func GetCommodity(svc commoditysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commodity service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "commodityID"), "commodityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		commodity, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCommodityResponse(commodity))
	}
}

// ListCommodities handles GET /commodities.
func ListCommodities(svc commoditysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commodity service unavailable"))
			return
		}

		includeInactive, err := validators.ParseQueryBool(r, "include_inactive")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), includeInactive)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]commodityResponse, 0, len(rows))
		for i := range rows {
			out = append(out, toCommodityResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// UpdateCommodity handles PATCH /commodities/{commodityID}.
func UpdateCommodity(svc commoditysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commodity service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "commodityID"), "commodityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCommodityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		commodity, err := svc.Update(r.Context(), id, commoditysvc.UpdateInput{
			Name:        payload.Name,
			Description: payload.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCommodityResponse(commodity))
	}
}

// DeactivateCommodity handles POST /commodities/{commodityID}/deactivate.
func DeactivateCommodity(svc commoditysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commodity service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "commodityID"), "commodityID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		commodity, err := svc.Deactivate(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCommodityResponse(commodity))
	}
}
