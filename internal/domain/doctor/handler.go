package doctor

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public directory
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors/:id/availability", h.GetAvailability)

	// Doctor self-service
	own := api.Group("", auth.RequireRole(auth.RoleDoctor))
	own.PUT("/doctors/availability", h.SetAvailability)
	own.PUT("/doctors/profile", h.UpdateProfile)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	doctors, err := h.svc.ListDoctors(c.Request().Context(), c.QueryParam("specialization"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	page := window(doctors, pg)
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(doctors), pg).WithNext(c))
}

// window slices a fully materialised listing to the requested page.
func window(all []*Doctor, pg pagination.Params) []*Doctor {
	if pg.Offset >= len(all) {
		return []*Doctor{}
	}
	end := pg.Offset + pg.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[pg.Offset:end]
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDoctorProfile(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	windows, err := h.svc.ListAvailability(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"available_slots": windows})
}

type availabilityRequest struct {
	Slots []Window `json:"available_slots"`
}

func (h *Handler) SetAvailability(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var req availabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	windows, err := h.svc.SetAvailability(c.Request().Context(), actor, req.Slots)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"available_slots": windows})
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var req ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateDoctorProfile(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}
