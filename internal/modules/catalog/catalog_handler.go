package catalog

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"ordering-and-delivery/internal/models"
)

// Handler exposes catalog browsing endpoints.
type Handler struct {
	svc ServiceInterface
}

func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/services", h.ListServices)
	g.GET("/services/:serviceId", h.GetService)
	g.GET("/services/:serviceId/menu", h.ListMenu)
}

func (h *Handler) ListServices(c echo.Context) error {
	services, err := h.svc.ListServices(c.Request().Context())
	if err != nil {
		c.Logger().Error("Handler.ListServices: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to list services"})
	}
	return c.JSON(http.StatusOK, services)
}

func (h *Handler) GetService(c echo.Context) error {
	svc, err := h.svc.GetService(c.Request().Context(), c.Param("serviceId"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Service not found"})
		}
		c.Logger().Error("Handler.GetService: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve service"})
	}
	return c.JSON(http.StatusOK, svc)
}

func (h *Handler) ListMenu(c echo.Context) error {
	items, err := h.svc.ListMenuItems(c.Request().Context(), c.Param("serviceId"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Service not found"})
		}
		c.Logger().Error("Handler.ListMenu: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to list menu items"})
	}
	return c.JSON(http.StatusOK, items)
}
