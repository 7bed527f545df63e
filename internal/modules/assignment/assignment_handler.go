package assignment

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"ordering-and-delivery/internal/models"
)

// Handler handles HTTP requests for order assignment.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
}

func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the assignment endpoints on the admin group.
func (h *Handler) RegisterRoutes(admin *echo.Group) {
	admin.POST("/orders/:orderId/assign", h.AssignOrder)
	admin.GET("/team-members", h.ListTeamMembers)
	admin.GET("/team-members/:memberId/workload", h.GetWorkload)
}

func (h *Handler) AssignOrder(c echo.Context) error {
	var req models.AssignOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	actor := models.Actor{
		ID:   c.Get("userID").(string),
		Role: models.Role(c.Get("userRole").(string)),
	}
	result, err := h.svc.AssignOrder(c.Request().Context(), actor, c.Param("orderId"), &req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.Is(err, models.ErrAgentNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Team member not found"})
		case errors.Is(err, models.ErrAgentWrongRole), errors.Is(err, models.ErrAgentInactive):
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		case errors.Is(err, models.ErrInvalidTransition),
			errors.Is(err, models.ErrTerminalState),
			errors.Is(err, models.ErrStatusConflict):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: err.Error()})
		default:
			c.Logger().Error("assignment handler: ", err)
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to assign order"})
		}
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListTeamMembers(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"
	members, err := h.svc.ListTeamMembers(c.Request().Context(), activeOnly)
	if err != nil {
		c.Logger().Error("assignment handler: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to list team members"})
	}
	return c.JSON(http.StatusOK, members)
}

func (h *Handler) GetWorkload(c echo.Context) error {
	workload, err := h.svc.GetWorkload(c.Request().Context(), c.Param("memberId"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAgentNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Team member not found"})
		case errors.Is(err, models.ErrAgentWrongRole):
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		default:
			c.Logger().Error("assignment handler: ", err)
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to fetch workload"})
		}
	}
	return c.JSON(http.StatusOK, workload)
}
