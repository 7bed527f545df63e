package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"ordering-and-delivery/internal/models"
)

// Handler handles HTTP requests for orders.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
}

// NewHandler creates a new order handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the order endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(g *echo.Group, admin *echo.Group) {
	g.POST("/orders", h.CreateOrder)
	g.POST("/orders/calculate", h.CalculateOrder)
	g.GET("/orders", h.ListOrders)
	g.GET("/orders/:orderId", h.GetOrder)
	g.GET("/orders/:orderId/track", h.TrackOrder)
	g.PATCH("/orders/:orderId/status", h.UpdateStatus)
	g.POST("/orders/:orderId/cancel", h.CancelOrder)
	g.POST("/orders/:orderId/pay", h.PayOrder)
	g.POST("/orders/:orderId/deliver", h.DeliverOrder)
	g.POST("/orders/:orderId/otp", h.ReissueOTP)
	admin.GET("/orders/statistics", h.GetStatistics)
}

func actorFrom(c echo.Context) models.Actor {
	return models.Actor{
		ID:   c.Get("userID").(string),
		Role: models.Role(c.Get("userRole").(string)),
	}
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req models.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	view, err := h.svc.CreateOrder(c.Request().Context(), actorFrom(c), &req)
	if err != nil {
		return h.writeError(c, err, "Failed to create order")
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) CalculateOrder(c echo.Context) error {
	var req models.CalculateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	totals, err := h.svc.CalculateOrder(c.Request().Context(), &req)
	if err != nil {
		return h.writeError(c, err, "Failed to calculate order")
	}
	return c.JSON(http.StatusOK, totals)
}

func (h *Handler) ListOrders(c echo.Context) error {
	page := 1
	limit := 20
	if pageStr := c.QueryParam("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	status := models.OrderStatus(c.QueryParam("status"))

	views, total, err := h.svc.ListOrders(c.Request().Context(), actorFrom(c), status, page, limit)
	if err != nil {
		return h.writeError(c, err, "Failed to retrieve orders")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"orders": views,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

func (h *Handler) GetOrder(c echo.Context) error {
	view, err := h.svc.GetOrder(c.Request().Context(), actorFrom(c), c.Param("orderId"))
	if err != nil {
		return h.writeError(c, err, "Failed to retrieve order")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) TrackOrder(c echo.Context) error {
	view, err := h.svc.TrackOrder(c.Request().Context(), actorFrom(c), c.Param("orderId"))
	if err != nil {
		return h.writeError(c, err, "Failed to track order")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req models.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	view, err := h.svc.UpdateStatus(c.Request().Context(), actorFrom(c), c.Param("orderId"), &req)
	if err != nil {
		return h.writeError(c, err, "Failed to update order status")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) CancelOrder(c echo.Context) error {
	var req models.CancelOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}

	view, err := h.svc.CancelOrder(c.Request().Context(), actorFrom(c), c.Param("orderId"), &req)
	if err != nil {
		return h.writeError(c, err, "Failed to cancel order")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) PayOrder(c echo.Context) error {
	var req models.PayOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	view, err := h.svc.PayOrder(c.Request().Context(), actorFrom(c), c.Param("orderId"), &req)
	if err != nil {
		return h.writeError(c, err, "Failed to process payment")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) DeliverOrder(c echo.Context) error {
	var req models.DeliverOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	view, err := h.svc.DeliverOrder(c.Request().Context(), actorFrom(c), c.Param("orderId"), &req)
	if err != nil {
		return h.writeError(c, err, "Failed to complete delivery")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ReissueOTP(c echo.Context) error {
	view, err := h.svc.ReissueOTP(c.Request().Context(), actorFrom(c), c.Param("orderId"))
	if err != nil {
		return h.writeError(c, err, "Failed to reissue delivery code")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetStatistics(c echo.Context) error {
	stats, err := h.svc.GetStatistics(c.Request().Context())
	if err != nil {
		return h.writeError(c, err, "Failed to compute statistics")
	}
	return c.JSON(http.StatusOK, stats)
}

// writeError maps service errors onto HTTP statuses. Conflict-class errors
// (lost optimistic writes, rejected transitions) come back as 409 so clients
// know to re-read before retrying.
func (h *Handler) writeError(c echo.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
	case errors.Is(err, models.ErrForbidden):
		return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "You do not have permission to perform this action"})
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrBelowMinimumOrder),
		errors.Is(err, models.ErrServiceClosed),
		errors.Is(err, models.ErrItemUnavailable):
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrTerminalState),
		errors.Is(err, models.ErrCancellationWindowExpired),
		errors.Is(err, models.ErrStatusConflict):
		return c.JSON(http.StatusConflict, models.ErrorResponse{Message: err.Error()})
	case errors.Is(err, models.ErrOTPNotIssued),
		errors.Is(err, models.ErrOTPExpired),
		errors.Is(err, models.ErrOTPMismatch):
		return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Message: err.Error()})
	case errors.Is(err, models.ErrOTPAttemptsExceeded):
		return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{Message: err.Error()})
	default:
		c.Logger().Error("order handler: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: fallback})
	}
}
