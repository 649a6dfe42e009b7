package http

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jonit-dev/pixelperfect-sub009/internal/middleware/auth"
	"github.com/jonit-dev/pixelperfect-sub009/internal/usecase"
	apperrors "github.com/jonit-dev/pixelperfect-sub009/pkg/errors"
)

type ChangePlanRequest struct {
	TargetPriceID string `json:"target_price_id" validate:"required"`
}

type SubscriptionHandler struct {
	service  *usecase.SubscriptionService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewSubscriptionHandler(service *usecase.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// GetCurrent returns the caller's current subscription, or 404 when they
// have none.
func (h *SubscriptionHandler) GetCurrent(c echo.Context) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apperrors.ErrorResponse{
			Code:    apperrors.ErrUnauthenticated,
			Message: "authentication required",
		})
	}

	sub, err := h.service.GetCurrent(c.Request().Context(), userID)
	if err != nil {
		return apperrors.WriteJSON(c, err)
	}
	if sub == nil {
		return c.JSON(http.StatusNotFound, apperrors.ErrorResponse{
			Code:    apperrors.ErrNoActiveSubscription,
			Message: "no active subscription",
		})
	}

	return c.JSON(http.StatusOK, sub)
}

// ChangePlan moves the caller's subscription to a different price.
func (h *SubscriptionHandler) ChangePlan(c echo.Context) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apperrors.ErrorResponse{
			Code:    apperrors.ErrUnauthenticated,
			Message: "authentication required",
		})
	}

	var req ChangePlanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Code:    apperrors.ErrInvalidArgument,
			Message: "invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Code:    apperrors.ErrInvalidArgument,
			Message: "target_price_id is required",
		})
	}

	h.logger.Info("Plan change requested",
		zap.String("user_id", userID.String()),
		zap.String("target_price_id", req.TargetPriceID))

	result, err := h.service.ChangePlan(c.Request().Context(), userID, req.TargetPriceID)
	if err != nil {
		return apperrors.WriteJSON(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// Cancel flags the caller's subscription to end at the period close.
func (h *SubscriptionHandler) Cancel(c echo.Context) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apperrors.ErrorResponse{
			Code:    apperrors.ErrUnauthenticated,
			Message: "authentication required",
		})
	}

	sub, err := h.service.CancelAtPeriodEnd(c.Request().Context(), userID)
	if err != nil {
		return apperrors.WriteJSON(c, err)
	}

	return c.JSON(http.StatusOK, sub)
}
