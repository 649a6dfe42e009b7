package http

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainerrors "github.com/jonit-dev/pixelperfect-sub009/internal/domain/errors"
	"github.com/jonit-dev/pixelperfect-sub009/internal/middleware/auth"
	"github.com/jonit-dev/pixelperfect-sub009/internal/usecase"
	apperrors "github.com/jonit-dev/pixelperfect-sub009/pkg/errors"
)

type UseCreditsRequest struct {
	Amount      string `json:"amount" validate:"required"`
	FeatureName string `json:"feature_name" validate:"required"`
	Description string `json:"description"`
}

type AdjustCreditsRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Amount string `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type CreditHandler struct {
	service  *usecase.CreditService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewCreditHandler(service *usecase.CreditService, logger *zap.Logger) *CreditHandler {
	return &CreditHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// GetBalance returns the caller's credit pools.
func (h *CreditHandler) GetBalance(c echo.Context) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apperrors.ErrorResponse{
			Code:    apperrors.ErrUnauthenticated,
			Message: "authentication required",
		})
	}

	balance, err := h.service.GetBalance(c.Request().Context(), userID)
	if err != nil {
		return apperrors.WriteJSON(c, err)
	}

	return c.JSON(http.StatusOK, balance)
}

// GetTransactions returns a page of the caller's credit history.
func (h *CreditHandler) GetTransactions(c echo.Context) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apperrors.ErrorResponse{
			Code:    apperrors.ErrUnauthenticated,
			Message: "authentication required",
		})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	history, err := h.service.GetTransactionHistory(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return apperrors.WriteJSON(c, err)
	}

	return c.JSON(http.StatusOK, history)
}

// UseCredits debits the caller's balance for an upscale job.
func (h *CreditHandler) UseCredits(c echo.Context) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apperrors.ErrorResponse{
			Code:    apperrors.ErrUnauthenticated,
			Message: "authentication required",
		})
	}

	var req UseCreditsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Code:    apperrors.ErrInvalidArgument,
			Message: "invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Code:    apperrors.ErrInvalidArgument,
			Message: "amount and feature_name are required",
		})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Code:    apperrors.ErrInvalidArgument,
			Message: "amount must be a positive decimal",
		})
	}

	balance, err := h.service.UseCredits(c.Request().Context(), userID, amount, req.FeatureName, req.Description)
	if err != nil {
		var insufficientErr *domainerrors.InsufficientBalanceError
		if apperrors.As(err, &insufficientErr) {
			return c.JSON(http.StatusPaymentRequired, apperrors.ErrorResponse{
				Code:    apperrors.ErrInsufficientCredits,
				Message: insufficientErr.Error(),
			})
		}
		return apperrors.WriteJSON(c, err)
	}

	return c.JSON(http.StatusOK, balance)
}

// AdjustCredits applies a support correction to a user's purchased pool.
// Admin role required.
func (h *CreditHandler) AdjustCredits(c echo.Context) error {
	actor, err := auth.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apperrors.ErrorResponse{
			Code:    apperrors.ErrUnauthenticated,
			Message: "authentication required",
		})
	}
	if !actor.IsAdmin() {
		return apperrors.WriteJSON(c, apperrors.NewAppError(apperrors.ErrUnauthorized, "admin role required", nil))
	}

	var req AdjustCreditsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Code:    apperrors.ErrInvalidArgument,
			Message: "invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Code:    apperrors.ErrInvalidArgument,
			Message: "user_id, amount and reason are required",
		})
	}

	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Code:    apperrors.ErrInvalidArgument,
			Message: "user_id must be a valid UUID",
		})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsZero() {
		return c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Code:    apperrors.ErrInvalidArgument,
			Message: "amount must be a non-zero decimal",
		})
	}

	h.logger.Info("Admin credit adjustment",
		zap.String("actor", actor.UserID.String()),
		zap.String("target_user_id", targetID.String()),
		zap.String("amount", amount.String()))

	balance, err := h.service.AdjustCredits(c.Request().Context(), targetID, amount, req.Reason, actor.Email)
	if err != nil {
		return apperrors.WriteJSON(c, err)
	}

	return c.JSON(http.StatusOK, balance)
}
