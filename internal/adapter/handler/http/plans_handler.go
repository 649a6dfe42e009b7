package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
	apperrors "github.com/jonit-dev/pixelperfect-sub009/pkg/errors"
)

// PlansHandler serves the public plan catalog from the local table. The
// table is the pricing source the frontend renders; Stripe price ids on it
// are what checkout and plan changes accept.
type PlansHandler struct {
	plans  repository.PlanRepository
	logger *zap.Logger
}

func NewPlansHandler(plans repository.PlanRepository, logger *zap.Logger) *PlansHandler {
	return &PlansHandler{
		plans:  plans,
		logger: logger,
	}
}

func (h *PlansHandler) GetPlans(c echo.Context) error {
	plans, err := h.plans.GetActivePlans(c.Request().Context())
	if err != nil {
		h.logger.Error("Error fetching plans", zap.Error(err))
		return apperrors.WriteJSON(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"plans": plans,
	})
}
