package errors

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

var codeToStatus = map[string]int{
	ErrInternal:        http.StatusInternalServerError,
	ErrNotFound:        http.StatusNotFound,
	ErrInvalidArgument: http.StatusBadRequest,
	ErrUnauthenticated: http.StatusUnauthorized,
	ErrUnauthorized:    http.StatusForbidden,
	ErrConflict:        http.StatusConflict,
	ErrTimeout:         http.StatusGatewayTimeout,
	ErrNotImplemented:  http.StatusNotImplemented,

	ErrInvalidPriceID:       http.StatusBadRequest,
	ErrSamePlan:             http.StatusBadRequest,
	ErrNoActiveSubscription: http.StatusBadRequest,
	ErrSubscriptionModified: http.StatusConflict,
	ErrStripeError:          http.StatusInternalServerError,
	ErrInsufficientCredits:  http.StatusPaymentRequired,
}

// ToHTTPStatus maps an error code to an HTTP status code.
func ToHTTPStatus(code string) int {
	if status, ok := codeToStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the structured error envelope returned by all endpoints.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes an error as the structured {code, message} envelope with
// the mapped HTTP status.
func WriteJSON(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if As(err, &appErr) {
		return c.JSON(ToHTTPStatus(appErr.Code()), ErrorResponse{
			Code:    appErr.Code(),
			Message: appErr.Message(),
		})
	}

	if echoErr, ok := err.(*echo.HTTPError); ok {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return c.JSON(echoErr.Code, ErrorResponse{Code: ErrInternal, Message: msg})
	}

	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    ErrInternal,
		Message: err.Error(),
	})
}
