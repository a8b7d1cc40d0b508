// Package handlers holds the echo HTTP handlers. Handlers bind and
// authorize; order math, promo checks and sync logic live in their own
// packages.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pufftown/delivery-backend/internal/order"
)

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func errorResponse(c echo.Context, code int, err error) error {
	return c.JSON(code, Response{
		Status:  "error",
		Message: err.Error(),
	})
}

// mapError translates service sentinel errors into HTTP status codes.
func mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, order.ErrValidation):
		return errorResponse(c, http.StatusBadRequest, err)
	case errors.Is(err, order.ErrNotFound):
		return errorResponse(c, http.StatusNotFound, err)
	case errors.Is(err, order.ErrConflict):
		return errorResponse(c, http.StatusConflict, err)
	case errors.Is(err, order.ErrPaymentFailed):
		return errorResponse(c, http.StatusPaymentRequired, err)
	}
	return errorResponse(c, http.StatusInternalServerError, err)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func pathID(c echo.Context) (uint, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
