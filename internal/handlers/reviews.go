package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pufftown/delivery-backend/internal/reviews"
)

type ReviewsHandler struct {
	Reviews *reviews.Service
}

// GetReviews serves the cached Google reviews payload.
func (h *ReviewsHandler) GetReviews(c echo.Context) error {
	data, err := h.Reviews.Get(c.Request().Context())
	if err != nil {
		return errorResponse(c, http.StatusBadGateway, err)
	}
	return c.JSONBlob(http.StatusOK, data)
}
