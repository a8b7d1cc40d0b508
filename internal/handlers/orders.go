package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/events"
	"github.com/pufftown/delivery-backend/internal/jwtauth"
	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/money"
	"github.com/pufftown/delivery-backend/internal/order"
	"github.com/pufftown/delivery-backend/internal/promo"
	"github.com/pufftown/delivery-backend/internal/util"
	"github.com/pufftown/delivery-backend/internal/windows"
)

type OrderHandler struct {
	DB       *gorm.DB
	Orders   *order.Service
	Promo    *promo.Validator
	Windows  *windows.Service
	Producer *events.Producer
}

func (h *OrderHandler) publish(c echo.Context, key string, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, events.TopicOrderEvents, key, event); err != nil {
		c.Logger().Errorf("kafka publish error: %v", err)
	}
}

type validatePromoRequest struct {
	Code     string `json:"code"`
	Subtotal string `json:"subtotal"`
}

// ValidatePromo is the checkout-time preview. It never records usage.
func (h *OrderHandler) ValidatePromo(c echo.Context) error {
	customerID, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}

	var req validatePromoRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	subtotal, err := money.CentsFromString(req.Subtotal)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, fmt.Errorf("invalid subtotal: %w", err))
	}

	res, err := h.Promo.Validate(c.Request().Context(), req.Code, customerID, subtotal)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListWindows returns upcoming delivery windows with the derived closed
// flag so the storefront can grey out slots that are full or inside the
// booking lead time.
func (h *OrderHandler) ListWindows(c echo.Context) error {
	views, err := h.Windows.ListUpcoming(c.Request().Context())
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, views)
}

func (h *OrderHandler) Checkout(c echo.Context) error {
	customerID, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}

	var req order.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	o, err := h.Orders.Checkout(c.Request().Context(), customerID, req)
	if err != nil {
		return mapError(c, err)
	}

	h.publish(c, fmt.Sprint(customerID), map[string]any{
		"type":       "order_created",
		"orderID":    o.ID,
		"customerID": customerID,
		"total":      o.Total,
		"status":     o.Status,
	})
	return c.JSON(http.StatusCreated, o)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	customerID, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	err = h.DB.Model(&models.DeliveryOrder{}).Where("customer_id = ?", customerID).Count(&total).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	var orders []models.DeliveryOrder
	err = h.DB.Preload("Items").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": orders,
		"meta": map[string]any{"page": page, "size": limit, "total": total},
	})
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	customerID, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}
	id, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var o models.DeliveryOrder
	err = h.DB.Preload("Items").
		Where("id = ? AND customer_id = ?", id, customerID).
		First(&o).Error
	if err != nil {
		return errorResponse(c, http.StatusNotFound, fmt.Errorf("order not found"))
	}
	return c.JSON(http.StatusOK, o)
}

// Reorder copies a past order's items into the cart, reporting anything
// skipped.
func (h *OrderHandler) Reorder(c echo.Context) error {
	customerID, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}
	id, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	added, skipped, err := h.Orders.Reorder(c.Request().Context(), customerID, id)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"added":   added,
		"skipped": skipped,
	})
}
