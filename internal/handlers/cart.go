package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/cartreminder"
	"github.com/pufftown/delivery-backend/internal/events"
	"github.com/pufftown/delivery-backend/internal/jwtauth"
	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/money"
)

type CartHandler struct {
	DB       *gorm.DB
	Producer *events.Producer
}

func (h *CartHandler) publish(c echo.Context, customerID uint, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, events.TopicCartEvents, fmt.Sprint(customerID), event); err != nil {
		c.Logger().Errorf("kafka publish error: %v", err)
	}
}

type cartLine struct {
	models.CartItem
	Product   models.DeliveryProduct `json:"product"`
	LineTotal string                 `json:"line_total"`
}

// GetCart prices the cart from live catalog data on every read.
func (h *CartHandler) GetCart(c echo.Context) error {
	customerID, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}

	var items []models.CartItem
	if err := h.DB.Where("customer_id = ?", customerID).Find(&items).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	lines := make([]cartLine, 0, len(items))
	var subtotal int64
	for _, it := range items {
		var p models.DeliveryProduct
		if err := h.DB.First(&p, it.ProductID).Error; err != nil {
			continue
		}
		price := p.Price
		if p.SalePrice != "" {
			if cents, err := money.CentsFromString(p.SalePrice); err == nil && cents > 0 {
				price = p.SalePrice
			}
		}
		cents, err := money.CentsFromString(price)
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, err)
		}
		lineTotal := cents * int64(it.Quantity)
		subtotal += lineTotal
		lines = append(lines, cartLine{
			CartItem:  it,
			Product:   p,
			LineTotal: money.StringFromCents(lineTotal),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"items":    lines,
		"subtotal": money.StringFromCents(subtotal),
	})
}

type addToCartRequest struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	customerID, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}

	var req addToCartRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	var p models.DeliveryProduct
	if err := h.DB.Where("id = ? AND enabled = ?", req.ProductID, true).First(&p).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("product not found"))
	}

	var item models.CartItem
	err = h.DB.Where("customer_id = ? AND product_id = ?", customerID, req.ProductID).First(&item).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if req.Quantity > p.StockQuantity {
			return errorResponse(c, http.StatusBadRequest, fmt.Errorf("Only %d available in stock", p.StockQuantity))
		}
		item = models.CartItem{CustomerID: customerID, ProductID: req.ProductID, Quantity: req.Quantity}
		if err := h.DB.Create(&item).Error; err != nil {
			return errorResponse(c, http.StatusInternalServerError, err)
		}
	case err != nil:
		return errorResponse(c, http.StatusInternalServerError, err)
	default:
		newQty := item.Quantity + req.Quantity
		if newQty > p.StockQuantity {
			return errorResponse(c, http.StatusBadRequest, fmt.Errorf("Only %d available in stock", p.StockQuantity))
		}
		if err := h.DB.Model(&item).Update("quantity", newQty).Error; err != nil {
			return errorResponse(c, http.StatusInternalServerError, err)
		}
		item.Quantity = newQty
	}

	if err := cartreminder.Touch(h.DB, customerID, time.Now().UTC()); err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	h.publish(c, customerID, map[string]any{
		"type":       "cart_item_added",
		"customerID": customerID,
		"productID":  req.ProductID,
		"quantity":   item.Quantity,
	})
	return c.JSON(http.StatusOK, item)
}

type updateCartRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateItem sets an item's quantity. Zero removes the line.
func (h *CartHandler) UpdateItem(c echo.Context) error {
	customerID, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}
	productID, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req updateCartRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if req.Quantity < 0 {
		return errorResponse(c, http.StatusBadRequest, errors.New("quantity cannot be negative"))
	}
	if req.Quantity == 0 {
		return h.removeItem(c, customerID, productID)
	}

	var p models.DeliveryProduct
	if err := h.DB.First(&p, productID).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("product not found"))
	}
	if req.Quantity > p.StockQuantity {
		return errorResponse(c, http.StatusBadRequest, fmt.Errorf("Only %d available in stock", p.StockQuantity))
	}

	res := h.DB.Model(&models.CartItem{}).
		Where("customer_id = ? AND product_id = ?", customerID, productID).
		Update("quantity", req.Quantity)
	if res.Error != nil {
		return errorResponse(c, http.StatusInternalServerError, res.Error)
	}
	if res.RowsAffected == 0 {
		return errorResponse(c, http.StatusNotFound, errors.New("item not in cart"))
	}

	if err := cartreminder.Touch(h.DB, customerID, time.Now().UTC()); err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	customerID, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}
	productID, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	return h.removeItem(c, customerID, productID)
}

func (h *CartHandler) removeItem(c echo.Context, customerID, productID uint) error {
	err := h.DB.
		Where("customer_id = ? AND product_id = ?", customerID, productID).
		Delete(&models.CartItem{}).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	var remaining int64
	if err := h.DB.Model(&models.CartItem{}).Where("customer_id = ?", customerID).Count(&remaining).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	if remaining == 0 {
		if err := cartreminder.Clear(h.DB, customerID); err != nil {
			return errorResponse(c, http.StatusInternalServerError, err)
		}
	} else if err := cartreminder.Touch(h.DB, customerID, time.Now().UTC()); err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	h.publish(c, customerID, map[string]any{
		"type":       "cart_item_removed",
		"customerID": customerID,
		"productID":  productID,
	})
	return c.NoContent(http.StatusNoContent)
}

// ClearCart empties the cart and drops the reminder row so no abandoned
// cart email goes out for an intentionally emptied cart.
func (h *CartHandler) ClearCart(c echo.Context) error {
	customerID, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("customer_id = ?", customerID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		return cartreminder.Clear(tx, customerID)
	})
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	h.publish(c, customerID, map[string]any{
		"type":       "cart_cleared",
		"customerID": customerID,
	})
	return c.NoContent(http.StatusNoContent)
}
