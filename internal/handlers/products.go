package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/search"
	"github.com/pufftown/delivery-backend/internal/util"
)

type ProductHandler struct {
	DB     *gorm.DB
	Search *search.Service
}

// GetProducts lists the customer-visible catalog: enabled products ordered
// by the curated display order, then name.
func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.DeliveryProduct{}).Where("enabled = ?", true)
	if cat := c.QueryParam("category"); cat != "" {
		q = q.Where("category = ?", cat)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	var items []models.DeliveryProduct
	err := q.Order("display_order ASC, name ASC").Offset(offset).Limit(limit).Find(&items).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var p models.DeliveryProduct
	if err := h.DB.Where("id = ? AND enabled = ?", id, true).First(&p).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("product not found"))
	}
	return c.JSON(http.StatusOK, p)
}

// Slideshow returns the curated front-page products.
func (h *ProductHandler) Slideshow(c echo.Context) error {
	var items []models.DeliveryProduct
	err := h.DB.
		Where("enabled = ? AND show_in_slideshow = ?", true, true).
		Order("display_order ASC").
		Find(&items).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ProductHandler) SearchProducts(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return errorResponse(c, http.StatusBadRequest, errors.New("missing query parameter q"))
	}
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, hits, err := h.Search.Search(c.Request().Context(), query, offset, limit)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": hits,
		"meta": map[string]any{
			"page":  page,
			"size":  limit,
			"total": total,
		},
	})
}
