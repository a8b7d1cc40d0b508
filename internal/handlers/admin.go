package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/clover"
	"github.com/pufftown/delivery-backend/internal/events"
	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/order"
	"github.com/pufftown/delivery-backend/internal/reviews"
	"github.com/pufftown/delivery-backend/internal/util"
	"github.com/pufftown/delivery-backend/internal/windows"
)

type AdminHandler struct {
	DB       *gorm.DB
	Orders   *order.Service
	Windows  *windows.Service
	Sync     *clover.SyncService
	Reviews  *reviews.Service
	Mailer   Mailer
	Producer *events.Producer

	StoreName       string
	StoreWebURL     string
	WindowDaysAhead int
}

func (h *AdminHandler) publish(c echo.Context, topic, key string, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		c.Logger().Errorf("kafka publish error: %v", err)
	}
}

// ---- customers ----

func (h *AdminHandler) ListCustomers(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.DeliveryCustomer{})
	if status := c.QueryParam("status"); status != "" {
		q = q.Where("approval_status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	var customers []models.DeliveryCustomer
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&customers).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": customers,
		"meta": map[string]any{"page": page, "size": limit, "total": total},
	})
}

type approvalRequest struct {
	Status string `json:"status"`
}

// SetCustomerApproval approves or rejects a customer. Approving an account
// that has no password yet also issues a setup token and emails the link.
func (h *AdminHandler) SetCustomerApproval(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req approvalRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if req.Status != models.ApprovalApproved && req.Status != models.ApprovalRejected {
		return errorResponse(c, http.StatusBadRequest, errors.New("status must be approved or rejected"))
	}

	var cust models.DeliveryCustomer
	if err := h.DB.First(&cust, id).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("customer not found"))
	}

	updates := map[string]any{"approval_status": req.Status}

	var setupLink string
	if req.Status == models.ApprovalApproved && cust.PasswordHash == "" {
		token, err := newToken()
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, err)
		}
		expires := time.Now().UTC().Add(48 * time.Hour)
		updates["setup_token"] = token
		updates["setup_token_expires"] = expires
		setupLink = fmt.Sprintf("%s/setup-password?token=%s", h.StoreWebURL, token)
	}

	if err := h.DB.Model(&cust).Updates(updates).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	if setupLink != "" && h.Mailer != nil {
		html := fmt.Sprintf("<p>Hi %s,</p><p>Your %s delivery account is approved. Set your password here: <a href=%q>%s</a></p>",
			cust.FirstName, h.StoreName, setupLink, setupLink)
		if err := h.Mailer.Send(c.Request().Context(), cust.Email, "Your "+h.StoreName+" account is approved", html); err != nil {
			c.Logger().Errorf("setup email to %s failed: %v", cust.Email, err)
		}
	}

	cust.ApprovalStatus = req.Status
	return c.JSON(http.StatusOK, cust)
}

// ---- products (curated fields) ----

type productCurationRequest struct {
	Enabled         *bool   `json:"enabled"`
	Badge           *string `json:"badge"`
	DisplayOrder    *int    `json:"display_order"`
	ShowInSlideshow *bool   `json:"show_in_slideshow"`
	SalePrice       *string `json:"sale_price"`
	ImageURL        *string `json:"image_url"`
}

// UpdateProduct edits the storefront curation fields only. POS-owned fields
// (name, price, stock) always come from the sync and cannot be edited here.
func (h *AdminHandler) UpdateProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req productCurationRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	updates := map[string]any{}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.Badge != nil {
		updates["badge"] = *req.Badge
	}
	if req.DisplayOrder != nil {
		updates["display_order"] = *req.DisplayOrder
	}
	if req.ShowInSlideshow != nil {
		updates["show_in_slideshow"] = *req.ShowInSlideshow
	}
	if req.SalePrice != nil {
		updates["sale_price"] = *req.SalePrice
	}
	if req.ImageURL != nil {
		updates["image_url"] = *req.ImageURL
	}
	if len(updates) == 0 {
		return errorResponse(c, http.StatusBadRequest, errors.New("no editable fields in request"))
	}

	var p models.DeliveryProduct
	if err := h.DB.First(&p, id).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("product not found"))
	}
	if err := h.DB.Model(&p).Updates(updates).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *AdminHandler) ListAllProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.DeliveryProduct{}).Count(&total).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	var items []models.DeliveryProduct
	err := h.DB.Order("display_order ASC, name ASC").Offset(offset).Limit(limit).Find(&items).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{"page": page, "size": limit, "total": total},
	})
}

// ---- promotions ----

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type promotionRequest struct {
	Code                string    `json:"code"`
	Description         string    `json:"description"`
	DiscountType        string    `json:"discount_type"`
	DiscountValue       string    `json:"discount_value"`
	MinimumOrderAmount  string    `json:"minimum_order_amount"`
	MaxUsageCount       *int      `json:"max_usage_count"`
	MaxUsagePerCustomer *int      `json:"max_usage_per_customer"`
	ValidFrom           time.Time `json:"valid_from"`
	ValidUntil          time.Time `json:"valid_until"`
	Enabled             bool      `json:"enabled"`
}

func (r *promotionRequest) validate() error {
	if r.Code == "" {
		return errors.New("code is required")
	}
	if r.DiscountType != models.DiscountPercentage && r.DiscountType != models.DiscountFixed {
		return errors.New("discount_type must be percentage or fixed")
	}
	if r.DiscountValue == "" {
		return errors.New("discount_value is required")
	}
	if !r.ValidUntil.After(r.ValidFrom) {
		return errors.New("valid_until must be after valid_from")
	}
	return nil
}

func (h *AdminHandler) CreatePromotion(c echo.Context) error {
	var req promotionRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := req.validate(); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	p := models.Promotion{
		Code:                normalizeCode(req.Code),
		Description:         req.Description,
		DiscountType:        req.DiscountType,
		DiscountValue:       req.DiscountValue,
		MinimumOrderAmount:  req.MinimumOrderAmount,
		MaxUsageCount:       req.MaxUsageCount,
		MaxUsagePerCustomer: req.MaxUsagePerCustomer,
		ValidFrom:           req.ValidFrom,
		ValidUntil:          req.ValidUntil,
		Enabled:             req.Enabled,
	}
	if p.MinimumOrderAmount == "" {
		p.MinimumOrderAmount = "0.00"
	}
	if err := h.DB.Create(&p).Error; err != nil {
		return errorResponse(c, http.StatusConflict, fmt.Errorf("could not create promotion: %w", err))
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *AdminHandler) UpdatePromotion(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req promotionRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := req.validate(); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var p models.Promotion
	if err := h.DB.First(&p, id).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("promotion not found"))
	}

	// CurrentUsageCount is ledger-derived and never editable.
	err = h.DB.Model(&p).Updates(map[string]any{
		"code":                   normalizeCode(req.Code),
		"description":            req.Description,
		"discount_type":          req.DiscountType,
		"discount_value":         req.DiscountValue,
		"minimum_order_amount":   req.MinimumOrderAmount,
		"max_usage_count":        req.MaxUsageCount,
		"max_usage_per_customer": req.MaxUsagePerCustomer,
		"valid_from":             req.ValidFrom,
		"valid_until":            req.ValidUntil,
		"enabled":                req.Enabled,
	}).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *AdminHandler) ListPromotions(c echo.Context) error {
	var promos []models.Promotion
	if err := h.DB.Order("created_at DESC").Find(&promos).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, promos)
}

// ---- delivery templates and windows ----

type templateRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Capacity  int    `json:"capacity"`
	Enabled   bool   `json:"enabled"`
}

func (r *templateRequest) validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return errors.New("day_of_week must be 0 (Sunday) through 6 (Saturday)")
	}
	if _, _, err := windows.ParseClock(r.StartTime); err != nil {
		return fmt.Errorf("bad start_time: %w", err)
	}
	if _, _, err := windows.ParseClock(r.EndTime); err != nil {
		return fmt.Errorf("bad end_time: %w", err)
	}
	if r.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	return nil
}

func (h *AdminHandler) CreateTemplate(c echo.Context) error {
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := req.validate(); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	tpl := models.WeeklyDeliveryTemplate{
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Capacity:  req.Capacity,
		Enabled:   req.Enabled,
	}
	if err := h.DB.Create(&tpl).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusCreated, tpl)
}

func (h *AdminHandler) UpdateTemplate(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := req.validate(); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var tpl models.WeeklyDeliveryTemplate
	if err := h.DB.First(&tpl, id).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("template not found"))
	}

	err = h.DB.Model(&tpl).Updates(map[string]any{
		"day_of_week": req.DayOfWeek,
		"start_time":  req.StartTime,
		"end_time":    req.EndTime,
		"capacity":    req.Capacity,
		"enabled":     req.Enabled,
	}).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, tpl)
}

func (h *AdminHandler) ListTemplates(c echo.Context) error {
	var tpls []models.WeeklyDeliveryTemplate
	if err := h.DB.Order("day_of_week ASC, start_time ASC").Find(&tpls).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, tpls)
}

// GenerateWindows expands the weekly templates into concrete windows. Safe
// to call repeatedly.
func (h *AdminHandler) GenerateWindows(c echo.Context) error {
	days := parseIntDefault(c.QueryParam("days"), h.WindowDaysAhead)
	res, err := h.Windows.GenerateFromTemplates(c.Request().Context(), days)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, res)
}

type windowUpdateRequest struct {
	Enabled  *bool `json:"enabled"`
	Capacity *int  `json:"capacity"`
}

func (h *AdminHandler) UpdateWindow(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req windowUpdateRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	updates := map[string]any{}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.Capacity != nil {
		if *req.Capacity <= 0 {
			return errorResponse(c, http.StatusBadRequest, errors.New("capacity must be positive"))
		}
		updates["capacity"] = *req.Capacity
	}
	if len(updates) == 0 {
		return errorResponse(c, http.StatusBadRequest, errors.New("no editable fields in request"))
	}

	var w models.DeliveryWindow
	if err := h.DB.First(&w, id).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("window not found"))
	}
	if err := h.DB.Model(&w).Updates(updates).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, w)
}

// ---- orders ----

func (h *AdminHandler) ListOrders(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.DeliveryOrder{})
	if status := c.QueryParam("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	var orders []models.DeliveryOrder
	err := q.Preload("Items").Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": orders,
		"meta": map[string]any{"page": page, "size": limit, "total": total},
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandler) UpdateOrderStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	o, err := h.Orders.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return mapError(c, err)
	}

	h.publish(c, events.TopicOrderEvents, fmt.Sprint(o.CustomerID), map[string]any{
		"type":    "order_status_changed",
		"orderID": o.ID,
		"status":  o.Status,
	})
	return c.JSON(http.StatusOK, o)
}

type refundRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

func (h *AdminHandler) RefundOrder(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	o, err := h.Orders.Refund(c.Request().Context(), id, req.Amount, req.Reason)
	if err != nil {
		return mapError(c, err)
	}

	h.publish(c, events.TopicOrderEvents, fmt.Sprint(o.CustomerID), map[string]any{
		"type":    "order_refunded",
		"orderID": o.ID,
		"amount":  o.RefundAmount,
	})
	return c.JSON(http.StatusOK, o)
}

// ---- sync and reviews ----

// TriggerFullSync runs the full inventory sync inline. A sync already in
// flight comes back as 409 rather than queuing a second run.
func (h *AdminHandler) TriggerFullSync(c echo.Context) error {
	res, err := h.Sync.FullSync(c.Request().Context())
	if err != nil {
		if errors.Is(err, clover.ErrSyncInProgress) {
			return errorResponse(c, http.StatusConflict, err)
		}
		return errorResponse(c, http.StatusBadGateway, err)
	}

	h.publish(c, events.TopicSyncEvents, "full_sync", map[string]any{
		"type":       "full_sync_completed",
		"created":    res.Created,
		"updated":    res.Updated,
		"deleted":    res.Deleted,
		"duplicates": res.Duplicates,
	})
	return c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) RefreshReviews(c echo.Context) error {
	data, err := h.Reviews.Refresh(c.Request().Context())
	if err != nil {
		return errorResponse(c, http.StatusBadGateway, err)
	}
	return c.JSONBlob(http.StatusOK, data)
}
