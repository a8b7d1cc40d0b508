// Package order implements the delivery order state machine: checkout,
// refunds, reorders and status transitions. Every money figure is recomputed
// server-side; client-submitted totals are never trusted.
package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/cartreminder"
	"github.com/pufftown/delivery-backend/internal/clover"
	"github.com/pufftown/delivery-backend/internal/geo"
	"github.com/pufftown/delivery-backend/internal/logging"
	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/money"
	"github.com/pufftown/delivery-backend/internal/promo"
	"github.com/pufftown/delivery-backend/internal/windows"
)

var (
	ErrValidation    = errors.New("validation")     // 400
	ErrNotFound      = errors.New("not found")      // 404
	ErrConflict      = errors.New("conflict")       // 409
	ErrPaymentFailed = errors.New("payment failed") // 402
)

// Charger is the payment gateway surface the service depends on.
type Charger interface {
	Charge(ctx context.Context, sourceToken string, amountCents int64, currency, description, externalRef string) (*clover.ChargeResult, error)
	Refund(ctx context.Context, chargeID string, amountCents int64) (*clover.RefundResult, error)
}

type Config struct {
	TaxRate float64
	Zone    geo.Zone
	Fees    geo.FeeSchedule
}

type Service struct {
	DB      *gorm.DB
	Charger Charger
	Promo   *promo.Validator
	Windows *windows.Service
	Cfg     Config

	// AfterOrder runs after a successful checkout, outside the
	// transaction. Used to trigger the lightweight POS sync; failures
	// there never fail the order.
	AfterOrder func()
}

type CheckoutRequest struct {
	DeliveryWindowID uint   `json:"delivery_window_id"`
	PaymentMethod    string `json:"payment_method"`
	SourceToken      string `json:"source_token"`
	PromoCode        string `json:"promo_code"`
}

type pricedLine struct {
	product    *models.DeliveryProduct
	quantity   int
	priceCents int64
}

// Checkout runs the full order pipeline in strict sequence: recompute the
// subtotal from live prices, re-check the delivery zone, re-validate the
// promo, compute tax and fee, charge the card, then persist atomically.
func (s *Service) Checkout(ctx context.Context, customerID uint, req CheckoutRequest) (*models.DeliveryOrder, error) {
	l := logging.FromContext(ctx).With("op", "checkout", "customer_id", customerID)

	if req.PaymentMethod != models.PaymentMethodCard && req.PaymentMethod != models.PaymentMethodCash {
		return nil, fmt.Errorf("%w: payment method must be card or cash", ErrValidation)
	}
	if req.PaymentMethod == models.PaymentMethodCard && req.SourceToken == "" {
		return nil, fmt.Errorf("%w: missing card token", ErrValidation)
	}

	var customer models.DeliveryCustomer
	if err := s.DB.WithContext(ctx).First(&customer, customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: customer", ErrNotFound)
		}
		return nil, err
	}
	if customer.ApprovalStatus != models.ApprovalApproved {
		return nil, fmt.Errorf("%w: account is not approved for delivery orders", ErrValidation)
	}

	lines, subtotal, itemCount, err := s.priceCart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	distance, err := s.checkZone(&customer)
	if err != nil {
		return nil, err
	}

	// Promo re-validation: an ineligible code is dropped, not fatal.
	// Checkout-time preview already told the customer; by order time the
	// code may have hit a cap, and the order still goes through.
	var appliedPromo *models.Promotion
	var discount int64
	if req.PromoCode != "" {
		res, err := s.Promo.Validate(ctx, req.PromoCode, customerID, subtotal)
		if err != nil {
			return nil, err
		}
		if res.Valid {
			appliedPromo = res.Promotion
			discount = res.DiscountCents
		} else {
			l.Info("promo_dropped_at_order_time", "code", req.PromoCode, "reason", res.Message)
		}
	}

	discounted := subtotal - discount
	tax := money.RoundHalfUp(float64(discounted) * s.Cfg.TaxRate)
	fee := s.Cfg.Fees.DeliveryFee(distance, itemCount)
	total := discounted + fee + tax

	var window *models.DeliveryWindow
	if req.DeliveryWindowID != 0 {
		window = &models.DeliveryWindow{}
		if err := s.DB.WithContext(ctx).First(window, req.DeliveryWindowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: delivery window", ErrNotFound)
			}
			return nil, err
		}
		if !s.Windows.Bookable(window, time.Now()) {
			return nil, fmt.Errorf("%w: this delivery window is no longer available", ErrValidation)
		}
	}

	o := &models.DeliveryOrder{
		CustomerID:    customerID,
		Subtotal:      money.StringFromCents(subtotal),
		Discount:      money.StringFromCents(discount),
		Tax:           money.StringFromCents(tax),
		DeliveryFee:   money.StringFromCents(fee),
		Total:         money.StringFromCents(total),
		PaymentMethod: req.PaymentMethod,
	}
	if window != nil {
		o.DeliveryWindowID = &window.ID
	}
	if appliedPromo != nil {
		o.PromoCode = appliedPromo.Code
	}

	// Charge before persisting: a failed charge must leave no order
	// behind. A timed-out charge is a failure, never an assumed success.
	if req.PaymentMethod == models.PaymentMethodCard {
		ref := uuid.NewString()
		res, err := s.Charger.Charge(ctx, req.SourceToken, total, "usd",
			fmt.Sprintf("delivery order for customer %d", customerID), ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		if !res.Succeeded() {
			return nil, fmt.Errorf("%w: charge status %s", ErrPaymentFailed, res.Status)
		}
		o.PaymentStatus = models.PaymentStatusPaid
		o.Status = models.OrderStatusConfirmed
		o.CloverChargeID = res.ID
		o.CardLast4 = res.Source.Last4
		o.CardBrand = res.Source.Brand
	} else {
		o.PaymentStatus = models.PaymentStatusPending
		o.Status = models.OrderStatusPending
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		for _, line := range lines {
			item := models.DeliveryOrderItem{
				OrderID:     o.ID,
				ProductID:   line.product.ID,
				ProductName: line.product.Name,
				Quantity:    line.quantity,
				Price:       money.StringFromCents(line.priceCents),
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			o.Items = append(o.Items, item)
		}

		if window != nil {
			// The Bookable check above read a snapshot; the capacity
			// guard here is what actually prevents overbooking when
			// two checkouts race for the last slot.
			res := tx.Model(&models.DeliveryWindow{}).
				Where("id = ? AND current_bookings < capacity", window.ID).
				UpdateColumn("current_bookings", gorm.Expr("current_bookings + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: this delivery window is no longer available", ErrConflict)
			}
		}

		if err := tx.Where("customer_id = ?", customerID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if err := cartreminder.Clear(tx, customerID); err != nil {
			return err
		}

		if appliedPromo != nil {
			if err := promo.RecordUsage(tx, appliedPromo.ID, customerID, o.ID, discount); err != nil {
				if errors.Is(err, promo.ErrUsageLimit) {
					return fmt.Errorf("%w: this promo code is no longer available", ErrConflict)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		// The charge went through but the order could not be persisted;
		// refund it rather than keeping the customer's money for
		// nothing.
		if o.PaymentMethod == models.PaymentMethodCard && o.CloverChargeID != "" {
			if _, rerr := s.Charger.Refund(ctx, o.CloverChargeID, 0); rerr != nil {
				l.Error("refund_after_failed_checkout", "charge_id", o.CloverChargeID, "error", rerr)
			}
		}
		return nil, err
	}

	if s.AfterOrder != nil {
		go s.AfterOrder()
	}

	l.Info("order_created", "order_id", o.ID, "total", o.Total, "payment_method", o.PaymentMethod)
	return o, nil
}

// priceCart loads the customer's cart and prices it from the live catalog.
func (s *Service) priceCart(ctx context.Context, customerID uint) ([]pricedLine, int64, int, error) {
	var items []models.CartItem
	if err := s.DB.WithContext(ctx).Where("customer_id = ?", customerID).Find(&items).Error; err != nil {
		return nil, 0, 0, err
	}
	if len(items) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: no items in cart", ErrValidation)
	}

	var lines []pricedLine
	var subtotal int64
	itemCount := 0
	for _, it := range items {
		var p models.DeliveryProduct
		if err := s.DB.WithContext(ctx).First(&p, it.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, 0, 0, fmt.Errorf("%w: a cart item is no longer available", ErrValidation)
			}
			return nil, 0, 0, err
		}
		if !p.Enabled {
			return nil, 0, 0, fmt.Errorf("%w: %s is no longer available", ErrValidation, p.Name)
		}
		if it.Quantity > p.StockQuantity {
			return nil, 0, 0, fmt.Errorf("%w: %s: Only %d available in stock", ErrValidation, p.Name, p.StockQuantity)
		}

		cents, err := effectivePriceCents(&p)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("product %d has bad price: %w", p.ID, err)
		}
		lines = append(lines, pricedLine{product: &p, quantity: it.Quantity, priceCents: cents})
		subtotal += cents * int64(it.Quantity)
		itemCount += it.Quantity
	}
	return lines, subtotal, itemCount, nil
}

func effectivePriceCents(p *models.DeliveryProduct) (int64, error) {
	if p.SalePrice != "" {
		cents, err := money.CentsFromString(p.SalePrice)
		if err == nil && cents > 0 {
			return cents, nil
		}
	}
	return money.CentsFromString(p.Price)
}

func (s *Service) checkZone(customer *models.DeliveryCustomer) (float64, error) {
	distance, inside, err := s.Cfg.Zone.Check(customer.Latitude, customer.Longitude)
	if err != nil {
		// Missing coordinates fail closed: never assume in-zone.
		return 0, fmt.Errorf("%w: delivery address needs verification before ordering", ErrValidation)
	}
	if !inside {
		return 0, fmt.Errorf("%w: Delivery address is outside our %s-mile delivery zone. Your address is %.1f miles away.",
			ErrValidation, strconv.FormatFloat(s.Cfg.Zone.RadiusMiles, 'f', -1, 64), distance)
	}
	return distance, nil
}

// transitions lists the allowed next statuses per order status. cancelled is
// reachable from every pre-delivered state.
var transitions = map[string][]string{
	models.OrderStatusPendingPayment: {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusPending:        {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:      {models.OrderStatusPreparing, models.OrderStatusCancelled},
	models.OrderStatusPreparing:      {models.OrderStatusOutForDelivery, models.OrderStatusCancelled},
	models.OrderStatusOutForDelivery: {models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusDelivered:      {},
	models.OrderStatusCancelled:      {},
}

// UpdateStatus applies an admin status change, enforcing the transition
// table.
func (s *Service) UpdateStatus(ctx context.Context, orderID uint, newStatus string) (*models.DeliveryOrder, error) {
	allowedAny := false
	for _, next := range transitions {
		for _, st := range next {
			if st == newStatus {
				allowedAny = true
			}
		}
	}
	if !allowedAny {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, newStatus)
	}

	var o models.DeliveryOrder
	if err := s.DB.WithContext(ctx).First(&o, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order", ErrNotFound)
		}
		return nil, err
	}

	ok := false
	for _, st := range transitions[o.Status] {
		if st == newStatus {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot change status from %s to %s", ErrConflict, o.Status, newStatus)
	}

	if err := s.DB.WithContext(ctx).Model(&o).Update("status", newStatus).Error; err != nil {
		return nil, err
	}
	o.Status = newStatus
	return &o, nil
}

// Refund refunds part or all of an order. For card orders the gateway
// refund is issued first; local state is only updated after it succeeds.
func (s *Service) Refund(ctx context.Context, orderID uint, amount string, reason string) (*models.DeliveryOrder, error) {
	amountCents, err := money.CentsFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid refund amount", ErrValidation)
	}

	var o models.DeliveryOrder
	if err := s.DB.WithContext(ctx).First(&o, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order", ErrNotFound)
		}
		return nil, err
	}
	if o.PaymentStatus == models.PaymentStatusRefunded {
		return nil, fmt.Errorf("%w: order has already been refunded", ErrConflict)
	}

	totalCents, err := money.CentsFromString(o.Total)
	if err != nil {
		return nil, err
	}
	if amountCents <= 0 || amountCents > totalCents {
		return nil, fmt.Errorf("%w: refund amount must be between $0.01 and $%s", ErrValidation, o.Total)
	}

	refundID := ""
	if o.PaymentMethod == models.PaymentMethodCard && o.PaymentStatus == models.PaymentStatusPaid {
		res, err := s.Charger.Refund(ctx, o.CloverChargeID, amountCents)
		if err != nil {
			// Gateway failure aborts the whole refund; local state
			// stays untouched.
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		refundID = res.ID
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"payment_status": models.PaymentStatusRefunded,
		"refund_amount":  money.StringFromCents(amountCents),
		"refund_reason":  reason,
		"refunded_at":    now,
	}
	if refundID != "" {
		updates["clover_refund_id"] = refundID
	}
	if err := s.DB.WithContext(ctx).Model(&o).Updates(updates).Error; err != nil {
		return nil, err
	}

	o.PaymentStatus = models.PaymentStatusRefunded
	o.RefundAmount = money.StringFromCents(amountCents)
	o.RefundReason = reason
	o.RefundedAt = &now
	o.CloverRefundID = refundID
	return &o, nil
}

// SkippedItem reports a reorder line that could not be re-added.
type SkippedItem struct {
	ProductName string `json:"product_name"`
	Reason      string `json:"reason"`
}

// Reorder adds a prior order's items back into the current cart. Items that
// no longer exist or are disabled are skipped and reported, never aborting
// the rest.
func (s *Service) Reorder(ctx context.Context, customerID, orderID uint) (int, []SkippedItem, error) {
	var o models.DeliveryOrder
	err := s.DB.WithContext(ctx).
		Where("id = ? AND customer_id = ?", orderID, customerID).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil, fmt.Errorf("%w: order", ErrNotFound)
		}
		return 0, nil, err
	}

	var items []models.DeliveryOrderItem
	if err := s.DB.WithContext(ctx).Where("order_id = ?", o.ID).Find(&items).Error; err != nil {
		return 0, nil, err
	}

	added := 0
	var skipped []SkippedItem
	for _, it := range items {
		var p models.DeliveryProduct
		err := s.DB.WithContext(ctx).First(&p, it.ProductID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			skipped = append(skipped, SkippedItem{ProductName: it.ProductName, Reason: "no longer available"})
			continue
		}
		if err != nil {
			return added, skipped, err
		}
		if !p.Enabled {
			skipped = append(skipped, SkippedItem{ProductName: p.Name, Reason: "currently unavailable"})
			continue
		}
		if p.StockQuantity <= 0 {
			skipped = append(skipped, SkippedItem{ProductName: p.Name, Reason: "out of stock"})
			continue
		}

		qty := it.Quantity
		if qty > p.StockQuantity {
			qty = p.StockQuantity
		}

		if err := s.addToCart(ctx, customerID, p.ID, qty, p.StockQuantity); err != nil {
			return added, skipped, err
		}
		added++
	}

	if added > 0 {
		if err := cartreminder.Touch(s.DB.WithContext(ctx), customerID, time.Now().UTC()); err != nil {
			return added, skipped, err
		}
	}
	return added, skipped, nil
}

func (s *Service) addToCart(ctx context.Context, customerID, productID uint, qty, stock int) error {
	var existing models.CartItem
	err := s.DB.WithContext(ctx).
		Where("customer_id = ? AND product_id = ?", customerID, productID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.DB.WithContext(ctx).Create(&models.CartItem{
			CustomerID: customerID,
			ProductID:  productID,
			Quantity:   qty,
		}).Error
	}
	if err != nil {
		return err
	}

	newQty := existing.Quantity + qty
	if newQty > stock {
		newQty = stock
	}
	return s.DB.WithContext(ctx).Model(&existing).Update("quantity", newQty).Error
}
