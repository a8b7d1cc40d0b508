// Package promo validates promo codes against promotion records and the
// usage ledger. Validation is read-only; usage is recorded only inside the
// transaction that persists the order using the discount.
package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/money"
)

type Validator struct {
	DB *gorm.DB
}

// Result reports the outcome of a validation. Message is user-facing and set
// only when Valid is false.
type Result struct {
	Valid         bool              `json:"valid"`
	Promotion     *models.Promotion `json:"promotion,omitempty"`
	DiscountCents int64             `json:"-"`
	Discount      string            `json:"discount,omitempty"`
	Message       string            `json:"message,omitempty"`
}

func invalid(msg string) *Result {
	return &Result{Valid: false, Message: msg}
}

// Validate runs the ordered eligibility checks and computes the discount.
// Business failures come back in the Result; only infrastructure failures
// return an error.
func (v *Validator) Validate(ctx context.Context, code string, customerID uint, subtotalCents int64) (*Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return invalid("Invalid promo code"), nil
	}

	var p models.Promotion
	if err := v.DB.WithContext(ctx).Where("code = ?", code).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid("Invalid promo code"), nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !p.Enabled {
		return invalid("This promo code is no longer active"), nil
	}
	if now.Before(p.ValidFrom) {
		return invalid("This promo code is not yet active"), nil
	}
	if now.After(p.ValidUntil) {
		return invalid("This promo code has expired"), nil
	}
	if p.MaxUsageCount != nil && p.CurrentUsageCount >= *p.MaxUsageCount {
		return invalid("This promo code has reached its usage limit"), nil
	}

	if p.MaxUsagePerCustomer != nil {
		var used int64
		err := v.DB.WithContext(ctx).
			Model(&models.PromotionUsage{}).
			Where("promotion_id = ? AND customer_id = ?", p.ID, customerID).
			Count(&used).Error
		if err != nil {
			return nil, err
		}
		if used >= int64(*p.MaxUsagePerCustomer) {
			return invalid("You have already used this promo code"), nil
		}
	}

	minCents, err := money.CentsFromString(p.MinimumOrderAmount)
	if err != nil {
		return nil, fmt.Errorf("promotion %d has bad minimum order amount: %w", p.ID, err)
	}
	if subtotalCents < minCents {
		return invalid(fmt.Sprintf("Minimum order amount is $%s", money.StringFromCents(minCents))), nil
	}

	discount, err := discountFor(&p, subtotalCents)
	if err != nil {
		return nil, err
	}

	return &Result{
		Valid:         true,
		Promotion:     &p,
		DiscountCents: discount,
		Discount:      money.StringFromCents(discount),
	}, nil
}

func discountFor(p *models.Promotion, subtotalCents int64) (int64, error) {
	valueCents, err := money.CentsFromString(p.DiscountValue)
	if err != nil {
		return 0, fmt.Errorf("promotion %d has bad discount value: %w", p.ID, err)
	}

	switch p.DiscountType {
	case models.DiscountPercentage:
		return money.PercentOf(subtotalCents, valueCents), nil
	case models.DiscountFixed:
		// Discount never exceeds the subtotal, so the total never goes
		// negative.
		if valueCents > subtotalCents {
			return subtotalCents, nil
		}
		return valueCents, nil
	}
	return 0, fmt.Errorf("promotion %d has unknown discount type %q", p.ID, p.DiscountType)
}

// ErrUsageLimit reports that the promotion's global cap was claimed by a
// competing order between validation and recording.
var ErrUsageLimit = errors.New("promo usage limit reached")

// RecordUsage appends a usage ledger row and bumps the promotion counter.
// Must be called inside the transaction that persists the order. Validation
// is read-only, so the cap is re-checked here with a guarded update; two
// orders racing for the last use cannot both record.
func RecordUsage(tx *gorm.DB, promotionID, customerID, orderID uint, discountCents int64) error {
	res := tx.Model(&models.Promotion{}).
		Where("id = ? AND (max_usage_count IS NULL OR current_usage_count < max_usage_count)", promotionID).
		UpdateColumn("current_usage_count", gorm.Expr("current_usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUsageLimit
	}

	usage := models.PromotionUsage{
		PromotionID:    promotionID,
		CustomerID:     customerID,
		OrderID:        orderID,
		DiscountAmount: money.StringFromCents(discountCents),
		UsedAt:         time.Now().UTC(),
	}
	return tx.Create(&usage).Error
}
