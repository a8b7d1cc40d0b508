// Package cartreminder tracks cart activity per customer and runs the
// abandoned-cart reminder job.
package cartreminder

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/models"
)

// Touch records cart activity for the customer: upserts the reminder row,
// moves the abandonment clock and resets the reminder count. Called on every
// cart mutation.
func Touch(db *gorm.DB, customerID uint, now time.Time) error {
	var rem models.CartReminder
	err := db.Where("customer_id = ?", customerID).First(&rem).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&models.CartReminder{
			CustomerID:      customerID,
			CartLastUpdated: now,
		}).Error
	}
	if err != nil {
		return err
	}
	return db.Model(&rem).Updates(map[string]any{
		"cart_last_updated":  now,
		"reminder_count":     0,
		"last_reminder_sent": nil,
	}).Error
}

// Clear removes the customer's reminder row. A customer with no cart cannot
// be abandoned. Called on checkout and explicit cart clear.
func Clear(db *gorm.DB, customerID uint) error {
	return db.Where("customer_id = ?", customerID).Delete(&models.CartReminder{}).Error
}
