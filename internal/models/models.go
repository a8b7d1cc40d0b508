package models

import (
	"time"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusPreparing      = "preparing"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

const (
	PaymentMethodCard = "card"
	PaymentMethodCash = "cash"
)

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

type DeliveryCustomer struct {
	ID                 uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Email              string     `gorm:"unique;not null"          json:"email"`
	FirstName          string     `gorm:"not null"                 json:"first_name"`
	LastName           string     `gorm:"not null"                 json:"last_name"`
	Phone              string     `json:"phone"`
	Address            string     `gorm:"not null"                 json:"address"`
	City               string     `json:"city"`
	State              string     `json:"state"`
	Zip                string     `json:"zip"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	ApprovalStatus     string     `gorm:"not null;default:pending" json:"approval_status"`
	PasswordHash       string     `json:"-"`
	MustChangePassword bool       `gorm:"default:false"            json:"must_change_password"`
	SetupToken         string     `gorm:"index"                    json:"-"`
	SetupTokenExpires  *time.Time `json:"-"`
	ResetToken         string     `gorm:"index"                    json:"-"`
	ResetTokenExpires  *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type DeliveryProduct struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"    json:"id"`
	CloverItemID    string    `gorm:"index"                       json:"clover_item_id"`
	Name            string    `gorm:"not null"                    json:"name"`
	Description     string    `json:"description"`
	Price           string    `gorm:"type:decimal(10,2);not null" json:"price"`
	SalePrice       string    `gorm:"type:decimal(10,2)"          json:"sale_price"`
	StockQuantity   int       `gorm:"default:0"                   json:"stock_quantity"`
	Enabled         bool      `gorm:"default:false"               json:"enabled"`
	Badge           string    `json:"badge"`
	DisplayOrder    int       `gorm:"default:0"                   json:"display_order"`
	ShowInSlideshow bool      `gorm:"default:false"               json:"show_in_slideshow"`
	ImageURL        string    `json:"image_url"`
	Category        string    `json:"category"`
	BrandID         *uint     `json:"brand_id"`
	CategoryID      *uint     `json:"category_id"`
	ProductLineID   *uint     `json:"product_line_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CartItem struct {
	ID         uint      `gorm:"primaryKey"                                      json:"id"`
	CustomerID uint      `gorm:"index:idx_cart_customer_product,unique;not null" json:"customer_id"`
	ProductID  uint      `gorm:"index:idx_cart_customer_product,unique;not null" json:"product_id"`
	Quantity   int       `gorm:"default:1;check:quantity>0"                      json:"quantity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CartReminder drives abandoned-cart eligibility. One row per customer,
// deleted outright when the cart is cleared or checked out.
type CartReminder struct {
	ID               uint       `gorm:"primaryKey"           json:"id"`
	CustomerID       uint       `gorm:"uniqueIndex;not null" json:"customer_id"`
	CartLastUpdated  time.Time  `gorm:"not null"             json:"cart_last_updated"`
	LastReminderSent *time.Time `json:"last_reminder_sent"`
	ReminderCount    int        `gorm:"default:0"            json:"reminder_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type DeliveryWindow struct {
	ID              uint      `gorm:"primaryKey"             json:"id"`
	Date            string    `gorm:"size:10;index;not null" json:"date"`
	StartTime       string    `gorm:"not null"               json:"start_time"`
	EndTime         string    `gorm:"not null"               json:"end_time"`
	Capacity        int       `gorm:"not null"               json:"capacity"`
	CurrentBookings int       `gorm:"default:0"              json:"current_bookings"`
	Enabled         bool      `gorm:"default:true"           json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
}

type WeeklyDeliveryTemplate struct {
	ID        uint      `gorm:"primaryKey"   json:"id"`
	DayOfWeek int       `gorm:"not null"     json:"day_of_week"`
	StartTime string    `gorm:"not null"     json:"start_time"`
	EndTime   string    `gorm:"not null"     json:"end_time"`
	Capacity  int       `gorm:"not null"     json:"capacity"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Promotion struct {
	ID                  uint      `gorm:"primaryKey"                   json:"id"`
	Code                string    `gorm:"uniqueIndex;not null"         json:"code"`
	Description         string    `json:"description"`
	DiscountType        string    `gorm:"not null"                     json:"discount_type"`
	DiscountValue       string    `gorm:"type:decimal(10,2);not null"  json:"discount_value"`
	MinimumOrderAmount  string    `gorm:"type:decimal(10,2);default:0" json:"minimum_order_amount"`
	MaxUsageCount       *int      `json:"max_usage_count"`
	MaxUsagePerCustomer *int      `json:"max_usage_per_customer"`
	CurrentUsageCount   int       `gorm:"default:0"                    json:"current_usage_count"`
	ValidFrom           time.Time `gorm:"not null"                     json:"valid_from"`
	ValidUntil          time.Time `gorm:"not null"                     json:"valid_until"`
	Enabled             bool      `gorm:"default:true"                 json:"enabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PromotionUsage is an append-only ledger; rows are never updated or deleted.
type PromotionUsage struct {
	ID             uint      `gorm:"primaryKey"                  json:"id"`
	PromotionID    uint      `gorm:"index;not null"              json:"promotion_id"`
	CustomerID     uint      `gorm:"index;not null"              json:"customer_id"`
	OrderID        uint      `gorm:"not null"                    json:"order_id"`
	DiscountAmount string    `gorm:"type:decimal(10,2);not null" json:"discount_amount"`
	UsedAt         time.Time `gorm:"not null"                    json:"used_at"`
}

type DeliveryOrder struct {
	ID               uint                `gorm:"primaryKey"                       json:"id"`
	CustomerID       uint                `gorm:"index;not null"                   json:"customer_id"`
	DeliveryWindowID *uint               `json:"delivery_window_id"`
	Subtotal         string              `gorm:"type:decimal(10,2);not null"      json:"subtotal"`
	Discount         string              `gorm:"type:decimal(10,2);default:0"     json:"discount"`
	Tax              string              `gorm:"type:decimal(10,2);not null"      json:"tax"`
	DeliveryFee      string              `gorm:"type:decimal(10,2);not null"      json:"delivery_fee"`
	Total            string              `gorm:"type:decimal(10,2);not null"      json:"total"`
	PromoCode        string              `json:"promo_code"`
	PaymentMethod    string              `gorm:"not null"                         json:"payment_method"`
	PaymentStatus    string              `gorm:"not null;default:pending"         json:"payment_status"`
	Status           string              `gorm:"not null;default:pending_payment" json:"status"`
	CloverChargeID   string              `json:"clover_charge_id"`
	CloverRefundID   string              `json:"clover_refund_id"`
	CardLast4        string              `json:"card_last4"`
	CardBrand        string              `json:"card_brand"`
	RefundAmount     string              `gorm:"type:decimal(10,2)"               json:"refund_amount"`
	RefundReason     string              `json:"refund_reason"`
	RefundedAt       *time.Time          `json:"refunded_at"`
	Items            []DeliveryOrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// DeliveryOrderItem snapshots price at order time so later catalog repricing
// never changes historical orders.
type DeliveryOrderItem struct {
	ID          uint   `gorm:"primaryKey"                  json:"id"`
	OrderID     uint   `gorm:"index;not null"              json:"order_id"`
	ProductID   uint   `gorm:"not null"                    json:"product_id"`
	ProductName string `gorm:"not null"                    json:"product_name"`
	Quantity    int    `gorm:"not null"                    json:"quantity"`
	Price       string `gorm:"type:decimal(10,2);not null" json:"price"`
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}
