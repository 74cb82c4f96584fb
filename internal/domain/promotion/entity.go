// internal/domain/promotion/entity.go
package promotion

import (
	"time"

	"gorm.io/gorm"
)

// Discount types
const (
	TypePercent = "percent"
	TypeFixed   = "fixed"
)

// Promotion represents a discount code
type Promotion struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Code           string         `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Description    string         `gorm:"size:255" json:"description"`
	Type           string         `gorm:"not null;size:20" json:"type"` // percent or fixed
	Value          int64          `gorm:"not null" json:"value"`        // Percent (0-100) or amount in cents
	MinOrderAmount int64          `gorm:"default:0" json:"min_order_amount"`
	MaxDiscount    int64          `gorm:"default:0" json:"max_discount"` // Cap for percent discounts, 0 = uncapped
	StartsAt       *time.Time     `json:"starts_at"`
	EndsAt         *time.Time     `json:"ends_at"`
	UsageLimit     int            `gorm:"default:0" json:"usage_limit"` // 0 = unlimited
	UsageCount     int            `gorm:"default:0" json:"usage_count"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Promotion) TableName() string {
	return "promotions"
}

// DiscountFor computes the discount this promotion grants on a subtotal.
// The result never exceeds the subtotal.
func (p *Promotion) DiscountFor(subtotal int64) int64 {
	var discount int64
	switch p.Type {
	case TypePercent:
		discount = subtotal * p.Value / 100
		if p.MaxDiscount > 0 && discount > p.MaxDiscount {
			discount = p.MaxDiscount
		}
	case TypeFixed:
		discount = p.Value
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount
}

// Application represents a validated promotion applied to a cart
type Application struct {
	Code           string `json:"code"`
	PromotionID    uint   `json:"promotion_id"`
	DiscountAmount int64  `json:"discount_amount"`
}
