// internal/domain/payment/entity.go
package payment

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentIntent statuses
type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusCompleted IntentStatus = "completed"
	IntentStatusFailed    IntentStatus = "failed"
	IntentStatusExpired   IntentStatus = "expired"
)

// PaymentIntent records a checkout session handed to the payment provider.
// The cart snapshot is frozen here so webhook processing never depends on
// the live cart.
type PaymentIntent struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	ProviderSessionID string       `gorm:"uniqueIndex;not null;size:255" json:"provider_session_id"`
	ProviderPaymentID string       `gorm:"size:255;index" json:"provider_payment_id"`
	UserID            *uint        `gorm:"index" json:"user_id"` // Nullable for guest checkouts
	SessionKey        string       `gorm:"size:100;index" json:"-"`
	Email             string       `gorm:"not null;size:255" json:"email"`
	Status            IntentStatus `gorm:"not null;default:'pending'" json:"status"`

	SubtotalAmount int64  `gorm:"not null" json:"subtotal_amount"` // In cents
	TaxAmount      int64  `gorm:"default:0" json:"tax_amount"`
	ShippingAmount int64  `gorm:"default:0" json:"shipping_amount"`
	DiscountAmount int64  `gorm:"default:0" json:"discount_amount"`
	TotalAmount    int64  `gorm:"not null" json:"total_amount"`
	Currency       string `gorm:"size:3;default:'USD'" json:"currency"`
	PromoCode      string `gorm:"size:50" json:"promo_code"`
	PromotionID    *uint  `json:"promotion_id"`

	CartSnapshot   string `gorm:"type:text;not null" json:"-"` // JSON SnapshotItems
	ShippingMethod string `gorm:"size:100" json:"shipping_method"`
	AddressData    string `gorm:"type:text" json:"-"` // JSON shipping/billing addresses

	CompletedAt *time.Time     `json:"completed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// SnapshotItem is one cart line frozen at checkout time
type SnapshotItem struct {
	ProductID uint   `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"` // Unit price in cents at checkout time
}

// Snapshot decodes the frozen cart lines
func (pi *PaymentIntent) Snapshot() ([]SnapshotItem, error) {
	var items []SnapshotItem
	if err := json.Unmarshal([]byte(pi.CartSnapshot), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Webhook event outcomes
type EventOutcome string

const (
	EventOutcomeReceived  EventOutcome = "received"
	EventOutcomeProcessed EventOutcome = "processed"
	EventOutcomeIgnored   EventOutcome = "ignored"
	EventOutcomeFailed    EventOutcome = "failed"
)

// WebhookEvent stores every verified provider event. The unique provider
// event id is the idempotency contract: a redelivered event hits the unique
// index and is acknowledged without reprocessing.
type WebhookEvent struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	ProviderEventID string       `gorm:"uniqueIndex;not null;size:255" json:"provider_event_id"`
	EventType       string       `gorm:"not null;size:100;index" json:"event_type"`
	Outcome         EventOutcome `gorm:"not null;default:'received'" json:"outcome"`
	Payload         string       `gorm:"type:text" json:"-"`
	Error           string       `gorm:"type:text" json:"error,omitempty"`
	ReceivedAt      time.Time    `json:"received_at"`
	ProcessedAt     *time.Time   `json:"processed_at"`
}

// TableName overrides
func (PaymentIntent) TableName() string { return "payment_intents" }
func (WebhookEvent) TableName() string  { return "webhook_events" }
