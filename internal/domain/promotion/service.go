// internal/domain/promotion/service.go
package promotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ErrInvalidPromotion is the base error for every validation failure.
// The wrapped message carries the machine-readable reason.
var ErrInvalidPromotion = errors.New("invalid promotion code")

var (
	ErrCodeNotFound      = fmt.Errorf("%w: not found", ErrInvalidPromotion)
	ErrCodeInactive      = fmt.Errorf("%w: inactive", ErrInvalidPromotion)
	ErrCodeNotStarted    = fmt.Errorf("%w: not yet active", ErrInvalidPromotion)
	ErrCodeExpired       = fmt.Errorf("%w: expired", ErrInvalidPromotion)
	ErrMinOrderNotMet    = fmt.Errorf("%w: minimum order amount not met", ErrInvalidPromotion)
	ErrUsageLimitReached = fmt.Errorf("%w: usage limit reached", ErrInvalidPromotion)
)

const appliedKeyTTL = 24 * time.Hour

// Service handles promotion code validation and application
type Service struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewService creates a new promotion service
func NewService(db *gorm.DB, redisClient *redis.Client) *Service {
	return &Service{db: db, redisClient: redisClient}
}

// Validate checks a code against a cart subtotal and returns the discount
// it would grant. It does not consume the code.
func (s *Service) Validate(code string, subtotal int64) (*Application, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrCodeNotFound
	}

	var promo Promotion
	err := s.db.Where("code = ?", code).First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCodeNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up promotion: %w", err)
	}

	if !promo.IsActive {
		return nil, ErrCodeInactive
	}

	now := time.Now().UTC()
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return nil, ErrCodeNotStarted
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return nil, ErrCodeExpired
	}
	if promo.UsageLimit > 0 && promo.UsageCount >= promo.UsageLimit {
		return nil, ErrUsageLimitReached
	}
	if subtotal < promo.MinOrderAmount {
		return nil, ErrMinOrderNotMet
	}

	return &Application{
		Code:           promo.Code,
		PromotionID:    promo.ID,
		DiscountAmount: promo.DiscountFor(subtotal),
	}, nil
}

// ApplyForOwner validates a code and remembers it for the cart owner so
// checkout picks it up without the client resending it.
func (s *Service) ApplyForOwner(ctx context.Context, ownerKey, code string, subtotal int64) (*Application, error) {
	app, err := s.Validate(code, subtotal)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(app)
	if err != nil {
		return nil, fmt.Errorf("failed to encode applied promotion: %w", err)
	}
	if err := s.redisClient.Set(ctx, appliedKey(ownerKey), data, appliedKeyTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to store applied promotion: %w", err)
	}
	return app, nil
}

// GetApplied returns the promotion previously applied for the owner, if any.
func (s *Service) GetApplied(ctx context.Context, ownerKey string) (*Application, error) {
	data, err := s.redisClient.Get(ctx, appliedKey(ownerKey)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load applied promotion: %w", err)
	}

	var app Application
	if err := json.Unmarshal([]byte(data), &app); err != nil {
		return nil, fmt.Errorf("failed to decode applied promotion: %w", err)
	}
	return &app, nil
}

// RemoveApplied clears the applied promotion for the owner
func (s *Service) RemoveApplied(ctx context.Context, ownerKey string) error {
	return s.redisClient.Del(ctx, appliedKey(ownerKey)).Err()
}

// ConsumeUsage increments the usage counter inside the caller's transaction.
// Called once per materialized order that used the code.
func (s *Service) ConsumeUsage(tx *gorm.DB, promotionID uint) error {
	return tx.Model(&Promotion{}).
		Where("id = ?", promotionID).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
}

// CreatePromotionRequest represents an admin create request
type CreatePromotionRequest struct {
	Code           string     `json:"code" binding:"required"`
	Description    string     `json:"description"`
	Type           string     `json:"type" binding:"required,oneof=percent fixed"`
	Value          int64      `json:"value" binding:"required,min=1"`
	MinOrderAmount int64      `json:"min_order_amount"`
	MaxDiscount    int64      `json:"max_discount"`
	StartsAt       *time.Time `json:"starts_at"`
	EndsAt         *time.Time `json:"ends_at"`
	UsageLimit     int        `json:"usage_limit"`
}

// CreatePromotion creates a new promotion code (admin)
func (s *Service) CreatePromotion(req *CreatePromotionRequest) (*Promotion, error) {
	if req.Type == TypePercent && req.Value > 100 {
		return nil, fmt.Errorf("percent value cannot exceed 100")
	}

	promo := &Promotion{
		Code:           strings.ToUpper(strings.TrimSpace(req.Code)),
		Description:    req.Description,
		Type:           req.Type,
		Value:          req.Value,
		MinOrderAmount: req.MinOrderAmount,
		MaxDiscount:    req.MaxDiscount,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		UsageLimit:     req.UsageLimit,
		IsActive:       true,
	}
	if err := s.db.Create(promo).Error; err != nil {
		return nil, fmt.Errorf("failed to create promotion: %w", err)
	}
	return promo, nil
}

// ListPromotions returns all promotions (admin)
func (s *Service) ListPromotions() ([]Promotion, error) {
	var promos []Promotion
	if err := s.db.Order("created_at DESC").Find(&promos).Error; err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}
	return promos, nil
}

// DeactivatePromotion disables a code without deleting its usage history
func (s *Service) DeactivatePromotion(id uint) error {
	result := s.db.Model(&Promotion{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}

func appliedKey(ownerKey string) string {
	return fmt.Sprintf("applied_promotion:%s", ownerKey)
}
