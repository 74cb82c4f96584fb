// internal/domain/payment/service.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/cart"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/order"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/promotion"
	"github.com/pasargadprints/ecommerce-backend/internal/pkg/email"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrIntentNotFound = errors.New("payment intent not found")
	ErrUnknownEvent   = errors.New("unhandled event type")
)

// Service owns payment intents and the webhook consumer
type Service struct {
	db           *gorm.DB
	redisClient  *redis.Client
	stripe       *StripeClient
	orderService *order.Service
	promotions   *promotion.Service
	emailService *email.Service
	config       *config.Config
	logger       *logrus.Logger
}

// NewService creates a new payment service
func NewService(
	db *gorm.DB,
	redisClient *redis.Client,
	stripe *StripeClient,
	orderService *order.Service,
	promotions *promotion.Service,
	emailService *email.Service,
	cfg *config.Config,
	logger *logrus.Logger,
) *Service {
	return &Service{
		db:           db,
		redisClient:  redisClient,
		stripe:       stripe,
		orderService: orderService,
		promotions:   promotions,
		emailService: emailService,
		config:       cfg,
		logger:       logger,
	}
}

// Stripe returns the underlying API client
func (s *Service) Stripe() *StripeClient {
	return s.stripe
}

// SaveIntent persists a pending payment intent
func (s *Service) SaveIntent(intent *PaymentIntent) error {
	return s.db.Create(intent).Error
}

// GetIntentBySession loads an intent by its provider session id
func (s *Service) GetIntentBySession(sessionID string) (*PaymentIntent, error) {
	var intent PaymentIntent
	err := s.db.Where("provider_session_id = ?", sessionID).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntentNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to load payment intent: %w", err)
	}
	return &intent, nil
}

// webhookEvent is the provider event envelope
type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// WebhookResult reports what the consumer did with an event
type WebhookResult struct {
	EventID   string
	EventType string
	Outcome   EventOutcome
	OrderID   uint
}

// HandleWebhook runs the webhook state machine over a raw delivery.
// A verified event is recorded before processing; the unique provider event
// id turns redeliveries into no-op acknowledgements. A processing failure
// removes the event record and returns an error so the provider retries.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	if err := VerifySignature(payload, signatureHeader, s.config.External.Stripe.WebhookSecret); err != nil {
		s.logger.WithError(err).Warn("Rejected webhook delivery")
		return nil, err
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", ErrBadSignature)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrBadSignature)
	}

	record := WebhookEvent{
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Outcome:         EventOutcomeReceived,
		Payload:         string(payload),
		ReceivedAt:      time.Now().UTC(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logger.WithFields(logrus.Fields{
				"event_id":   event.ID,
				"event_type": event.Type,
			}).Info("Duplicate webhook delivery acknowledged")
			return &WebhookResult{EventID: event.ID, EventType: event.Type, Outcome: EventOutcomeIgnored}, nil
		}
		return nil, fmt.Errorf("failed to record webhook event: %w", err)
	}

	result, err := s.dispatchEvent(ctx, &event)
	if err != nil {
		// Drop the record so the provider's retry can reprocess the event
		if delErr := s.db.Delete(&record).Error; delErr != nil {
			s.logger.WithError(delErr).Error("Failed to release webhook event record")
		}
		s.logger.WithError(err).WithField("event_id", event.ID).Error("Webhook processing failed")
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.db.Model(&record).Updates(map[string]interface{}{
		"outcome":      result.Outcome,
		"processed_at": &now,
	}).Error; err != nil {
		s.logger.WithError(err).WithField("event_id", event.ID).
			Error("Failed to record webhook event outcome")
	}

	result.EventID = event.ID
	result.EventType = event.Type
	return result, nil
}

func (s *Service) dispatchEvent(ctx context.Context, event *webhookEvent) (*WebhookResult, error) {
	switch event.Type {
	case "checkout.session.completed":
		var session CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return nil, fmt.Errorf("failed to decode session object: %w", err)
		}
		orderID, err := s.ProcessCompletedSession(ctx, session.ID, session.PaymentIntent)
		if err != nil {
			return nil, err
		}
		return &WebhookResult{Outcome: EventOutcomeProcessed, OrderID: orderID}, nil

	case "payment_intent.payment_failed":
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent object: %w", err)
		}
		if err := s.markIntentByPaymentID(obj.ID, IntentStatusFailed); err != nil {
			return nil, err
		}
		return &WebhookResult{Outcome: EventOutcomeProcessed}, nil

	case "checkout.session.expired":
		var session CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return nil, fmt.Errorf("failed to decode session object: %w", err)
		}
		if err := s.markIntentBySessionID(session.ID, IntentStatusExpired); err != nil {
			return nil, err
		}
		return &WebhookResult{Outcome: EventOutcomeProcessed}, nil

	default:
		return &WebhookResult{Outcome: EventOutcomeIgnored}, nil
	}
}

// ProcessCompletedSession materializes the order for a paid checkout
// session. Safe to call more than once per session, including
// concurrently: the intent is claimed with a status-guarded update
// before any order rows are written, so exactly one caller
// materializes and every other one backs out with no writes. Shared by
// the webhook consumer and the success-page verification fallback.
func (s *Service) ProcessCompletedSession(ctx context.Context, sessionID, providerPaymentID string) (uint, error) {
	var orderID uint
	var intent PaymentIntent

	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("provider_session_id = ?", sessionID).First(&intent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: session %s", ErrIntentNotFound, sessionID)
		} else if err != nil {
			return fmt.Errorf("failed to load payment intent: %w", err)
		}

		if intent.Status != IntentStatusPending {
			return nil // Already materialized or otherwise settled
		}

		// Backstop for an intent row reset out of band
		if providerPaymentID != "" {
			exists, err := s.orderService.OrderExistsForProviderSession(tx, providerPaymentID)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
		}

		// Claim the intent before writing anything else. Under READ
		// COMMITTED a concurrent claim blocks here, re-evaluates the
		// WHERE against the winner's committed row and matches zero
		// rows, so only one transaction can proceed to create the order.
		now := time.Now().UTC()
		claim := tx.Model(&PaymentIntent{}).
			Where("id = ? AND status = ?", intent.ID, IntentStatusPending).
			Updates(map[string]interface{}{
				"status":              IntentStatusCompleted,
				"provider_payment_id": providerPaymentID,
				"completed_at":        &now,
			})
		if claim.Error != nil {
			return fmt.Errorf("failed to claim payment intent: %w", claim.Error)
		}
		if claim.RowsAffected == 0 {
			s.logger.WithField("session_id", sessionID).
				Info("Payment intent already claimed by a concurrent materialization")
			return nil
		}

		items, err := intent.Snapshot()
		if err != nil {
			return fmt.Errorf("failed to decode cart snapshot: %w", err)
		}

		orderItems := make([]order.ItemParams, len(items))
		for i, item := range items {
			orderItems[i] = order.ItemParams{
				ProductID: item.ProductID,
				SKU:       item.SKU,
				Name:      item.Name,
				Quantity:  item.Quantity,
				Price:     item.Price,
			}
		}

		var addresses intentAddresses
		if intent.AddressData != "" {
			if err := json.Unmarshal([]byte(intent.AddressData), &addresses); err != nil {
				return fmt.Errorf("failed to decode intent addresses: %w", err)
			}
		}

		newOrder, err := s.orderService.CreateFromPayment(tx, &order.CreateParams{
			UserID:          intent.UserID,
			SessionKey:      intent.SessionKey,
			Email:           intent.Email,
			Items:           orderItems,
			SubtotalAmount:  intent.SubtotalAmount,
			TaxAmount:       intent.TaxAmount,
			ShippingAmount:  intent.ShippingAmount,
			DiscountAmount:  intent.DiscountAmount,
			TotalAmount:     intent.TotalAmount,
			Currency:        intent.Currency,
			PromoCode:       intent.PromoCode,
			ShippingAddress: addresses.Shipping,
			BillingAddress:  addresses.Billing,
			ShippingMethod:  intent.ShippingMethod,
			PaymentMethod:   "card",
			PaymentProvider: "stripe",
			ProviderPayID:   providerPaymentID,
		})
		if err != nil {
			return err
		}
		orderID = newOrder.ID

		if intent.PromotionID != nil {
			if err := s.promotions.ConsumeUsage(tx, *intent.PromotionID); err != nil {
				return fmt.Errorf("failed to consume promotion: %w", err)
			}
		}

		// Clear the originating user cart in the same transaction
		if intent.UserID != nil {
			if err := tx.Where("user_id = ?", *intent.UserID).Delete(&cart.CartItem{}).Error; err != nil {
				return fmt.Errorf("failed to clear user cart: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}
	if orderID == 0 {
		return 0, nil // Intent was already settled elsewhere
	}

	s.afterMaterialization(ctx, &intent, orderID)
	return orderID, nil
}

// afterMaterialization runs post-commit side effects. Failures here are
// logged only and never affect the order.
func (s *Service) afterMaterialization(ctx context.Context, intent *PaymentIntent, orderID uint) {
	if intent.SessionKey != "" {
		key := fmt.Sprintf("cart:session:%s", intent.SessionKey)
		if err := s.redisClient.Del(ctx, key).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to clear guest cart after order")
		}
	}
	if intent.PromoCode != "" {
		ownerKey := intent.SessionKey
		if intent.UserID != nil {
			ownerKey = fmt.Sprintf("user:%d", *intent.UserID)
		}
		if err := s.promotions.RemoveApplied(ctx, ownerKey); err != nil {
			s.logger.WithError(err).Warn("Failed to clear applied promotion after order")
		}
	}

	go func() {
		ord, err := s.orderService.GetOrder(orderID, nil)
		if err != nil {
			s.logger.WithError(err).Error("Failed to load order for confirmation email")
			return
		}
		lines := make([]email.OrderLine, len(ord.Items))
		for i, item := range ord.Items {
			lines[i] = email.OrderLine{Name: item.Name, Quantity: item.Quantity, Price: item.Price}
		}
		err = s.emailService.SendOrderConfirmation(&email.OrderConfirmation{
			To:          ord.Email,
			OrderNumber: ord.OrderNumber,
			TotalAmount: ord.TotalAmount,
			Currency:    ord.Currency,
			Items:       lines,
		})
		if err != nil {
			s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to send order confirmation")
		}
	}()
}

type intentAddresses struct {
	Shipping order.Address `json:"shipping"`
	Billing  order.Address `json:"billing"`
}

// EncodeIntentAddresses serializes addresses for storage on an intent
func EncodeIntentAddresses(shipping, billing order.Address) (string, error) {
	data, err := json.Marshal(intentAddresses{Shipping: shipping, Billing: billing})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Service) markIntentByPaymentID(paymentID string, status IntentStatus) error {
	if paymentID == "" {
		return nil
	}
	return s.db.Model(&PaymentIntent{}).
		Where("provider_payment_id = ? AND status = ?", paymentID, IntentStatusPending).
		Update("status", status).Error
}

func (s *Service) markIntentBySessionID(sessionID string, status IntentStatus) error {
	return s.db.Model(&PaymentIntent{}).
		Where("provider_session_id = ? AND status = ?", sessionID, IntentStatusPending).
		Update("status", status).Error
}
