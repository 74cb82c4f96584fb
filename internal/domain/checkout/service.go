// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/cart"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/order"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/payment"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/promotion"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/shipping"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrCartEmpty = errors.New("cart is empty")

// StockError names the product that cannot be fulfilled
type StockError struct {
	ProductID   uint
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return cart.ErrInsufficientStock }

const taxRate = 0.08

// Service drives checkout session creation and verification
type Service struct {
	db          *gorm.DB
	cartService *cart.Service
	promotions  *promotion.Service
	shipping    *shipping.Service
	payments    *payment.Service
	config      *config.Config
	logger      *logrus.Logger
}

// NewService creates a new checkout service
func NewService(
	db *gorm.DB,
	cartService *cart.Service,
	promotions *promotion.Service,
	shippingService *shipping.Service,
	payments *payment.Service,
	cfg *config.Config,
	logger *logrus.Logger,
) *Service {
	return &Service{
		db:          db,
		cartService: cartService,
		promotions:  promotions,
		shipping:    shippingService,
		payments:    payments,
		config:      cfg,
		logger:      logger,
	}
}

// CreateSessionRequest starts a hosted checkout
type CreateSessionRequest struct {
	Email            string        `json:"email" binding:"required,email"`
	ShippingAddress  order.Address `json:"shipping_address" binding:"required"`
	BillingAddress   order.Address `json:"billing_address"`
	ShippingMethodID string        `json:"shipping_method_id" binding:"required"`
	PromoCode        string        `json:"promo_code"`
}

// CreateSessionResponse carries the redirect to the hosted payment page
type CreateSessionResponse struct {
	SessionID      string `json:"session_id"`
	RedirectURL    string `json:"redirect_url"`
	SubtotalAmount int64  `json:"subtotal_amount"`
	TaxAmount      int64  `json:"tax_amount"`
	ShippingAmount int64  `json:"shipping_amount"`
	DiscountAmount int64  `json:"discount_amount"`
	TotalAmount    int64  `json:"total_amount"`
	Currency       string `json:"currency"`
}

// CreateCheckoutSession validates the cart, prices the order and opens a
// hosted payment session. The cart contents are frozen on the pending
// payment intent; nothing observable changes when validation fails.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID *uint, sessionKey string, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	cartResponse, err := s.cartService.GetCart(ctx, userID, sessionKey)
	if err != nil {
		return nil, err
	}
	if len(cartResponse.Items) == 0 {
		return nil, ErrCartEmpty
	}

	// Revalidate every line against the live catalog and freeze the snapshot
	var subtotal int64
	snapshot := make([]payment.SnapshotItem, 0, len(cartResponse.Items))
	var totalWeight float64
	for _, item := range cartResponse.Items {
		var prod product.Product
		if err := s.db.Where("id = ? AND is_active = ?", item.ProductID, true).First(&prod).Error; err != nil {
			return nil, fmt.Errorf("product %d is no longer available", item.ProductID)
		}
		if !prod.HasStockFor(item.Quantity) {
			return nil, &StockError{
				ProductID:   prod.ID,
				ProductName: prod.Name,
				Requested:   item.Quantity,
				Available:   prod.Quantity,
			}
		}
		snapshot = append(snapshot, payment.SnapshotItem{
			ProductID: prod.ID,
			SKU:       prod.SKU,
			Name:      prod.Name,
			Quantity:  item.Quantity,
			Price:     prod.Price,
		})
		subtotal += prod.Price * int64(item.Quantity)
		totalWeight += prod.Weight * float64(item.Quantity)
	}

	discount, promoCode, promotionID, err := s.resolveDiscount(ctx, userID, sessionKey, req.PromoCode, subtotal)
	if err != nil {
		return nil, err
	}

	method, err := s.shipping.GetMethod(ctx, req.ShippingMethodID, toShippingAddress(req.ShippingAddress), totalWeight, subtotal)
	if err != nil {
		return nil, err
	}

	taxable := subtotal - discount
	tax := int64(math.Round(float64(taxable) * taxRate))
	total := subtotal + tax + method.Cost - discount

	currency := s.config.App.Currency
	lineItems := make([]payment.CheckoutLineItem, 0, len(snapshot)+2)
	for _, item := range snapshot {
		lineItems = append(lineItems, payment.CheckoutLineItem{
			Name:       item.Name,
			UnitAmount: item.Price,
			Quantity:   item.Quantity,
		})
	}
	if method.Cost > 0 {
		lineItems = append(lineItems, payment.CheckoutLineItem{
			Name:       method.Name,
			UnitAmount: method.Cost,
			Quantity:   1,
		})
	}
	if tax > 0 {
		lineItems = append(lineItems, payment.CheckoutLineItem{
			Name:       "Sales tax",
			UnitAmount: tax,
			Quantity:   1,
		})
	}

	session, err := s.payments.Stripe().CreateCheckoutSession(ctx, &payment.CheckoutSessionParams{
		LineItems:      lineItems,
		Currency:       currency,
		CustomerEmail:  req.Email,
		SuccessURL:     s.config.External.Stripe.SuccessURL,
		CancelURL:      s.config.External.Stripe.CancelURL,
		DiscountAmount: discount,
		ClientRef:      sessionKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart snapshot: %w", err)
	}
	addressData, err := payment.EncodeIntentAddresses(req.ShippingAddress, billingOrShipping(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode addresses: %w", err)
	}

	intent := &payment.PaymentIntent{
		ProviderSessionID: session.ID,
		UserID:            userID,
		SessionKey:        sessionKey,
		Email:             req.Email,
		Status:            payment.IntentStatusPending,
		SubtotalAmount:    subtotal,
		TaxAmount:         tax,
		ShippingAmount:    method.Cost,
		DiscountAmount:    discount,
		TotalAmount:       total,
		Currency:          currency,
		PromoCode:         promoCode,
		PromotionID:       promotionID,
		CartSnapshot:      string(snapshotJSON),
		ShippingMethod:    method.Name,
		AddressData:       addressData,
	}
	if err := s.payments.SaveIntent(intent); err != nil {
		// A session without a stored intent can never materialize an
		// order, so close it out at the provider. Best effort only.
		if expErr := s.payments.Stripe().ExpireCheckoutSession(ctx, session.ID); expErr != nil {
			s.logger.WithError(expErr).WithField("session_id", session.ID).
				Error("Failed to expire orphaned checkout session")
		}
		return nil, fmt.Errorf("failed to persist payment intent: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"total":      total,
		"items":      len(snapshot),
	}).Info("Checkout session created")

	return &CreateSessionResponse{
		SessionID:      session.ID,
		RedirectURL:    session.URL,
		SubtotalAmount: subtotal,
		TaxAmount:      tax,
		ShippingAmount: method.Cost,
		DiscountAmount: discount,
		TotalAmount:    total,
		Currency:       currency,
	}, nil
}

// VerifyResponse reports the provider-side state of a checkout session
type VerifyResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"` // paid, pending, expired
	OrderID   uint   `json:"order_id,omitempty"`
}

// VerifyCheckoutSession is the success-page fallback for delayed webhooks.
// It asks the provider directly and, when the session is paid, materializes
// the order through the same idempotent path the webhook uses.
func (s *Service) VerifyCheckoutSession(ctx context.Context, sessionID string) (*VerifyResponse, error) {
	session, err := s.payments.Stripe().GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment session: %w", err)
	}

	resp := &VerifyResponse{SessionID: sessionID}
	switch {
	case session.PaymentStatus == "paid":
		orderID, err := s.payments.ProcessCompletedSession(ctx, sessionID, session.PaymentIntent)
		if err != nil {
			return nil, err
		}
		resp.Status = "paid"
		resp.OrderID = orderID
	case session.Status == "expired":
		resp.Status = "expired"
	default:
		resp.Status = "pending"
	}
	return resp, nil
}

// GetShippingMethods exposes rate lookup for the checkout page
func (s *Service) GetShippingMethods(ctx context.Context, userID *uint, sessionKey string, dest shipping.Address) ([]shipping.Method, error) {
	cartResponse, err := s.cartService.GetCart(ctx, userID, sessionKey)
	if err != nil {
		return nil, err
	}
	if len(cartResponse.Items) == 0 {
		return nil, ErrCartEmpty
	}

	var weight float64
	for _, item := range cartResponse.Items {
		if item.Product != nil {
			weight += item.Product.Weight * float64(item.Quantity)
		}
	}
	return s.shipping.GetMethods(ctx, dest, weight, cartResponse.Totals.SubTotal), nil
}

// ApplyPromoCode validates a code against the current cart and remembers it
func (s *Service) ApplyPromoCode(ctx context.Context, userID *uint, sessionKey, code string) (*promotion.Application, error) {
	cartResponse, err := s.cartService.GetCart(ctx, userID, sessionKey)
	if err != nil {
		return nil, err
	}
	if len(cartResponse.Items) == 0 {
		return nil, ErrCartEmpty
	}
	return s.promotions.ApplyForOwner(ctx, ownerKey(userID, sessionKey), code, cartResponse.Totals.SubTotal)
}

// RemovePromoCode clears any remembered code for the cart owner
func (s *Service) RemovePromoCode(ctx context.Context, userID *uint, sessionKey string) error {
	return s.promotions.RemoveApplied(ctx, ownerKey(userID, sessionKey))
}

func (s *Service) resolveDiscount(ctx context.Context, userID *uint, sessionKey, explicitCode string, subtotal int64) (int64, string, *uint, error) {
	code := explicitCode
	if code == "" {
		applied, err := s.promotions.GetApplied(ctx, ownerKey(userID, sessionKey))
		if err != nil {
			return 0, "", nil, err
		}
		if applied == nil {
			return 0, "", nil, nil
		}
		code = applied.Code
	}

	// Always revalidate against the current subtotal
	app, err := s.promotions.Validate(code, subtotal)
	if err != nil {
		return 0, "", nil, err
	}
	return app.DiscountAmount, app.Code, &app.PromotionID, nil
}

func ownerKey(userID *uint, sessionKey string) string {
	if userID != nil {
		return fmt.Sprintf("user:%d", *userID)
	}
	return sessionKey
}

func billingOrShipping(req *CreateSessionRequest) order.Address {
	empty := order.Address{}
	if req.BillingAddress == empty {
		return req.ShippingAddress
	}
	return req.BillingAddress
}

func toShippingAddress(a order.Address) shipping.Address {
	return shipping.Address{
		Name:       fmt.Sprintf("%s %s", a.FirstName, a.LastName),
		Street:     a.AddressLine1,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
