// internal/domain/cart/service.go
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Sentinel errors callers branch on
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found or inactive")
	ErrItemNotFound      = errors.New("item not found in cart")
	ErrSessionRequired   = errors.New("session ID required for guest cart")
)

// Service handles cart business logic
type Service struct {
	db          *gorm.DB
	redisClient *redis.Client
	config      *config.Config
	logger      *logrus.Logger
}

// NewService creates a new cart service
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		db:          db,
		redisClient: redisClient,
		config:      cfg,
		logger:      logger,
	}
}

// CartItemResponse represents a cart item with product details
type CartItemResponse struct {
	ProductID uint             `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Price     int64            `json:"price"`
	Product   *product.Product `json:"product,omitempty"`
	AddedAt   time.Time        `json:"added_at"`
}

// CartResponse represents a shopping cart with items and summary
type CartResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	UserID    *uint              `json:"user_id,omitempty"`
	Items     []CartItemResponse `json:"items"`
	Totals    CartTotals         `json:"totals"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

// UpdateCartItemRequest represents update cart item request
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

// GetCart retrieves the cart for a user or guest session.
// Exactly one cart is resolved per request: the user's when authenticated,
// the session-keyed guest cart otherwise.
func (s *Service) GetCart(ctx context.Context, userID *uint, sessionID string) (*CartResponse, error) {
	var cartItems []CartItemResponse
	var createdAt, updatedAt time.Time

	if userID != nil {
		var dbItems []CartItem
		err := s.db.Where("user_id = ?", *userID).Order("created_at ASC").Find(&dbItems).Error
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve user cart: %w", err)
		}

		cartItems = make([]CartItemResponse, len(dbItems))
		for i, item := range dbItems {
			cartItems[i] = CartItemResponse{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
				AddedAt:   item.CreatedAt,
			}
		}

		if len(dbItems) > 0 {
			createdAt = dbItems[0].CreatedAt
			updatedAt = dbItems[0].UpdatedAt
		} else {
			createdAt = time.Now().UTC()
			updatedAt = createdAt
		}
	} else {
		sessionCart, err := s.getGuestCart(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		cartItems = make([]CartItemResponse, len(sessionCart.Items))
		for i, item := range sessionCart.Items {
			cartItems[i] = CartItemResponse{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
				AddedAt:   item.AddedAt,
			}
		}

		createdAt = sessionCart.CreatedAt
		updatedAt = sessionCart.UpdatedAt
	}

	if err := s.loadProductDetails(cartItems); err != nil {
		return nil, err
	}

	totals := s.calculateTotals(cartItems)

	return &CartResponse{
		SessionID: sessionID,
		UserID:    userID,
		Items:     cartItems,
		Totals:    totals,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// AddToCart adds an item to the cart
func (s *Service) AddToCart(ctx context.Context, userID *uint, sessionID string, req *AddToCartRequest) (*CartResponse, error) {
	var prod product.Product
	result := s.db.Where("id = ? AND is_active = ?", req.ProductID, true).First(&prod)
	if result.Error != nil {
		return nil, ErrProductNotFound
	}

	if !prod.HasStockFor(req.Quantity) {
		return nil, fmt.Errorf("%w: available %d", ErrInsufficientStock, prod.Quantity)
	}

	if userID != nil {
		if err := s.addToUserCart(*userID, &prod, req.Quantity); err != nil {
			return nil, err
		}
	} else {
		if err := s.addToGuestCart(ctx, sessionID, &prod, req.Quantity); err != nil {
			return nil, err
		}
	}

	return s.GetCart(ctx, userID, sessionID)
}

// UpdateCartItem updates quantity of a cart item. Quantity zero removes the item.
func (s *Service) UpdateCartItem(ctx context.Context, userID *uint, sessionID string, productID uint, req *UpdateCartItemRequest) (*CartResponse, error) {
	if req.Quantity < 0 {
		return nil, fmt.Errorf("quantity cannot be negative")
	}

	if req.Quantity > 0 {
		var prod product.Product
		if err := s.db.Where("id = ?", productID).First(&prod).Error; err != nil {
			return nil, ErrProductNotFound
		}
		if !prod.HasStockFor(req.Quantity) {
			return nil, fmt.Errorf("%w: available %d", ErrInsufficientStock, prod.Quantity)
		}
	}

	if userID != nil {
		if err := s.updateUserCartItem(*userID, productID, req.Quantity); err != nil {
			return nil, err
		}
	} else {
		if err := s.updateGuestCartItem(ctx, sessionID, productID, req.Quantity); err != nil {
			return nil, err
		}
	}

	return s.GetCart(ctx, userID, sessionID)
}

// RemoveFromCart removes an item from the cart
func (s *Service) RemoveFromCart(ctx context.Context, userID *uint, sessionID string, productID uint) (*CartResponse, error) {
	return s.UpdateCartItem(ctx, userID, sessionID, productID, &UpdateCartItemRequest{Quantity: 0})
}

// ClearCart removes all items from the cart
func (s *Service) ClearCart(ctx context.Context, userID *uint, sessionID string) error {
	if userID != nil {
		return s.db.Where("user_id = ?", *userID).Delete(&CartItem{}).Error
	}
	if sessionID == "" {
		return ErrSessionRequired
	}
	return s.redisClient.Del(ctx, guestCartKey(sessionID)).Err()
}

// GetCartItemCount returns the total quantity across all cart items
func (s *Service) GetCartItemCount(ctx context.Context, userID *uint, sessionID string) (int, error) {
	cartResponse, err := s.GetCart(ctx, userID, sessionID)
	if err != nil {
		return 0, nil // Treat a missing cart as empty
	}

	totalItems := 0
	for _, item := range cartResponse.Items {
		totalItems += item.Quantity
	}

	return totalItems, nil
}

// MergeGuestCartToUser folds the guest cart into the user's cart at login.
// Quantities for the same product are summed; new items are moved over; the
// guest cart is cleared afterwards. Merging an empty guest cart is a no-op,
// which makes repeated logins in the same browser session safe.
func (s *Service) MergeGuestCartToUser(ctx context.Context, userID uint, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	guestCart, err := s.getGuestCart(ctx, sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to load guest cart for merge")
		return fmt.Errorf("cart merge failed: %w", err)
	}
	if len(guestCart.Items) == 0 {
		return nil // No guest cart to merge
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, guestItem := range guestCart.Items {
			var existingItem CartItem
			result := tx.Where("user_id = ? AND product_id = ?", userID, guestItem.ProductID).First(&existingItem)

			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				newItem := CartItem{
					UserID:    &userID,
					ProductID: guestItem.ProductID,
					Quantity:  guestItem.Quantity,
					Price:     guestItem.Price,
				}
				if err := tx.Create(&newItem).Error; err != nil {
					return fmt.Errorf("failed to move guest item %d: %w", guestItem.ProductID, err)
				}
			} else if result.Error != nil {
				return fmt.Errorf("failed to look up cart item %d: %w", guestItem.ProductID, result.Error)
			} else {
				// Quantities are summed here; stock is validated downstream at checkout
				existingItem.Quantity += guestItem.Quantity
				if err := tx.Save(&existingItem).Error; err != nil {
					return fmt.Errorf("failed to merge cart item %d: %w", guestItem.ProductID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		// Leave the guest cart intact so a later retry can still merge it
		return fmt.Errorf("cart merge failed: %w", err)
	}

	return s.ClearCart(ctx, nil, sessionID)
}

// Private helper methods

func (s *Service) addToUserCart(userID uint, prod *product.Product, quantity int) error {
	var existingItem CartItem
	result := s.db.Where("user_id = ? AND product_id = ?", userID, prod.ID).First(&existingItem)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		newItem := CartItem{
			UserID:    &userID,
			ProductID: prod.ID,
			Quantity:  quantity,
			Price:     prod.Price,
		}
		return s.db.Create(&newItem).Error
	} else if result.Error != nil {
		return fmt.Errorf("failed to look up cart item: %w", result.Error)
	}

	newQuantity := existingItem.Quantity + quantity
	if !prod.HasStockFor(newQuantity) {
		return fmt.Errorf("%w: available %d", ErrInsufficientStock, prod.Quantity)
	}

	existingItem.Quantity = newQuantity
	existingItem.Price = prod.Price // Refresh price in case it changed
	return s.db.Save(&existingItem).Error
}

func (s *Service) addToGuestCart(ctx context.Context, sessionID string, prod *product.Product, quantity int) error {
	sessionCart, err := s.getGuestCart(ctx, sessionID)
	if err != nil {
		return err
	}

	itemExists := false
	for i := range sessionCart.Items {
		if sessionCart.Items[i].ProductID == prod.ID {
			newQuantity := sessionCart.Items[i].Quantity + quantity
			if !prod.HasStockFor(newQuantity) {
				return fmt.Errorf("%w: available %d", ErrInsufficientStock, prod.Quantity)
			}

			sessionCart.Items[i].Quantity = newQuantity
			sessionCart.Items[i].Price = prod.Price
			itemExists = true
			break
		}
	}

	if !itemExists {
		newItem := SessionCartItem{
			ProductID: prod.ID,
			Quantity:  quantity,
			Price:     prod.Price,
			AddedAt:   time.Now().UTC(),
		}
		sessionCart.Items = append(sessionCart.Items, newItem)
	}

	sessionCart.UpdatedAt = time.Now().UTC()
	return s.saveGuestCart(ctx, sessionID, sessionCart)
}

func (s *Service) updateUserCartItem(userID, productID uint, quantity int) error {
	if quantity == 0 {
		return s.db.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&CartItem{}).Error
	}
	result := s.db.Model(&CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", quantity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *Service) updateGuestCartItem(ctx context.Context, sessionID string, productID uint, quantity int) error {
	sessionCart, err := s.getGuestCart(ctx, sessionID)
	if err != nil {
		return err
	}

	itemFound := false
	for i := range sessionCart.Items {
		if sessionCart.Items[i].ProductID == productID {
			if quantity == 0 {
				sessionCart.Items = append(sessionCart.Items[:i], sessionCart.Items[i+1:]...)
			} else {
				sessionCart.Items[i].Quantity = quantity
			}
			itemFound = true
			break
		}
	}

	if !itemFound {
		return ErrItemNotFound
	}

	sessionCart.UpdatedAt = time.Now().UTC()
	return s.saveGuestCart(ctx, sessionID, sessionCart)
}

func guestCartKey(sessionID string) string {
	return fmt.Sprintf("cart:session:%s", sessionID)
}

func (s *Service) getGuestCart(ctx context.Context, sessionID string) (*SessionCart, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	cartData, err := s.redisClient.Get(ctx, guestCartKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		now := time.Now().UTC()
		return &SessionCart{
			SessionID: sessionID,
			Items:     []SessionCartItem{},
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(s.config.Cart.GuestCartTTL),
		}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load guest cart: %w", err)
	}

	var sessionCart SessionCart
	if err := json.Unmarshal([]byte(cartData), &sessionCart); err != nil {
		return nil, fmt.Errorf("failed to decode guest cart: %w", err)
	}

	return &sessionCart, nil
}

func (s *Service) saveGuestCart(ctx context.Context, sessionID string, cart *SessionCart) error {
	cartData, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode guest cart: %w", err)
	}

	// The TTL doubles as the stale guest cart cleanup
	return s.redisClient.Set(ctx, guestCartKey(sessionID), cartData, s.config.Cart.GuestCartTTL).Err()
}

func (s *Service) loadProductDetails(cartItems []CartItemResponse) error {
	for i := range cartItems {
		var prod product.Product
		err := s.db.Preload("Category").Where("id = ?", cartItems[i].ProductID).First(&prod).Error
		if err != nil {
			continue // Skip if product not found
		}
		cartItems[i].Product = &prod
	}

	return nil
}

func (s *Service) calculateTotals(cartItems []CartItemResponse) CartTotals {
	var totals CartTotals

	totals.ItemCount = len(cartItems)

	for _, item := range cartItems {
		totals.TotalQuantity += item.Quantity
		totals.SubTotal += item.Price * int64(item.Quantity)
	}

	// Tax, shipping and discounts are applied at checkout time
	totals.TotalAmount = totals.SubTotal + totals.TaxAmount + totals.ShippingCost - totals.DiscountAmount

	return totals
}
