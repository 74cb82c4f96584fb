// internal/domain/wishlist/service.go
package wishlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/pasargadprints/ecommerce-backend/internal/domain/cart"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"gorm.io/gorm"
)

var (
	ErrItemNotFound  = errors.New("item not in wishlist")
	ErrAlreadyExists = errors.New("item already in wishlist")
)

// Service handles wishlist operations
type Service struct {
	db          *gorm.DB
	cartService *cart.Service
}

// NewService creates a new wishlist service
func NewService(db *gorm.DB, cartService *cart.Service) *Service {
	return &Service{db: db, cartService: cartService}
}

// GetWishlist lists a user's saved products
func (s *Service) GetWishlist(userID uint) ([]WishlistItem, error) {
	var items []WishlistItem
	err := s.db.Preload("Product").Preload("Product.Category").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load wishlist: %w", err)
	}
	return items, nil
}

// AddItem saves a product to the wishlist
func (s *Service) AddItem(userID, productID uint) (*WishlistItem, error) {
	var prod product.Product
	if err := s.db.Where("id = ? AND is_active = ?", productID, true).First(&prod).Error; err != nil {
		return nil, product.ErrNotFound
	}

	var existing WishlistItem
	err := s.db.Where("user_id = ? AND product_id = ?", userID, productID).First(&existing).Error
	if err == nil {
		return nil, ErrAlreadyExists
	}

	item := WishlistItem{UserID: userID, ProductID: productID}
	if err := s.db.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to add wishlist item: %w", err)
	}
	item.Product = &prod
	return &item, nil
}

// RemoveItem drops a product from the wishlist
func (s *Service) RemoveItem(userID, productID uint) error {
	result := s.db.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&WishlistItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// MoveToCart adds the wishlisted product to the user's cart and removes it
// from the wishlist on success.
func (s *Service) MoveToCart(ctx context.Context, userID, productID uint) error {
	var item WishlistItem
	if err := s.db.Where("user_id = ? AND product_id = ?", userID, productID).First(&item).Error; err != nil {
		return ErrItemNotFound
	}

	_, err := s.cartService.AddToCart(ctx, &userID, "", &cart.AddToCartRequest{
		ProductID: productID,
		Quantity:  1,
	})
	if err != nil {
		return err
	}

	return s.RemoveItem(userID, productID)
}
