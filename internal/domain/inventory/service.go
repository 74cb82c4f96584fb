// internal/domain/inventory/service.go
package inventory

import (
	"errors"
	"fmt"

	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"gorm.io/gorm"
)

// ErrInsufficientStock is returned when a guarded decrement cannot be applied.
var ErrInsufficientStock = errors.New("insufficient stock")

// Service handles stock level changes and their audit trail
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new inventory service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// DecrementStock decrements a product's stock inside the given transaction.
// The decrement is guarded: the UPDATE only applies when enough stock remains,
// so two concurrent checkouts of the same low-stock item cannot both succeed.
func (s *Service) DecrementStock(tx *gorm.DB, productID uint, quantity int, referenceType string, referenceID uint) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	var prod product.Product
	if err := tx.Select("id", "quantity", "track_quantity").First(&prod, productID).Error; err != nil {
		return fmt.Errorf("failed to load product %d: %w", productID, err)
	}

	if !prod.TrackQuantity {
		return nil
	}

	result := tx.Model(&product.Product{}).
		Where("id = ? AND quantity >= ?", productID, quantity).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", quantity))
	if result.Error != nil {
		return fmt.Errorf("failed to decrement stock for product %d: %w", productID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("product %d: %w", productID, ErrInsufficientStock)
	}

	movement := StockMovement{
		ProductID:        productID,
		MovementType:     MovementTypeOutbound,
		Reason:           ReasonSale,
		Quantity:         quantity,
		PreviousQuantity: prod.Quantity,
		NewQuantity:      prod.Quantity - quantity,
		ReferenceType:    referenceType,
		ReferenceID:      referenceID,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}

	return nil
}

// RestoreStock returns stock to a product, e.g. when an order is cancelled.
func (s *Service) RestoreStock(tx *gorm.DB, productID uint, quantity int, reason MovementReason, referenceType string, referenceID uint) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	var prod product.Product
	if err := tx.Select("id", "quantity", "track_quantity").First(&prod, productID).Error; err != nil {
		return fmt.Errorf("failed to load product %d: %w", productID, err)
	}

	if !prod.TrackQuantity {
		return nil
	}

	result := tx.Model(&product.Product{}).
		Where("id = ?", productID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity))
	if result.Error != nil {
		return fmt.Errorf("failed to restore stock for product %d: %w", productID, result.Error)
	}

	movement := StockMovement{
		ProductID:        productID,
		MovementType:     MovementTypeInbound,
		Reason:           reason,
		Quantity:         quantity,
		PreviousQuantity: prod.Quantity,
		NewQuantity:      prod.Quantity + quantity,
		ReferenceType:    referenceType,
		ReferenceID:      referenceID,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}

	return nil
}

// AdjustStock sets a product's stock to an absolute level (admin operation).
func (s *Service) AdjustStock(productID uint, newQuantity int, notes string, adjustedBy uint) (*StockMovement, error) {
	if newQuantity < 0 {
		return nil, fmt.Errorf("stock level cannot be negative")
	}

	var movement *StockMovement
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var prod product.Product
		if err := tx.Select("id", "quantity").First(&prod, productID).Error; err != nil {
			return fmt.Errorf("failed to load product %d: %w", productID, err)
		}

		if err := tx.Model(&product.Product{}).
			Where("id = ?", productID).
			UpdateColumn("quantity", newQuantity).Error; err != nil {
			return fmt.Errorf("failed to adjust stock: %w", err)
		}

		movementType := MovementTypeInbound
		delta := newQuantity - prod.Quantity
		if delta < 0 {
			movementType = MovementTypeOutbound
			delta = -delta
		}

		movement = &StockMovement{
			ProductID:        productID,
			MovementType:     movementType,
			Reason:           ReasonAdjustment,
			Quantity:         delta,
			PreviousQuantity: prod.Quantity,
			NewQuantity:      newQuantity,
			ReferenceType:    "admin",
			ReferenceID:      adjustedBy,
			Notes:            notes,
		}
		return tx.Create(movement).Error
	})
	if err != nil {
		return nil, err
	}

	return movement, nil
}

// GetMovements retrieves the movement history for a product
func (s *Service) GetMovements(productID uint, limit int) ([]StockMovement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var movements []StockMovement
	err := s.db.Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(limit).
		Find(&movements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve stock movements: %w", err)
	}

	return movements, nil
}

// GetLowStockProducts lists active products at or below their low-stock threshold
func (s *Service) GetLowStockProducts() ([]product.Product, error) {
	var products []product.Product
	err := s.db.Where("is_active = ? AND track_quantity = ? AND quantity <= low_stock_threshold", true, true).
		Order("quantity ASC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve low stock products: %w", err)
	}

	return products, nil
}
