// internal/domain/order/service.go
package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/pasargadprints/ecommerce-backend/internal/domain/inventory"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrCannotCancel      = errors.New("order cannot be cancelled in its current status")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// Service handles order business logic
type Service struct {
	db        *gorm.DB
	inventory *inventory.Service
	logger    *logrus.Logger
}

// NewService creates a new order service
func NewService(db *gorm.DB, inventoryService *inventory.Service, logger *logrus.Logger) *Service {
	return &Service{
		db:        db,
		inventory: inventoryService,
		logger:    logger,
	}
}

// ItemParams is one line of an order to create. Name, SKU and Price come
// from the payment intent snapshot, not the live catalog.
type ItemParams struct {
	ProductID uint
	SKU       string
	Name      string
	Quantity  int
	Price     int64
}

// CreateParams holds everything needed to materialize an order
type CreateParams struct {
	UserID          *uint
	SessionKey      string
	Email           string
	Items           []ItemParams
	SubtotalAmount  int64
	TaxAmount       int64
	ShippingAmount  int64
	DiscountAmount  int64
	TotalAmount     int64
	Currency        string
	PromoCode       string
	ShippingAddress Address
	BillingAddress  Address
	ShippingMethod  string
	PaymentMethod   string
	PaymentProvider string
	ProviderPayID   string
}

// CreateFromPayment materializes a paid order inside the caller's
// transaction. Stock is decremented per item with a guarded update; an
// insufficient stock failure aborts the whole transaction.
func (s *Service) CreateFromPayment(tx *gorm.DB, params *CreateParams) (*Order, error) {
	if len(params.Items) == 0 {
		return nil, fmt.Errorf("cannot create order with no items")
	}

	now := time.Now().UTC()
	newOrder := &Order{
		UserID:          params.UserID,
		SessionKey:      params.SessionKey,
		Email:           params.Email,
		Status:          OrderStatusPaid,
		PaymentStatus:   PaymentStatusPaid,
		SubtotalAmount:  params.SubtotalAmount,
		TaxAmount:       params.TaxAmount,
		ShippingAmount:  params.ShippingAmount,
		DiscountAmount:  params.DiscountAmount,
		TotalAmount:     params.TotalAmount,
		Currency:        params.Currency,
		PromoCode:       params.PromoCode,
		ShippingAddress: params.ShippingAddress,
		BillingAddress:  params.BillingAddress,
		ShippingMethod:  params.ShippingMethod,
		PaidAt:          &now,
		OrderNumber:     fmt.Sprintf("TMP-%d", now.UnixNano()), // Replaced once the ID is known
	}

	if err := tx.Create(newOrder).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	newOrder.OrderNumber = generateOrderNumber(newOrder.ID)
	if err := tx.Model(newOrder).Update("order_number", newOrder.OrderNumber).Error; err != nil {
		return nil, fmt.Errorf("failed to assign order number: %w", err)
	}

	for _, item := range params.Items {
		orderItem := OrderItem{
			OrderID:    newOrder.ID,
			ProductID:  item.ProductID,
			SKU:        item.SKU,
			Name:       item.Name,
			Quantity:   item.Quantity,
			Price:      item.Price,
			TotalPrice: item.Price * int64(item.Quantity),
		}
		if err := tx.Create(&orderItem).Error; err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		newOrder.Items = append(newOrder.Items, orderItem)

		if err := s.inventory.DecrementStock(tx, item.ProductID, item.Quantity, "order", newOrder.ID); err != nil {
			return nil, err
		}
	}

	payment := Payment{
		OrderID:           newOrder.ID,
		PaymentMethod:     params.PaymentMethod,
		PaymentProviderID: params.ProviderPayID,
		Amount:            params.TotalAmount,
		Currency:          params.Currency,
		Status:            PaymentStatusPaid,
		Gateway:           params.PaymentProvider,
		ProcessedAt:       &now,
	}
	if err := tx.Create(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	history := OrderStatusHistory{
		OrderID: newOrder.ID,
		Status:  OrderStatusPaid,
		Comment: "Order created from successful payment",
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to record status history: %w", err)
	}

	return newOrder, nil
}

// GetOrders lists a user's orders, newest first
func (s *Service) GetOrders(userID uint, page, limit int) ([]Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	query := s.db.Model(&Order{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []Order
	err := query.Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, total, nil
}

// GetOrder retrieves an order by ID. When userID is non-nil, the order must
// belong to that user.
func (s *Service) GetOrder(orderID uint, userID *uint) (*Order, error) {
	query := s.db.Preload("Items").Preload("Payments").Preload("StatusHistory").
		Where("id = ?", orderID)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var ord Order
	if err := query.First(&ord).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &ord, nil
}

// GetOrderByNumber retrieves an order by its public order number
func (s *Service) GetOrderByNumber(orderNumber string) (*Order, error) {
	var ord Order
	err := s.db.Preload("Items").Where("order_number = ?", orderNumber).First(&ord).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &ord, nil
}

// OrderExistsForProviderSession reports whether an order was already
// materialized for the given provider payment id.
func (s *Service) OrderExistsForProviderSession(tx *gorm.DB, providerPayID string) (bool, error) {
	var count int64
	err := tx.Model(&Payment{}).
		Where("payment_provider_id = ?", providerPayID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check existing payment: %w", err)
	}
	return count > 0, nil
}

// Allowed status transitions
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

func isValidTransition(from, to OrderStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves an order through its status machine (admin)
func (s *Service) UpdateStatus(orderID uint, newStatus OrderStatus, comment string, actorID uint) (*Order, error) {
	var ord Order
	if err := s.db.Where("id = ?", orderID).First(&ord).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !isValidTransition(ord.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ord.Status, newStatus)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"status": newStatus}
	switch newStatus {
	case OrderStatusShipped:
		updates["shipped_at"] = &now
	case OrderStatusDelivered:
		updates["delivered_at"] = &now
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ord).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(&OrderStatusHistory{
			OrderID:   ord.ID,
			Status:    newStatus,
			Comment:   comment,
			CreatedBy: actorID,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	ord.Status = newStatus
	return &ord, nil
}

// CancelOrder cancels an order and restores its stock
func (s *Service) CancelOrder(orderID uint, userID *uint, reason string) (*Order, error) {
	ord, err := s.GetOrder(orderID, userID)
	if err != nil {
		return nil, err
	}

	if !ord.CanBeCancelled() {
		return nil, ErrCannotCancel
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Order{}).Where("id = ?", ord.ID).
			Update("status", OrderStatusCancelled).Error; err != nil {
			return err
		}

		for _, item := range ord.Items {
			if err := s.inventory.RestoreStock(tx, item.ProductID, item.Quantity,
				inventory.ReasonCancel, "order", ord.ID); err != nil {
				return err
			}
		}

		var actor uint
		if userID != nil {
			actor = *userID
		}
		return tx.Create(&OrderStatusHistory{
			OrderID:   ord.ID,
			Status:    OrderStatusCancelled,
			Comment:   reason,
			CreatedBy: actor,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     ord.ID,
		"order_number": ord.OrderNumber,
	}).Info("Order cancelled")

	ord.Status = OrderStatusCancelled
	return ord, nil
}

// UpdateTracking sets shipment tracking details (admin)
func (s *Service) UpdateTracking(orderID uint, carrier, trackingNumber string) error {
	result := s.db.Model(&Order{}).Where("id = ?", orderID).Updates(map[string]interface{}{
		"shipping_carrier": carrier,
		"tracking_number":  trackingNumber,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAllOrders lists orders across all users (admin)
func (s *Service) ListAllOrders(page, limit int, status OrderStatus) ([]Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.Model(&Order{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []Order
	err := query.Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}
