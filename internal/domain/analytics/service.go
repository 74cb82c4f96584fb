// internal/domain/analytics/service.go
package analytics

import (
	"fmt"
	"time"

	"github.com/pasargadprints/ecommerce-backend/internal/domain/order"
	"gorm.io/gorm"
)

// Service computes admin dashboard aggregates over the orders tables
type Service struct {
	db *gorm.DB
}

// NewService creates a new analytics service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SalesSummary aggregates revenue over a period
type SalesSummary struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	OrderCount  int64     `json:"order_count"`
	Revenue     int64     `json:"revenue"` // In cents, paid orders only
	ItemsSold   int64     `json:"items_sold"`
	AvgOrderVal int64     `json:"avg_order_value"`
}

// TopProduct is one row of the best-sellers report
type TopProduct struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	UnitsSold int64  `json:"units_sold"`
	Revenue   int64  `json:"revenue"`
}

// Statuses that count toward revenue
var revenueStatuses = []order.OrderStatus{
	order.OrderStatusPaid,
	order.OrderStatusProcessing,
	order.OrderStatusShipped,
	order.OrderStatusDelivered,
}

// GetSalesSummary computes order and revenue totals for a window
func (s *Service) GetSalesSummary(from, to time.Time) (*SalesSummary, error) {
	summary := &SalesSummary{From: from, To: to}

	row := s.db.Model(&order.Order{}).
		Select("COUNT(*) AS order_count, COALESCE(SUM(total_amount), 0) AS revenue").
		Where("status IN ?", revenueStatuses).
		Where("created_at >= ? AND created_at < ?", from, to).
		Row()
	if err := row.Scan(&summary.OrderCount, &summary.Revenue); err != nil {
		return nil, fmt.Errorf("failed to aggregate sales: %w", err)
	}

	itemRow := s.db.Model(&order.OrderItem{}).
		Select("COALESCE(SUM(order_items.quantity), 0)").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status IN ?", revenueStatuses).
		Where("orders.created_at >= ? AND orders.created_at < ?", from, to).
		Row()
	if err := itemRow.Scan(&summary.ItemsSold); err != nil {
		return nil, fmt.Errorf("failed to aggregate items: %w", err)
	}

	if summary.OrderCount > 0 {
		summary.AvgOrderVal = summary.Revenue / summary.OrderCount
	}
	return summary, nil
}

// GetTopProducts returns the best sellers for a window
func (s *Service) GetTopProducts(from, to time.Time, limit int) ([]TopProduct, error) {
	if limit < 1 || limit > 50 {
		limit = 10
	}

	var results []TopProduct
	err := s.db.Model(&order.OrderItem{}).
		Select("order_items.product_id, order_items.name, order_items.sku, "+
			"SUM(order_items.quantity) AS units_sold, SUM(order_items.total_price) AS revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status IN ?", revenueStatuses).
		Where("orders.created_at >= ? AND orders.created_at < ?", from, to).
		Group("order_items.product_id, order_items.name, order_items.sku").
		Order("units_sold DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute top products: %w", err)
	}
	return results, nil
}
