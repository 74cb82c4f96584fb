// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"

	"github.com/pasargadprints/ecommerce-backend/internal/domain/cart"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/inventory"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/order"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/payment"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/promotion"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/user"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/wishlist"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, logger *logrus.Logger) *Migration {
	return &Migration{db: db, logger: logger}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.logger.Info("Running database auto-migrations")

	// Dependency order: base tables first
	models := []interface{}{
		&user.User{},
		&user.Address{},

		&product.Category{},
		&product.Product{},
		&product.ProductImage{},

		&inventory.StockMovement{},

		&cart.CartItem{},

		&promotion.Promotion{},

		&order.Order{},
		&order.OrderItem{},
		&order.Payment{},
		&order.OrderStatusHistory{},

		&payment.PaymentIntent{},
		&payment.WebhookEvent{},

		&wishlist.WishlistItem{},
	}

	for _, model := range models {
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates additional indexes beyond what the model tags declare
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		// User indexes
		"CREATE INDEX IF NOT EXISTS idx_users_email_active ON users(email, is_active)",

		// Product indexes
		"CREATE INDEX IF NOT EXISTS idx_products_category_active ON products(category_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_featured ON products(is_featured, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_price ON products(price)",

		// Cart indexes
		"CREATE INDEX IF NOT EXISTS idx_cart_items_user_product ON cart_items(user_id, product_id)",

		// Order indexes
		"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_email ON orders(email)",

		// Payment indexes, load-bearing for webhook idempotency lookups.
		// The unique provider id backstops single-materialization if the
		// intent claim is ever bypassed.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_provider_id ON payments(payment_provider_id) WHERE payment_provider_id <> ''",
		"CREATE INDEX IF NOT EXISTS idx_payment_intents_status ON payment_intents(status)",
		"CREATE INDEX IF NOT EXISTS idx_webhook_events_type ON webhook_events(event_type, received_at DESC)",

		// Promotion indexes
		"CREATE INDEX IF NOT EXISTS idx_promotions_active ON promotions(is_active, starts_at, ends_at)",

		// Address indexes
		"CREATE INDEX IF NOT EXISTS idx_addresses_user_type ON addresses(user_id, type)",
	}

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.logger.WithError(err).Warn("Failed to create index")
		}
	}
	return nil
}

// SeedInitialData inserts bootstrap data for a fresh database
func (m *Migration) SeedInitialData() error {
	if err := m.seedCategories(); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}
	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if err := m.seedPromotions(); err != nil {
		return fmt.Errorf("failed to seed promotions: %w", err)
	}
	return nil
}

func (m *Migration) seedCategories() error {
	categories := []product.Category{
		{Name: "Home Decor", Slug: "home-decor", Description: "Printed vases, planters and decor pieces", SortOrder: 1, IsActive: true},
		{Name: "Desk Accessories", Slug: "desk-accessories", Description: "Stands, organizers and cable management", SortOrder: 2, IsActive: true},
		{Name: "Figurines", Slug: "figurines", Description: "Collectible prints and miniatures", SortOrder: 3, IsActive: true},
		{Name: "Replacement Parts", Slug: "replacement-parts", Description: "Custom brackets, knobs and fittings", SortOrder: 4, IsActive: true},
	}

	for _, category := range categories {
		var existing product.Category
		if err := m.db.Where("slug = ?", category.Slug).First(&existing).Error; err != nil {
			if err := m.db.Create(&category).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Migration) seedAdminUser() error {
	var existing user.User
	if err := m.db.Where("is_admin = ?", true).First(&existing).Error; err == nil {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("ChangeMe1!"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := user.User{
		Email:         "admin@pasargadprints.com",
		Password:      string(hashedPassword),
		FirstName:     "Store",
		LastName:      "Admin",
		IsActive:      true,
		IsAdmin:       true,
		EmailVerified: true,
	}
	if err := m.db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	m.logger.WithField("email", admin.Email).
		Warn("Created default admin user, change its password before going live")
	return nil
}

func (m *Migration) seedPromotions() error {
	promos := []promotion.Promotion{
		{Code: "WELCOME10", Description: "10% off your first order", Type: promotion.TypePercent, Value: 10, IsActive: true},
		{Code: "FREESHIP50", Description: "$5 off orders over $50", Type: promotion.TypeFixed, Value: 500, MinOrderAmount: 5000, IsActive: true},
	}

	for _, promo := range promos {
		var existing promotion.Promotion
		if err := m.db.Where("code = ?", promo.Code).First(&existing).Error; err != nil {
			if err := m.db.Create(&promo).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
