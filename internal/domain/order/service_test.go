package order

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/inventory"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&product.Category{}, &product.Product{},
		&Order{}, &OrderItem{}, &Payment{}, &OrderStatusHistory{},
		&inventory.StockMovement{},
	))

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	invSvc := inventory.NewService(db, &config.Config{})
	return NewService(db, invSvc, log), db
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, price int64, quantity int) *product.Product {
	t.Helper()
	cat := product.Category{Name: "Prints", Slug: "prints-" + sku}
	require.NoError(t, db.Create(&cat).Error)
	p := product.Product{
		SKU: sku, Name: "Product " + sku, Slug: "p-" + sku,
		Price: price, CategoryID: cat.ID,
		IsActive: true, TrackQuantity: true, Quantity: quantity,
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func createPaidOrder(t *testing.T, svc *Service, db *gorm.DB, params *CreateParams) *Order {
	t.Helper()
	var created *Order
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = svc.CreateFromPayment(tx, params)
		return err
	})
	require.NoError(t, err)
	return created
}

func TestCreateFromPayment(t *testing.T) {
	svc, db := setupTestService(t)
	pA := seedProduct(t, db, "MUG", 1000, 10)
	pB := seedProduct(t, db, "VASE", 2500, 5)
	userID := uint(3)

	created := createPaidOrder(t, svc, db, &CreateParams{
		UserID: &userID,
		Email:  "buyer@example.com",
		Items: []ItemParams{
			{ProductID: pA.ID, SKU: "MUG", Name: "Mug", Quantity: 2, Price: 1000},
			{ProductID: pB.ID, SKU: "VASE", Name: "Vase", Quantity: 1, Price: 2500},
		},
		SubtotalAmount:  4500,
		TotalAmount:     4500,
		Currency:        "USD",
		PaymentMethod:   "card",
		PaymentProvider: "stripe",
		ProviderPayID:   "pi_test_1",
	})

	assert.Equal(t, OrderStatusPaid, created.Status)
	assert.Equal(t, PaymentStatusPaid, created.PaymentStatus)
	assert.Regexp(t, `^ORD-\d{8}-\d{5}$`, created.OrderNumber)
	assert.Equal(t, int64(4500), created.TotalAmount)
	assert.NotNil(t, created.PaidAt)

	// Stock decremented per line
	var freshA, freshB product.Product
	require.NoError(t, db.First(&freshA, pA.ID).Error)
	require.NoError(t, db.First(&freshB, pB.ID).Error)
	assert.Equal(t, 8, freshA.Quantity)
	assert.Equal(t, 4, freshB.Quantity)

	// A payment record exists for the provider id
	exists, err := svc.OrderExistsForProviderSession(db, "pi_test_1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateFromPayment_InsufficientStockAborts(t *testing.T) {
	svc, db := setupTestService(t)
	p := seedProduct(t, db, "RARE", 5000, 1)
	userID := uint(4)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.CreateFromPayment(tx, &CreateParams{
			UserID: &userID,
			Email:  "buyer@example.com",
			Items: []ItemParams{
				{ProductID: p.ID, SKU: "RARE", Name: "Rare", Quantity: 3, Price: 5000},
			},
			SubtotalAmount: 15000,
			TotalAmount:    15000,
			Currency:       "USD",
		})
		return err
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// The whole transaction rolled back: no order, stock untouched
	var count int64
	require.NoError(t, db.Model(&Order{}).Count(&count).Error)
	assert.Zero(t, count)
	var fresh product.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	assert.Equal(t, 1, fresh.Quantity)
}

func TestOrderItemPricesAreSnapshots(t *testing.T) {
	svc, db := setupTestService(t)
	p := seedProduct(t, db, "LAMP", 2000, 10)
	userID := uint(5)

	created := createPaidOrder(t, svc, db, &CreateParams{
		UserID: &userID,
		Email:  "buyer@example.com",
		Items: []ItemParams{
			{ProductID: p.ID, SKU: "LAMP", Name: "Lamp", Quantity: 1, Price: 2000},
		},
		SubtotalAmount: 2000,
		TotalAmount:    2000,
		Currency:       "USD",
	})

	// Later catalog price changes do not touch the order
	require.NoError(t, db.Model(&product.Product{}).Where("id = ?", p.ID).Update("price", 9900).Error)

	loaded, err := svc.GetOrder(created.ID, &userID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, int64(2000), loaded.Items[0].Price)
	assert.Equal(t, int64(2000), loaded.TotalAmount)
}

func TestGetOrder_ScopedToUser(t *testing.T) {
	svc, db := setupTestService(t)
	p := seedProduct(t, db, "CLIP", 500, 10)
	owner := uint(1)
	stranger := uint(2)

	created := createPaidOrder(t, svc, db, &CreateParams{
		UserID:         &owner,
		Email:          "owner@example.com",
		Items:          []ItemParams{{ProductID: p.ID, SKU: "CLIP", Name: "Clip", Quantity: 1, Price: 500}},
		SubtotalAmount: 500, TotalAmount: 500, Currency: "USD",
	})

	_, err := svc.GetOrder(created.ID, &stranger)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.GetOrder(created.ID, nil) // Admin access, no scoping
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestStatusTransitions(t *testing.T) {
	svc, db := setupTestService(t)
	p := seedProduct(t, db, "HOOK", 300, 10)
	userID := uint(6)

	created := createPaidOrder(t, svc, db, &CreateParams{
		UserID:         &userID,
		Email:          "buyer@example.com",
		Items:          []ItemParams{{ProductID: p.ID, SKU: "HOOK", Name: "Hook", Quantity: 1, Price: 300}},
		SubtotalAmount: 300, TotalAmount: 300, Currency: "USD",
	})

	// paid -> delivered skips shipped and is rejected
	_, err := svc.UpdateStatus(created.ID, OrderStatusDelivered, "", 99)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	for _, next := range []OrderStatus{OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered} {
		_, err := svc.UpdateStatus(created.ID, next, "", 99)
		require.NoError(t, err)
	}

	loaded, err := svc.GetOrder(created.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusDelivered, loaded.Status)
	assert.NotNil(t, loaded.ShippedAt)
	assert.NotNil(t, loaded.DeliveredAt)
	assert.GreaterOrEqual(t, len(loaded.StatusHistory), 4)
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	svc, db := setupTestService(t)
	p := seedProduct(t, db, "GEAR", 900, 10)
	userID := uint(7)

	created := createPaidOrder(t, svc, db, &CreateParams{
		UserID:         &userID,
		Email:          "buyer@example.com",
		Items:          []ItemParams{{ProductID: p.ID, SKU: "GEAR", Name: "Gear", Quantity: 4, Price: 900}},
		SubtotalAmount: 3600, TotalAmount: 3600, Currency: "USD",
	})

	var afterOrder product.Product
	require.NoError(t, db.First(&afterOrder, p.ID).Error)
	require.Equal(t, 6, afterOrder.Quantity)

	cancelled, err := svc.CancelOrder(created.ID, &userID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, cancelled.Status)

	var afterCancel product.Product
	require.NoError(t, db.First(&afterCancel, p.ID).Error)
	assert.Equal(t, 10, afterCancel.Quantity)

	// Cancelling again is rejected
	_, err = svc.CancelOrder(created.ID, &userID, "again")
	assert.ErrorIs(t, err, ErrCannotCancel)
}
