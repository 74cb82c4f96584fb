package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/cart"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/inventory"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/order"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/payment"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/promotion"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/shipping"
	"github.com/pasargadprints/ecommerce-backend/internal/pkg/email"
)

// stripeStub fakes the Stripe endpoints checkout touches
type stripeStub struct {
	server       *httptest.Server
	sessions     int
	lastForm     map[string][]string
	getResponses map[string]payment.CheckoutSession
	expired      []string
}

func newStripeStub(t *testing.T) *stripeStub {
	stub := &stripeStub{getResponses: map[string]payment.CheckoutSession{}}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/coupons":
			json.NewEncoder(w).Encode(map[string]string{"id": "coupon_test"})
		case r.Method == http.MethodPost && r.URL.Path == "/checkout/sessions":
			require.NoError(t, r.ParseForm())
			stub.lastForm = r.PostForm
			stub.sessions++
			json.NewEncoder(w).Encode(payment.CheckoutSession{
				ID:     fmt.Sprintf("cs_stub_%d", stub.sessions),
				URL:    "https://checkout.stripe.test/pay",
				Status: "open",
			})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/expire"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/checkout/sessions/"), "/expire")
			stub.expired = append(stub.expired, id)
			json.NewEncoder(w).Encode(payment.CheckoutSession{ID: id, Status: "expired"})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/checkout/sessions/"):
			id := strings.TrimPrefix(r.URL.Path, "/checkout/sessions/")
			session, ok := stub.getResponses[id]
			if !ok {
				http.Error(w, `{"error":{"message":"no such session"}}`, http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(session)
		default:
			http.Error(w, `{"error":{"message":"unexpected call"}}`, http.StatusBadRequest)
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func setupTestService(t *testing.T) (*Service, *gorm.DB, *stripeStub) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&product.Category{}, &product.Product{},
		&cart.CartItem{},
		&order.Order{}, &order.OrderItem{}, &order.Payment{}, &order.OrderStatusHistory{},
		&inventory.StockMovement{},
		&promotion.Promotion{},
		&payment.PaymentIntent{}, &payment.WebhookEvent{},
	))

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := &config.Config{}
	cfg.App.Currency = "USD"
	cfg.Cart.GuestCartTTL = 30 * 24 * time.Hour
	cfg.External.Stripe.SuccessURL = "https://shop.test/success"
	cfg.External.Stripe.CancelURL = "https://shop.test/cancel"

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	stub := newStripeStub(t)
	stripeClient := payment.NewStripeClientWithBaseURL("sk_test", stub.server.URL)

	cartSvc := cart.NewService(db, redisClient, cfg, log)
	promoSvc := promotion.NewService(db, redisClient)
	shippingSvc := shipping.NewService(cfg, log)
	invSvc := inventory.NewService(db, cfg)
	orderSvc := order.NewService(db, invSvc, log)
	emailSvc := email.NewService(cfg, log)
	paymentSvc := payment.NewService(db, redisClient, stripeClient, orderSvc, promoSvc, emailSvc, cfg, log)

	svc := NewService(db, cartSvc, promoSvc, shippingSvc, paymentSvc, cfg, log)
	return svc, db, stub
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, price int64, quantity int) *product.Product {
	t.Helper()
	cat := product.Category{Name: "Prints", Slug: "prints-" + sku}
	require.NoError(t, db.Create(&cat).Error)
	p := product.Product{
		SKU: sku, Name: "Product " + sku, Slug: "p-" + sku,
		Price: price, CategoryID: cat.ID, Weight: 100,
		IsActive: true, TrackQuantity: true, Quantity: quantity,
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func testAddress() order.Address {
	return order.Address{
		FirstName: "Ada", LastName: "Nguyen",
		AddressLine1: "1 Main St", City: "Portland",
		State: "OR", PostalCode: "97201", Country: "US",
	}
}

func TestCreateCheckoutSession_PricesCart(t *testing.T) {
	svc, db, stub := setupTestService(t)
	ctx := context.Background()

	// 2 x $10 + 1 x $25 = $45 subtotal
	pA := seedProduct(t, db, "POSTER", 1000, 10)
	pB := seedProduct(t, db, "STATUE", 2500, 10)
	userID := uint(1)
	require.NoError(t, db.Create(&cart.CartItem{UserID: &userID, ProductID: pA.ID, Quantity: 2, Price: 1000}).Error)
	require.NoError(t, db.Create(&cart.CartItem{UserID: &userID, ProductID: pB.ID, Quantity: 1, Price: 2500}).Error)

	resp, err := svc.CreateCheckoutSession(ctx, &userID, "", &CreateSessionRequest{
		Email:            "ada@example.com",
		ShippingAddress:  testAddress(),
		ShippingMethodID: "standard",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4500), resp.SubtotalAmount)
	assert.Equal(t, int64(360), resp.TaxAmount) // 8% of $45
	assert.Equal(t, int64(599), resp.ShippingAmount)
	assert.Equal(t, int64(4500+360+599), resp.TotalAmount)
	assert.Equal(t, "https://checkout.stripe.test/pay", resp.RedirectURL)

	// A pending intent with the frozen snapshot exists
	var intent payment.PaymentIntent
	require.NoError(t, db.Where("provider_session_id = ?", resp.SessionID).First(&intent).Error)
	assert.Equal(t, payment.IntentStatusPending, intent.Status)
	items, err := intent.Snapshot()
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// Line items for both products plus shipping and tax reached Stripe
	assert.Equal(t, []string{"Product POSTER"}, stub.lastForm["line_items[0][price_data][product_data][name]"])
	assert.Equal(t, []string{"2"}, stub.lastForm["line_items[0][quantity]"])
}

func TestCreateCheckoutSession_EmptyCart(t *testing.T) {
	svc, _, stub := setupTestService(t)
	userID := uint(2)

	_, err := svc.CreateCheckoutSession(context.Background(), &userID, "", &CreateSessionRequest{
		Email:            "ada@example.com",
		ShippingAddress:  testAddress(),
		ShippingMethodID: "standard",
	})
	assert.ErrorIs(t, err, ErrCartEmpty)
	assert.Zero(t, stub.sessions)
}

func TestCreateCheckoutSession_InsufficientStockLeavesNoIntent(t *testing.T) {
	svc, db, stub := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "RARE", 5000, 1)
	userID := uint(3)
	// Quantity exceeds live stock (stock dropped after the item was added)
	require.NoError(t, db.Create(&cart.CartItem{UserID: &userID, ProductID: p.ID, Quantity: 3, Price: 5000}).Error)

	_, err := svc.CreateCheckoutSession(ctx, &userID, "", &CreateSessionRequest{
		Email:            "ada@example.com",
		ShippingAddress:  testAddress(),
		ShippingMethodID: "standard",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cart.ErrInsufficientStock)

	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Product RARE", stockErr.ProductName)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	// No observable side effects: no intent rows, no provider call
	var intentCount int64
	require.NoError(t, db.Model(&payment.PaymentIntent{}).Count(&intentCount).Error)
	assert.Zero(t, intentCount)
	assert.Zero(t, stub.sessions)
}

func TestCreateCheckoutSession_AppliesPromoCode(t *testing.T) {
	svc, db, _ := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "LAMP", 10000, 10)
	userID := uint(4)
	require.NoError(t, db.Create(&cart.CartItem{UserID: &userID, ProductID: p.ID, Quantity: 1, Price: 10000}).Error)
	require.NoError(t, db.Create(&promotion.Promotion{
		Code: "SAVE10", Type: promotion.TypePercent, Value: 10, IsActive: true,
	}).Error)

	// Apply first, then check the remembered code flows into the session
	_, err := svc.ApplyPromoCode(ctx, &userID, "", "SAVE10")
	require.NoError(t, err)

	resp, err := svc.CreateCheckoutSession(ctx, &userID, "", &CreateSessionRequest{
		Email:            "ada@example.com",
		ShippingAddress:  testAddress(),
		ShippingMethodID: "standard",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), resp.DiscountAmount)
	// Tax on the discounted amount, free shipping over $100 threshold
	assert.Equal(t, int64(720), resp.TaxAmount)
	assert.Equal(t, int64(0), resp.ShippingAmount)
	assert.Equal(t, int64(10000+720-1000), resp.TotalAmount)

	var intent payment.PaymentIntent
	require.NoError(t, db.Where("promo_code = ?", "SAVE10").First(&intent).Error)
	require.NotNil(t, intent.PromotionID)
}

func TestCreateCheckoutSession_SnapshotUsesLivePrices(t *testing.T) {
	svc, db, _ := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "VASE", 2000, 10)
	userID := uint(5)
	// Cart captured the old price; catalog price changed since
	require.NoError(t, db.Create(&cart.CartItem{UserID: &userID, ProductID: p.ID, Quantity: 1, Price: 1500}).Error)

	resp, err := svc.CreateCheckoutSession(ctx, &userID, "", &CreateSessionRequest{
		Email:            "ada@example.com",
		ShippingAddress:  testAddress(),
		ShippingMethodID: "standard",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), resp.SubtotalAmount)
}

func TestCreateCheckoutSession_PersistFailureExpiresProviderSession(t *testing.T) {
	svc, db, stub := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "BOWL", 1200, 10)
	userID := uint(7)
	require.NoError(t, db.Create(&cart.CartItem{UserID: &userID, ProductID: p.ID, Quantity: 1, Price: 1200}).Error)

	// Collide with the id the stub will hand out so the intent insert fails
	require.NoError(t, db.Create(&payment.PaymentIntent{
		ProviderSessionID: "cs_stub_1",
		Email:             "other@example.com",
		Status:            payment.IntentStatusPending,
		Currency:          "USD",
		CartSnapshot:      "[]",
	}).Error)

	_, err := svc.CreateCheckoutSession(ctx, &userID, "", &CreateSessionRequest{
		Email:            "ada@example.com",
		ShippingAddress:  testAddress(),
		ShippingMethodID: "standard",
	})
	require.Error(t, err)

	// The unsaveable session was closed out at the provider
	assert.Equal(t, []string{"cs_stub_1"}, stub.expired)

	var intentCount int64
	require.NoError(t, db.Model(&payment.PaymentIntent{}).Count(&intentCount).Error)
	assert.EqualValues(t, 1, intentCount)
}

func TestVerifyCheckoutSession(t *testing.T) {
	svc, db, stub := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "MUG", 1000, 10)
	userID := uint(6)
	require.NoError(t, db.Create(&cart.CartItem{UserID: &userID, ProductID: p.ID, Quantity: 1, Price: 1000}).Error)

	created, err := svc.CreateCheckoutSession(ctx, &userID, "", &CreateSessionRequest{
		Email:            "ada@example.com",
		ShippingAddress:  testAddress(),
		ShippingMethodID: "standard",
	})
	require.NoError(t, err)

	// Still unpaid
	stub.getResponses[created.SessionID] = payment.CheckoutSession{
		ID: created.SessionID, Status: "open", PaymentStatus: "unpaid",
	}
	verify, err := svc.VerifyCheckoutSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "pending", verify.Status)
	assert.Zero(t, verify.OrderID)

	// Paid: the fallback materializes the order
	stub.getResponses[created.SessionID] = payment.CheckoutSession{
		ID: created.SessionID, Status: "complete", PaymentStatus: "paid", PaymentIntent: "pi_verify",
	}
	verify, err = svc.VerifyCheckoutSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "paid", verify.Status)
	assert.NotZero(t, verify.OrderID)

	var orderCount int64
	require.NoError(t, db.Model(&order.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 1, orderCount)
}
