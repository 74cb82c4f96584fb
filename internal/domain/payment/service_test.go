package payment

import (
	"context"
	"encoding/json"
	"fmt"
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
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/promotion"
	"github.com/pasargadprints/ecommerce-backend/internal/pkg/email"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
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
		&PaymentIntent{}, &WebhookEvent{},
	))

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := &config.Config{}
	cfg.External.Stripe.WebhookSecret = testSecret
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	invSvc := inventory.NewService(db, cfg)
	orderSvc := order.NewService(db, invSvc, log)
	promoSvc := promotion.NewService(db, redisClient)
	emailSvc := email.NewService(cfg, log)

	svc := NewService(db, redisClient, NewStripeClient("sk_test"), orderSvc, promoSvc, emailSvc, cfg, log)
	return svc, db
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

func seedIntent(t *testing.T, db *gorm.DB, sessionID string, items []SnapshotItem, total int64) *PaymentIntent {
	t.Helper()
	snapshot, err := json.Marshal(items)
	require.NoError(t, err)

	var subtotal int64
	for _, item := range items {
		subtotal += item.Price * int64(item.Quantity)
	}

	intent := &PaymentIntent{
		ProviderSessionID: sessionID,
		Email:             "buyer@example.com",
		Status:            IntentStatusPending,
		SubtotalAmount:    subtotal,
		TotalAmount:       total,
		Currency:          "USD",
		CartSnapshot:      string(snapshot),
	}
	require.NoError(t, db.Create(intent).Error)
	return intent
}

func completedSessionPayload(eventID, sessionID, paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":"checkout.session.completed","data":{"object":{"id":%q,"payment_intent":%q}}}`,
		eventID, sessionID, paymentID))
}

func TestHandleWebhook_CompletedSessionCreatesOrder(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	// 2 x $10 + 1 x $25 = $45
	pA := seedProduct(t, db, "POSTER", 1000, 10)
	pB := seedProduct(t, db, "STATUE", 2500, 10)
	seedIntent(t, db, "cs_45", []SnapshotItem{
		{ProductID: pA.ID, SKU: "POSTER", Name: "Poster", Quantity: 2, Price: 1000},
		{ProductID: pB.ID, SKU: "STATUE", Name: "Statue", Quantity: 1, Price: 2500},
	}, 4500)

	payload := completedSessionPayload("evt_1", "cs_45", "pi_45")
	header := SignPayload(payload, testSecret, time.Now())

	result, err := svc.HandleWebhook(ctx, payload, header)
	require.NoError(t, err)
	assert.Equal(t, EventOutcomeProcessed, result.Outcome)
	require.NotZero(t, result.OrderID)

	var ord order.Order
	require.NoError(t, db.Preload("Items").First(&ord, result.OrderID).Error)
	assert.Equal(t, int64(4500), ord.TotalAmount)
	assert.Equal(t, order.OrderStatusPaid, ord.Status)
	assert.Len(t, ord.Items, 2)

	var freshA, freshB product.Product
	require.NoError(t, db.First(&freshA, pA.ID).Error)
	require.NoError(t, db.First(&freshB, pB.ID).Error)
	assert.Equal(t, 8, freshA.Quantity)
	assert.Equal(t, 9, freshB.Quantity)

	var intent PaymentIntent
	require.NoError(t, db.Where("provider_session_id = ?", "cs_45").First(&intent).Error)
	assert.Equal(t, IntentStatusCompleted, intent.Status)
	assert.Equal(t, "pi_45", intent.ProviderPaymentID)
	assert.NotNil(t, intent.CompletedAt)
}

func TestHandleWebhook_DuplicateDeliveryCreatesOneOrder(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "MUG", 1000, 10)
	seedIntent(t, db, "cs_dup", []SnapshotItem{
		{ProductID: p.ID, SKU: "MUG", Name: "Mug", Quantity: 1, Price: 1000},
	}, 1000)

	payload := completedSessionPayload("evt_dup", "cs_dup", "pi_dup")
	header := SignPayload(payload, testSecret, time.Now())

	first, err := svc.HandleWebhook(ctx, payload, header)
	require.NoError(t, err)
	assert.Equal(t, EventOutcomeProcessed, first.Outcome)

	second, err := svc.HandleWebhook(ctx, payload, header)
	require.NoError(t, err)
	assert.Equal(t, EventOutcomeIgnored, second.Outcome)

	var orderCount int64
	require.NoError(t, db.Model(&order.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 1, orderCount)

	var fresh product.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	assert.Equal(t, 9, fresh.Quantity)
}

func TestHandleWebhook_InvalidSignatureNoWrites(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "VASE", 2000, 5)
	seedIntent(t, db, "cs_bad", []SnapshotItem{
		{ProductID: p.ID, SKU: "VASE", Name: "Vase", Quantity: 1, Price: 2000},
	}, 2000)

	payload := completedSessionPayload("evt_bad", "cs_bad", "pi_bad")
	header := SignPayload(payload, "whsec_wrong", time.Now())

	_, err := svc.HandleWebhook(ctx, payload, header)
	assert.ErrorIs(t, err, ErrBadSignature)

	var eventCount, orderCount int64
	require.NoError(t, db.Model(&WebhookEvent{}).Count(&eventCount).Error)
	require.NoError(t, db.Model(&order.Order{}).Count(&orderCount).Error)
	assert.Zero(t, eventCount)
	assert.Zero(t, orderCount)

	var fresh product.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	assert.Equal(t, 5, fresh.Quantity)
}

func TestHandleWebhook_ProcessingFailureReleasesEvent(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	// Intent references a session with no stored row
	payload := completedSessionPayload("evt_retry", "cs_missing", "pi_retry")
	header := SignPayload(payload, testSecret, time.Now())

	_, err := svc.HandleWebhook(ctx, payload, header)
	assert.ErrorIs(t, err, ErrIntentNotFound)

	// The event row is released so the provider retry can reprocess
	var eventCount int64
	require.NoError(t, db.Model(&WebhookEvent{}).Count(&eventCount).Error)
	assert.Zero(t, eventCount)
}

func TestHandleWebhook_PaymentFailedMarksIntent(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	intent := seedIntent(t, db, "cs_fail", []SnapshotItem{}, 1000)
	require.NoError(t, db.Model(intent).Update("provider_payment_id", "pi_fail").Error)

	payload := []byte(`{"id":"evt_fail","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_fail"}}}`)
	header := SignPayload(payload, testSecret, time.Now())

	result, err := svc.HandleWebhook(ctx, payload, header)
	require.NoError(t, err)
	assert.Equal(t, EventOutcomeProcessed, result.Outcome)

	var fresh PaymentIntent
	require.NoError(t, db.First(&fresh, intent.ID).Error)
	assert.Equal(t, IntentStatusFailed, fresh.Status)

	var orderCount int64
	require.NoError(t, db.Model(&order.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
}

func TestHandleWebhook_SessionExpiredMarksIntent(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	intent := seedIntent(t, db, "cs_exp", []SnapshotItem{}, 1000)

	payload := []byte(`{"id":"evt_exp","type":"checkout.session.expired","data":{"object":{"id":"cs_exp"}}}`)
	header := SignPayload(payload, testSecret, time.Now())

	result, err := svc.HandleWebhook(ctx, payload, header)
	require.NoError(t, err)
	assert.Equal(t, EventOutcomeProcessed, result.Outcome)

	var fresh PaymentIntent
	require.NoError(t, db.First(&fresh, intent.ID).Error)
	assert.Equal(t, IntentStatusExpired, fresh.Status)
}

func TestHandleWebhook_UnknownTypeAcknowledged(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	payload := []byte(`{"id":"evt_misc","type":"customer.created","data":{"object":{}}}`)
	header := SignPayload(payload, testSecret, time.Now())

	result, err := svc.HandleWebhook(ctx, payload, header)
	require.NoError(t, err)
	assert.Equal(t, EventOutcomeIgnored, result.Outcome)

	var record WebhookEvent
	require.NoError(t, db.Where("provider_event_id = ?", "evt_misc").First(&record).Error)
	assert.Equal(t, EventOutcomeIgnored, record.Outcome)
}

func TestHandleWebhook_OutcomeRecordFailureDoesNotFailDelivery(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "PLATE", 900, 5)
	seedIntent(t, db, "cs_outcome", []SnapshotItem{
		{ProductID: p.ID, SKU: "PLATE", Name: "Plate", Quantity: 1, Price: 900},
	}, 900)

	// Fail only the post-processing outcome update
	var armed bool
	err := db.Callback().Update().Before("gorm:update").Register("test:outcome_update_fails", func(tx *gorm.DB) {
		if armed && tx.Statement.Table == "webhook_events" {
			tx.AddError(fmt.Errorf("connection reset"))
		}
	})
	require.NoError(t, err)

	payload := completedSessionPayload("evt_outcome", "cs_outcome", "pi_outcome")
	header := SignPayload(payload, testSecret, time.Now())
	armed = true

	result, err := svc.HandleWebhook(ctx, payload, header)
	require.NoError(t, err)
	assert.Equal(t, EventOutcomeProcessed, result.Outcome)
	require.NotZero(t, result.OrderID)

	// The order stands even though the outcome column was not advanced
	armed = false
	var record WebhookEvent
	require.NoError(t, db.Where("provider_event_id = ?", "evt_outcome").First(&record).Error)
	assert.Equal(t, EventOutcomeReceived, record.Outcome)

	var orderCount int64
	require.NoError(t, db.Model(&order.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 1, orderCount)
}

func TestProcessCompletedSession_Idempotent(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "LAMP", 3000, 4)
	seedIntent(t, db, "cs_verify", []SnapshotItem{
		{ProductID: p.ID, SKU: "LAMP", Name: "Lamp", Quantity: 1, Price: 3000},
	}, 3000)

	orderID, err := svc.ProcessCompletedSession(ctx, "cs_verify", "pi_verify")
	require.NoError(t, err)
	require.NotZero(t, orderID)

	// Second call (webhook racing the success page) is a no-op
	again, err := svc.ProcessCompletedSession(ctx, "cs_verify", "pi_verify")
	require.NoError(t, err)
	assert.Zero(t, again)

	var orderCount int64
	require.NoError(t, db.Model(&order.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 1, orderCount)
}

func TestProcessCompletedSession_ConcurrentClaimCreatesOneOrder(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "FRAME", 1500, 6)
	seedIntent(t, db, "cs_race", []SnapshotItem{
		{ProductID: p.ID, SKU: "FRAME", Name: "Frame", Quantity: 1, Price: 1500},
	}, 1500)

	// Complete the intent out from under the materialization right after
	// it loads the pending row, the way a webhook delivery racing the
	// success-page verification does under read committed
	var interleaved bool
	err := db.Callback().Query().After("gorm:query").Register("test:interleaved_claim", func(tx *gorm.DB) {
		if interleaved || tx.Statement.Table != "payment_intents" {
			return
		}
		interleaved = true
		tx.Session(&gorm.Session{NewDB: true}).Model(&PaymentIntent{}).
			Where("provider_session_id = ?", "cs_race").
			Updates(map[string]interface{}{
				"status":              IntentStatusCompleted,
				"provider_payment_id": "pi_winner",
			})
	})
	require.NoError(t, err)

	orderID, err := svc.ProcessCompletedSession(ctx, "cs_race", "pi_loser")
	require.NoError(t, err)
	assert.Zero(t, orderID)
	require.True(t, interleaved)

	// The losing claim must not create a second order or touch stock
	var orderCount int64
	require.NoError(t, db.Model(&order.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	var fresh product.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	assert.Equal(t, 6, fresh.Quantity)

	var intent PaymentIntent
	require.NoError(t, db.Where("provider_session_id = ?", "cs_race").First(&intent).Error)
	assert.Equal(t, "pi_winner", intent.ProviderPaymentID)
}

func TestProcessCompletedSession_SettledIntentNotMaterialized(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "CLOCK", 2200, 3)
	intent := seedIntent(t, db, "cs_settled", []SnapshotItem{
		{ProductID: p.ID, SKU: "CLOCK", Name: "Clock", Quantity: 1, Price: 2200},
	}, 2200)
	require.NoError(t, db.Model(intent).Update("status", IntentStatusFailed).Error)

	orderID, err := svc.ProcessCompletedSession(ctx, "cs_settled", "pi_late")
	require.NoError(t, err)
	assert.Zero(t, orderID)

	var orderCount int64
	require.NoError(t, db.Model(&order.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	var freshProduct product.Product
	require.NoError(t, db.First(&freshProduct, p.ID).Error)
	assert.Equal(t, 3, freshProduct.Quantity)
}

func TestProcessCompletedSession_ClearsUserCart(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	p := seedProduct(t, db, "HOOK", 500, 10)
	userID := uint(11)
	require.NoError(t, db.Create(&cart.CartItem{UserID: &userID, ProductID: p.ID, Quantity: 2, Price: 500}).Error)

	snapshot, _ := json.Marshal([]SnapshotItem{{ProductID: p.ID, SKU: "HOOK", Name: "Hook", Quantity: 2, Price: 500}})
	require.NoError(t, db.Create(&PaymentIntent{
		ProviderSessionID: "cs_cart",
		UserID:            &userID,
		Email:             "buyer@example.com",
		Status:            IntentStatusPending,
		SubtotalAmount:    1000,
		TotalAmount:       1000,
		Currency:          "USD",
		CartSnapshot:      string(snapshot),
	}).Error)

	_, err := svc.ProcessCompletedSession(ctx, "cs_cart", "pi_cart")
	require.NoError(t, err)

	var remaining int64
	require.NoError(t, db.Model(&cart.CartItem{}).Where("user_id = ?", userID).Count(&remaining).Error)
	assert.Zero(t, remaining)
}
