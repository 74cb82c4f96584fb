package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/inventory"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/order"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/payment"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/promotion"
	"github.com/pasargadprints/ecommerce-backend/internal/pkg/email"
)

const webhookSecret = "whsec_handler_test"

func setupWebhookRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&product.Category{}, &product.Product{},
		&order.Order{}, &order.OrderItem{}, &order.Payment{}, &order.OrderStatusHistory{},
		&inventory.StockMovement{},
		&promotion.Promotion{},
		&payment.PaymentIntent{}, &payment.WebhookEvent{},
	))

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := &config.Config{}
	cfg.External.Stripe.WebhookSecret = webhookSecret
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	invSvc := inventory.NewService(db, cfg)
	orderSvc := order.NewService(db, invSvc, log)
	promoSvc := promotion.NewService(db, redisClient)
	emailSvc := email.NewService(cfg, log)
	paySvc := payment.NewService(db, redisClient, payment.NewStripeClient("sk_test"), orderSvc, promoSvc, emailSvc, cfg, log)

	handler := NewPaymentHandler(paySvc, cfg, log)

	router := gin.New()
	router.POST("/api/v1/webhooks/stripe", handler.StripeWebhook)
	return router, db
}

func seedPendingIntent(t *testing.T, db *gorm.DB, sessionID string, prod *product.Product, qty int) {
	t.Helper()
	snapshot, err := json.Marshal([]payment.SnapshotItem{
		{ProductID: prod.ID, SKU: prod.SKU, Name: prod.Name, Quantity: qty, Price: prod.Price},
	})
	require.NoError(t, err)

	require.NoError(t, db.Create(&payment.PaymentIntent{
		ProviderSessionID: sessionID,
		Email:             "buyer@example.com",
		Status:            payment.IntentStatusPending,
		SubtotalAmount:    prod.Price * int64(qty),
		TotalAmount:       prod.Price * int64(qty),
		Currency:          "USD",
		CartSnapshot:      string(snapshot),
	}).Error)
}

func postWebhook(router *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStripeWebhook_CompletedSession(t *testing.T) {
	router, db := setupWebhookRouter(t)

	cat := product.Category{Name: "Prints", Slug: "prints"}
	require.NoError(t, db.Create(&cat).Error)
	prod := product.Product{
		SKU: "VASE", Name: "Vase", Slug: "vase", Price: 3000,
		CategoryID: cat.ID, IsActive: true, TrackQuantity: true, Quantity: 5,
	}
	require.NoError(t, db.Create(&prod).Error)
	seedPendingIntent(t, db, "cs_http", &prod, 1)

	payload := []byte(`{"id":"evt_http","type":"checkout.session.completed","data":{"object":{"id":"cs_http","payment_intent":"pi_http"}}}`)
	signature := payment.SignPayload(payload, webhookSecret, time.Now())

	w := postWebhook(router, payload, signature)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "processed", body["status"])
	assert.NotZero(t, body["order_id"])

	var count int64
	db.Model(&order.Order{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestStripeWebhook_DuplicateDeliveryAcknowledged(t *testing.T) {
	router, db := setupWebhookRouter(t)

	cat := product.Category{Name: "Prints", Slug: "prints"}
	require.NoError(t, db.Create(&cat).Error)
	prod := product.Product{
		SKU: "BUST", Name: "Bust", Slug: "bust", Price: 2000,
		CategoryID: cat.ID, IsActive: true, TrackQuantity: true, Quantity: 5,
	}
	require.NoError(t, db.Create(&prod).Error)
	seedPendingIntent(t, db, "cs_dup", &prod, 1)

	payload := []byte(`{"id":"evt_dup","type":"checkout.session.completed","data":{"object":{"id":"cs_dup","payment_intent":"pi_dup"}}}`)

	first := postWebhook(router, payload, payment.SignPayload(payload, webhookSecret, time.Now()))
	require.Equal(t, http.StatusOK, first.Code)

	second := postWebhook(router, payload, payment.SignPayload(payload, webhookSecret, time.Now()))
	require.Equal(t, http.StatusOK, second.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "ignored", body["status"])

	var count int64
	db.Model(&order.Order{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestStripeWebhook_BadSignatureRejected(t *testing.T) {
	router, db := setupWebhookRouter(t)

	payload := []byte(`{"id":"evt_bad","type":"checkout.session.completed","data":{"object":{"id":"cs_bad"}}}`)

	w := postWebhook(router, payload, payment.SignPayload(payload, "whsec_wrong", time.Now()))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, CodeInvalidSignature, body["code"])

	var events int64
	db.Model(&payment.WebhookEvent{}).Count(&events)
	assert.Zero(t, events)
}

func TestStripeWebhook_MissingSignatureRejected(t *testing.T) {
	router, _ := setupWebhookRouter(t)

	payload := []byte(`{"id":"evt_nosig","type":"checkout.session.completed","data":{"object":{"id":"cs_nosig"}}}`)

	w := postWebhook(router, payload, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhook_ProcessingFailureReturns500(t *testing.T) {
	router, _ := setupWebhookRouter(t)

	// Session with no stored intent
	payload := []byte(`{"id":"evt_orphan","type":"checkout.session.completed","data":{"object":{"id":"cs_orphan","payment_intent":"pi_orphan"}}}`)

	w := postWebhook(router, payload, payment.SignPayload(payload, webhookSecret, time.Now()))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
