package cart

import (
	"context"
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
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&product.Category{}, &product.Product{}, &CartItem{}))

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := &config.Config{
		Cart: config.CartConfig{
			GuestCartTTL:      30 * 24 * time.Hour,
			SessionCookieName: "cart_session",
		},
	}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return NewService(db, redisClient, cfg, log), db
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price int64, quantity int) *product.Product {
	t.Helper()

	cat := product.Category{Name: "3D Prints", Slug: "3d-prints-" + name}
	require.NoError(t, db.Create(&cat).Error)

	p := product.Product{
		SKU:           "SKU-" + name,
		Name:          name,
		Slug:          "slug-" + name,
		Price:         price,
		CategoryID:    cat.ID,
		IsActive:      true,
		TrackQuantity: true,
		Quantity:      quantity,
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func TestAddToCart_GuestThenGet(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "vase", 1500, 10)

	resp, err := svc.AddToCart(ctx, nil, "sess-1", &AddToCartRequest{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Items[0].Quantity)
	assert.Equal(t, int64(1500), resp.Items[0].Price)
	assert.Equal(t, int64(3000), resp.Totals.SubTotal)

	// Adding the same product again merges quantities into one line
	resp, err = svc.AddToCart(ctx, nil, "sess-1", &AddToCartRequest{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 5, resp.Items[0].Quantity)
	assert.Equal(t, int64(7500), resp.Totals.SubTotal)
}

func TestAddToCart_InsufficientStock(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "figurine", 2500, 3)

	_, err := svc.AddToCart(ctx, nil, "sess-2", &AddToCartRequest{ProductID: p.ID, Quantity: 5})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// Cumulative quantity across adds is also capped by stock
	_, err = svc.AddToCart(ctx, nil, "sess-2", &AddToCartRequest{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, nil, "sess-2", &AddToCartRequest{ProductID: p.ID, Quantity: 2})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAddToCart_InactiveProduct(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "retired", 1000, 10)
	require.NoError(t, db.Model(&product.Product{}).Where("id = ?", p.ID).Update("is_active", false).Error)

	_, err := svc.AddToCart(ctx, nil, "sess-3", &AddToCartRequest{ProductID: p.ID, Quantity: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestAddToCart_UserCartPersistsInDB(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "lamp", 4500, 8)
	userID := uint(7)

	_, err := svc.AddToCart(ctx, &userID, "", &AddToCartRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	var items []CartItem
	require.NoError(t, db.Where("user_id = ?", userID).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, p.ID, items[0].ProductID)
	assert.Equal(t, int64(4500), items[0].Price)
}

func TestUpdateCartItem_ZeroRemoves(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "bracket", 500, 20)

	_, err := svc.AddToCart(ctx, nil, "sess-4", &AddToCartRequest{ProductID: p.ID, Quantity: 4})
	require.NoError(t, err)

	resp, err := svc.UpdateCartItem(ctx, nil, "sess-4", p.ID, &UpdateCartItemRequest{Quantity: 0})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestUpdateCartItem_NotInCart(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "gear", 900, 20)

	_, err := svc.UpdateCartItem(ctx, nil, "sess-5", p.ID, &UpdateCartItemRequest{Quantity: 2})
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestMergeGuestCartToUser(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	pA := seedProduct(t, db, "planter", 2000, 50)
	pB := seedProduct(t, db, "stand", 1200, 50)
	userID := uint(42)

	// User already has 1x planter; guest has 2x planter and 1x stand
	_, err := svc.AddToCart(ctx, &userID, "", &AddToCartRequest{ProductID: pA.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, nil, "sess-merge", &AddToCartRequest{ProductID: pA.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, nil, "sess-merge", &AddToCartRequest{ProductID: pB.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, svc.MergeGuestCartToUser(ctx, userID, "sess-merge"))

	resp, err := svc.GetCart(ctx, &userID, "")
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)

	byProduct := map[uint]int{}
	for _, item := range resp.Items {
		byProduct[item.ProductID] = item.Quantity
	}
	assert.Equal(t, 3, byProduct[pA.ID])
	assert.Equal(t, 1, byProduct[pB.ID])

	// Guest cart is cleared after the merge
	guestResp, err := svc.GetCart(ctx, nil, "sess-merge")
	require.NoError(t, err)
	assert.Empty(t, guestResp.Items)
}

func TestMergeGuestCartToUser_Idempotent(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "hook", 300, 100)
	userID := uint(9)

	_, err := svc.AddToCart(ctx, nil, "sess-twice", &AddToCartRequest{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	require.NoError(t, svc.MergeGuestCartToUser(ctx, userID, "sess-twice"))
	require.NoError(t, svc.MergeGuestCartToUser(ctx, userID, "sess-twice"))

	resp, err := svc.GetCart(ctx, &userID, "")
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Items[0].Quantity)
}

func TestMergeGuestCartToUser_EmptySessionNoOp(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.MergeGuestCartToUser(ctx, 1, ""))
	assert.NoError(t, svc.MergeGuestCartToUser(ctx, 1, "never-seen"))
}

func TestMergeGuestCartToUser_LoadFailureSurfaced(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	userID := uint(14)

	// A corrupt guest cart must fail the merge, not vanish as a no-op
	require.NoError(t, svc.redisClient.Set(ctx, guestCartKey("sess-corrupt"), "{not json", 0).Err())

	err := svc.MergeGuestCartToUser(ctx, userID, "sess-corrupt")
	require.Error(t, err)

	var userItems int64
	require.NoError(t, db.Model(&CartItem{}).Where("user_id = ?", userID).Count(&userItems).Error)
	assert.Zero(t, userItems)

	// The broken key is left in place for inspection
	raw, err := svc.redisClient.Get(ctx, guestCartKey("sess-corrupt")).Result()
	require.NoError(t, err)
	assert.Equal(t, "{not json", raw)
}

func TestGetCartItemCount(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	pA := seedProduct(t, db, "clip", 200, 100)
	pB := seedProduct(t, db, "mount", 800, 100)

	_, err := svc.AddToCart(ctx, nil, "sess-count", &AddToCartRequest{ProductID: pA.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, nil, "sess-count", &AddToCartRequest{ProductID: pB.ID, Quantity: 2})
	require.NoError(t, err)

	count, err := svc.GetCartItemCount(ctx, nil, "sess-count")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestClearCart(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	p := seedProduct(t, db, "spool", 3000, 10)

	_, err := svc.AddToCart(ctx, nil, "sess-clear", &AddToCartRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.ClearCart(ctx, nil, "sess-clear"))

	resp, err := svc.GetCart(ctx, nil, "sess-clear")
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}
