package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Promotion{}))

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	return NewService(db, redisClient), db
}

func seedPromotion(t *testing.T, db *gorm.DB, promo Promotion) *Promotion {
	t.Helper()
	require.NoError(t, db.Create(&promo).Error)
	return &promo
}

func TestValidate_PercentDiscount(t *testing.T) {
	svc, db := setupTestService(t)
	seedPromotion(t, db, Promotion{Code: "SAVE10", Type: TypePercent, Value: 10, IsActive: true})

	app, err := svc.Validate("save10", 5000)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", app.Code)
	assert.Equal(t, int64(500), app.DiscountAmount)
}

func TestValidate_FixedDiscountCappedAtSubtotal(t *testing.T) {
	svc, db := setupTestService(t)
	seedPromotion(t, db, Promotion{Code: "FLAT500", Type: TypeFixed, Value: 500, IsActive: true})

	app, err := svc.Validate("FLAT500", 300)
	require.NoError(t, err)
	assert.Equal(t, int64(300), app.DiscountAmount)
}

func TestValidate_MaxDiscountCap(t *testing.T) {
	svc, db := setupTestService(t)
	seedPromotion(t, db, Promotion{Code: "WELCOME20", Type: TypePercent, Value: 20, MaxDiscount: 1000, IsActive: true})

	app, err := svc.Validate("WELCOME20", 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), app.DiscountAmount)
}

func TestValidate_Failures(t *testing.T) {
	svc, db := setupTestService(t)
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	seedPromotion(t, db, Promotion{Code: "OFF", Type: TypePercent, Value: 5, IsActive: false})
	seedPromotion(t, db, Promotion{Code: "GONE", Type: TypePercent, Value: 5, IsActive: true, EndsAt: &past})
	seedPromotion(t, db, Promotion{Code: "SOON", Type: TypePercent, Value: 5, IsActive: true, StartsAt: &future})
	seedPromotion(t, db, Promotion{Code: "BIG", Type: TypePercent, Value: 5, IsActive: true, MinOrderAmount: 10000})
	seedPromotion(t, db, Promotion{Code: "USED", Type: TypePercent, Value: 5, IsActive: true, UsageLimit: 1, UsageCount: 1})

	cases := []struct {
		code string
		want error
	}{
		{"NOPE", ErrCodeNotFound},
		{"OFF", ErrCodeInactive},
		{"GONE", ErrCodeExpired},
		{"SOON", ErrCodeNotStarted},
		{"BIG", ErrMinOrderNotMet},
		{"USED", ErrUsageLimitReached},
	}
	for _, tc := range cases {
		_, err := svc.Validate(tc.code, 5000)
		assert.ErrorIs(t, err, tc.want, tc.code)
		assert.ErrorIs(t, err, ErrInvalidPromotion, tc.code)
	}
}

func TestApplyForOwner_RoundTrip(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	seedPromotion(t, db, Promotion{Code: "SAVE10", Type: TypePercent, Value: 10, IsActive: true})

	app, err := svc.ApplyForOwner(ctx, "user:42", "SAVE10", 4500)
	require.NoError(t, err)
	assert.Equal(t, int64(450), app.DiscountAmount)

	got, err := svc.GetApplied(ctx, "user:42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "SAVE10", got.Code)

	require.NoError(t, svc.RemoveApplied(ctx, "user:42"))
	got, err = svc.GetApplied(ctx, "user:42")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConsumeUsage(t *testing.T) {
	svc, db := setupTestService(t)
	promo := seedPromotion(t, db, Promotion{Code: "ONCE", Type: TypeFixed, Value: 100, IsActive: true, UsageLimit: 1})

	require.NoError(t, svc.ConsumeUsage(db, promo.ID))

	_, err := svc.Validate("ONCE", 1000)
	assert.ErrorIs(t, err, ErrUsageLimitReached)
}
