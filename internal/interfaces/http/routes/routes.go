// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/analytics"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/cart"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/checkout"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/inventory"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/order"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/payment"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/promotion"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/shipping"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/user"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/wishlist"
	"github.com/pasargadprints/ecommerce-backend/internal/interfaces/http/handlers"
	"github.com/pasargadprints/ecommerce-backend/internal/interfaces/http/middleware"
	"github.com/pasargadprints/ecommerce-backend/internal/pkg/email"
	"github.com/pasargadprints/ecommerce-backend/internal/pkg/pdf"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SetupRoutes builds the service graph and registers all API routes
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config, logger *logrus.Logger) {
	// Services, in dependency order
	emailService := email.NewService(cfg, logger)
	productService := product.NewService(db, cfg)
	inventoryService := inventory.NewService(db, cfg)
	cartService := cart.NewService(db, redisClient, cfg, logger)
	promotionService := promotion.NewService(db, redisClient)
	shippingService := shipping.NewService(cfg, logger)
	userService := user.NewService(db, cfg, logger)
	orderService := order.NewService(db, inventoryService, logger)
	stripeClient := payment.NewStripeClient(cfg.External.Stripe.SecretKey)
	paymentService := payment.NewService(db, redisClient, stripeClient, orderService, promotionService, emailService, cfg, logger)
	checkoutService := checkout.NewService(db, cartService, promotionService, shippingService, paymentService, cfg, logger)
	wishlistService := wishlist.NewService(db, cartService)
	analyticsService := analytics.NewService(db)
	pdfService := pdf.NewService(cfg)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, cartService, cfg, logger)
	addressHandler := handlers.NewAddressHandler(userService, cfg)
	productHandler := handlers.NewProductHandler(productService, inventoryService, cfg)
	cartHandler := handlers.NewCartHandler(cartService, cfg)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, cfg)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg, logger)
	orderHandler := handlers.NewOrderHandler(orderService, cfg)
	invoiceHandler := handlers.NewInvoiceHandler(orderService, pdfService, cfg)
	wishlistHandler := handlers.NewWishlistHandler(wishlistService, cfg)
	promotionHandler := handlers.NewPromotionHandler(promotionService, cfg)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, cfg)

	// Authentication
	auth := rg.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)

		protected := auth.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			protected.POST("/logout", authHandler.Logout)
			protected.GET("/profile", authHandler.GetProfile)
			protected.PUT("/profile", authHandler.UpdateProfile)
			protected.PUT("/password", authHandler.ChangePassword)
		}
	}

	// Address book
	users := rg.Group("/users")
	users.Use(middleware.AuthMiddleware(cfg))
	{
		users.GET("/addresses", addressHandler.GetAddresses)
		users.POST("/addresses", addressHandler.CreateAddress)
		users.PUT("/addresses/:id", addressHandler.UpdateAddress)
		users.DELETE("/addresses/:id", addressHandler.DeleteAddress)
	}

	// Catalog
	products := rg.Group("/products")
	products.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		products.GET("", productHandler.GetProducts)
		products.GET("/categories", productHandler.GetCategories)
		products.GET("/slug/:slug", productHandler.GetProductBySlug)
		products.GET("/:id", productHandler.GetProduct)
	}

	// Cart, shared by guests and authenticated users
	cartGroup := rg.Group("/cart")
	cartGroup.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		cartGroup.GET("", cartHandler.GetCart)
		cartGroup.DELETE("", cartHandler.ClearCart)
		cartGroup.GET("/count", cartHandler.GetCartCount)
		cartGroup.POST("/items", cartHandler.AddToCart)
		cartGroup.PUT("/items/:id", cartHandler.UpdateCartItem)
		cartGroup.DELETE("/items/:id", cartHandler.RemoveFromCart)
	}
	rg.POST("/cart/merge", middleware.AuthMiddleware(cfg), cartHandler.MergeGuestCart)

	// Checkout, guests check out with an email address
	checkoutGroup := rg.Group("/checkout")
	checkoutGroup.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		checkoutGroup.POST("/session", checkoutHandler.CreateSession)
		checkoutGroup.GET("/verify", checkoutHandler.VerifySession)
		checkoutGroup.POST("/shipping-methods", checkoutHandler.GetShippingMethods)
		checkoutGroup.POST("/promo", checkoutHandler.ApplyPromoCode)
		checkoutGroup.DELETE("/promo", checkoutHandler.RemovePromoCode)
	}

	// Provider callbacks, signature-verified rather than JWT-authenticated
	rg.POST("/webhooks/stripe", paymentHandler.StripeWebhook)

	// Orders
	orders := rg.Group("/orders")
	orders.Use(middleware.AuthMiddleware(cfg))
	{
		orders.GET("", orderHandler.ListOrders)
		orders.GET("/:id", orderHandler.GetOrder)
		orders.PUT("/:id/cancel", orderHandler.CancelOrder)
		orders.GET("/:id/invoice", invoiceHandler.GenerateInvoice)
	}

	// Wishlist
	wishlistGroup := rg.Group("/wishlist")
	wishlistGroup.Use(middleware.AuthMiddleware(cfg))
	{
		wishlistGroup.GET("", wishlistHandler.GetWishlist)
		wishlistGroup.POST("/items", wishlistHandler.AddItem)
		wishlistGroup.DELETE("/items/:id", wishlistHandler.RemoveItem)
		wishlistGroup.POST("/items/:id/move-to-cart", wishlistHandler.MoveToCart)
	}

	// Admin
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.AdminMiddleware())
	{
		adminProducts := admin.Group("/products")
		{
			adminProducts.POST("", productHandler.AdminCreateProduct)
			adminProducts.GET("/low-stock", productHandler.AdminGetLowStock)
			adminProducts.PUT("/:id", productHandler.AdminUpdateProduct)
			adminProducts.DELETE("/:id", productHandler.AdminDeleteProduct)
			adminProducts.PUT("/:id/stock", productHandler.AdminAdjustStock)
			adminProducts.GET("/:id/movements", productHandler.AdminGetStockMovements)
		}

		adminOrders := admin.Group("/orders")
		{
			adminOrders.GET("", orderHandler.AdminListOrders)
			adminOrders.GET("/:id", orderHandler.AdminGetOrder)
			adminOrders.PUT("/:id/status", orderHandler.AdminUpdateStatus)
			adminOrders.PUT("/:id/tracking", orderHandler.AdminUpdateTracking)
		}

		adminPromotions := admin.Group("/promotions")
		{
			adminPromotions.GET("", promotionHandler.AdminListPromotions)
			adminPromotions.POST("", promotionHandler.AdminCreatePromotion)
			adminPromotions.PUT("/:id/deactivate", promotionHandler.AdminDeactivatePromotion)
		}

		adminAnalytics := admin.Group("/analytics")
		{
			adminAnalytics.GET("/sales", analyticsHandler.GetSalesSummary)
			adminAnalytics.GET("/top-products", analyticsHandler.GetTopProducts)
		}
	}
}
