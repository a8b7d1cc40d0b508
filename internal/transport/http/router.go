package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/pufftown/delivery-backend/internal/handlers"
	"github.com/pufftown/delivery-backend/internal/jwtauth"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	CartHandler    *handlers.CartHandler
	OrderHandler   *handlers.OrderHandler
	AdminHandler   *handlers.AdminHandler
	ReviewsHandler *handlers.ReviewsHandler
	JWTSecret      []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Signup)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.Logout)
	v1.POST("/password/forgot", d.AuthHandler.ForgotPassword)
	v1.POST("/password/reset", d.AuthHandler.ResetPassword)
	v1.POST("/password/setup", d.AuthHandler.SetupPassword)
	v1.POST("/admin/login", d.AuthHandler.AdminLogin)

	v1.GET("/products", d.ProductHandler.GetProducts)
	v1.GET("/products/slideshow", d.ProductHandler.Slideshow)
	v1.GET("/products/:id", d.ProductHandler.GetProduct)
	v1.GET("/search", d.ProductHandler.SearchProducts)
	v1.GET("/reviews", d.ReviewsHandler.GetReviews)
	v1.GET("/delivery-windows", d.OrderHandler.ListWindows)

	me := v1.Group("/me", jwtauth.RequireCustomer(d.JWTSecret))

	me.GET("/profile", d.AuthHandler.Profile)
	me.PATCH("/profile", d.AuthHandler.UpdateProfile)

	me.GET("/cart", d.CartHandler.GetCart)
	me.POST("/cart", d.CartHandler.AddToCart)
	me.PATCH("/cart/:id", d.CartHandler.UpdateItem)
	me.DELETE("/cart/:id", d.CartHandler.RemoveItem)
	me.DELETE("/cart", d.CartHandler.ClearCart)

	me.POST("/promo/validate", d.OrderHandler.ValidatePromo)
	me.POST("/checkout", d.OrderHandler.Checkout)
	me.GET("/orders", d.OrderHandler.ListOrders)
	me.GET("/orders/:id", d.OrderHandler.GetOrder)
	me.POST("/orders/:id/reorder", d.OrderHandler.Reorder)

	admin := v1.Group("/admin", jwtauth.RequireAdmin(d.JWTSecret))

	admin.GET("/customers", d.AdminHandler.ListCustomers)
	admin.PATCH("/customers/:id/approval", d.AdminHandler.SetCustomerApproval)

	admin.GET("/products", d.AdminHandler.ListAllProducts)
	admin.PATCH("/products/:id", d.AdminHandler.UpdateProduct)
	admin.POST("/sync", d.AdminHandler.TriggerFullSync)

	admin.GET("/promotions", d.AdminHandler.ListPromotions)
	admin.POST("/promotions", d.AdminHandler.CreatePromotion)
	admin.PATCH("/promotions/:id", d.AdminHandler.UpdatePromotion)

	admin.GET("/delivery-templates", d.AdminHandler.ListTemplates)
	admin.POST("/delivery-templates", d.AdminHandler.CreateTemplate)
	admin.PATCH("/delivery-templates/:id", d.AdminHandler.UpdateTemplate)
	admin.POST("/delivery-windows/generate", d.AdminHandler.GenerateWindows)
	admin.PATCH("/delivery-windows/:id", d.AdminHandler.UpdateWindow)

	admin.GET("/orders", d.AdminHandler.ListOrders)
	admin.PATCH("/orders/:id/status", d.AdminHandler.UpdateOrderStatus)
	admin.POST("/orders/:id/refund", d.AdminHandler.RefundOrder)

	admin.POST("/reviews/refresh", d.AdminHandler.RefreshReviews)
}
