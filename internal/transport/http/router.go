package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/velikanov/digital_shop/internal/handlers"
	"github.com/velikanov/digital_shop/internal/logging"
)

type Deps struct {
	AuthHandler      *handlers.AuthHandler
	ProductHandler   *handlers.ProductHandler
	CartHandler      *handlers.CartHandler
	OrderHandler     *handlers.OrderHandler
	WebhookHandler   *handlers.WebhookHandler
	InventoryHandler *handlers.InventoryHandler
	CouponHandler    *handlers.CouponHandler
	DownloadHandler  *handlers.DownloadHandler
	SearchHandler    *handlers.SearchHandler
	JWTSecret        []byte
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// requestLogger threads a request-scoped slog.Logger through the request
// context so services log with the request id attached.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := slog.Default().With(
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
			ctx := logging.IntoContext(c.Request().Context(), l)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func Register(e *echo.Echo, d *Deps) {
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(requestLogger())

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	e.POST("/payments/:gateway/webhook", d.WebhookHandler.HandleWebhook)
	e.GET("/download/:token", d.DownloadHandler.Redeem)

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/me", d.AuthHandler.Me, handlers.RequireLogin(d.JWTSecret))
	v1.GET("/search", d.SearchHandler.Search)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	cart := v1.Group("/cart")
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("/items", d.CartHandler.AddItem)
	cart.PUT("/items/:id", d.CartHandler.UpdateItem)
	cart.DELETE("/items/:id", d.CartHandler.RemoveItem)
	cart.POST("/apply-coupon", d.CartHandler.ApplyCoupon)
	cart.DELETE("/remove-coupon", d.CartHandler.RemoveCoupon)
	cart.POST("/checkout", d.CartHandler.Checkout)

	orders := v1.Group("/orders")
	orders.POST("", d.OrderHandler.CreateOrder)
	orders.GET("/:id", d.OrderHandler.GetOrder)

	admin := v1.Group("/admin", handlers.AdminOnly(d.JWTSecret))
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.POST("/products/:id/inventory", d.InventoryHandler.AddItems)
	admin.GET("/products/:id/inventory/count", d.InventoryHandler.CountAvailable)
	admin.POST("/inventory/release", d.InventoryHandler.Release)
	admin.POST("/coupons", d.CouponHandler.CreateCoupon)
	admin.PATCH("/coupons/:id", d.CouponHandler.PatchCoupon)
	admin.POST("/orders/:id/pay", d.OrderHandler.Pay)
	admin.POST("/orders/:id/refund", d.OrderHandler.Refund)
	admin.POST("/orders/:id/fulfill", d.OrderHandler.Fulfill)
}
