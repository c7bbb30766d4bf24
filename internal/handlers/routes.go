package handlers

import (
	"github.com/labstack/echo/v4"

	"upgrade_checkout_echo/web"
)

// Handlers groups everything Register mounts
type Handlers struct {
	Checkout *CheckoutHandler
	Payment  *PaymentHandler
	Pages    *PageHandler
}

// Register mounts the public routes
func Register(e *echo.Echo, h Handlers) {
	e.StaticFS("/static", web.Static())

	e.GET("/", h.Pages.Home)
	e.GET("/health", h.Pages.Health)

	// Checkout
	e.POST("/create-checkout-session", h.Checkout.CreateCheckoutSession)
	e.GET("/create-and-redirect-checkout", h.Checkout.CreateAndRedirect)

	// Payment
	e.POST("/verify-payment", h.Payment.VerifyPayment)
	e.POST("/send-receipt-email", h.Payment.SendReceiptEmail)
	e.GET("/payment-success", h.Pages.PaymentSuccess)
	e.GET("/payment-cancelled", h.Pages.PaymentCancelled)
}
