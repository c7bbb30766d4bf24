package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"upgrade_checkout_echo/internal/receipt"
	"upgrade_checkout_echo/internal/services"
)

type PageHandler struct {
	homeURL      string
	capabilities services.Capabilities
	gateway      string
}

func NewPageHandler(homeURL string, capabilities services.Capabilities, gateway string) *PageHandler {
	return &PageHandler{homeURL: homeURL, capabilities: capabilities, gateway: gateway}
}

// PaymentSuccess renders the page that verifies the payment from the browser.
// Stripe returns session_id, Midtrans returns order_id.
func (h *PageHandler) PaymentSuccess(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		sessionID = c.QueryParam("order_id")
	}
	if sessionID == "" {
		return c.String(http.StatusBadRequest, "Missing session ID")
	}

	return c.Render(http.StatusOK, "payment_success.html", map[string]interface{}{
		"SessionID":      sessionID,
		"CheckoutID":     c.QueryParam("checkout_id"),
		"UserID":         c.QueryParam("userId"),
		"CurrencySymbol": receipt.CurrencySymbol,
	})
}

// PaymentCancelled renders the cancelled page; the cart is left untouched
func (h *PageHandler) PaymentCancelled(c echo.Context) error {
	return c.Render(http.StatusOK, "payment_cancelled.html", nil)
}

// Home sends visitors to the storefront
func (h *PageHandler) Home(c echo.Context) error {
	if h.homeURL == "" {
		return c.Redirect(http.StatusTemporaryRedirect, "/health")
	}
	return c.Redirect(http.StatusTemporaryRedirect, h.homeURL)
}

// Health reports which optional integrations are available
func (h *PageHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"message":   "Activity upgrades payment server is running",
		"gateway":   h.gateway,
		"store":     enabled(h.capabilities.Store, "connected", "disabled"),
		"email":     enabled(h.capabilities.Email, "configured", "not configured"),
		"taskQueue": enabled(h.capabilities.TaskQueue, "enabled", "disabled"),
		"cache":     enabled(h.capabilities.Cache, "connected", "disabled"),
		"whatsapp":  enabled(h.capabilities.WhatsApp, "configured", "not configured"),
	})
}

func enabled(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}
