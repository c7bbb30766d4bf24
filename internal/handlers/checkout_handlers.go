package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/middleware"
	"upgrade_checkout_echo/internal/services"
)

type CheckoutHandler struct {
	checkouts CheckoutCreator
	log       *logrus.Logger
}

func NewCheckoutHandler(checkouts CheckoutCreator, log *logrus.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkouts: checkouts, log: log}
}

// CreateCheckoutSession creates a gateway session for the storefront
func (h *CheckoutHandler) CreateCheckoutSession(c echo.Context) error {
	var req services.CreateCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.checkouts.CreateCheckoutSession(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// CreateAndRedirect creates the session from the JSON in ?data= and sends the
// browser straight to the gateway
func (h *CheckoutHandler) CreateAndRedirect(c echo.Context) error {
	data := c.QueryParam("data")
	if data == "" {
		return c.String(http.StatusBadRequest, "Missing checkout data")
	}

	var req services.CreateCheckoutRequest
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		h.log.WithError(err).Warn("invalid checkout data")
		return c.String(http.StatusBadRequest, "Invalid request data")
	}

	resp, err := h.checkouts.CreateCheckoutSession(c.Request().Context(), req)
	if err != nil {
		code, msg := middleware.StatusFor(err)
		if code >= http.StatusInternalServerError {
			h.log.WithError(err).Error("failed to create checkout for redirect")
		}
		return c.String(code, msg)
	}
	return c.Redirect(http.StatusSeeOther, resp.URL)
}
