package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/middleware"
	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/services"
)

const receiptFailedMessage = "Failed to send receipt. Please try again later."

type PaymentHandler struct {
	verifier PaymentVerifier
	receipts ReceiptSender
	log      *logrus.Logger
}

func NewPaymentHandler(verifier PaymentVerifier, receipts ReceiptSender, log *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{verifier: verifier, receipts: receipts, log: log}
}

// VerifyPayment checks the gateway session and reconciles it when paid
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	var req VerifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	res, err := h.verifier.VerifyAndReconcile(c.Request().Context(), req.SessionID, req.checkout())
	if err != nil {
		return err
	}

	if !res.Paid {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"paid":     false,
			"status":   res.Status,
			"metadata": res.Metadata,
		})
	}
	return c.JSON(http.StatusOK, res)
}

// SendReceiptEmail mails the customer a receipt for a paid session
func (h *PaymentHandler) SendReceiptEmail(c echo.Context) error {
	var req services.SendReceiptRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ReceiptResponse{Error: "Invalid request body"})
	}

	doc, err := h.receipts.SendCustomerReceipt(c.Request().Context(), req)
	if err != nil {
		code, msg := receiptFailure(err)
		return c.JSON(code, ReceiptResponse{Error: msg})
	}

	return c.JSON(http.StatusOK, ReceiptResponse{
		Success:   true,
		Message:   "Receipt email sent successfully",
		BookingID: doc.ReceiptNumber,
	})
}

func receiptFailure(err error) (int, string) {
	var de *models.DeliveryError
	var re *models.RenderError
	if errors.As(err, &de) || errors.As(err, &re) {
		return http.StatusInternalServerError, receiptFailedMessage
	}
	code, msg := middleware.StatusFor(err)
	if code == http.StatusInternalServerError {
		msg = receiptFailedMessage
	}
	return code, msg
}
