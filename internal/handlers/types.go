package handlers

import (
	"context"

	"upgrade_checkout_echo/internal/receipt"
	"upgrade_checkout_echo/internal/services"
)

// CheckoutCreator starts hosted checkouts
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, req services.CreateCheckoutRequest) (*services.CreateCheckoutResponse, error)
}

// PaymentVerifier confirms gateway sessions and reconciles paid ones
type PaymentVerifier interface {
	VerifyAndReconcile(ctx context.Context, gatewaySessionID, checkoutID string) (*services.VerificationResult, error)
}

// ReceiptSender mails customer receipts
type ReceiptSender interface {
	SendCustomerReceipt(ctx context.Context, req services.SendReceiptRequest) (*receipt.Document, error)
}

// VerifyPaymentRequest is posted by the success page. Older clients send checkoutId.
type VerifyPaymentRequest struct {
	SessionID         string `json:"sessionId"`
	CheckoutSessionID string `json:"checkoutSessionId"`
	CheckoutID        string `json:"checkoutId"`
}

func (r VerifyPaymentRequest) checkout() string {
	if r.CheckoutSessionID != "" {
		return r.CheckoutSessionID
	}
	return r.CheckoutID
}

// ReceiptResponse is the body of /send-receipt-email
type ReceiptResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	BookingID string `json:"bookingId,omitempty"`
	Error     string `json:"error,omitempty"`
}
