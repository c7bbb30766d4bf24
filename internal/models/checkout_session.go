package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutStatus is the lifecycle state of a checkout session document
type CheckoutStatus string

const (
	CheckoutStatusAwaitingPayment CheckoutStatus = "awaiting_payment"
	CheckoutStatusCompleted       CheckoutStatus = "completed"
)

// IsTerminal reports whether no further transition is allowed
func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted
}

const PaymentStatusPaid = "paid"

// CartItem is an item as the storefront writes it into carts and checkout sessions.
// Prices are plain numbers in major currency units.
type CartItem struct {
	Title      string  `firestore:"title" json:"title" validate:"required"`
	Price      float64 `firestore:"price" json:"price" validate:"gte=0"`
	Quantity   int     `firestore:"quantity" json:"quantity" validate:"gte=1"`
	ActivityID string  `firestore:"activityId,omitempty" json:"activityId,omitempty"`
}

// ReceiptItem converts the stored item into its receipt form
func (i CartItem) ReceiptItem() ReceiptItem {
	qty := int64(i.Quantity)
	if qty <= 0 {
		qty = 1
	}
	return ReceiptItem{
		Title:    i.Title,
		Price:    decimal.NewFromFloat(i.Price).Round(2),
		Quantity: qty,
	}
}

// ReceiptItem is one purchased line as shown on a receipt
type ReceiptItem struct {
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// CartItem converts the receipt line back into the stored form
func (i ReceiptItem) CartItem() CartItem {
	price, _ := i.Price.Float64()
	return CartItem{
		Title:    i.Title,
		Price:    price,
		Quantity: int(i.Quantity),
	}
}

// CheckoutSession is the external store record for one checkout attempt
type CheckoutSession struct {
	ID                   string         `firestore:"-" json:"id"`
	UserID               string         `firestore:"userId" json:"userId"`
	Items                []CartItem     `firestore:"items" json:"items"`
	Status               CheckoutStatus `firestore:"status" json:"status"`
	PaymentStatus        string         `firestore:"paymentStatus,omitempty" json:"paymentStatus,omitempty"`
	BookingID            string         `firestore:"bookingId,omitempty" json:"bookingId,omitempty"`
	GatewaySessionID     string         `firestore:"stripeSessionId,omitempty" json:"gatewaySessionId,omitempty"`
	GatewayPaymentID     string         `firestore:"stripePaymentId,omitempty" json:"gatewayPaymentId,omitempty"`
	ProcessedItems       []CartItem     `firestore:"processedItems,omitempty" json:"processedItems,omitempty"`
	CustomerEmail        string         `firestore:"customerEmail,omitempty" json:"customerEmail,omitempty"`
	CustomerName         string         `firestore:"customerName,omitempty" json:"customerName,omitempty"`
	ReceiptSent          bool           `firestore:"receiptSent,omitempty" json:"receiptSent"`
	AdminNotified        bool           `firestore:"adminNotified,omitempty" json:"adminNotified"`
	AdminNotifyClaimedAt *time.Time     `firestore:"adminNotifyClaimedAt,omitempty" json:"-"`
	UpdatedAt            time.Time      `firestore:"updatedAt,omitempty" json:"updatedAt"`
}

// IsReconciled is the at-most-once guard: a completed and paid session must not be
// reconciled again.
func (s *CheckoutSession) IsReconciled() bool {
	return s.Status == CheckoutStatusCompleted && s.PaymentStatus == PaymentStatusPaid
}

// Cart is the per-user cart document in the carts collection
type Cart struct {
	Items       []CartItem `firestore:"items" json:"items"`
	LastUpdated time.Time  `firestore:"lastUpdated,omitempty" json:"lastUpdated"`
}
