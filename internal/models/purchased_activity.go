package models

import "time"

const PurchasedActivityStatusActive = "active"

// PurchasedActivity records one purchased line moved out of a user's cart
type PurchasedActivity struct {
	UserID            string    `firestore:"userId" json:"userId"`
	ActivityID        string    `firestore:"activityId" json:"activityId"`
	Title             string    `firestore:"title" json:"title"`
	Price             float64   `firestore:"price" json:"price"`
	Quantity          int       `firestore:"quantity" json:"quantity"`
	PurchaseDate      time.Time `firestore:"purchaseDate,serverTimestamp" json:"purchaseDate"`
	CheckoutSessionID string    `firestore:"checkoutSessionId" json:"checkoutSessionId"`
	GatewaySessionID  string    `firestore:"stripeSessionId" json:"gatewaySessionId"`
	BookingID         string    `firestore:"bookingId" json:"bookingId"`
	Status            string    `firestore:"status" json:"status"`
}

// SentReceipt is the audit record written after a customer receipt goes out
type SentReceipt struct {
	Email            string    `firestore:"email" json:"email"`
	Name             string    `firestore:"name,omitempty" json:"name,omitempty"`
	GatewaySessionID string    `firestore:"sessionId" json:"sessionId"`
	BookingID        string    `firestore:"bookingId" json:"bookingId"`
	Amount           float64   `firestore:"amount" json:"amount"`
	OriginalAmount   float64   `firestore:"originalAmount" json:"originalAmount"`
	DiscountAmount   float64   `firestore:"discountAmount" json:"discountAmount"`
	CouponCode       string    `firestore:"couponCode,omitempty" json:"couponCode,omitempty"`
	UserID           string    `firestore:"userId" json:"userId"`
	SentAt           time.Time `firestore:"sentAt,serverTimestamp" json:"sentAt"`
}
