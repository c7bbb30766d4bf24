package models

import "github.com/shopspring/decimal"

// GatewaySession is the payment gateway's view of a hosted checkout
type GatewaySession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url,omitempty"`
	PaymentStatus string            `json:"paymentStatus"`
	AmountTotal   int64             `json:"amountTotal"` // minor units
	LineItems     []GatewayLineItem `json:"lineItems,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CustomerID    string            `json:"customerId,omitempty"`
	PaymentID     string            `json:"paymentId,omitempty"`
}

// IsPaid reports whether the gateway considers the session paid
func (s *GatewaySession) IsPaid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

// Total returns the charged total in major units
func (s *GatewaySession) Total() decimal.Decimal {
	return MinorToMajor(s.AmountTotal)
}

// GatewayLineItem is a purchased line confirmed by the gateway
type GatewayLineItem struct {
	Description string
	UnitAmount  int64 // minor units, 0 when the gateway did not report it
	AmountTotal int64 // minor units
	Quantity    int64
}

// ReceiptItem converts the line to a receipt row priced per unit
func (l GatewayLineItem) ReceiptItem() ReceiptItem {
	qty := l.Quantity
	if qty <= 0 {
		qty = 1
	}
	title := l.Description
	if title == "" {
		title = "Safari Package"
	}
	price := MinorToMajor(l.UnitAmount)
	if l.UnitAmount == 0 && l.AmountTotal > 0 {
		price = MinorToMajor(l.AmountTotal).Div(decimal.NewFromInt(qty)).Round(2)
	}
	return ReceiptItem{Title: title, Price: price, Quantity: qty}
}

// CreateSessionRequest is what the checkout flow asks the gateway to create
type CreateSessionRequest struct {
	Items             []CartItem
	Currency          string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	CustomerEmail     string
	Metadata          map[string]string
}

// MinorToMajor converts minor currency units (pence) to major units
func MinorToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// MajorToMinor converts major currency units to minor units, rounding half away from zero
func MajorToMinor(major decimal.Decimal) int64 {
	return major.Shift(2).Round(0).IntPart()
}
