package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway metadata keys written at session creation
const (
	MetaUserID            = "userId"
	MetaTimestamp         = "timestamp"
	MetaCheckoutSessionID = "checkoutSessionId"
	MetaType              = "type"
	MetaOriginalAmount    = "originalAmount"
	MetaDiscountAmount    = "discountAmount"
	MetaCouponCode        = "couponCode"
	MetaBookingID         = "bookingId"
	MetaPackageID         = "packageId"
	MetaPackageName       = "packageName"
)

const (
	DefaultBookingType = "activity_upgrade"
	NoCouponMarker     = "none"
)

// BookingMetadata is the typed form of the string map stored on the gateway session.
// It is the durable source of truth for discounts, coupon and booking id.
type BookingMetadata struct {
	UserID            string
	Timestamp         int64 // unix millis
	CheckoutSessionID string
	Type              string
	OriginalAmount    decimal.NullDecimal
	DiscountAmount    decimal.Decimal
	CouponCode        string // empty when no coupon
	BookingID         string
	PackageID         string
	PackageName       string
}

// ParseBookingMetadata reads the gateway metadata map. Missing or malformed numbers
// become zero (or invalid for the optional original amount); it never fails.
func ParseBookingMetadata(m map[string]string) BookingMetadata {
	meta := BookingMetadata{
		UserID:            m[MetaUserID],
		CheckoutSessionID: m[MetaCheckoutSessionID],
		Type:              m[MetaType],
		BookingID:         m[MetaBookingID],
		PackageID:         m[MetaPackageID],
		PackageName:       m[MetaPackageName],
	}
	if ts, err := strconv.ParseInt(m[MetaTimestamp], 10, 64); err == nil {
		meta.Timestamp = ts
	}
	if v, err := decimal.NewFromString(strings.TrimSpace(m[MetaOriginalAmount])); err == nil {
		meta.OriginalAmount = decimal.NewNullDecimal(v)
	}
	if v, err := decimal.NewFromString(strings.TrimSpace(m[MetaDiscountAmount])); err == nil {
		meta.DiscountAmount = v
	}
	if code := strings.TrimSpace(m[MetaCouponCode]); code != "" && !strings.EqualFold(code, NoCouponMarker) {
		meta.CouponCode = code
	}
	if meta.Type == "" {
		meta.Type = DefaultBookingType
	}
	return meta
}

// Map serialises the metadata back to the gateway's flat string form
func (b BookingMetadata) Map() map[string]string {
	m := map[string]string{
		MetaUserID:            b.UserID,
		MetaTimestamp:         strconv.FormatInt(b.Timestamp, 10),
		MetaCheckoutSessionID: b.CheckoutSessionID,
		MetaType:              b.Type,
		MetaDiscountAmount:    b.DiscountAmount.String(),
		MetaCouponCode:        NoCouponMarker,
		MetaBookingID:         b.BookingID,
	}
	if m[MetaType] == "" {
		m[MetaType] = DefaultBookingType
	}
	if b.OriginalAmount.Valid {
		m[MetaOriginalAmount] = b.OriginalAmount.Decimal.String()
	}
	if b.CouponCode != "" {
		m[MetaCouponCode] = b.CouponCode
	}
	if b.PackageID != "" {
		m[MetaPackageID] = b.PackageID
	}
	if b.PackageName != "" {
		m[MetaPackageName] = b.PackageName
	}
	return m
}

// BookingData is the value object a receipt is rendered from.
// Amounts are optional; the calculator decides the defaults.
type BookingData struct {
	BookingID      string              `json:"bookingId,omitempty"`
	ReceiptNumber  string              `json:"receiptNumber,omitempty"`
	PackageName    string              `json:"packageName,omitempty"`
	PackageID      string              `json:"packageId,omitempty"`
	Amount         decimal.NullDecimal `json:"amount"`
	OriginalAmount decimal.NullDecimal `json:"originalAmount"`
	DiscountAmount decimal.NullDecimal `json:"discountAmount"`
	FinalAmount    decimal.NullDecimal `json:"finalAmount"`
	CouponCode     string              `json:"couponCode,omitempty"`
	CustomerName   string              `json:"customerName,omitempty"`
	CustomerEmail  string              `json:"customerEmail,omitempty"`
	UserID         string              `json:"userId,omitempty"`
	PaymentDate    time.Time           `json:"paymentDate"`
	Timestamp      time.Time           `json:"timestamp"`
	PaymentID      string              `json:"paymentId,omitempty"`
}
