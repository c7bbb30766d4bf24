package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/receipt"
)

const (
	defaultPackageID   = "unknown"
	defaultPackageName = "Safari Package"
)

// resolveBookingID picks the purchase identifier: gateway metadata, then the stored
// session, then a short prefix of the checkout id. A random code is the last resort
// and is logged since it will not match anything persisted.
func resolveBookingID(meta models.BookingMetadata, stored *models.CheckoutSession, checkoutID, prefix string, log *logrus.Logger) string {
	var storedID string
	if stored != nil {
		storedID = stored.BookingID
	}
	return receipt.ResolveIdentifier([]string{meta.BookingID, storedID, receipt.ShortPrefix(checkoutID)}, func() string {
		id := receipt.NewReceiptCode(prefix)
		log.WithField("bookingId", id).Warn("no persisted booking id found, generated a new one")
		return id
	})
}

// linkedCheckoutID picks the checkout a gateway session belongs to. The id written
// into the session metadata at creation wins over the one the caller supplied; the
// second return is false when the two disagree.
func linkedCheckoutID(callerID string, meta models.BookingMetadata) (string, bool) {
	callerID = strings.TrimSpace(callerID)
	if meta.CheckoutSessionID == "" {
		return callerID, true
	}
	return meta.CheckoutSessionID, callerID == "" || callerID == meta.CheckoutSessionID
}

// linkedTo reports whether a stored checkout may be updated from this gateway session.
// A checkout already bound to another gateway session, or owned by another user, is not.
func linkedTo(stored *models.CheckoutSession, gs *models.GatewaySession, meta models.BookingMetadata) bool {
	if stored.GatewaySessionID != "" && stored.GatewaySessionID != gs.ID {
		return false
	}
	if meta.UserID != "" && stored.UserID != "" && meta.UserID != stored.UserID {
		return false
	}
	return true
}

// bookingFromGateway derives receipt data from a paid gateway session. Metadata is
// authoritative for discounts; the charged total is the final amount.
func bookingFromGateway(gs *models.GatewaySession, meta models.BookingMetadata, stored *models.CheckoutSession, bookingID string, now time.Time) models.BookingData {
	final := gs.Total()
	original := final
	if meta.OriginalAmount.Valid {
		original = meta.OriginalAmount.Decimal
	}

	userID := meta.UserID
	if userID == "" && stored != nil {
		userID = stored.UserID
	}

	timestamp := now
	if meta.Timestamp > 0 {
		timestamp = time.UnixMilli(meta.Timestamp)
	}

	b := models.BookingData{
		BookingID:      bookingID,
		ReceiptNumber:  bookingID,
		PackageID:      orDefault(meta.PackageID, defaultPackageID),
		PackageName:    orDefault(meta.PackageName, defaultPackageName),
		Amount:         decimal.NewNullDecimal(final),
		OriginalAmount: decimal.NewNullDecimal(original),
		DiscountAmount: decimal.NewNullDecimal(meta.DiscountAmount),
		FinalAmount:    decimal.NewNullDecimal(final),
		CouponCode:     meta.CouponCode,
		UserID:         userID,
		PaymentDate:    now,
		Timestamp:      timestamp,
		PaymentID:      gs.ID,
	}
	if stored != nil {
		b.CustomerEmail = stored.CustomerEmail
		b.CustomerName = stored.CustomerName
	}
	return b
}

func gatewayItems(gs *models.GatewaySession) []models.ReceiptItem {
	out := make([]models.ReceiptItem, 0, len(gs.LineItems))
	for _, li := range gs.LineItems {
		out = append(out, li.ReceiptItem())
	}
	return out
}

func cartToReceipt(items []models.CartItem) []models.ReceiptItem {
	out := make([]models.ReceiptItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.ReceiptItem())
	}
	return out
}

func receiptToCart(items []models.ReceiptItem) []models.CartItem {
	out := make([]models.CartItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.CartItem())
	}
	return out
}

// MergeItems starts from the gateway lines and appends store items the gateway did not
// itemize. Items match on (title, price) because the gateway drops item references.
func MergeItems(gateway, store []models.ReceiptItem) []models.ReceiptItem {
	merged := make([]models.ReceiptItem, 0, len(gateway)+len(store))
	merged = append(merged, gateway...)

	seen := make(map[string]bool, len(gateway))
	for _, it := range gateway {
		seen[itemKey(it)] = true
	}
	for _, it := range store {
		if seen[itemKey(it)] {
			continue
		}
		merged = append(merged, it)
	}
	return merged
}

func itemKey(it models.ReceiptItem) string {
	return it.Title + "\x00" + it.Price.StringFixed(2)
}
