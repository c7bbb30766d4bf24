package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"upgrade_checkout_echo/internal/models"
)

var (
	ErrCheckoutNotFound = errors.New("checkout session not found")
	// ErrCheckoutMismatch is returned when a checkout is bound to a different gateway session
	ErrCheckoutMismatch = errors.New("checkout session is linked to another gateway session")
)

// CompleteCheckoutInput carries what reconciliation writes for a paid session
type CompleteCheckoutInput struct {
	CheckoutID       string
	BookingID        string
	GatewaySessionID string
	GatewayPaymentID string
	// ProcessedItems is the merged item snapshot stored on the session
	ProcessedItems []models.CartItem
}

// CompleteCheckoutResult reports whether this call performed the transition
type CompleteCheckoutResult struct {
	Applied bool
	Session *models.CheckoutSession
}

// CheckoutStore is the document store behind checkouts, carts and purchases
type CheckoutStore interface {
	GetCheckoutSession(ctx context.Context, id string) (*models.CheckoutSession, error)
	// MarkAwaitingPayment links a checkout to its gateway session and booking id
	MarkAwaitingPayment(ctx context.Context, checkoutID, gatewaySessionID, bookingID string) error
	// CompleteCheckout atomically moves the session to completed/paid, creates one
	// purchased record per session item and clears the owner's cart. When the session
	// is already reconciled nothing is written and Applied is false. A session bound to
	// another gateway session is left untouched and ErrCheckoutMismatch returned.
	CompleteCheckout(ctx context.Context, in CompleteCheckoutInput) (*CompleteCheckoutResult, error)

	// ClaimAdminNotification takes a lease on sending the admin notice. It returns
	// false when the notice was already sent or another claim is still live.
	ClaimAdminNotification(ctx context.Context, checkoutID string, lease time.Duration) (bool, error)
	MarkAdminNotified(ctx context.Context, checkoutID string) error
	ReleaseAdminNotification(ctx context.Context, checkoutID string) error

	RecordReceiptSent(ctx context.Context, checkoutID, email, name string) error
	AddSentReceipt(ctx context.Context, r models.SentReceipt) error
}

// purchasedActivityID is deterministic so a replayed write cannot duplicate a purchase
func purchasedActivityID(checkoutID string, index int) string {
	return checkoutID + "-" + strconv.Itoa(index)
}

// purchasesFor builds the purchased records for a session
func purchasesFor(s *models.CheckoutSession, in CompleteCheckoutInput) []models.PurchasedActivity {
	items := s.Items
	if len(items) == 0 {
		items = in.ProcessedItems
	}
	out := make([]models.PurchasedActivity, 0, len(items))
	for _, item := range items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		out = append(out, models.PurchasedActivity{
			UserID:            s.UserID,
			ActivityID:        item.ActivityID,
			Title:             item.Title,
			Price:             item.Price,
			Quantity:          qty,
			CheckoutSessionID: in.CheckoutID,
			GatewaySessionID:  in.GatewaySessionID,
			BookingID:         in.BookingID,
			Status:            models.PurchasedActivityStatusActive,
		})
	}
	return out
}

// applyCompletion mutates the in-memory session the way CompleteCheckout does in the store
func applyCompletion(s *models.CheckoutSession, in CompleteCheckoutInput, now time.Time) {
	s.Status = models.CheckoutStatusCompleted
	s.PaymentStatus = models.PaymentStatusPaid
	if s.BookingID == "" {
		s.BookingID = in.BookingID
	}
	s.GatewaySessionID = in.GatewaySessionID
	if in.GatewayPaymentID != "" {
		s.GatewayPaymentID = in.GatewayPaymentID
	}
	s.ProcessedItems = in.ProcessedItems
	s.UpdatedAt = now
}
