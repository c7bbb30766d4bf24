package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/receipt"
)

// TaskReconcileCheckout is the queued task that replays a reconciliation
const TaskReconcileCheckout = "reconcile_checkout"

// AdminNotifier sends the admin copy of a receipt
type AdminNotifier interface {
	SendAdminNotification(ctx context.Context, b models.BookingData, items []models.ReceiptItem) error
}

// TaskEnqueuer schedules out-of-band work
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, name string, args map[string]interface{}) error
}

// VerificationResult is what a verification returns to the caller
type VerificationResult struct {
	Paid                  bool                 `json:"paid"`
	Status                string               `json:"status,omitempty"`
	Amount                decimal.Decimal      `json:"amount"`
	OriginalAmount        decimal.Decimal      `json:"originalAmount"`
	DiscountAmount        decimal.Decimal      `json:"discountAmount"`
	FinalAmount           decimal.Decimal      `json:"finalAmount"`
	HasDiscount           bool                 `json:"hasDiscount"`
	IsFreeBooking         bool                 `json:"isFreeBooking"`
	CouponCode            *string              `json:"couponCode"`
	CustomerID            string               `json:"customerId,omitempty"`
	BookingID             string               `json:"bookingId"`
	Items                 []models.ReceiptItem `json:"items"`
	Metadata              map[string]string    `json:"metadata"`
	StoreProcessed        bool                 `json:"firebaseProcessed"`
	AdminNotified         bool                 `json:"adminNotified"`
	ReconciliationPending bool                 `json:"reconciliationPending,omitempty"`
	// CheckoutMismatch is set when the supplied or stored checkout does not belong to
	// this gateway session. Such a checkout is never updated.
	CheckoutMismatch bool `json:"checkoutMismatch,omitempty"`

	CheckoutID string             `json:"-"`
	Booking    models.BookingData `json:"-"`
}

// ReconcilerDeps wires a Reconciler. Store, Cache and Queue may be nil when the
// matching capability is off.
type ReconcilerDeps struct {
	Gateway        PaymentGateway
	Store          CheckoutStore
	Cache          *RedisCache
	Notifier       AdminNotifier
	Queue          TaskEnqueuer
	Capabilities   Capabilities
	ReceiptPrefix  string
	GatewayTimeout time.Duration
	NotifyLease    time.Duration
	Log            *logrus.Logger
}

// Reconciler verifies paid sessions and applies their side effects at most once
type Reconciler struct {
	gateway        PaymentGateway
	store          CheckoutStore
	notifier       AdminNotifier
	queue          TaskEnqueuer
	caps           Capabilities
	prefix         string
	gatewayTimeout time.Duration
	// checkoutGuard is keyed by checkout id, sessionGuard by gateway session id
	checkoutGuard NotificationGuard
	sessionGuard  NotificationGuard
	log           *logrus.Logger
	now           func() time.Time
}

func NewReconciler(d ReconcilerDeps) *Reconciler {
	r := &Reconciler{
		gateway:        d.Gateway,
		notifier:       d.Notifier,
		caps:           d.Capabilities,
		prefix:         d.ReceiptPrefix,
		gatewayTimeout: d.GatewayTimeout,
		log:            d.Log,
		now:            time.Now,
	}
	if d.Capabilities.Store {
		r.store = d.Store
	}
	if d.Capabilities.TaskQueue {
		r.queue = d.Queue
	}

	lease := d.NotifyLease
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	r.sessionGuard = NoopNotificationGuard{}
	if d.Capabilities.Cache && d.Cache != nil {
		r.sessionGuard = NewRedisNotificationGuard(d.Cache, lease)
	}
	r.checkoutGuard = r.sessionGuard
	if r.store != nil {
		r.checkoutGuard = NewStoreNotificationGuard(r.store, lease)
	}
	return r
}

// VerifyAndReconcile checks the gateway session and, when paid, completes the checkout
// and notifies admins once. Store and notification failures never fail the call; they
// are queued for a later retry and flagged on the result.
func (r *Reconciler) VerifyAndReconcile(ctx context.Context, gatewaySessionID, checkoutID string) (*VerificationResult, error) {
	res, pending, err := r.reconcile(ctx, gatewaySessionID, checkoutID)
	if err != nil {
		return nil, err
	}
	if pending != "" {
		res.ReconciliationPending = true
		r.enqueueRetry(ctx, gatewaySessionID, res.CheckoutID, pending)
	}
	return res, nil
}

// RetryReconcile is the out-of-band variant: it enqueues nothing and returns an error
// while work is still pending so the caller can reschedule.
func (r *Reconciler) RetryReconcile(ctx context.Context, gatewaySessionID, checkoutID string) (*VerificationResult, error) {
	res, pending, err := r.reconcile(ctx, gatewaySessionID, checkoutID)
	if err != nil {
		return nil, err
	}
	if pending != "" {
		res.ReconciliationPending = true
		return res, fmt.Errorf("reconciliation still pending: %s", pending)
	}
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, gatewaySessionID, checkoutID string) (*VerificationResult, string, error) {
	gatewaySessionID = strings.TrimSpace(gatewaySessionID)
	if gatewaySessionID == "" {
		return nil, "", models.NewValidationError("sessionId", "Session ID is required")
	}

	gs, err := withRetry(ctx, r.gatewayTimeout, func(ctx context.Context) (*models.GatewaySession, error) {
		return r.gateway.RetrieveSession(ctx, gatewaySessionID)
	})
	if err != nil {
		return nil, "", err
	}

	if !gs.IsPaid() {
		return &VerificationResult{Paid: false, Status: gs.PaymentStatus, Metadata: gs.Metadata}, "", nil
	}

	meta := models.ParseBookingMetadata(gs.Metadata)
	requested := checkoutID
	checkoutID, linked := linkedCheckoutID(requested, meta)
	logger := r.log.WithFields(logrus.Fields{"gatewaySessionId": gs.ID, "checkoutSessionId": checkoutID})
	mismatch := !linked
	if mismatch {
		logger.WithField("requestedCheckoutId", requested).Warn("checkout id does not match gateway session metadata, using metadata")
	}

	var pending []string

	var stored *models.CheckoutSession
	storeUsable := r.store != nil && checkoutID != ""
	if storeUsable {
		stored, err = r.store.GetCheckoutSession(ctx, checkoutID)
		switch {
		case errors.Is(err, ErrCheckoutNotFound):
			logger.Warn("checkout session not found in store, skipping reconciliation")
			storeUsable = false
		case err != nil:
			logger.WithError(err).Error("failed to load checkout session")
			storeUsable = false
			pending = append(pending, "store")
		}
	}
	if stored != nil && !linkedTo(stored, gs, meta) {
		logger.WithFields(logrus.Fields{
			"storedGatewaySessionId": stored.GatewaySessionID,
			"storedUserId":           stored.UserID,
		}).Warn("checkout session belongs to another payment, skipping reconciliation")
		mismatch = true
		stored, storeUsable, checkoutID = nil, false, ""
	}

	bookingID := resolveBookingID(meta, stored, checkoutID, r.prefix, r.log)
	booking := bookingFromGateway(gs, meta, stored, bookingID, r.now())

	var storeItems []models.ReceiptItem
	if stored != nil {
		storeItems = cartToReceipt(stored.Items)
	}
	items := MergeItems(gatewayItems(gs), storeItems)

	res := r.result(gs, booking, items)
	res.CheckoutID = checkoutID

	if storeUsable {
		switch {
		case stored.IsReconciled():
			logger.Info("checkout session already reconciled")
			res.StoreProcessed = true
		default:
			out, err := r.store.CompleteCheckout(ctx, CompleteCheckoutInput{
				CheckoutID:       checkoutID,
				BookingID:        bookingID,
				GatewaySessionID: gs.ID,
				GatewayPaymentID: gs.PaymentID,
				ProcessedItems:   receiptToCart(items),
			})
			switch {
			case errors.Is(err, ErrCheckoutMismatch):
				logger.Warn("checkout session was linked to another payment, skipping reconciliation")
				mismatch = true
				checkoutID, res.CheckoutID = "", ""
			case err != nil:
				logger.WithError(err).Error("failed to complete checkout in store")
				pending = append(pending, "store")
			case out.Applied:
				logger.WithField("bookingId", bookingID).Info("checkout reconciled")
				res.StoreProcessed = true
			default:
				logger.Info("checkout reconciled by a concurrent request")
				res.StoreProcessed = true
			}
		}
	}

	res.CheckoutMismatch = mismatch
	notified, err := r.notifyAdmins(ctx, logger, checkoutID, gs.ID, booking, items)
	res.AdminNotified = notified
	if err != nil {
		pending = append(pending, "notify")
	}

	return res, strings.Join(pending, ","), nil
}

// notifyAdmins sends the admin copy under the notification guard. It returns true
// when the notice is known to be handled, by this call or an earlier one.
func (r *Reconciler) notifyAdmins(ctx context.Context, logger *logrus.Entry, checkoutID, gatewaySessionID string, b models.BookingData, items []models.ReceiptItem) (bool, error) {
	if !r.caps.Email || r.notifier == nil {
		logger.Info("email disabled, admin notification skipped")
		return false, nil
	}

	guard, key := r.checkoutGuard, checkoutID
	if key == "" {
		guard, key = r.sessionGuard, gatewaySessionID
	}

	claimed, err := guard.Claim(ctx, key)
	if errors.Is(err, ErrCheckoutNotFound) {
		guard, key = r.sessionGuard, gatewaySessionID
		claimed, err = guard.Claim(ctx, key)
	}
	if err != nil {
		logger.WithError(err).Error("failed to claim admin notification")
		return false, err
	}
	if !claimed {
		logger.Debug("admin notification already handled")
		return true, nil
	}

	if err := r.notifier.SendAdminNotification(ctx, b, items); err != nil {
		logger.WithError(err).Error("admin notification failed")
		if rerr := guard.Release(ctx, key); rerr != nil {
			logger.WithError(rerr).Warn("failed to release admin notification claim")
		}
		return false, err
	}

	if err := guard.Complete(ctx, key); err != nil {
		logger.WithError(err).Warn("admin notification sent but not recorded")
	}
	logger.WithField("bookingId", b.BookingID).Info("admin notification sent")
	return true, nil
}

func (r *Reconciler) enqueueRetry(ctx context.Context, gatewaySessionID, checkoutID, reason string) {
	logger := r.log.WithFields(logrus.Fields{
		"gatewaySessionId":  gatewaySessionID,
		"checkoutSessionId": checkoutID,
		"reason":            reason,
	})
	if r.queue == nil {
		logger.Error("reconciliation pending and no task queue configured")
		return
	}
	err := r.queue.Enqueue(context.WithoutCancel(ctx), TaskReconcileCheckout, map[string]interface{}{
		"gatewaySessionId":  gatewaySessionID,
		"checkoutSessionId": checkoutID,
		"reason":            reason,
	})
	if err != nil {
		logger.WithError(err).Error("failed to enqueue reconciliation retry")
		return
	}
	logger.Warn("reconciliation retry enqueued")
}

func (r *Reconciler) result(gs *models.GatewaySession, b models.BookingData, items []models.ReceiptItem) *VerificationResult {
	amounts := receipt.CalculateAmounts(b)
	res := &VerificationResult{
		Paid:           true,
		Status:         gs.PaymentStatus,
		Amount:         amounts.Final,
		OriginalAmount: amounts.Original,
		DiscountAmount: amounts.Discount,
		FinalAmount:    amounts.Final,
		HasDiscount:    amounts.HasDiscount,
		IsFreeBooking:  amounts.IsFreeBooking,
		CustomerID:     gs.CustomerID,
		BookingID:      b.BookingID,
		Items:          items,
		Metadata:       gs.Metadata,
		Booking:        b,
	}
	if amounts.CouponCode != "" {
		code := amounts.CouponCode
		res.CouponCode = &code
	}
	return res
}
