package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"upgrade_checkout_echo/internal/models"
)

const (
	collCheckoutSessions    = "checkoutSessions"
	collPurchasedActivities = "purchasedActivities"
	collCarts               = "carts"
	collSentReceipts        = "sentReceipts"
)

// FirestoreStore implements CheckoutStore on Cloud Firestore
type FirestoreStore struct {
	client      *firestore.Client
	readTimeout time.Duration
	now         func() time.Time
}

func NewFirestoreStore(client *firestore.Client, readTimeout time.Duration) *FirestoreStore {
	return &FirestoreStore{client: client, readTimeout: readTimeout, now: time.Now}
}

func (s *FirestoreStore) checkoutRef(id string) *firestore.DocumentRef {
	return s.client.Collection(collCheckoutSessions).Doc(id)
}

func (s *FirestoreStore) GetCheckoutSession(ctx context.Context, id string) (*models.CheckoutSession, error) {
	snap, err := withRetry(ctx, s.readTimeout, func(ctx context.Context) (*firestore.DocumentSnapshot, error) {
		return s.checkoutRef(id).Get(ctx)
	})
	if err != nil {
		return nil, storeErr("get checkout session", err)
	}
	return decodeCheckout(snap)
}

func (s *FirestoreStore) MarkAwaitingPayment(ctx context.Context, checkoutID, gatewaySessionID, bookingID string) error {
	_, err := s.checkoutRef(checkoutID).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(models.CheckoutStatusAwaitingPayment)},
		{Path: "stripeSessionId", Value: gatewaySessionID},
		{Path: "bookingId", Value: bookingID},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	return storeErr("mark awaiting payment", err)
}

func (s *FirestoreStore) CompleteCheckout(ctx context.Context, in CompleteCheckoutInput) (*CompleteCheckoutResult, error) {
	var result *CompleteCheckoutResult
	ref := s.checkoutRef(in.CheckoutID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// the callback may run more than once on contention
		result = nil

		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		session, err := decodeCheckout(snap)
		if err != nil {
			return err
		}
		if session.GatewaySessionID != "" && session.GatewaySessionID != in.GatewaySessionID {
			return ErrCheckoutMismatch
		}
		if session.IsReconciled() {
			result = &CompleteCheckoutResult{Applied: false, Session: session}
			return nil
		}

		bookingID := session.BookingID
		if bookingID == "" {
			bookingID = in.BookingID
		}
		in := in
		in.BookingID = bookingID

		updates := []firestore.Update{
			{Path: "status", Value: string(models.CheckoutStatusCompleted)},
			{Path: "paymentStatus", Value: models.PaymentStatusPaid},
			{Path: "bookingId", Value: bookingID},
			{Path: "stripeSessionId", Value: in.GatewaySessionID},
			{Path: "processedItems", Value: in.ProcessedItems},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		}
		if in.GatewayPaymentID != "" {
			updates = append(updates, firestore.Update{Path: "stripePaymentId", Value: in.GatewayPaymentID})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}

		for i, p := range purchasesFor(session, in) {
			doc := s.client.Collection(collPurchasedActivities).Doc(purchasedActivityID(in.CheckoutID, i))
			if err := tx.Set(doc, p); err != nil {
				return err
			}
		}

		if session.UserID != "" {
			cart := s.client.Collection(collCarts).Doc(session.UserID)
			err := tx.Set(cart, map[string]interface{}{
				"items":       []interface{}{},
				"lastUpdated": firestore.ServerTimestamp,
			}, firestore.MergeAll)
			if err != nil {
				return err
			}
		}

		applyCompletion(session, in, s.now())
		result = &CompleteCheckoutResult{Applied: true, Session: session}
		return nil
	})
	if err != nil {
		return nil, storeErr("complete checkout", err)
	}
	return result, nil
}

func (s *FirestoreStore) ClaimAdminNotification(ctx context.Context, checkoutID string, lease time.Duration) (bool, error) {
	var claimed bool
	ref := s.checkoutRef(checkoutID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimed = false
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		session, err := decodeCheckout(snap)
		if err != nil {
			return err
		}
		now := s.now()
		if session.AdminNotified {
			return nil
		}
		if session.AdminNotifyClaimedAt != nil && now.Sub(*session.AdminNotifyClaimedAt) < lease {
			return nil
		}
		claimed = true
		return tx.Update(ref, []firestore.Update{{Path: "adminNotifyClaimedAt", Value: now}})
	})
	if err != nil {
		return false, storeErr("claim admin notification", err)
	}
	return claimed, nil
}

func (s *FirestoreStore) MarkAdminNotified(ctx context.Context, checkoutID string) error {
	_, err := s.checkoutRef(checkoutID).Update(ctx, []firestore.Update{
		{Path: "adminNotified", Value: true},
		{Path: "adminNotifyClaimedAt", Value: firestore.Delete},
	})
	return storeErr("mark admin notified", err)
}

func (s *FirestoreStore) ReleaseAdminNotification(ctx context.Context, checkoutID string) error {
	_, err := s.checkoutRef(checkoutID).Update(ctx, []firestore.Update{
		{Path: "adminNotifyClaimedAt", Value: firestore.Delete},
	})
	return storeErr("release admin notification", err)
}

func (s *FirestoreStore) RecordReceiptSent(ctx context.Context, checkoutID, email, name string) error {
	_, err := s.checkoutRef(checkoutID).Update(ctx, []firestore.Update{
		{Path: "customerEmail", Value: email},
		{Path: "customerName", Value: name},
		{Path: "receiptSent", Value: true},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	return storeErr("record receipt sent", err)
}

func (s *FirestoreStore) AddSentReceipt(ctx context.Context, r models.SentReceipt) error {
	_, _, err := s.client.Collection(collSentReceipts).Add(ctx, r)
	return storeErr("add sent receipt", err)
}

func decodeCheckout(snap *firestore.DocumentSnapshot) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := snap.DataTo(&session); err != nil {
		return nil, fmt.Errorf("decode checkout session %s: %w", snap.Ref.ID, err)
	}
	session.ID = snap.Ref.ID
	return &session, nil
}

// storeErr maps NotFound to ErrCheckoutNotFound and wraps the rest as UpstreamError
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCheckoutNotFound) || status.Code(err) == codes.NotFound {
		return ErrCheckoutNotFound
	}
	if errors.Is(err, ErrCheckoutMismatch) {
		return ErrCheckoutMismatch
	}
	return &models.UpstreamError{Service: "firestore", Op: op, Err: err}
}

var _ CheckoutStore = (*FirestoreStore)(nil)
