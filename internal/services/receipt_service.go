package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/receipt"
)

const defaultCustomerName = "Valued Customer"

// ReceiptMailer sends the customer copy of a receipt
type ReceiptMailer interface {
	SendReceiptEmail(ctx context.Context, recipient string, b models.BookingData, items []models.ReceiptItem) (*receipt.Document, error)
}

// SendReceiptRequest asks for a customer receipt for a paid gateway session
type SendReceiptRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name"`
	SessionID  string `json:"sessionId" validate:"required"`
	CheckoutID string `json:"checkoutId"`
}

// ReceiptService sends customer receipts on request
type ReceiptService struct {
	gateway        PaymentGateway
	store          CheckoutStore
	mailer         ReceiptMailer
	prefix         string
	gatewayTimeout time.Duration
	log            *logrus.Logger
	now            func() time.Time
}

// NewReceiptService builds the service; store may be nil when the document store is off
func NewReceiptService(gateway PaymentGateway, store CheckoutStore, mailer ReceiptMailer, prefix string, gatewayTimeout time.Duration, log *logrus.Logger) *ReceiptService {
	return &ReceiptService{
		gateway:        gateway,
		store:          store,
		mailer:         mailer,
		prefix:         prefix,
		gatewayTimeout: gatewayTimeout,
		log:            log,
		now:            time.Now,
	}
}

// SendCustomerReceipt mails a receipt for a paid session. Nothing is recorded in the
// store unless the send succeeded, and recording failures do not fail the call.
func (s *ReceiptService) SendCustomerReceipt(ctx context.Context, req SendReceiptRequest) (*receipt.Document, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	gs, err := withRetry(ctx, s.gatewayTimeout, func(ctx context.Context) (*models.GatewaySession, error) {
		return s.gateway.RetrieveSession(ctx, req.SessionID)
	})
	if err != nil {
		return nil, err
	}
	if !gs.IsPaid() {
		return nil, models.NewValidationError("sessionId", "Payment has not been completed")
	}

	meta := models.ParseBookingMetadata(gs.Metadata)
	checkoutID, linked := linkedCheckoutID(req.CheckoutID, meta)
	logger := s.log.WithFields(logrus.Fields{"gatewaySessionId": gs.ID, "checkoutSessionId": checkoutID})
	if !linked {
		logger.WithField("requestedCheckoutId", req.CheckoutID).Warn("checkout id does not match gateway session metadata, using metadata")
	}

	var stored *models.CheckoutSession
	if s.store != nil && checkoutID != "" {
		stored, err = s.store.GetCheckoutSession(ctx, checkoutID)
		if err != nil {
			// supplementary data only
			if !errors.Is(err, ErrCheckoutNotFound) {
				logger.WithError(err).Warn("failed to load checkout session for receipt")
			}
			stored = nil
		}
	}
	if stored != nil && !linkedTo(stored, gs, meta) {
		logger.Warn("checkout session belongs to another payment, receipt will not be recorded on it")
		stored, checkoutID = nil, ""
	}

	bookingID := resolveBookingID(meta, stored, checkoutID, s.prefix, s.log)
	b := bookingFromGateway(gs, meta, stored, bookingID, s.now())
	b.CustomerEmail = req.Email
	b.CustomerName = orDefault(strings.TrimSpace(req.Name), defaultCustomerName)

	doc, err := s.mailer.SendReceiptEmail(ctx, req.Email, b, receiptItems(gs, stored))
	if err != nil {
		logger.WithError(err).Error("failed to send receipt email")
		return nil, err
	}
	logger.WithFields(logrus.Fields{"bookingId": bookingID, "email": req.Email}).Info("receipt email sent")

	s.recordSent(ctx, logger, checkoutID, req, b, doc)
	return doc, nil
}

// receiptItems prefers the gateway lines, then the reconciled snapshot, then the cart items
func receiptItems(gs *models.GatewaySession, stored *models.CheckoutSession) []models.ReceiptItem {
	if items := gatewayItems(gs); len(items) > 0 {
		return items
	}
	if stored == nil {
		return nil
	}
	if len(stored.ProcessedItems) > 0 {
		return cartToReceipt(stored.ProcessedItems)
	}
	return cartToReceipt(stored.Items)
}

func (s *ReceiptService) recordSent(ctx context.Context, logger *logrus.Entry, checkoutID string, req SendReceiptRequest, b models.BookingData, doc *receipt.Document) {
	if s.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	name := strings.TrimSpace(req.Name)
	if checkoutID != "" {
		if err := s.store.RecordReceiptSent(ctx, checkoutID, req.Email, name); err != nil {
			logger.WithError(err).Warn("failed to record receipt on checkout session")
		}
	}

	amount, _ := doc.Amounts.Final.Float64()
	original, _ := doc.Amounts.Original.Float64()
	discount, _ := doc.Amounts.Discount.Float64()
	err := s.store.AddSentReceipt(ctx, models.SentReceipt{
		Email:            req.Email,
		Name:             name,
		GatewaySessionID: req.SessionID,
		BookingID:        b.BookingID,
		Amount:           amount,
		OriginalAmount:   original,
		DiscountAmount:   discount,
		CouponCode:       b.CouponCode,
		UserID:           b.UserID,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to save sent receipt")
	}
}
