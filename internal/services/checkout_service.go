package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/receipt"
)

// validate is a singleton instance of the validator.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// CreateCheckoutRequest is the storefront's request to start a hosted checkout
type CreateCheckoutRequest struct {
	UserID            string              `json:"userId" validate:"required"`
	Items             []models.CartItem   `json:"items" validate:"required,min=1,dive"`
	Amount            decimal.NullDecimal `json:"amount"`
	OriginalAmount    decimal.NullDecimal `json:"originalAmount"`
	DiscountAmount    decimal.NullDecimal `json:"discountAmount"`
	CouponCode        string              `json:"couponCode"`
	Type              string              `json:"type"`
	CheckoutSessionID string              `json:"checkoutSessionId"`
	CustomerEmail     string              `json:"customerEmail" validate:"omitempty,email"`
	PackageID         string              `json:"packageId"`
	PackageName       string              `json:"packageName"`
}

// CreateCheckoutResponse is returned to the storefront after the gateway session exists
type CreateCheckoutResponse struct {
	ID               string          `json:"id"`
	Timestamp        int64           `json:"timestamp"`
	BookingID        string          `json:"bookingId"`
	URL              string          `json:"url"`
	CalculatedAmount decimal.Decimal `json:"calculatedAmount"`
}

// CheckoutService creates gateway sessions for checkouts
type CheckoutService struct {
	gateway   PaymentGateway
	store     CheckoutStore
	serverURL string
	currency  string
	prefix    string
	timeout   time.Duration
	log       *logrus.Logger
	now       func() time.Time
}

// NewCheckoutService builds the service; store may be nil when the document store is off
func NewCheckoutService(gateway PaymentGateway, store CheckoutStore, serverURL, currency, prefix string, timeout time.Duration, log *logrus.Logger) *CheckoutService {
	return &CheckoutService{
		gateway:   gateway,
		store:     store,
		serverURL: serverURL,
		currency:  currency,
		prefix:    prefix,
		timeout:   timeout,
		log:       log,
		now:       time.Now,
	}
}

// CreateCheckoutSession validates the request, generates the booking id once and
// writes it to gateway metadata and, best-effort, to the stored checkout session.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, req CreateCheckoutRequest) (*CreateCheckoutResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	calculated := CalculateCheckoutAmount(req)
	now := s.now()
	bookingID := receipt.NewReceiptCode(s.prefix)

	original := req.OriginalAmount
	if !original.Valid || original.Decimal.IsZero() {
		original = decimal.NewNullDecimal(calculated)
	}
	discount := decimal.Zero
	if req.DiscountAmount.Valid {
		discount = req.DiscountAmount.Decimal
	}

	meta := models.BookingMetadata{
		UserID:            req.UserID,
		Timestamp:         now.UnixMilli(),
		CheckoutSessionID: req.CheckoutSessionID,
		Type:              req.Type,
		OriginalAmount:    original,
		DiscountAmount:    discount,
		CouponCode:        receipt.NormalizeCoupon(req.CouponCode),
		BookingID:         bookingID,
		PackageID:         req.PackageID,
		PackageName:       req.PackageName,
	}

	logger := s.log.WithFields(logrus.Fields{
		"userId":            req.UserID,
		"checkoutSessionId": req.CheckoutSessionID,
		"bookingId":         bookingID,
	})

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	gs, err := s.gateway.CreateSession(callCtx, models.CreateSessionRequest{
		Items:             req.Items,
		Currency:          s.currency,
		SuccessURL:        s.successURL(req.CheckoutSessionID, req.UserID),
		CancelURL:         s.cancelURL(req.UserID),
		ClientReferenceID: req.UserID,
		CustomerEmail:     req.CustomerEmail,
		Metadata:          meta.Map(),
	})
	if err != nil {
		logger.WithError(err).Error("failed to create gateway session")
		return nil, err
	}
	logger.WithField("gatewaySessionId", gs.ID).Info("checkout session created")

	if s.store != nil && req.CheckoutSessionID != "" {
		if err := s.store.MarkAwaitingPayment(ctx, req.CheckoutSessionID, gs.ID, bookingID); err != nil {
			logger.WithError(err).Warn("failed to link checkout session to gateway session")
		}
	}

	return &CreateCheckoutResponse{
		ID:               gs.ID,
		Timestamp:        now.UnixMilli(),
		BookingID:        bookingID,
		URL:              gs.URL,
		CalculatedAmount: calculated,
	}, nil
}

// CalculateCheckoutAmount returns the explicit amount when given, else the sum of
// price times quantity over the items.
func CalculateCheckoutAmount(req CreateCheckoutRequest) decimal.Decimal {
	if req.Amount.Valid {
		return req.Amount.Decimal
	}
	total := decimal.Zero
	for _, it := range req.Items {
		total = total.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}

func (s *CheckoutService) successURL(checkoutID, userID string) string {
	// {CHECKOUT_SESSION_ID} is substituted by the gateway and must stay unescaped
	return fmt.Sprintf("%s/payment-success?session_id={CHECKOUT_SESSION_ID}&checkout_id=%s&userId=%s",
		s.serverURL, url.QueryEscape(checkoutID), url.QueryEscape(userID))
}

func (s *CheckoutService) cancelURL(userID string) string {
	return fmt.Sprintf("%s/payment-cancelled?userId=%s", s.serverURL, url.QueryEscape(userID))
}

// fieldMessages is looked up by "Field.tag" first, then by field
var fieldMessages = map[string]string{
	"UserID":         "Missing userId",
	"Items":          "Missing items",
	"CustomerEmail":  "Invalid customerEmail",
	"Email.required": "Email and session ID are required",
	"Email.email":    "Invalid email address",
	"SessionID":      "Email and session ID are required",
}

func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return models.NewValidationError("request", err.Error())
	}
	first := verrs[0]
	if msg, ok := fieldMessages[first.StructField()+"."+first.Tag()]; ok {
		return models.NewValidationError(first.Field(), msg)
	}
	if msg, ok := fieldMessages[first.StructField()]; ok {
		return models.NewValidationError(first.Field(), msg)
	}
	return models.NewValidationError(first.Field(), fmt.Sprintf("Invalid %s", first.Namespace()))
}
