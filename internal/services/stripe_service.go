package services

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"upgrade_checkout_echo/internal/models"
)

const (
	GatewayNameStripe = "stripe"
	stripeLabel       = "Credit Card (Stripe)"
)

// StripeGateway creates and reads Stripe Checkout sessions
type StripeGateway struct {
	api      *client.API
	currency string
}

func NewStripeGateway(secretKey, currency string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	if currency == "" {
		currency = "gbp"
	}
	return &StripeGateway{api: sc, currency: currency}
}

func (g *StripeGateway) Name() string { return GatewayNameStripe }

func (g *StripeGateway) PaymentMethodLabel() string { return stripeLabel }

// CreateSession creates a card payment session. Each cart item becomes a price_data line.
func (g *StripeGateway) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.GatewaySession, error) {
	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, item := range req.Items {
		ri := item.ReceiptItem()
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(ri.Title),
				},
				UnitAmount: stripe.Int64(models.MajorToMinor(ri.Price)),
			},
			Quantity: stripe.Int64(ri.Quantity),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, &models.UpstreamError{Service: GatewayNameStripe, Op: "create session", Err: err}
	}
	return fromStripeSession(s), nil
}

// RetrieveSession fetches the session with line_items expanded
func (g *StripeGateway) RetrieveSession(ctx context.Context, id string) (*models.GatewaySession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")

	s, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, &models.UpstreamError{Service: GatewayNameStripe, Op: "retrieve session", Err: err}
	}
	return fromStripeSession(s), nil
}

func fromStripeSession(s *stripe.CheckoutSession) *models.GatewaySession {
	out := &models.GatewaySession{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: stripePaymentStatus(s),
		AmountTotal:   s.AmountTotal,
		Metadata:      s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.PaymentIntent != nil {
		out.PaymentID = s.PaymentIntent.ID
	}
	if s.LineItems != nil {
		for _, li := range s.LineItems.Data {
			item := models.GatewayLineItem{
				Description: li.Description,
				AmountTotal: li.AmountTotal,
				Quantity:    li.Quantity,
			}
			if li.Price != nil {
				item.UnitAmount = li.Price.UnitAmount
			}
			out.LineItems = append(out.LineItems, item)
		}
	}
	return out
}

// stripePaymentStatus treats a completed session that needed no payment, such as a
// fully discounted booking, as paid
func stripePaymentStatus(s *stripe.CheckoutSession) string {
	if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired &&
		s.Status == stripe.CheckoutSessionStatusComplete {
		return models.PaymentStatusPaid
	}
	return string(s.PaymentStatus)
}

// isStripeTransient reports 5xx and rate-limit errors from the Stripe API
func isStripeTransient(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.HTTPStatusCode >= 500 || se.HTTPStatusCode == 429
}

var _ PaymentGateway = (*StripeGateway)(nil)
