package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"upgrade_checkout_echo/internal/models"
)

const (
	GatewayNameMidtrans = "midtrans"
	midtransLabel       = "Online Payment (Midtrans)"
	midtransOrderTTL    = 30 * 24 * time.Hour
)

// midtransOrder is what Midtrans cannot carry for us: the metadata map and the
// purchased lines. It is cached under the order id at creation.
type midtransOrder struct {
	Metadata  map[string]string        `json:"metadata"`
	LineItems []models.GatewayLineItem `json:"lineItems"`
	URL       string                   `json:"url"`
}

// MidtransGateway runs checkouts through Midtrans Snap. The order id is the gateway
// session id.
type MidtransGateway struct {
	SnapClient snap.Client
	CoreClient coreapi.Client
	cache      *RedisCache
}

func NewMidtransGateway(serverKey, clientKey string, production bool, cache *RedisCache) *MidtransGateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(serverKey, env)

	var c coreapi.Client
	c.New(serverKey, env)

	midtrans.ServerKey = serverKey
	midtrans.ClientKey = clientKey
	midtrans.Environment = env

	return &MidtransGateway{SnapClient: s, CoreClient: c, cache: cache}
}

func (g *MidtransGateway) Name() string { return GatewayNameMidtrans }

func (g *MidtransGateway) PaymentMethodLabel() string { return midtransLabel }

// CreateSession creates a Snap transaction. Amounts are sent in whole currency units.
func (g *MidtransGateway) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.GatewaySession, error) {
	items, lines, gross, err := midtransItems(req.Items)
	if err != nil {
		return nil, err
	}
	orderID := "upg-" + uuid.NewString()

	param := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		Items:     &items,
		Callbacks: &snap.Callbacks{Finish: req.SuccessURL},
	}
	if req.CustomerEmail != "" {
		param.CustomerDetail = &midtrans.CustomerDetails{Email: req.CustomerEmail}
	}

	resp, mErr := g.SnapClient.CreateTransaction(param)
	if mErr != nil {
		return nil, &models.UpstreamError{Service: GatewayNameMidtrans, Op: "create transaction", Err: midtransErr(mErr)}
	}

	order := midtransOrder{Metadata: req.Metadata, LineItems: lines, URL: resp.RedirectURL}
	if g.cache != nil {
		if err := g.cache.Set(ctx, midtransOrderKey(orderID), order, midtransOrderTTL); err != nil {
			return nil, &models.UpstreamError{Service: "redis", Op: "save midtrans order", Err: err}
		}
	}

	return &models.GatewaySession{
		ID:            orderID,
		URL:           resp.RedirectURL,
		PaymentStatus: "unpaid",
		AmountTotal:   models.MajorToMinor(decimal.NewFromInt(gross)),
		LineItems:     lines,
		Metadata:      req.Metadata,
	}, nil
}

// midtransItems converts cart lines to Snap items. Snap only takes whole currency
// units, so a fractional price is rejected rather than rounded.
func midtransItems(cart []models.CartItem) ([]midtrans.ItemDetails, []models.GatewayLineItem, int64, error) {
	var gross int64
	items := make([]midtrans.ItemDetails, 0, len(cart))
	lines := make([]models.GatewayLineItem, 0, len(cart))
	for i, item := range cart {
		ri := item.ReceiptItem()
		if !ri.Price.Equal(ri.Price.Truncate(0)) {
			return nil, nil, 0, models.NewValidationError("items", fmt.Sprintf("Price of %q must be a whole amount for Midtrans", ri.Title))
		}
		price := ri.Price.IntPart()
		gross += price * ri.Quantity
		items = append(items, midtrans.ItemDetails{
			ID:    itemID(item, i),
			Name:  truncate(ri.Title, 50),
			Price: price,
			Qty:   int32(ri.Quantity),
		})
		lines = append(lines, models.GatewayLineItem{
			Description: ri.Title,
			UnitAmount:  models.MajorToMinor(ri.Price),
			AmountTotal: models.MajorToMinor(ri.Price.Mul(decimal.NewFromInt(ri.Quantity))),
			Quantity:    ri.Quantity,
		})
	}
	return items, lines, gross, nil
}

// RetrieveSession checks the transaction status and joins it with the cached order
func (g *MidtransGateway) RetrieveSession(ctx context.Context, id string) (*models.GatewaySession, error) {
	status, mErr := g.CoreClient.CheckTransaction(id)
	if mErr != nil {
		return nil, &models.UpstreamError{Service: GatewayNameMidtrans, Op: "check transaction", Err: midtransErr(mErr)}
	}

	out := &models.GatewaySession{
		ID:            id,
		PaymentStatus: midtransPaymentStatus(status.TransactionStatus, status.FraudStatus),
		PaymentID:     status.TransactionID,
	}
	if gross, err := decimal.NewFromString(status.GrossAmount); err == nil {
		out.AmountTotal = models.MajorToMinor(gross)
	}

	if g.cache != nil {
		var order midtransOrder
		if err := g.cache.Get(ctx, midtransOrderKey(id), &order); err == nil {
			out.Metadata = order.Metadata
			out.LineItems = order.LineItems
			out.URL = order.URL
		}
	}
	return out, nil
}

// midtransPaymentStatus maps Midtrans transaction states onto the paid/unpaid model
func midtransPaymentStatus(transactionStatus, fraudStatus string) string {
	switch transactionStatus {
	case "settlement":
		return models.PaymentStatusPaid
	case "capture":
		if fraudStatus == "" || fraudStatus == "accept" {
			return models.PaymentStatusPaid
		}
	}
	if transactionStatus == "" {
		return "unpaid"
	}
	return transactionStatus
}

// midtransErr copies a *midtrans.Error into a plain error so a nil pointer never
// reaches an error interface.
func midtransErr(e *midtrans.Error) error {
	if e.StatusCode >= 500 {
		return &transientError{err: fmt.Errorf("%s (status %d)", e.Message, e.StatusCode)}
	}
	return fmt.Errorf("%s (status %d)", e.Message, e.StatusCode)
}

func midtransOrderKey(orderID string) string {
	return "midtrans:order:" + orderID
}

func itemID(item models.CartItem, i int) string {
	if item.ActivityID != "" {
		return truncate(item.ActivityID, 50)
	}
	return fmt.Sprintf("item-%d", i+1)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ PaymentGateway = (*MidtransGateway)(nil)
