package services

import (
	"context"

	"upgrade_checkout_echo/internal/models"
)

// PaymentGateway is the hosted checkout provider
type PaymentGateway interface {
	Name() string
	// PaymentMethodLabel is printed on receipts for paid bookings
	PaymentMethodLabel() string
	CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.GatewaySession, error)
	// RetrieveSession returns the session with its line items expanded
	RetrieveSession(ctx context.Context, id string) (*models.GatewaySession, error)
}
