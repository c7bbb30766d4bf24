package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/receipt"
)

var errNoMailer = errors.New("email transport not configured")

// WhatsAppSender delivers a plain text message to a chat
type WhatsAppSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// NotificationDispatcher renders receipts and hands them to the mail transport.
// It applies no idempotency of its own; callers guard against duplicates.
type NotificationDispatcher struct {
	renderer    *receipt.Renderer
	mailer      Mailer
	adminEmails []string
	whatsapp    WhatsAppSender
	adminChats  []string
	log         *logrus.Logger
}

func NewNotificationDispatcher(renderer *receipt.Renderer, mailer Mailer, adminEmails []string, log *logrus.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		renderer:    renderer,
		mailer:      mailer,
		adminEmails: adminEmails,
		log:         log,
	}
}

// WithWhatsApp adds a best-effort WhatsApp alert to admin notifications
func (d *NotificationDispatcher) WithWhatsApp(sender WhatsAppSender, chatIDs []string) *NotificationDispatcher {
	d.whatsapp = sender
	d.adminChats = chatIDs
	return d
}

// SendAdminNotification renders the admin copy and mails it to every admin recipient
func (d *NotificationDispatcher) SendAdminNotification(ctx context.Context, b models.BookingData, items []models.ReceiptItem) error {
	if d.mailer == nil {
		return &models.DeliveryError{Recipients: d.adminEmails, Err: errNoMailer}
	}
	if len(d.adminEmails) == 0 {
		return &models.DeliveryError{Err: fmt.Errorf("no admin recipients configured")}
	}
	doc, err := d.renderer.RenderFor(receipt.VariantAdmin, b, items)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("New Booking Received - %s", doc.ReceiptNumber)
	if err := d.mailer.SendHTML(ctx, d.adminEmails, subject, doc.HTML); err != nil {
		return err
	}

	d.alertWhatsApp(ctx, b, doc)
	return nil
}

// SendReceiptEmail renders the customer copy and mails it to one recipient
func (d *NotificationDispatcher) SendReceiptEmail(ctx context.Context, recipient string, b models.BookingData, items []models.ReceiptItem) (*receipt.Document, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, models.NewValidationError("email", "Email and session ID are required")
	}
	if d.mailer == nil {
		return nil, &models.DeliveryError{Recipients: []string{recipient}, Err: errNoMailer}
	}
	doc, err := d.renderer.Render(b, items)
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("Your Booking Receipt - %s", doc.ReceiptNumber)
	if err := d.mailer.SendHTML(ctx, []string{recipient}, subject, doc.HTML); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *NotificationDispatcher) alertWhatsApp(ctx context.Context, b models.BookingData, doc *receipt.Document) {
	if d.whatsapp == nil || len(d.adminChats) == 0 {
		return
	}
	text := fmt.Sprintf("New booking %s\nPackage: %s\nTotal paid: %s",
		doc.ReceiptNumber, orDefault(b.PackageName, "Safari Package"), receipt.FormatMoney(doc.Amounts.Final))
	if doc.Amounts.HasDiscount {
		text += "\nCoupon: " + doc.Amounts.Description
	}
	for _, chat := range d.adminChats {
		if err := d.whatsapp.SendMessage(ctx, chat, text); err != nil {
			d.log.WithFields(logrus.Fields{"chat": chat, "bookingId": doc.ReceiptNumber}).
				WithError(err).Warn("whatsapp admin alert failed")
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var (
	_ AdminNotifier = (*NotificationDispatcher)(nil)
	_ ReceiptMailer = (*NotificationDispatcher)(nil)
)
