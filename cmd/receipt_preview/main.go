package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"upgrade_checkout_echo/internal/app"
	"upgrade_checkout_echo/internal/config"
	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/receipt"
	"upgrade_checkout_echo/internal/services"
)

func main() {
	out := flag.String("out", "receipt.html", "File to write the rendered receipt to")
	to := flag.String("email", "", "Send the receipt to this address instead of writing a file")
	admin := flag.Bool("admin", false, "Render the admin copy")
	free := flag.Bool("free", false, "Use a 100% coupon booking")
	phone := flag.String("phone", "", "Also send a WhatsApp alert to this number (e.g. 07700900123)")
	flag.Parse()

	// Load envs
	envErr := godotenv.Load()

	cfg := config.FromEnv()
	log := app.NewLogger(cfg.LogLevel)
	if envErr != nil {
		log.Info("Note: .env file not found")
	}

	booking, items := sampleBooking(*free)

	renderer := receipt.NewRenderer(cfg.ReceiptPrefix, "")
	variant := receipt.VariantCustomer
	if *admin {
		variant = receipt.VariantAdmin
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *to == "" {
		doc, err := renderer.RenderFor(variant, booking, items)
		if err != nil {
			log.WithError(err).Fatal("Failed to render receipt")
		}
		if err := os.WriteFile(*out, []byte(doc.HTML), 0o644); err != nil {
			log.WithError(err).Fatal("Failed to write receipt")
		}
		fmt.Printf("Receipt %s written to %s (total %s)\n", doc.ReceiptNumber, *out, receipt.FormatMoney(doc.Amounts.Final))
	} else {
		if !cfg.EmailConfigured() {
			log.Fatal("SMTP_HOST, SMTP_USER and SMTP_PASS are required to send email")
		}
		mailer := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.Sender())
		dispatcher := services.NewNotificationDispatcher(renderer, mailer, []string{*to}, log)

		if *admin {
			err := dispatcher.SendAdminNotification(ctx, booking, items)
			if err != nil {
				log.WithError(err).Fatal("Failed to send admin notification")
			}
		} else {
			doc, err := dispatcher.SendReceiptEmail(ctx, *to, booking, items)
			if err != nil {
				log.WithError(err).Fatal("Failed to send receipt")
			}
			log.WithField("bookingId", doc.ReceiptNumber).Info("Receipt sent")
		}
		fmt.Printf("Sent to %s\n", *to)
	}

	if *phone != "" {
		waha := services.NewWahaService(cfg.WahaBaseURL, cfg.WahaAPIKey, cfg.WhatsAppCountryCode)
		msg := fmt.Sprintf("Test booking %s for %s", booking.BookingID, booking.PackageName)
		if err := waha.SendMessage(ctx, *phone, msg); err != nil {
			log.WithError(err).Fatal("Failed to send WhatsApp message")
		}
		log.Info("WhatsApp message sent successfully!")
	}
}

func sampleBooking(free bool) (models.BookingData, []models.ReceiptItem) {
	now := time.Now()
	b := models.BookingData{
		BookingID:      "KOB-PREVIEW",
		PackageName:    "Maasai Mara Budget Safari",
		PackageID:      "mara-3d",
		OriginalAmount: decimal.NewNullDecimal(decimal.NewFromInt(100)),
		CustomerName:   "Jane Traveller",
		CustomerEmail:  "jane@example.com",
		UserID:         "preview-user-0001",
		PaymentDate:    now,
		Timestamp:      now,
	}
	items := []models.ReceiptItem{
		{Title: "Game Drive", Price: decimal.NewFromInt(50), Quantity: 2},
	}

	if free {
		b.OriginalAmount = decimal.NewNullDecimal(decimal.NewFromInt(200))
		b.DiscountAmount = decimal.NewNullDecimal(decimal.NewFromInt(200))
		b.FinalAmount = decimal.NewNullDecimal(decimal.Zero)
		b.CouponCode = "FREE100"
		items = []models.ReceiptItem{
			{Title: "Hot Air Balloon Safari", Price: decimal.NewFromInt(200), Quantity: 1},
		}
	}
	return b, items
}
