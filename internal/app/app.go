package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"upgrade_checkout_echo/internal/config"
	"upgrade_checkout_echo/internal/receipt"
	"upgrade_checkout_echo/internal/services"
	"upgrade_checkout_echo/internal/tasks"
)

// App holds the integrations and services shared by the server and the worker
type App struct {
	Config       config.Config
	Log          *logrus.Logger
	Capabilities services.Capabilities

	Gateway    services.PaymentGateway
	DB         *gorm.DB
	Cache      *services.RedisCache
	Queue      *tasks.GormQueue
	Dispatcher *services.NotificationDispatcher
	Reconciler *services.Reconciler
	Checkouts  *services.CheckoutService
	Receipts   *services.ReceiptService

	closers []func() error
}

// NewLogger builds the process logger
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// New brings up every configured integration. Only the payment gateway is
// mandatory; the rest degrade to a disabled capability with a warning.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	// Redis
	if cfg.RedisURL != "" {
		cache, err := services.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("Redis connection failed, cache disabled")
		} else {
			a.Cache = cache
			a.Capabilities.Cache = true
			a.closers = append(a.closers, cache.Close)
		}
	}

	// Firestore
	var store services.CheckoutStore
	if firebaseAvailable(cfg) {
		client, err := services.InitFirebase(ctx, cfg.FirebaseCredentialsPath, cfg.FirebaseProjectID)
		if err != nil {
			log.WithError(err).Warn("Firebase initialization failed, store features disabled")
		} else {
			store = services.NewFirestoreStore(client, cfg.StoreTimeout)
			a.Capabilities.Store = true
			a.closers = append(a.closers, client.Close)
		}
	} else {
		log.Warn("Firebase credentials not found, store features disabled")
	}

	// Database
	var queue services.TaskEnqueuer
	if cfg.DatabaseURL != "" {
		db, err := services.InitDB(cfg.DatabaseURL, log)
		if err != nil {
			log.WithError(err).Warn("Failed to connect to database, task queue disabled")
		} else if err := services.AutoMigrate(db, log); err != nil {
			log.WithError(err).Warn("Failed to run database migrations, task queue disabled")
		} else {
			a.DB = db
			a.Queue = tasks.NewGormQueue(db, cfg.TaskMaxAttempts)
			queue = a.Queue
			a.Capabilities.TaskQueue = true
			if sqlDB, err := db.DB(); err == nil {
				a.closers = append(a.closers, sqlDB.Close)
			}
		}
	} else {
		log.Warn("DATABASE_URL not set, task queue disabled")
	}

	gateway, err := newGateway(cfg, a.Cache, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Gateway = gateway

	// Email
	var mailer services.Mailer
	if cfg.EmailConfigured() {
		mailer = services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.Sender()).
			WithTimeout(mailTimeout(cfg))
		a.Capabilities.Email = true
	} else {
		log.Warn("SMTP not configured, email features disabled")
	}

	renderer := receipt.NewRenderer(cfg.ReceiptPrefix, gateway.PaymentMethodLabel())
	a.Dispatcher = services.NewNotificationDispatcher(renderer, mailer, cfg.AdminEmails, log)
	if cfg.WahaBaseURL != "" && len(cfg.AdminWhatsAppChatIDs) > 0 {
		waha := services.NewWahaService(cfg.WahaBaseURL, cfg.WahaAPIKey, cfg.WhatsAppCountryCode)
		a.Dispatcher.WithWhatsApp(waha, cfg.AdminWhatsAppChatIDs)
		a.Capabilities.WhatsApp = true
	}

	a.Reconciler = services.NewReconciler(services.ReconcilerDeps{
		Gateway:        gateway,
		Store:          store,
		Cache:          a.Cache,
		Notifier:       a.Dispatcher,
		Queue:          queue,
		Capabilities:   a.Capabilities,
		ReceiptPrefix:  cfg.ReceiptPrefix,
		GatewayTimeout: cfg.GatewayTimeout,
		NotifyLease:    cfg.AdminNotifyLease,
		Log:            log,
	})
	a.Checkouts = services.NewCheckoutService(gateway, store, cfg.ServerURL, cfg.Currency, cfg.ReceiptPrefix, cfg.GatewayTimeout, log)
	a.Receipts = services.NewReceiptService(gateway, store, a.Dispatcher, cfg.ReceiptPrefix, cfg.GatewayTimeout, log)

	log.WithFields(logrus.Fields{
		"gateway":   gateway.Name(),
		"store":     a.Capabilities.Store,
		"email":     a.Capabilities.Email,
		"taskQueue": a.Capabilities.TaskQueue,
		"cache":     a.Capabilities.Cache,
		"whatsapp":  a.Capabilities.WhatsApp,
	}).Info("integrations initialised")

	return a, nil
}

// Close releases connections in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newGateway(cfg config.Config, cache *services.RedisCache, log *logrus.Logger) (services.PaymentGateway, error) {
	switch cfg.PaymentGateway {
	case config.GatewayStripe:
		if cfg.StripeSecretKey == "" {
			return nil, errors.New("STRIPE_SECRET_KEY is not set")
		}
		return services.NewStripeGateway(cfg.StripeSecretKey, cfg.Currency), nil
	case config.GatewayMidtrans:
		if cfg.MidtransServerKey == "" {
			return nil, errors.New("MIDTRANS_SERVER_KEY is not set")
		}
		if cache == nil {
			log.Warn("Midtrans without Redis: booking metadata will not survive until verification")
		}
		return services.NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransClientKey, cfg.MidtransIsProduction, cache), nil
	default:
		return nil, fmt.Errorf("unknown PAYMENT_GATEWAY %q", cfg.PaymentGateway)
	}
}

func firebaseAvailable(cfg config.Config) bool {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") != "" {
		return true
	}
	_, err := os.Stat(cfg.FirebaseCredentialsPath)
	return err == nil
}

// mailTimeout caps an SMTP exchange at half the admin notification lease so a send
// always finishes before its claim expires.
func mailTimeout(cfg config.Config) time.Duration {
	d := cfg.SMTPTimeout
	if limit := cfg.AdminNotifyLease / 2; limit > 0 && (d <= 0 || d > limit) {
		d = limit
	}
	return d
}
