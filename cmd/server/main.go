package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/app"
	"upgrade_checkout_echo/internal/config"
	"upgrade_checkout_echo/internal/handlers"
	appMiddleware "upgrade_checkout_echo/internal/middleware"
	"upgrade_checkout_echo/internal/receipt"
	"upgrade_checkout_echo/web"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.FromEnv()
	log := app.NewLogger(cfg.LogLevel)
	if envErr != nil {
		log.Info("No .env file found, using system environment")
	}

	// amounts go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise application")
	}
	defer a.Close()

	// Template renderer with per-page cloning
	renderer, err := web.NewTemplateRenderer(map[string]interface{}{
		"HomeURL":     cfg.FrontendURL,
		"CompanyName": receipt.DefaultCompany.Name,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to parse templates")
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer
	e.HTTPErrorHandler = appMiddleware.JSONErrorHandler(log)

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("1M"))

	handlers.Register(e, handlers.Handlers{
		Checkout: handlers.NewCheckoutHandler(a.Checkouts, log),
		Payment:  handlers.NewPaymentHandler(a.Reconciler, a.Receipts, log),
		Pages:    handlers.NewPageHandler(cfg.FrontendURL, a.Capabilities, a.Gateway.Name()),
	})

	go serve(e, ":"+cfg.Port, stop, log)

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}

// serve runs the listener until shutdown. A listener failure cancels the run
// context instead of exiting, so main still closes the integrations.
func serve(e *echo.Echo, addr string, stop context.CancelFunc, log *logrus.Logger) {
	log.WithField("addr", addr).Info("Server starting")
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("Server stopped")
		stop()
	}
}
