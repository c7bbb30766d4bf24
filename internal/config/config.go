package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration parsed from environment variables.
// It is built once at startup and read-only afterwards.
type Config struct {
	Port        string
	ServerURL   string
	FrontendURL string

	PaymentGateway  string
	StripeSecretKey string
	Currency        string

	MidtransServerKey    string
	MidtransClientKey    string
	MidtransIsProduction bool

	FirebaseCredentialsPath string
	FirebaseProjectID       string
	DatabaseURL             string
	RedisURL                string

	SMTPHost    string
	SMTPPort    string
	SMTPUser    string
	SMTPPass    string
	EmailFrom   string
	AdminEmails []string

	WahaBaseURL          string
	WahaAPIKey           string
	AdminWhatsAppChatIDs []string
	WhatsAppCountryCode  string

	ReceiptPrefix    string
	GatewayTimeout   time.Duration
	StoreTimeout     time.Duration
	AdminNotifyLease time.Duration
	ShutdownTimeout  time.Duration
	SMTPTimeout      time.Duration
	TaskMaxAttempts  int
	WorkerInterval   time.Duration

	LogLevel string
}

const (
	GatewayStripe   = "stripe"
	GatewayMidtrans = "midtrans"
)

// FromEnv builds Config with defaults, overridden by environment variables.
func FromEnv() Config {
	port := envOrDefault("PORT", "8080")
	return Config{
		Port:        port,
		ServerURL:   strings.TrimRight(envOrDefault("SERVER_URL", "http://localhost:"+port), "/"),
		FrontendURL: strings.TrimRight(envOrDefault("FRONTEND_URL", ""), "/"),

		PaymentGateway:  strings.ToLower(envOrDefault("PAYMENT_GATEWAY", GatewayStripe)),
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		Currency:        strings.ToLower(envOrDefault("CURRENCY", "gbp")),

		MidtransServerKey:    os.Getenv("MIDTRANS_SERVER_KEY"),
		MidtransClientKey:    os.Getenv("MIDTRANS_CLIENT_KEY"),
		MidtransIsProduction: envBool("MIDTRANS_IS_PRODUCTION", false),

		FirebaseCredentialsPath: envOrDefault("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json"),
		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                os.Getenv("REDIS_URL"),

		SMTPHost:    os.Getenv("SMTP_HOST"),
		SMTPPort:    envOrDefault("SMTP_PORT", "587"),
		SMTPUser:    os.Getenv("SMTP_USER"),
		SMTPPass:    os.Getenv("SMTP_PASS"),
		EmailFrom:   os.Getenv("EMAIL_FROM"),
		AdminEmails: envList("ADMIN_EMAILS"),

		WahaBaseURL:          os.Getenv("WAHA_BASE_URL"),
		WahaAPIKey:           os.Getenv("WAHA_API_KEY"),
		AdminWhatsAppChatIDs: envList("ADMIN_WHATSAPP_CHAT_IDS"),
		WhatsAppCountryCode:  envOrDefault("WHATSAPP_COUNTRY_CODE", "44"),

		ReceiptPrefix:    envOrDefault("RECEIPT_PREFIX", "KOB"),
		GatewayTimeout:   envDuration("GATEWAY_TIMEOUT_SECONDS", 10*time.Second),
		StoreTimeout:     envDuration("STORE_TIMEOUT_SECONDS", 5*time.Second),
		AdminNotifyLease: envDuration("ADMIN_NOTIFY_LEASE_SECONDS", 2*time.Minute),
		ShutdownTimeout:  envDuration("SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second),
		SMTPTimeout:      envDuration("SMTP_TIMEOUT_SECONDS", 30*time.Second),
		TaskMaxAttempts:  envInt("TASK_MAX_ATTEMPTS", 5),
		WorkerInterval:   envDuration("WORKER_INTERVAL_SECONDS", time.Minute),

		LogLevel: envOrDefault("LOG_LEVEL", "info"),
	}
}

// EmailConfigured reports whether SMTP credentials are complete
func (c Config) EmailConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.SMTPPass != ""
}

// Sender is the From address for outgoing mail
func (c Config) Sender() string {
	if c.EmailFrom != "" {
		return c.EmailFrom
	}
	return c.SMTPUser
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		seconds, err := strconv.Atoi(v)
		if err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
