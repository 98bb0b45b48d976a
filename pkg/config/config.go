package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration from environment variables
type Config struct {
	// Application
	AppPort       string
	PublicBaseURL string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// OpenTelemetry
	MetricsEnabled            bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPHeaders   string // For SigNoz Cloud: signoz-ingestion-key=<key>
	OTELExporterOTLPInsecure  bool   // true for http://, false for https://
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string

	// Payments
	PaymentProvider        string // mercadopago or stripe
	PaymentsMock           bool
	PaymentTimeout         time.Duration
	MercadoPagoAccessToken string
	MercadoPagoBaseURL     string
	StripeSecretKey        string
	Currency               string
	CheckoutSuccessURL     string
	CheckoutFailureURL     string
	CheckoutPendingURL     string

	// Installments
	InstallmentsMax         int
	InstallmentsMinPerCents int64

	// Email
	EmailBackend     string // console or smtp
	DefaultFromEmail string
	SMTPHost         string
	SMTPPort         string
	SMTPUser         string
	SMTPPassword     string

	// Orders
	PublicTokenSecret       string
	OTPTTL                  time.Duration
	StockZeroMeansUnlimited bool
	PendingMonitorInterval  time.Duration

	// Kafka
	KafkaBrokers    []string
	KafkaOrderTopic string

	// Admin & sessions
	AdminJWTSecret      string
	SessionCookieName   string
	SessionCookieSecure bool

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from .env file and environment variables with defaults
func LoadConfig() *Config {
	// .env file is optional
	if err := godotenv.Load(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			slog.Warn("error loading .env file", slog.String("error", err.Error()))
		}
	}

	return &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "storefront"),

		MetricsEnabled:            getEnvBool("METRICS_ENABLED", true),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPHeaders:   getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "storefront"),
		OTELServiceVersion:        getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: getEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),

		PaymentProvider:        strings.ToLower(getEnv("PAYMENT_PROVIDER", "mercadopago")),
		PaymentsMock:           getEnvBool("PAYMENTS_MOCK", false),
		PaymentTimeout:         getEnvDuration("PAYMENT_TIMEOUT", 20*time.Second),
		MercadoPagoAccessToken: strings.TrimSpace(getEnv("MERCADO_PAGO_ACCESS_TOKEN", "")),
		MercadoPagoBaseURL:     getEnv("MERCADO_PAGO_BASE_URL", "https://api.mercadopago.com"),
		StripeSecretKey:        strings.TrimSpace(getEnv("STRIPE_SECRET_KEY", "")),
		Currency:               getEnv("CURRENCY", "BRL"),
		CheckoutSuccessURL:     getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:8080/checkout/success"),
		CheckoutFailureURL:     getEnv("CHECKOUT_FAILURE_URL", "http://localhost:8080/checkout/failure"),
		CheckoutPendingURL:     getEnv("CHECKOUT_PENDING_URL", "http://localhost:8080/checkout/pending"),

		InstallmentsMax:         getEnvInt("INSTALLMENTS_MAX", 6),
		InstallmentsMinPerCents: int64(getEnvInt("INSTALLMENTS_MIN_PER_CENTS", 1000)),

		EmailBackend:     strings.ToLower(getEnv("EMAIL_BACKEND", "console")),
		DefaultFromEmail: getEnv("DEFAULT_FROM_EMAIL", "noreply@storefront.local"),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnv("SMTP_PORT", "587"),
		SMTPUser:         getEnv("SMTP_USER", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),

		PublicTokenSecret:       getEnv("PUBLIC_TOKEN_SECRET", "change-me"),
		OTPTTL:                  time.Duration(getEnvInt("OTP_TTL_MINUTES", 10)) * time.Minute,
		StockZeroMeansUnlimited: getEnvBool("STOCK_ZERO_MEANS_UNLIMITED", true),
		PendingMonitorInterval:  getEnvDuration("PENDING_MONITOR_INTERVAL", 30*time.Second),

		KafkaBrokers:    getEnvList("KAFKA_BROKERS"),
		KafkaOrderTopic: getEnv("KAFKA_ORDER_TOPIC", "storefront.order-status"),

		AdminJWTSecret:      getEnv("ADMIN_JWT_SECRET", ""),
		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "storefront_session"),
		SessionCookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4&loc=UTC"
}

// GetAppPortInt returns the application port as an integer
func (c *Config) GetAppPortInt() int {
	port, err := strconv.Atoi(c.AppPort)
	if err != nil {
		return 8080
	}
	return port
}

// OrderURL returns the customer-facing status page for an order token.
func (c *Config) OrderURL(publicToken string) string {
	return c.PublicBaseURL + "/orders/" + publicToken
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		}
		return false
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		slog.Warn("invalid integer in environment, using default", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		slog.Warn("invalid duration in environment, using default", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
