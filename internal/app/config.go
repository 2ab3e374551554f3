package app

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete API server configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth        AuthConfig
	Session     SessionConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	PayPal      PayPalConfig
	Stripe      StripeConfig
	Orders      OrdersConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	TokenSecret string        `usage:"HMAC secret for signing and verifying bearer tokens (KART_AUTH_TOKEN_SECRET)" flag:"token-secret"`
	TokenTTL    time.Duration `default:"720h" usage:"Lifetime of issued tokens" flag:"token-ttl"`
}

// SessionConfig controls the anonymous cart cookie.
type SessionConfig struct {
	Cookie        string        `default:"sessionCartId" usage:"Name of the cart session cookie"`
	TTL           time.Duration `default:"720h" usage:"Lifetime of the cart session cookie"`
	SecureCookies bool          `default:"false" usage:"Mark cookies Secure (HTTPS only)" flag:"secure-cookies"`
}

// RedisConfig controls the product cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `usage:"Redis address host:port"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	CacheTTL time.Duration `default:"5m" usage:"Product cache entry lifetime"`
}

// KafkaConfig controls the receipts topic. Without brokers receipts are
// only logged.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses"`
	Topic   string   `default:"kart.receipts" usage:"Receipts topic"`
	GroupID string   `default:"kart-notifier" usage:"Consumer group of the notifier"`
}

// PayPalConfig enables wallet payments when ClientID is set.
type PayPalConfig struct {
	ClientID string `usage:"PayPal REST client id"`
	Secret   string `usage:"PayPal REST secret"`
	APIBase  string `usage:"PayPal API base URL, sandbox when empty"`
}

// StripeConfig enables card payments when SecretKey is set and the webhook
// when WebhookSecret is set.
type StripeConfig struct {
	SecretKey     string `usage:"Stripe secret API key"`
	WebhookSecret string `usage:"Stripe webhook signing secret"`
}

// OrdersConfig controls settlement.
type OrdersConfig struct {
	SettlementPolicy string `default:"hold" usage:"Stock policy on payment: hold or decrement"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// SMTPConfig controls receipt email delivery.
type SMTPConfig struct {
	Host     string `default:"localhost" usage:"SMTP host"`
	Port     int    `default:"587" usage:"SMTP port"`
	Username string `usage:"SMTP username"`
	Password string `usage:"SMTP password"`
	From     string `default:"Kart Store <orders@kart.local>" usage:"Sender address of receipts"`
	SSL      bool   `default:"false" usage:"Use implicit TLS"`
}

// Addr returns host:port of the SMTP server.
func (c SMTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NotifierConfig holds the receipt mailer configuration.
type NotifierConfig struct {
	HealthAddr string `default:"0.0.0.0:8081" usage:"Health endpoint listen address"`
	Kafka      KafkaConfig
	SMTP       SMTPConfig
}

// LoadConfig loads the API server configuration from environment variables
// and YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := load(&cfg); err != nil {
		return nil, err
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Auth.TokenSecret == "" {
		return nil, errors.New("token secret is required: set KART_AUTH_TOKEN_SECRET")
	}
	return &cfg, nil
}

// LoadNotifierConfig loads the receipt mailer configuration.
func LoadNotifierConfig() (*NotifierConfig, error) {
	var cfg NotifierConfig
	if err := load(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required: set KART_KAFKA_BROKERS")
	}
	return &cfg, nil
}

func load(dst any) error {
	loader := aconfig.LoaderFor(dst, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},

		// The API server and the notifier share one environment and file.
		AllowUnknownEnvs:   true,
		AllowUnknownFields: true,
		AllowUnknownFlags:  true,
	})
	if err := loader.Load(); err != nil {
		return errors.Wrap(err, "load config")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
