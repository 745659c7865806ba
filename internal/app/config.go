package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (MATCHA_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (MATCHA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr   string `usage:"Redis address or redis:// URL for the order cache, webhook dedup and shared rate limits (MATCHA_REDIS_ADDR or REDIS_URL)" flag:"redis-addr"`
	RabbitURL   string `usage:"AMQP URL of the kitchen feed broker; empty logs kitchen events instead" flag:"rabbit-url"`
	Paystack    PaystackConfig
	Checkout    CheckoutConfig
	Pickup      PickupConfig
	Cache       CacheConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// PaystackConfig configures hosted mobile money payments. Without a secret key
// only cash checkout is offered.
type PaystackConfig struct {
	SecretKey   string        `usage:"Paystack secret key (MATCHA_PAYSTACK_SECRET_KEY)" flag:"paystack-secret-key"`
	BaseURL     string        `default:"https://api.paystack.co" usage:"Paystack API root"`
	CallbackURL string        `usage:"Public URL of /api/payments/paystack/callback"`
	CancelURL   string        `usage:"Public URL of /api/payments/paystack/cancel"`
	ReturnURL   string        `usage:"Storefront page customers return to after the hosted page"`
	Timeout     time.Duration `default:"10s" usage:"Paystack request timeout"`
}

// CheckoutConfig tunes checkout and sessions.
type CheckoutConfig struct {
	Currency       string        `default:"GHS" usage:"ISO currency sent to Paystack"`
	CashDelay      time.Duration `default:"1500ms" usage:"Simulated kitchen submission time of cash orders"`
	SessionTTL     time.Duration `default:"2h" usage:"Idle storefront session lifetime"`
	PaymentTimeout time.Duration `default:"30m" usage:"How long a hosted payment is awaited"`
}

// PickupConfig is shown on order confirmations.
type PickupConfig struct {
	Location string        `default:"Matcha Bar, Osu Oxford Street" usage:"Pickup location"`
	Estimate time.Duration `default:"15m" usage:"Time from order to pickup"`
}

// CacheConfig controls Redis entry lifetimes.
type CacheConfig struct {
	OrderTTL   time.Duration `default:"5m" usage:"Order lookup cache TTL"`
	WebhookTTL time.Duration `default:"24h" usage:"How long webhook deliveries are remembered"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"120" usage:"Max requests per window"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "MATCHA",
		Files:     []string{"config.yaml", "/etc/matcha/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set MATCHA_DATABASE_URL or DATABASE_URL")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (DATABASE_URL, REDIS_URL, PORT) onto the MATCHA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisAddr == "" {
		c.RedisAddr = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
