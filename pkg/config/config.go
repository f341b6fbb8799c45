package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "storefront"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv         = "STOREFRONT_APP_ENV"
	EnvGatewayBaseURL = "STOREFRONT_GATEWAY_BASE_URL"
	EnvPublishableKey = "STOREFRONT_GATEWAY_PUBLISHABLE_KEY"
	EnvRedisURL       = "STOREFRONT_REDIS_URL"
)

type Config struct {
	App     AppConfig
	Gateway GatewayConfig
	Redis   RedisConfig
	Slots   SlotsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Gateway.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type GatewayConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_GATEWAY_BASE_URL" required:"true"`
	PublishableKey string        `envconfig:"STOREFRONT_GATEWAY_PUBLISHABLE_KEY" required:"true"`
	RequestTimeout time.Duration `envconfig:"STOREFRONT_GATEWAY_REQUEST_TIMEOUT" default:"15s"`

	BreakerMaxRequests  uint32        `envconfig:"STOREFRONT_GATEWAY_BREAKER_MAX_REQUESTS" default:"3"`
	BreakerInterval     time.Duration `envconfig:"STOREFRONT_GATEWAY_BREAKER_INTERVAL" default:"60s"`
	BreakerTimeout      time.Duration `envconfig:"STOREFRONT_GATEWAY_BREAKER_TIMEOUT" default:"30s"`
	BreakerMinRequests  uint32        `envconfig:"STOREFRONT_GATEWAY_BREAKER_MIN_REQUESTS" default:"5"`
	BreakerFailureRatio float64       `envconfig:"STOREFRONT_GATEWAY_BREAKER_FAILURE_RATIO" default:"0.6"`
}

func (g GatewayConfig) validate() error {
	parsed, err := url.Parse(g.BaseURL)
	if err != nil {
		return fmt.Errorf("parsing gateway base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("gateway base url must be http(s), got %q", g.BaseURL)
	}
	if strings.TrimSpace(g.PublishableKey) == "" {
		return fmt.Errorf("gateway publishable key is required")
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SlotsConfig names the durable key-value slots holding the persisted cart
// snapshot and the authenticated session.
type SlotsConfig struct {
	CartKey    string `envconfig:"STOREFRONT_SLOT_CART_KEY" default:"cart_snapshot"`
	SessionKey string `envconfig:"STOREFRONT_SLOT_SESSION_KEY" default:"auth_session"`
}
