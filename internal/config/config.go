package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	DBDSN           string        `envconfig:"DB_DSN" required:"true"`
	JWTIssuer       string        `envconfig:"JWT_ISSUER" default:"lv-tradedesk"`
	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL          time.Duration `envconfig:"JWT_TTL" default:"24h"`
	InternalToken   string        `envconfig:"INTERNAL_API_TOKEN" required:"true"`
	WebSocketOrigin string        `envconfig:"WS_ORIGIN" default:"*"`
	Mode            string        `envconfig:"APP_MODE" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	SessionCookie   string        `envconfig:"SESSION_COOKIE" default:"session"`
	UIDist          string        `envconfig:"UI_DIST"`

	DefaultLeverage int             `envconfig:"DEFAULT_LEVERAGE" default:"1"`
	CommissionRate  decimal.Decimal `envconfig:"COMMISSION_RATE" default:"0.001"`
	SignupBalance   decimal.Decimal `envconfig:"SIGNUP_BALANCE" default:"0"`
	Symbols         []string        `envconfig:"SYMBOLS" default:"AAPL,MSFT,GOOGL,AMZN,TSLA,NVDA"`

	MarginSweepInterval    time.Duration `envconfig:"MARGIN_SWEEP_INTERVAL" default:"30s"`
	PositionSweepInterval  time.Duration `envconfig:"POSITION_SWEEP_INTERVAL" default:"15s"`
	OrderSweepInterval     time.Duration `envconfig:"ORDER_SWEEP_INTERVAL" default:"10s"`
	FundingSweepInterval   time.Duration `envconfig:"FUNDING_SWEEP_INTERVAL" default:"1m"`
	PriceBroadcastInterval time.Duration `envconfig:"PRICE_BROADCAST_INTERVAL" default:"2s"`

	Workers         int `envconfig:"WORKERS" default:"8"`
	StepMaxAttempts int `envconfig:"STEP_MAX_ATTEMPTS" default:"3"`

	QuoteCacheTTL   time.Duration `envconfig:"QUOTE_CACHE_TTL" default:"5s"`
	QuoteCacheMaxMB int           `envconfig:"QUOTE_CACHE_MAX_MB" default:"16"`
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	KafkaBrokers    []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic      string        `envconfig:"KAFKA_TOPIC" default:"tradedesk.events"`
	MarketDataURL   string        `envconfig:"MARKET_DATA_URL"`
	MarketDataToken string        `envconfig:"MARKET_DATA_TOKEN"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, fmt.Errorf("process env: %w", err)
	}
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var problems []string
	if c.Mode != "development" && c.Mode != "production" {
		problems = append(problems, "APP_MODE must be development or production")
	}
	if c.DefaultLeverage < 1 {
		problems = append(problems, "DEFAULT_LEVERAGE must be >= 1")
	}
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		problems = append(problems, "COMMISSION_RATE must be in [0, 1)")
	}
	if c.SignupBalance.IsNegative() {
		problems = append(problems, "SIGNUP_BALANCE must not be negative")
	}
	if c.Workers < 1 {
		problems = append(problems, "WORKERS must be >= 1")
	}
	if c.StepMaxAttempts < 1 {
		problems = append(problems, "STEP_MAX_ATTEMPTS must be >= 1")
	}
	intervals := []struct {
		name string
		d    time.Duration
	}{
		{"MARGIN_SWEEP_INTERVAL", c.MarginSweepInterval},
		{"POSITION_SWEEP_INTERVAL", c.PositionSweepInterval},
		{"ORDER_SWEEP_INTERVAL", c.OrderSweepInterval},
		{"FUNDING_SWEEP_INTERVAL", c.FundingSweepInterval},
		{"PRICE_BROADCAST_INTERVAL", c.PriceBroadcastInterval},
		{"QUOTE_CACHE_TTL", c.QuoteCacheTTL},
	}
	for _, iv := range intervals {
		if iv.d <= 0 {
			problems = append(problems, iv.name+" must be positive")
		}
	}
	if len(c.Symbols) == 0 {
		problems = append(problems, "SYMBOLS must list at least one symbol")
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) Production() bool { return c.Mode == "production" }
