package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL       string        `env:"DATABASE_URL,required"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`

	Port     string `env:"PORT" envDefault:"8080"`
	RedisURL string `env:"REDIS_URL"`

	JWTSecret       string        `env:"JWT_SECRET,required"`
	JWTAlgorithm    string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	CodeSalt              string        `env:"CODE_SALT,required"`
	CodeTTL               time.Duration `env:"CODE_TTL" envDefault:"5m"`
	CodeMaxAttempts       int           `env:"CODE_MAX_ATTEMPTS" envDefault:"5"`
	CodeRequestsPerWindow int           `env:"CODE_REQUESTS_PER_WINDOW" envDefault:"3"`
	CodeRequestWindow     time.Duration `env:"CODE_REQUEST_WINDOW" envDefault:"10m"`

	IdentityCacheTTL      time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"10m"`
	CacheInvalidateRepeat time.Duration `env:"CACHE_INVALIDATE_REPEAT" envDefault:"1s"`

	// Per client IP on the public auth endpoints
	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT" envDefault:"1"`
	AuthRateBurst int     `env:"AUTH_RATE_BURST" envDefault:"5"`

	SMSAeroURL    string `env:"SMSAERO_URL"`
	SMSAeroEmail  string `env:"SMSAERO_EMAIL"`
	SMSAeroAPIKey string `env:"SMSAERO_API_KEY"`
	SMSAeroSign   string `env:"SMSAERO_SIGN" envDefault:"SMS Aero"`

	IPWhoisURL    string `env:"IPWHOIS_URL"`
	IPWhoisAPIKey string `env:"IPWHOIS_API_KEY"`

	// DevMode uses the fixed code 0000 and logs codes instead of sending them
	DevMode  bool   `env:"DEV_MODE" envDefault:"false"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AdminCanViewAdmin bool `env:"ADMIN_CAN_VIEW_ADMIN" envDefault:"false"`
}

var algorithms = map[string]bool{"HS256": true, "HS384": true, "HS512": true}

// Load reads .env files (if present) and then environment variables.
// Variables already set in the environment win over .env values.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.JWTAlgorithm = strings.ToUpper(c.JWTAlgorithm)
	if !algorithms[c.JWTAlgorithm] {
		return fmt.Errorf("config: unsupported JWT_ALGORITHM %q", c.JWTAlgorithm)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("config: token TTLs must be positive")
	}
	if c.CodeTTL <= 0 || c.CodeMaxAttempts <= 0 {
		return fmt.Errorf("config: CODE_TTL and CODE_MAX_ATTEMPTS must be positive")
	}
	if !c.DevMode && (c.SMSAeroEmail == "" || c.SMSAeroAPIKey == "") {
		return fmt.Errorf("config: SMSAERO_EMAIL and SMSAERO_API_KEY are required outside DEV_MODE")
	}
	return nil
}
