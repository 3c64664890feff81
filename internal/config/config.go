package config

import (
	"context"
	"os"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	auth "github.com/goliatone/go-workspace-auth"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Session      SessionConfig
	DB           DBConfig
	Redis        RedisConfig
	WorkOS       WorkOSConfig
	Provisioning ProvisioningConfig
}

type SessionConfig struct {
	Secret     string        `env:"SESSION_SECRET, required"`
	TTL        time.Duration `env:"SESSION_TTL,    default=168h"`
	CookieName string        `env:"SESSION_COOKIE, default=session"`
	// PreviousSecret keeps tokens signed before a rotation valid
	PreviousSecret string `env:"SESSION_PREVIOUS_SECRET"`
}

type DBConfig struct {
	Driver string `env:"DB_DRIVER, default=sqlite"`
	DSN    string `env:"DB_DSN,    default=file:workspace.db?cache=shared"`
}

type RedisConfig struct {
	// Addr is optional, the provisioning guard is disabled without it
	Addr string `env:"REDIS_ADDR"`
	DB   int    `env:"REDIS_DB, default=0"`
}

type WorkOSConfig struct {
	APIKey      string `env:"WORKOS_API_KEY"`
	ClientID    string `env:"WORKOS_CLIENT_ID"`
	RedirectURI string `env:"WORKOS_REDIRECT_URI, default=http://localhost:8080/auth/callback"`
}

type ProvisioningConfig struct {
	TrialDays     int           `env:"TRIAL_DAYS,                  default=14"`
	CampaignKey   string        `env:"ONBOARDING_CAMPAIGN,         default=onboarding"`
	RetryAttempts int           `env:"PROVISIONING_RETRY_ATTEMPTS, default=3"`
	RetryBase     time.Duration `env:"PROVISIONING_RETRY_BASE,     default=100ms"`
}

// IsDevelopment reports whether the binary runs locally
func (c Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "dev"
}

// TrialPeriod is the configured trial length
func (c ProvisioningConfig) TrialPeriod() time.Duration {
	return time.Duration(c.TrialDays) * 24 * time.Hour
}

// SessionConfig returns the token settings for the auth package
func (c Config) SessionConfig() auth.SessionConfig {
	return auth.SessionConfig{
		Secret:     []byte(c.Session.Secret),
		TTL:        c.Session.TTL,
		CookieName: c.Session.CookieName,
	}
}

// Validate checks values envconfig cannot express as tags
func (c Config) Validate() error {
	if len(c.Session.Secret) < auth.MinSecretLength {
		return goerrors.New("SESSION_SECRET must be at least 32 bytes", goerrors.CategoryValidation)
	}
	if c.Session.PreviousSecret != "" && len(c.Session.PreviousSecret) < auth.MinSecretLength {
		return goerrors.New("SESSION_PREVIOUS_SECRET must be at least 32 bytes", goerrors.CategoryValidation)
	}
	if c.Session.TTL < time.Second {
		return goerrors.New("SESSION_TTL must be at least one second", goerrors.CategoryValidation)
	}
	if c.Provisioning.TrialDays < 1 {
		return goerrors.New("TRIAL_DAYS must be positive", goerrors.CategoryValidation)
	}
	return nil
}

// Load reads an optional .env file and then the environment.
func Load(ctx context.Context) (*Config, error) {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to read env file")
		}
	} else {
		_ = godotenv.Load(".env")
	}

	return LoadWith(ctx, nil)
}

// LoadWith processes configuration from lookuper, or the OS environment
// when lookuper is nil.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config

	ec := &envconfig.Config{Target: &cfg}
	if lookuper != nil {
		ec.Lookuper = lookuper
	}

	if err := envconfig.ProcessWith(ctx, ec); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
