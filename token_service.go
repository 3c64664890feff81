package auth

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultTokenTTL is used when SessionConfig.TTL is zero
	DefaultTokenTTL = 7 * 24 * time.Hour
	// DefaultCookieName is used when SessionConfig.CookieName is empty
	DefaultCookieName = "session"
	// MinSecretLength is the recommended minimum signing secret size in bytes
	MinSecretLength = 32
)

// SessionConfig carries the process wide session settings. It is passed
// explicitly so parallel instances can run with different secrets.
type SessionConfig struct {
	Secret     []byte
	TTL        time.Duration
	CookieName string
}

// Validate checks the configuration is usable for issuing tokens
func (c SessionConfig) Validate() error {
	if len(c.Secret) == 0 {
		return goerrors.New("session secret is required", goerrors.CategoryValidation)
	}
	if c.TTL < 0 {
		return goerrors.New("session TTL must be non-negative", goerrors.CategoryValidation)
	}
	return nil
}

// TokenService issues and validates session tokens for one SessionConfig
type TokenService struct {
	cfg    SessionConfig
	logger Logger
	now    func() time.Time
}

var (
	_ TokenIssuer    = (*TokenService)(nil)
	_ TokenValidator = (*TokenService)(nil)
)

// TokenServiceOption customizes a TokenService
type TokenServiceOption func(*TokenService)

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger sets the logger used for issuance failures.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		ts.logger = NormalizeLogger(logger)
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg SessionConfig, opts ...TokenServiceOption) (*TokenService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.TTL == 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	ts := &TokenService{
		cfg:    cfg,
		logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts, nil
}

// Issue creates a session token for principal
func (ts *TokenService) Issue(principal Principal) (string, error) {
	token, err := issueTokenAt(ts.now(), principal.ID, principal.Email, principal.Name, ts.cfg.TTL, ts.cfg.Secret)
	if err != nil {
		ts.logger.Error("TokenService failed to issue token", "subject", principal.ID, "error", err)
		return "", err
	}
	return token, nil
}

// Validate verifies token at the current time
func (ts *TokenService) Validate(token string) (*Principal, error) {
	return VerifyToken(token, ts.cfg.Secret, ts.now().Unix())
}

// TTL returns the lifetime of issued tokens
func (ts *TokenService) TTL() time.Duration {
	return ts.cfg.TTL
}

// CookieName returns the cookie the token is expected in
func (ts *TokenService) CookieName() string {
	return ts.cfg.CookieName
}
