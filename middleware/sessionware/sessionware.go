package sessionware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	auth "github.com/goliatone/go-workspace-auth"
)

var (
	defaultTokenLookup = "cookie:" + auth.DefaultCookieName + ",header:" + fiber.HeaderAuthorization
	// ErrSessionMissing means no extractor found a token on the request
	ErrSessionMissing = errors.New("missing session token")
)

// Config configures the session middleware
type Config struct {
	// Filter skips the middleware when it returns true
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	// ErrorHandler runs for a missing token and for every verification
	// failure. The default answers 401 without saying why.
	ErrorHandler   func(*fiber.Ctx, error) error
	TokenValidator auth.TokenValidator
	ContextKey     string
	// TokenLookup is a comma separated list of source:name pairs, for
	// example "cookie:session,header:Authorization"
	TokenLookup string
	AuthScheme  string
	// RedirectURL makes the default error handler redirect instead of 401
	RedirectURL string
	Logger      auth.Logger
}

// New returns a fiber handler that admits requests carrying a valid session
// token and stores the principal in locals and the user context.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		principal, err := cfg.TokenValidator.Validate(raw)
		if err != nil {
			if f, ok := auth.AsVerificationFailure(err); ok {
				cfg.Logger.Debug("session rejected", "kind", f.Kind, "path", c.Path())
			}
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, principal)
		c.SetUserContext(auth.WithPrincipal(c.UserContext(), principal))

		return cfg.SuccessHandler(c)
	}
}

// GetDefaultConfig fills unset fields. It panics without a TokenValidator.
func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: session middleware configuration: TokenValidator is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		redirect := cfg.RedirectURL
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			if redirect != "" {
				return c.Redirect(redirect, fiber.StatusSeeOther)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "principal"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	cfg.Logger = auth.NormalizeLogger(cfg.Logger)

	return cfg
}

// PrincipalFromLocals returns the principal stored by the middleware
func PrincipalFromLocals(c *fiber.Ctx, key ...string) (*auth.Principal, bool) {
	k := "principal"
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	principal, ok := c.Locals(k).(*auth.Principal)
	return principal, ok && principal != nil
}

// Extractor pulls a raw token from the request
type Extractor func(c *fiber.Ctx) (string, error)

// ExtractRawToken returns the first token any extractor finds
func ExtractRawToken(c *fiber.Ctx, extractors []Extractor) (string, error) {
	err := ErrSessionMissing
	for _, extractor := range extractors {
		raw, exErr := extractor(c)
		if raw != "" && exErr == nil {
			return raw, nil
		}
		if exErr != nil {
			err = exErr
		}
	}
	return "", err
}

// GetExtractors parses a lookup such as "cookie:session,header:Authorization,query:token"
func GetExtractors(tokenLookup string, authScheme string) []Extractor {
	extractors := make([]Extractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(rootPart), ":")
		if !ok {
			continue
		}
		source = strings.TrimSpace(source)
		name = strings.TrimSpace(name)

		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

func fromHeader(header string, authScheme string) Extractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if l == 0 {
			if a == "" {
				return "", ErrSessionMissing
			}
			return strings.TrimSpace(a), nil
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrSessionMissing
	}
}

func fromQuery(param string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrSessionMissing
		}
		return token, nil
	}
}

func fromCookie(name string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrSessionMissing
		}
		return token, nil
	}
}
