// Package workos adapts WorkOS User Management to auth.IdentityProvider.
//
// The login callback code is exchanged for a WorkOS user, which becomes the
// auth.Principal the session token is issued for. How WorkOS verified the
// user (SSO, passwords, magic links) stays opaque to this module.
package workos

import (
	"context"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/workos/workos-go/v6/pkg/usermanagement"

	auth "github.com/goliatone/go-workspace-auth"
)

// DefaultProvider is the AuthKit hosted login
const DefaultProvider = "authkit"

// ErrInvalidCode is returned when WorkOS rejects the callback code
var ErrInvalidCode = goerrors.New("invalid authorization code", goerrors.CategoryAuth).
	WithTextCode("INVALID_AUTHORIZATION_CODE").
	WithCode(goerrors.CodeUnauthorized)

// Config holds the WorkOS client settings.
type Config struct {
	// APIKey authenticates calls to WorkOS
	APIKey string
	// ClientID identifies the application
	ClientID string
	// RedirectURI must match one configured in the WorkOS dashboard
	RedirectURI string
	// Provider selects the login experience. Default: "authkit".
	Provider string
}

// Client is the part of the WorkOS user management API the provider calls
type Client interface {
	GetAuthorizationURL(opts usermanagement.GetAuthorizationURLOpts) (*url.URL, error)
	AuthenticateWithCode(ctx context.Context, opts usermanagement.AuthenticateWithCodeOpts) (usermanagement.AuthenticateResponse, error)
}

type packageClient struct{}

func (packageClient) GetAuthorizationURL(opts usermanagement.GetAuthorizationURLOpts) (*url.URL, error) {
	return usermanagement.GetAuthorizationURL(opts)
}

func (packageClient) AuthenticateWithCode(ctx context.Context, opts usermanagement.AuthenticateWithCodeOpts) (usermanagement.AuthenticateResponse, error) {
	return usermanagement.AuthenticateWithCode(ctx, opts)
}

// IdentityProvider implements auth.IdentityProvider on top of WorkOS
type IdentityProvider struct {
	cfg    Config
	client Client
	logger auth.Logger
}

var _ auth.IdentityProvider = (*IdentityProvider)(nil)

// Option customizes an IdentityProvider
type Option func(*IdentityProvider)

// WithClient replaces the WorkOS API client.
func WithClient(client Client) Option {
	return func(p *IdentityProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithLogger sets the logger for failed exchanges.
func WithLogger(logger auth.Logger) Option {
	return func(p *IdentityProvider) {
		p.logger = auth.NormalizeLogger(logger)
	}
}

// NewIdentityProvider configures the WorkOS SDK and returns the provider.
func NewIdentityProvider(cfg Config, opts ...Option) (*IdentityProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, goerrors.New("workos client id is required", goerrors.CategoryValidation)
	}
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}

	p := &IdentityProvider{
		cfg:    cfg,
		client: packageClient{},
		logger: auth.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	if _, ok := p.client.(packageClient); ok {
		if cfg.APIKey == "" {
			return nil, goerrors.New("workos api key is required", goerrors.CategoryValidation)
		}
		usermanagement.SetAPIKey(cfg.APIKey)
	}

	return p, nil
}

// AuthorizationURL returns the hosted login URL carrying state.
func (p *IdentityProvider) AuthorizationURL(state string) (string, error) {
	u, err := p.client.GetAuthorizationURL(usermanagement.GetAuthorizationURLOpts{
		ClientID:    p.cfg.ClientID,
		RedirectURI: p.cfg.RedirectURI,
		State:       state,
		Provider:    p.cfg.Provider,
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "failed to build authorization URL")
	}
	return u.String(), nil
}

// Authenticate exchanges the callback code for a verified principal.
func (p *IdentityProvider) Authenticate(ctx context.Context, code string) (auth.Principal, error) {
	if strings.TrimSpace(code) == "" {
		return auth.Principal{}, ErrInvalidCode
	}

	resp, err := p.client.AuthenticateWithCode(ctx, usermanagement.AuthenticateWithCodeOpts{
		ClientID: p.cfg.ClientID,
		Code:     code,
	})
	if err != nil {
		p.logger.Error("workos code exchange failed", "error", err)
		return auth.Principal{}, ErrInvalidCode
	}

	if resp.User.ID == "" {
		return auth.Principal{}, ErrInvalidCode
	}

	return PrincipalFromUser(resp.User), nil
}

// PrincipalFromUser maps a WorkOS user to a session principal
func PrincipalFromUser(user usermanagement.User) auth.Principal {
	return auth.Principal{
		ID:    user.ID,
		Email: user.Email,
		Name:  displayName(user),
	}
}

func displayName(user usermanagement.User) string {
	first := strings.TrimSpace(user.FirstName)
	last := strings.TrimSpace(user.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return last
	}
}
