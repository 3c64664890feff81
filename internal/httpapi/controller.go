package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	auth "github.com/goliatone/go-workspace-auth"
	"github.com/goliatone/go-workspace-auth/middleware/sessionware"
	"github.com/goliatone/go-workspace-auth/provisioning"
)

const stateCookieName = "auth_state"

// PrincipalRegistry records verified identities. EnsurePrincipal reports
// true only the first time a principal is seen.
type PrincipalRegistry interface {
	EnsurePrincipal(ctx context.Context, principal auth.Principal) (bool, error)
}

// WorkspaceReader looks up what provisioning created
type WorkspaceReader interface {
	FindPersonalWorkspace(ctx context.Context, principalID string) (*provisioning.Workspace, error)
	FindEntitlement(ctx context.Context, workspaceID uuid.UUID) (*provisioning.TrialEntitlement, error)
}

// Provisioner starts the one-time bootstrap without blocking the caller
type Provisioner interface {
	ProvisionAsync(principal auth.Principal)
}

// SessionIssuer mints tokens and describes the cookie they travel in
type SessionIssuer interface {
	auth.TokenIssuer
	TTL() time.Duration
	CookieName() string
}

type AuthControllerRoutes struct {
	Login       string
	Callback    string
	Logout      string
	Me          string
	Workspace   string
	AfterLogin  string
	AfterLogout string
}

type AuthController struct {
	Logger       auth.Logger
	Provider     auth.IdentityProvider
	Principals   PrincipalRegistry
	Workspaces   WorkspaceReader
	Provisioner  Provisioner
	Sessions     SessionIssuer
	Activity     auth.ActivitySink
	States       *StateManager
	Routes       *AuthControllerRoutes
	SecureCookie bool
	Now          func() time.Time
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: auth.DefaultLogger(),
		Routes: &AuthControllerRoutes{
			Login:       "/auth/login",
			Callback:    "/auth/callback",
			Logout:      "/auth/logout",
			Me:          "/api/me",
			Workspace:   "/api/workspace",
			AfterLogin:  "/",
			AfterLogout: "/",
		},
		Now: time.Now,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Provider == nil {
		panic("Missing IdentityProvider in auth controller...")
	}

	if c.Principals == nil {
		panic("Missing PrincipalRegistry in auth controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionIssuer in auth controller...")
	}

	if c.States == nil {
		c.States = newRandomStateManager()
	}

	c.Logger = auth.NormalizeLogger(c.Logger)

	return c
}

func WithLogger(logger auth.Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = logger
		return c
	}
}

func WithProvider(provider auth.IdentityProvider) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Provider = provider
		return c
	}
}

func WithPrincipals(principals PrincipalRegistry) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Principals = principals
		return c
	}
}

func WithWorkspaces(workspaces WorkspaceReader) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Workspaces = workspaces
		return c
	}
}

func WithProvisioner(provisioner Provisioner) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Provisioner = provisioner
		return c
	}
}

func WithSessions(sessions SessionIssuer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Sessions = sessions
		return c
	}
}

func WithActivitySink(sink auth.ActivitySink) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Activity = sink
		return c
	}
}

// WithStateManager shares login state signing across instances
func WithStateManager(states *StateManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.States = states
		return c
	}
}

func WithSecureCookie(secure bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.SecureCookie = secure
		return c
	}
}

func WithClock(now func() time.Time) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if now != nil {
			c.Now = now
		}
		return c
	}
}

// RegisterRoutes mounts the login flow and the session protected API
func RegisterRoutes(app fiber.Router, controller *AuthController, validator auth.TokenValidator) {
	protected := sessionware.New(sessionware.Config{
		TokenValidator: validator,
		TokenLookup:    "cookie:" + controller.Sessions.CookieName() + ",header:" + fiber.HeaderAuthorization,
		Logger:         controller.Logger,
	})

	app.Get(controller.Routes.Login, controller.Login).Name("sign-in.get")
	app.Get(controller.Routes.Callback, controller.Callback).Name("sign-in.callback")
	app.Get(controller.Routes.Logout, controller.Logout).Name("sign-out.get")
	app.Post(controller.Routes.Logout, controller.Logout).Name("sign-out.post")

	app.Get(controller.Routes.Me, protected, controller.Me).Name("api.me")
	app.Get(controller.Routes.Workspace, protected, controller.Workspace).Name("api.workspace")
}

// Login starts the identity provider flow with a signed one-time state.
// A local return_to path is carried through to the callback.
func (a *AuthController) Login(c *fiber.Ctx) error {
	state, err := a.States.Encode(&LoginState{ReturnTo: safeReturnTo(c.Query("return_to"))})
	if err != nil {
		a.Logger.Error("failed to generate login state", "error", err)
		return fiber.ErrInternalServerError
	}

	target, err := a.Provider.AuthorizationURL(state)
	if err != nil {
		a.Logger.Error("failed to build authorization URL", "error", err)
		return fiber.ErrBadGateway
	}

	c.Cookie(&fiber.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  a.Now().Add(a.States.ttl),
		HTTPOnly: true,
		Secure:   a.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Redirect(target, fiber.StatusFound)
}

// Callback completes login: verify the identity, register the principal,
// start provisioning for first-time principals and issue the session.
func (a *AuthController) Callback(c *fiber.Ctx) error {
	ctx := c.UserContext()

	expected := c.Cookies(stateCookieName)
	c.ClearCookie(stateCookieName)
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(c.Query("state"))) != 1 {
		a.recordActivity(ctx, auth.ActivityEventLoginFailure, "", map[string]any{"reason": "state_mismatch"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidState.Message})
	}

	state, err := a.States.Decode(expected)
	if err != nil {
		a.recordActivity(ctx, auth.ActivityEventLoginFailure, "", map[string]any{"reason": "state_invalid"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	principal, err := a.Provider.Authenticate(ctx, c.Query("code"))
	if err != nil {
		a.Logger.Info("login rejected by identity provider", "error", err)
		a.recordActivity(ctx, auth.ActivityEventLoginFailure, "", map[string]any{"reason": "authentication_failed"})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication failed"})
	}

	created, err := a.Principals.EnsurePrincipal(ctx, principal)
	if err != nil {
		a.Logger.Error("failed to record principal", "principal_id", principal.ID, "error", err)
		return fiber.ErrInternalServerError
	}

	if created && a.Provisioner != nil {
		a.Provisioner.ProvisionAsync(principal)
	}

	token, err := a.Sessions.Issue(principal)
	if err != nil {
		a.Logger.Error("failed to issue session", "principal_id", principal.ID, "error", err)
		return fiber.ErrInternalServerError
	}

	c.Cookie(&fiber.Cookie{
		Name:     a.Sessions.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  a.Now().Add(a.Sessions.TTL()),
		HTTPOnly: true,
		Secure:   a.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	a.recordActivity(ctx, auth.ActivityEventLoginSuccess, principal.ID, map[string]any{"first_login": created})

	returnTo := a.Routes.AfterLogin
	if state.ReturnTo != "" {
		returnTo = state.ReturnTo
	}

	return c.Redirect(returnTo, fiber.StatusSeeOther)
}

// Logout drops the session cookie. Tokens are stateless so nothing else
// needs revoking.
func (a *AuthController) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     a.Sessions.CookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   a.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	a.recordActivity(c.UserContext(), auth.ActivityEventLogout, "", nil)

	return c.Redirect(a.Routes.AfterLogout, fiber.StatusSeeOther)
}

// Me returns the principal carried by the session
func (a *AuthController) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c.UserContext())
	if !ok {
		return fiber.ErrUnauthorized
	}
	return c.JSON(principal)
}

// WorkspaceResponse describes the caller's personal workspace
type WorkspaceResponse struct {
	Workspace   *provisioning.Workspace        `json:"workspace"`
	Entitlement *provisioning.TrialEntitlement `json:"entitlement,omitempty"`
}

// Workspace returns the personal workspace. While provisioning is still
// running, or after it failed, the answer is 404 with status "pending".
func (a *AuthController) Workspace(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c.UserContext())
	if !ok {
		return fiber.ErrUnauthorized
	}

	if a.Workspaces == nil {
		return fiber.ErrNotImplemented
	}

	workspace, err := a.Workspaces.FindPersonalWorkspace(c.UserContext(), principal.ID)
	if errors.Is(err, provisioning.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "workspace not ready",
			"status": "pending",
		})
	}
	if err != nil {
		a.Logger.Error("failed to load workspace", "principal_id", principal.ID, "error", err)
		return fiber.ErrInternalServerError
	}

	resp := WorkspaceResponse{Workspace: workspace}
	entitlement, err := a.Workspaces.FindEntitlement(c.UserContext(), workspace.ID)
	switch {
	case err == nil:
		resp.Entitlement = entitlement
	case !errors.Is(err, provisioning.ErrNotFound):
		a.Logger.Error("failed to load entitlement", "workspace_id", workspace.ID.String(), "error", err)
	}

	return c.JSON(resp)
}

func (a *AuthController) recordActivity(ctx context.Context, eventType auth.ActivityEventType, principalID string, metadata map[string]any) {
	auth.RecordActivity(ctx, a.Activity, a.Logger, auth.ActivityEvent{
		EventType:   eventType,
		PrincipalID: principalID,
		Metadata:    metadata,
		OccurredAt:  a.Now(),
	})
}
