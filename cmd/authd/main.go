package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-workspace-auth"
	"github.com/goliatone/go-workspace-auth/activitymap"
	"github.com/goliatone/go-workspace-auth/internal/config"
	"github.com/goliatone/go-workspace-auth/internal/httpapi"
	"github.com/goliatone/go-workspace-auth/internal/logging"
	workos "github.com/goliatone/go-workspace-auth/provider/workos"
	"github.com/goliatone/go-workspace-auth/provisioning"
	"github.com/goliatone/go-workspace-auth/repository"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config       *config.Config
	logger       *logging.Logger
	db           *bun.DB
	redis        *redis.Client
	repo         repository.RepositoryManager
	tokens       *auth.TokenService
	validator    auth.TokenValidator
	orchestrator *provisioning.Orchestrator
	// unguarded options, the repair command must not be blocked by the
	// claim the first run left in redis
	provisioningOpts []provisioning.Option
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.IsDevelopment(),
	})

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}
	defer app.close()

	if len(args) > 0 && args[0] == "provision" {
		if err := app.provision(ctx, args[1:]); err != nil {
			logger.Error("provision command failed", "error", err)
			return 1
		}
		return 0
	}

	if err := app.serve(); err != nil {
		logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	a := &App{config: cfg, logger: logger}

	db, err := repository.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db

	if err := repository.Migrate(ctx, db); err != nil {
		return nil, err
	}

	if _, err := repository.SeedOnboardingCampaign(ctx, db, cfg.Provisioning.CampaignKey, "Onboarding", repository.DefaultOnboardingSteps); err != nil {
		return nil, err
	}

	a.repo = repository.NewRepositoryManager(db)
	a.repo.MustValidate()

	tokens, err := auth.NewTokenService(cfg.SessionConfig(), auth.WithTokenLogger(logger.With("component", "tokens")))
	if err != nil {
		return nil, err
	}
	a.tokens = tokens
	a.validator = tokens

	if cfg.Session.PreviousSecret != "" {
		previous := cfg.SessionConfig()
		previous.Secret = []byte(cfg.Session.PreviousSecret)
		old, err := auth.NewTokenService(previous)
		if err != nil {
			return nil, err
		}
		a.validator = auth.NewMultiTokenValidator(tokens, old)
	}

	opts := []provisioning.Option{
		provisioning.WithLogger(logger.With("component", "provisioning")),
		provisioning.WithActivitySink(a.activitySink()),
		provisioning.WithTrialPeriod(cfg.Provisioning.TrialPeriod()),
		provisioning.WithCampaignKey(cfg.Provisioning.CampaignKey),
		provisioning.WithRetryPolicy(provisioning.RetryPolicy{
			Attempts:  cfg.Provisioning.RetryAttempts,
			BaseDelay: cfg.Provisioning.RetryBase,
		}),
	}

	a.provisioningOpts = opts

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		opts = append(opts[:len(opts):len(opts)], provisioning.WithGuard(repository.NewRedisGuard(a.redis, repository.DefaultGuardTTL)))
	} else {
		logger.Info("REDIS_ADDR not set, provisioning runs without a duplicate guard")
	}

	a.orchestrator = provisioning.NewOrchestrator(a.repo, opts...)

	return a, nil
}

func (a *App) activitySink() auth.ActivitySink {
	return activitymap.NewLogSink(a.logger.With("component", "activity"))
}

func (a *App) serve() error {
	provider, err := workos.NewIdentityProvider(workos.Config{
		APIKey:      a.config.WorkOS.APIKey,
		ClientID:    a.config.WorkOS.ClientID,
		RedirectURI: a.config.WorkOS.RedirectURI,
	}, workos.WithLogger(a.logger.With("component", "workos")))
	if err != nil {
		return err
	}

	states, err := httpapi.NewStateManager([]byte(a.config.Session.Secret), httpapi.DefaultStateTTL)
	if err != nil {
		return err
	}

	controller := httpapi.NewAuthController(
		httpapi.WithLogger(a.logger.With("component", "http")),
		httpapi.WithProvider(provider),
		httpapi.WithPrincipals(a.repo),
		httpapi.WithWorkspaces(a.repo),
		httpapi.WithProvisioner(a.orchestrator),
		httpapi.WithSessions(a.tokens),
		httpapi.WithStateManager(states),
		httpapi.WithActivitySink(a.activitySink()),
		httpapi.WithSecureCookie(!a.config.IsDevelopment()),
	)

	srv := fiber.New(fiber.Config{
		AppName:               "authd",
		DisableStartupMessage: !a.config.IsDevelopment(),
	})
	srv.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	httpapi.RegisterRoutes(srv, controller, a.validator)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "port", a.config.Port)
		errCh <- srv.Listen(":" + a.config.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		a.logger.Info("shutting down", "signal", sig.String())
	}

	if err := srv.ShutdownWithTimeout(shutdownTimeout); err != nil {
		a.logger.Error("server shutdown failed", "error", err)
	}

	a.orchestrator.Wait()
	return nil
}

// provision reruns the saga for an existing principal, used to repair
// principals whose first run failed.
func (a *App) provision(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	id := fs.String("id", "", "principal id")
	email := fs.String("email", "", "principal email")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	msg := provisioning.ProvisionPrincipalMessage{
		PrincipalID: *id,
		Email:       *email,
		DisplayName: *name,
	}

	if msg.Email == "" {
		if record, err := a.repo.GetPrincipal(ctx, *id); err == nil {
			msg.Email = record.Email
			if msg.DisplayName == "" {
				msg.DisplayName = record.DisplayName
			}
		}
	}

	orchestrator := provisioning.NewOrchestrator(a.repo, a.provisioningOpts...)
	report, err := provisioning.NewProvisionPrincipalHandler(orchestrator).Execute(ctx, msg)
	if err != nil {
		return err
	}

	a.logger.Info("provision command finished",
		"principal_id", report.PrincipalID,
		"state", string(report.State),
		"workspace_slug", report.WorkspaceSlug,
		"resumed", report.Resumed,
		"already_provisioned", report.AlreadyProvisioned,
	)
	return nil
}

func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", "error", err)
		}
	}
}
