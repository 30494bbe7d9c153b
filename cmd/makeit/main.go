package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/iskim1407-claw/makeit/internal/adapter/cache"
	"github.com/iskim1407-claw/makeit/internal/adapter/codegen"
	"github.com/iskim1407-claw/makeit/internal/adapter/github"
	"github.com/iskim1407-claw/makeit/internal/adapter/identity"
	oauthadapter "github.com/iskim1407-claw/makeit/internal/adapter/oauth"
	"github.com/iskim1407-claw/makeit/internal/adapter/vercel"
	"github.com/iskim1407-claw/makeit/internal/bootstrap"
	"github.com/iskim1407-claw/makeit/internal/config"
	httptransport "github.com/iskim1407-claw/makeit/internal/http"
	"github.com/iskim1407-claw/makeit/internal/http/handler"
	httpmiddleware "github.com/iskim1407-claw/makeit/internal/http/middleware"
	"github.com/iskim1407-claw/makeit/internal/jwt"
	"github.com/iskim1407-claw/makeit/internal/repository"
	"github.com/iskim1407-claw/makeit/internal/server"
	authservice "github.com/iskim1407-claw/makeit/internal/service/auth"
	"github.com/iskim1407-claw/makeit/internal/service/credential"
	"github.com/iskim1407-claw/makeit/internal/service/deploy"
	"github.com/iskim1407-claw/makeit/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			telemetry.NewMetrics,
			newSnowflake,
			newCredentialRepository,
			newOAuthStateStore,
			newUpstreamHTTPClient,
			newOAuthProviderClient,
			newIdentityClient,
			newGitHubClient,
			newVercelClient,
			newGenerator,
			newStateCodec,
			newSessionVerifier,
			authservice.ProviderRegistry,
			credential.NewService,
			authservice.NewOAuthService,
			newOrchestrator,
			newRateLimiter,
			newSessionMiddleware,
			handler.NewOAuthHandler,
			handler.NewTokenHandler,
			newDeployHandler,
			newHandlers,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, logProviderSetup, bootstrap.EnsureSchema, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Environment == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	logger, err := zcfg.Build(zap.Fields(
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}
	if !provider.Enabled() {
		logger.Info("tracing disabled; OTEL_EXPORTER_OTLP_ENDPOINT not set")
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// newCredentialRepository opens the postgres pool only for the postgres
// token store; the memory store keeps credentials for the process lifetime.
func newCredentialRepository(lc fx.Lifecycle, cfg config.Config, node *snowflake.Node, logger *zap.Logger) (repository.CredentialRepository, error) {
	if cfg.TokenStore == "memory" {
		logger.Warn("using in-memory token store; credentials are lost on restart")
		return repository.NewMemoryCredentialRepo(node), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return repository.NewPostgresCredentialRepo(pool, node), nil
}

func newOAuthStateStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.OAuthStateStore, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR empty; oauth state nonces kept in memory")
		return repository.NewMemoryStateStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cacheadapter.NewRedisStateStore(client, cacheadapter.DefaultStatePrefix), nil
}

func newUpstreamHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{Timeout: cfg.UpstreamTimeout}
}

func newOAuthProviderClient(client *http.Client) oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(client)
}

func newIdentityClient(cfg config.Config, client *http.Client) identity.Client {
	return identity.NewHTTPClient(cfg.IdentityURL, cfg.IdentityAPIKey, client)
}

func newGitHubClient(cfg config.Config, client *http.Client) *github.Client {
	return github.NewClient(cfg.GitHubAPIURL, client)
}

func newVercelClient(cfg config.Config, client *http.Client) *vercel.Client {
	return vercel.NewClient(cfg.VercelAPIURL, cfg.VercelTeamID, client)
}

func newGenerator(cfg config.Config) codegen.Generator {
	return codegen.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
}

func newStateCodec(cfg config.Config) *jwt.StateCodec {
	return jwt.NewStateCodec(cfg.StateSecret, cfg.StateTTL)
}

func newSessionVerifier(cfg config.Config) *jwt.SessionVerifier {
	return jwt.NewSessionVerifier(cfg.SessionSecret)
}

func newOrchestrator(cfg config.Config, credentials credential.Service, gh *github.Client, vc *vercel.Client, metrics *telemetry.Metrics, logger *zap.Logger) *deploy.Orchestrator {
	return deploy.NewOrchestrator(credentials, gh, vc, deploy.Options{
		ReadyAttempts:   cfg.RepoReadyAttempts,
		ReadyInterval:   cfg.RepoReadyInterval,
		BlobConcurrency: cfg.BlobConcurrency,
	}, metrics, logger)
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newSessionMiddleware(cfg config.Config, verifier *jwt.SessionVerifier) *httpmiddleware.Session {
	return httpmiddleware.NewSession(verifier, cfg.SessionCookie)
}

func newDeployHandler(orchestrator *deploy.Orchestrator, generator codegen.Generator, logger *zap.Logger) *handler.DeployHandler {
	return handler.NewDeployHandler(orchestrator, generator, logger)
}

func newHandlers(oauth *handler.OAuthHandler, tokens *handler.TokenHandler, deployHandler *handler.DeployHandler) httptransport.Handlers {
	return httptransport.Handlers{OAuth: oauth, Tokens: tokens, Deploy: deployHandler}
}

// startHTTPServer runs the server for the lifetime of the fx app. A listen
// failure shuts the app down instead of leaving it running without HTTP.
func startHTTPServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stop()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}

func logProviderSetup(cfg config.Config, logger *zap.Logger) {
	for name, creds := range map[string]config.ProviderCredentials{"github": cfg.GitHub, "vercel": cfg.Vercel} {
		if !creds.Configured() {
			logger.Warn("oauth client not configured; connect flow will fail", zap.String("provider", name))
		}
	}
}
