package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	PublicURL            string
	ServiceName          string
	DatabaseURL          string
	TokenStore           string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	SessionSecret        string
	SessionCookie        string
	StateSecret          string
	StateTTL             time.Duration
	IdentityURL          string
	IdentityAPIKey       string
	GitHub               ProviderCredentials
	Vercel               ProviderCredentials
	VercelTeamID         string
	GitHubAPIURL         string
	VercelAPIURL         string
	RepoReadyAttempts    int
	RepoReadyInterval    time.Duration
	BlobConcurrency      int
	UpstreamTimeout      time.Duration
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TelemetrySampleRatio float64
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// ProviderCredentials holds the OAuth client registration for one provider.
// Either value being empty disables that provider's authorization flow.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both halves of the client registration exist.
func (p ProviderCredentials) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_JWT_SECRET"))
	if sessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_JWT_SECRET is required")
	}

	cfg := Config{
		Environment:    getEnv("APP_ENV", "development"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		PublicURL:      strings.TrimRight(getEnv("PUBLIC_URL", ""), "/"),
		ServiceName:    getEnv("SERVICE_NAME", "makeit"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		TokenStore:     strings.ToLower(getEnv("TOKEN_STORE", "postgres")),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getInt("REDIS_DB", 0),
		SessionSecret:  sessionSecret,
		SessionCookie:  getEnv("SESSION_COOKIE", "makeit_session"),
		StateSecret:    getEnv("STATE_SECRET", sessionSecret),
		StateTTL:       getDuration("OAUTH_STATE_TTL", 10*time.Minute),
		IdentityURL:    strings.TrimRight(os.Getenv("IDENTITY_URL"), "/"),
		IdentityAPIKey: os.Getenv("IDENTITY_API_KEY"),
		GitHub: ProviderCredentials{
			ClientID:     strings.TrimSpace(os.Getenv("GITHUB_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("GITHUB_CLIENT_SECRET")),
		},
		Vercel: ProviderCredentials{
			ClientID:     strings.TrimSpace(os.Getenv("VERCEL_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("VERCEL_CLIENT_SECRET")),
		},
		VercelTeamID:         os.Getenv("VERCEL_TEAM_ID"),
		GitHubAPIURL:         getEnv("GITHUB_API_URL", "https://api.github.com"),
		VercelAPIURL:         getEnv("VERCEL_API_URL", "https://api.vercel.com"),
		RepoReadyAttempts:    getInt("REPO_READY_ATTEMPTS", 5),
		RepoReadyInterval:    getDuration("REPO_READY_INTERVAL", time.Second),
		BlobConcurrency:      getInt("DEPLOY_BLOB_CONCURRENCY", 16),
		UpstreamTimeout:      getDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:        os.Getenv("OPENAI_BASE_URL"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TelemetrySampleRatio: getFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	switch cfg.TokenStore {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return Config{}, fmt.Errorf("TOKEN_STORE must be postgres or memory")
	}

	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.RepoReadyAttempts < 1 {
		cfg.RepoReadyAttempts = 1
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
