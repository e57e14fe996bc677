package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Auth modes
const (
	// AuthModeRemote validates sessions against the auth service endpoints
	AuthModeRemote = "remote"
	// AuthModeLocal keeps the signed-in user in local storage only (no backend)
	AuthModeLocal = "local"
)

// Config holds all configuration for the application
type Config struct {
	// HTTP Configuration
	HTTP HTTPConfig

	// Database Configuration
	Database DatabaseConfig

	// Auth Configuration
	Auth AuthConfig

	// Backend service base URLs
	Services ServicesConfig

	// Logging Configuration
	Logging LoggingConfig
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr            string
	CORSOrigins     []string
	PageIdleTimeout time.Duration // idle page sessions are dropped after this
	MaxPageSessions int           // live page sessions beyond this are refused
	OptimisticWait  time.Duration // how long the guard waits for bootstrap before showing the placeholder

	// TrustedProxies may set X-Forwarded-For. Empty means the client address
	// is always the TCP peer.
	TrustedProxies []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// DemoMode bypasses authentication and injects a fixed identity.
	// Resolved once at startup and never changed afterwards.
	DemoMode bool
	Mode     string // remote, local

	// Embedded serves the /auth/* endpoints from this process
	Embedded bool

	CookieName     string
	CookieSecure   bool
	JWTSecret      string
	SessionTTL     time.Duration
	SeedUsersPath  string
	StorageKey     string // local-storage key holding the serialized user
	LocalStorePath string // file used by the CLI in local mode
}

// ServicesConfig holds per-service base URLs
type ServicesConfig struct {
	AuthBaseURL      string
	AnalyticsBaseURL string
	AIEngineBaseURL  string
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	addr := getenv("SPACEFLOW_HTTP_ADDR", ":8080")

	demoRaw, demoSet := os.LookupEnv("SPACEFLOW_DEMO_AUTH")

	mode := strings.ToLower(getenv("SPACEFLOW_AUTH_MODE", AuthModeRemote))
	if mode != AuthModeRemote && mode != AuthModeLocal {
		return nil, fmt.Errorf("invalid SPACEFLOW_AUTH_MODE %q (must be %s or %s)", mode, AuthModeRemote, AuthModeLocal)
	}

	embedded, err := parseBool("SPACEFLOW_EMBED_AUTH", true)
	if err != nil {
		return nil, err
	}

	cookieSecure, err := parseBool("SPACEFLOW_AUTH_COOKIE_SECURE", false)
	if err != nil {
		return nil, err
	}

	sessionTTL, err := parseDuration("SPACEFLOW_SESSION_TTL", 12*time.Hour)
	if err != nil {
		return nil, err
	}

	pageIdle, err := parseDuration("SPACEFLOW_PAGE_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	maxPages, err := parseInt("SPACEFLOW_MAX_PAGE_SESSIONS", 10000)
	if err != nil {
		return nil, err
	}

	optimisticWait, err := parseDuration("SPACEFLOW_OPTIMISTIC_WAIT", 750*time.Millisecond)
	if err != nil {
		return nil, err
	}

	// Auth base URL defaults to this server when the auth endpoints are embedded
	authBaseURL := os.Getenv("SPACEFLOW_AUTH_API_BASE_URL")
	if authBaseURL == "" && embedded {
		authBaseURL = LocalBaseURL(addr)
	}

	jwtSecret := os.Getenv("SPACEFLOW_JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-change-me"
	}

	localStorePath := os.Getenv("SPACEFLOW_LOCAL_STORE_PATH")
	if localStorePath == "" {
		localStorePath = defaultLocalStorePath()
	}

	return &Config{
		HTTP: HTTPConfig{
			Addr:            addr,
			CORSOrigins:     splitList(getenv("SPACEFLOW_CORS_ORIGINS", "http://localhost:5173")),
			PageIdleTimeout: pageIdle,
			MaxPageSessions: maxPages,
			OptimisticWait:  optimisticWait,
			TrustedProxies:  splitList(os.Getenv("SPACEFLOW_TRUSTED_PROXIES")),
		},
		Database: DatabaseConfig{
			URL: getenv("DATABASE_URL", "spaceflow.sqlite"),
		},
		Auth: AuthConfig{
			DemoMode:       ParseDemoMode(demoRaw, demoSet),
			Mode:           mode,
			Embedded:       embedded,
			CookieName:     getenv("SPACEFLOW_AUTH_COOKIE_NAME", "spaceflow_auth"),
			CookieSecure:   cookieSecure,
			JWTSecret:      jwtSecret,
			SessionTTL:     sessionTTL,
			SeedUsersPath:  os.Getenv("SPACEFLOW_SEED_USERS_PATH"),
			StorageKey:     getenv("SPACEFLOW_STORAGE_KEY", "spaceflow_auth"),
			LocalStorePath: localStorePath,
		},
		Services: ServicesConfig{
			AuthBaseURL:      authBaseURL,
			AnalyticsBaseURL: os.Getenv("SPACEFLOW_ANALYTICS_API_BASE_URL"),
			AIEngineBaseURL:  getenv("SPACEFLOW_AI_ENGINE_API_BASE_URL", "http://localhost:8084"),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
	}, nil
}

// ParseDemoMode resolves the demo switch. An unset variable means demo mode
// is on; when set, only "true" and "1" enable it.
func ParseDemoMode(raw string, set bool) bool {
	if !set {
		return true
	}
	return raw == "true" || raw == "1"
}

// LocalBaseURL turns a listen address such as ":8080" into a loopback URL
func LocalBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://127.0.0.1:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultLocalStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "spaceflow-storage.json"
	}
	return home + "/.config/spaceflow/storage.json"
}
