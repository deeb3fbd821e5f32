package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/unionco/idbridge/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Cognito user pool configuration
	Cognito CognitoConfig

	// Validator configuration
	Validators ValidatorConfig

	// Federated OIDC login configuration
	Federation FederationConfig

	// Local user store configuration
	Store StoreConfig

	// Login rate limiting
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	BaseURL         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// CognitoConfig holds the user pool client configuration. The client secret
// is required: every flow computes a secret hash over it.
type CognitoConfig struct {
	Region       string
	ClientID     string
	ClientSecret string
	UserPoolID   string

	// JWKSURL is the published key set for verifying pool-issued tokens
	JWKSURL string

	// Key cache behavior
	KeyCacheSize       int
	KeyRefreshSchedule string
	KeyMissCooldown    time.Duration
}

// ValidatorConfig holds per-validator enablement and SAML verification settings
type ValidatorConfig struct {
	JWTEnabled  bool
	SAMLEnabled bool

	// SAMLCertificate is the IdP signing certificate, PEM-encoded. If the
	// value names a readable file it is loaded from disk.
	SAMLCertificate string
	SAMLIssuer      string
	SAMLAudience    string

	// SAMLLoginURL is where unauthenticated browsers are redirected
	SAMLLoginURL string

	// TogglesFile optionally points at a JSON file whose validator flags
	// override the values above and are hot-reloaded on change.
	TogglesFile string
}

// FederationConfig holds hosted-UI OIDC login configuration
type FederationConfig struct {
	Enabled     bool
	IssuerURL   string
	RedirectURL string
	Scopes      []string
}

// StoreConfig holds local user store configuration
type StoreConfig struct {
	Driver       string // sqlite or postgres
	DSN          string
	DefaultGroup string
}

// RateLimitConfig holds login rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	WindowDuration    time.Duration

	// RedisURL enables the distributed limiter; empty means in-memory
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Cognito:       loadCognitoConfig(),
		Validators:    loadValidatorConfig(),
		Federation:    loadFederationConfig(),
		Store:         loadStoreConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("IDBRIDGE_HOST", "0.0.0.0"),
		Port:            getEnv("IDBRIDGE_PORT", "8080"),
		BaseURL:         getEnv("IDBRIDGE_BASE_URL", "http://localhost:8080"),
		ReadTimeout:     getEnvDuration("IDBRIDGE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("IDBRIDGE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDBRIDGE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("IDBRIDGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("IDBRIDGE_HEALTH_PORT", "9090"),
	}
}

func loadCognitoConfig() CognitoConfig {
	cfg := CognitoConfig{
		Region:             getEnv("IDBRIDGE_AWS_REGION", ""),
		ClientID:           getEnv("IDBRIDGE_COGNITO_CLIENT_ID", ""),
		ClientSecret:       getEnv("IDBRIDGE_COGNITO_CLIENT_SECRET", ""),
		UserPoolID:         getEnv("IDBRIDGE_COGNITO_USER_POOL_ID", ""),
		JWKSURL:            getEnv("IDBRIDGE_JWKS_URL", ""),
		KeyCacheSize:       getEnvInt("IDBRIDGE_KEY_CACHE_SIZE", 16),
		KeyRefreshSchedule: getEnv("IDBRIDGE_KEY_REFRESH_SCHEDULE", "@every 1h"),
		KeyMissCooldown:    getEnvDuration("IDBRIDGE_KEY_MISS_COOLDOWN", time.Minute),
	}

	// Cognito publishes the pool key set at a well-known path
	if cfg.JWKSURL == "" && cfg.Region != "" && cfg.UserPoolID != "" {
		cfg.JWKSURL = fmt.Sprintf(
			"https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json",
			cfg.Region, cfg.UserPoolID,
		)
	}

	return cfg
}

func loadValidatorConfig() ValidatorConfig {
	cfg := ValidatorConfig{
		JWTEnabled:      getEnvBool("IDBRIDGE_JWT_ENABLED", true),
		SAMLEnabled:     getEnvBool("IDBRIDGE_SAML_ENABLED", false),
		SAMLCertificate: getEnv("IDBRIDGE_SAML_CERT", ""),
		SAMLIssuer:      getEnv("IDBRIDGE_SAML_ISSUER", ""),
		SAMLAudience:    getEnv("IDBRIDGE_SAML_AUDIENCE", ""),
		SAMLLoginURL:    getEnv("IDBRIDGE_SAML_LOGIN_URL", ""),
		TogglesFile:     getEnv("IDBRIDGE_TOGGLES_FILE", ""),
	}

	// Allow the certificate to be provided as a file path
	if cfg.SAMLCertificate != "" && !strings.Contains(cfg.SAMLCertificate, "BEGIN CERTIFICATE") {
		if data, err := os.ReadFile(cfg.SAMLCertificate); err == nil {
			cfg.SAMLCertificate = string(data)
		}
	}

	return cfg
}

func loadFederationConfig() FederationConfig {
	scopes := strings.Split(getEnv("IDBRIDGE_FEDERATION_SCOPES", "openid,profile,email"), ",")
	for i := range scopes {
		scopes[i] = strings.TrimSpace(scopes[i])
	}

	return FederationConfig{
		Enabled:     getEnvBool("IDBRIDGE_FEDERATION_ENABLED", false),
		IssuerURL:   getEnv("IDBRIDGE_FEDERATION_ISSUER_URL", ""),
		RedirectURL: getEnv("IDBRIDGE_FEDERATION_REDIRECT_URL", ""),
		Scopes:      scopes,
	}
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:       getEnv("IDBRIDGE_STORE_DRIVER", "sqlite"),
		DSN:          getEnv("IDBRIDGE_STORE_DSN", "idbridge.db"),
		DefaultGroup: getEnv("IDBRIDGE_DEFAULT_GROUP", "users"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("IDBRIDGE_RATELIMIT_ENABLED", true),
		RequestsPerWindow: getEnvInt("IDBRIDGE_RATELIMIT_REQUESTS", 30),
		WindowDuration:    getEnvDuration("IDBRIDGE_RATELIMIT_WINDOW", time.Minute),
		RedisURL:          getEnv("IDBRIDGE_REDIS_URL", ""),
		RedisPassword:     getEnv("IDBRIDGE_REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("IDBRIDGE_REDIS_DB", 0),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("IDBRIDGE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("IDBRIDGE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("IDBRIDGE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("IDBRIDGE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("IDBRIDGE_OTEL_SERVICE_NAME", "idbridge"),
		OTelServiceVersion: getEnv("IDBRIDGE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("IDBRIDGE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid. Missing provider settings
// fail here, at startup, rather than on the first request.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Cognito.Region == "" {
		return fmt.Errorf("AWS region is required")
	}
	if c.Cognito.ClientID == "" {
		return fmt.Errorf("Cognito client id is required")
	}
	if c.Cognito.ClientSecret == "" {
		return fmt.Errorf("Cognito client secret is required")
	}
	if c.Cognito.UserPoolID == "" {
		return fmt.Errorf("Cognito user pool id is required")
	}

	if c.Validators.JWTEnabled && c.Cognito.JWKSURL == "" {
		return fmt.Errorf("JWKS URL is required when the JWT validator is enabled")
	}
	if c.Validators.SAMLEnabled {
		if c.Validators.SAMLCertificate == "" {
			return fmt.Errorf("SAML certificate is required when the SAML validator is enabled")
		}
		if c.Validators.SAMLIssuer == "" {
			return fmt.Errorf("SAML issuer is required when the SAML validator is enabled")
		}
	}

	if c.Federation.Enabled {
		if c.Federation.IssuerURL == "" {
			return fmt.Errorf("federation issuer URL is required when federation is enabled")
		}
		if c.Federation.RedirectURL == "" {
			return fmt.Errorf("federation redirect URL is required when federation is enabled")
		}
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid store driver: %s (must be sqlite or postgres)", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store DSN is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
