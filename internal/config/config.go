// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. When empty the server runs on in-memory repositories.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// TrustedProxies is a comma-separated CIDR list whose X-Forwarded-For is trusted for the client IP.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessSecret is the HS256 secret for access tokens. Ignored when JWTAccessPrivateKey is set.
	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`
	// JWTRefreshSecret is the HS256 secret for refresh tokens. Must differ from the access secret.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTAccessPrivateKey is a PEM private key (RSA or ECDSA), inline or a file path.
	JWTAccessPrivateKey string `mapstructure:"JWT_ACCESS_PRIVATE_KEY"`
	// JWTRefreshPrivateKey is the refresh counterpart of JWTAccessPrivateKey.
	JWTRefreshPrivateKey string `mapstructure:"JWT_REFRESH_PRIVATE_KEY"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// SessionTTLRaw is the session lifetime; empty means the refresh token lifetime.
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`
	// SecretHashAlgorithm hashes refresh token secrets: "bcrypt" or "argon2id".
	SecretHashAlgorithm string `mapstructure:"SECRET_HASH_ALGORITHM"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// RevocationBackend stores revoked jtis: "memory", "redis" or "postgres".
	RevocationBackend string `mapstructure:"REVOCATION_BACKEND"`
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int    `mapstructure:"REDIS_DB"`

	// OIDC client settings. Endpoints left empty are discovered from OIDCIssuerURL.
	OIDCIssuerURL    string `mapstructure:"OIDC_ISSUER_URL"`
	OIDCClientID     string `mapstructure:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `mapstructure:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `mapstructure:"OIDC_REDIRECT_URL"`
	OIDCAuthURL      string `mapstructure:"OIDC_AUTH_URL"`
	OIDCTokenURL     string `mapstructure:"OIDC_TOKEN_URL"`
	OIDCUserInfoURL  string `mapstructure:"OIDC_USERINFO_URL"`
	OIDCRevokeURL    string `mapstructure:"OIDC_REVOKE_URL"`
	// OIDCScopes is a comma- or space-separated scope list.
	OIDCScopes string `mapstructure:"OIDC_SCOPES"`
	// IdPTimeoutRaw bounds each call to the identity provider (e.g. "10s").
	IdPTimeoutRaw string `mapstructure:"IDP_TIMEOUT"`

	// RolePolicyFile is an optional Rego file deciding the roles of first-time users.
	RolePolicyFile string `mapstructure:"ROLE_POLICY_FILE"`
	// DefaultRole is assigned when no policy is configured or the policy yields nothing.
	DefaultRole string `mapstructure:"DEFAULT_ROLE"`

	// OTLPEndpoint enables OTel export of traces, metrics and security-event logs when set.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. When set, security events go to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SecurityEventsTopic is the Kafka topic for security events.
	SecurityEventsTopic string `mapstructure:"SECURITY_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group of the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the event worker pushes security events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// SweepIntervalRaw is the cmd/sweep loop period; empty runs once.
	SweepIntervalRaw string `mapstructure:"SWEEP_INTERVAL"`
}

var defaults = map[string]interface{}{
	"HTTP_ADDR":                   ":8080",
	"GRPC_ADDR":                   ":9090",
	"DATABASE_URL":                "",
	"APP_ENV":                     "",
	"TRUSTED_PROXIES":             "",
	"JWT_ISSUER":                  "perfreview-auth",
	"JWT_AUDIENCE":                "perfreview-api",
	"JWT_ACCESS_SECRET":           "",
	"JWT_REFRESH_SECRET":          "",
	"JWT_ACCESS_PRIVATE_KEY":      "",
	"JWT_REFRESH_PRIVATE_KEY":     "",
	"JWT_ACCESS_TTL":              "15m",
	"JWT_REFRESH_TTL":             "168h", // 7d
	"SESSION_TTL":                 "",
	"SECRET_HASH_ALGORITHM":       "bcrypt",
	"BCRYPT_COST":                 12,
	"REVOCATION_BACKEND":          "memory",
	"REDIS_ADDR":                  "localhost:6379",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"OIDC_ISSUER_URL":             "",
	"OIDC_CLIENT_ID":              "",
	"OIDC_CLIENT_SECRET":          "",
	"OIDC_REDIRECT_URL":           "",
	"OIDC_AUTH_URL":               "",
	"OIDC_TOKEN_URL":              "",
	"OIDC_USERINFO_URL":           "",
	"OIDC_REVOKE_URL":             "",
	"OIDC_SCOPES":                 "openid email profile",
	"IDP_TIMEOUT":                 "10s",
	"ROLE_POLICY_FILE":            "",
	"DEFAULT_ROLE":                "employee",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": false,
	"OTEL_SERVICE_NAME":           "perfreview-auth",
	"KAFKA_BROKERS":               "",
	"SECURITY_EVENTS_TOPIC":       "perfreview-security-events",
	"KAFKA_GROUP_ID":              "perfreview-event-worker",
	"LOKI_URL":                    "",
	"SWEEP_INTERVAL":              "",
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	switch strings.ToLower(c.SecretHashAlgorithm) {
	case "bcrypt", "argon2id":
	default:
		return errors.New("config: SECRET_HASH_ALGORITHM must be bcrypt or argon2id")
	}
	switch strings.ToLower(c.RevocationBackend) {
	case "memory", "redis":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: REVOCATION_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return errors.New("config: REVOCATION_BACKEND must be memory, redis or postgres")
	}
	if c.AccessTTL() >= c.RefreshTTL() {
		return errors.New("config: JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	if c.JWTAccessPrivateKey == "" && c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.Env == "production" && c.JWTAccessPrivateKey == "" && c.JWTAccessSecret == "" {
		return errors.New("config: signing keys must be configured when APP_ENV=production")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// SessionTTL parses SessionTTLRaw. Returns RefreshTTL if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.SessionTTLRaw, c.RefreshTTL())
}

// IdPTimeout parses IdPTimeoutRaw. Returns 10s if unset or invalid.
func (c *Config) IdPTimeout() time.Duration {
	return parseDuration(c.IdPTimeoutRaw, 10*time.Second)
}

// SweepInterval parses SweepIntervalRaw. Returns 0 (run once) if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.SweepIntervalRaw, 0)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the event stream is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers, ",")
}

// TrustedProxiesList returns the trusted proxy CIDRs, or nil to trust none.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies, ",")
}

// OIDCScopesList splits OIDCScopes on commas and whitespace.
func (c *Config) OIDCScopesList() []string {
	if c == nil {
		return nil
	}
	return strings.FieldsFunc(c.OIDCScopes, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw, sep string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
