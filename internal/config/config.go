// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevAPIKey is installed as the only API key outside production when API_KEYS is empty.
const (
	DevAPIKey      = "123"
	DevAPIKeyOwner = "Demo Organisation"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCHealthAddr enables the grpc.health.v1 listener when set (e.g. :9090).
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// PublicBaseURL prefixes signing links sent to signees (e.g. https://sign.example.com).
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// APIKeys is a comma-separated list of Organisation=secret pairs. A secret starting with $2 is a bcrypt hash.
	APIKeys string `mapstructure:"API_KEYS"`
	// BcryptCost is the cost used by hancockctl hash-key (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SessionStore selects the session record backend: file, memory, postgres or redis.
	SessionStore string `mapstructure:"SESSION_STORE"`
	// ArtifactStore selects the signature artifact backend: file, memory or minio.
	ArtifactStore string `mapstructure:"ARTIFACT_STORE"`
	// DataDir is where the file stores keep <sid>.json and <sid>.svg.
	DataDir string `mapstructure:"DATA_DIR"`
	// DatabaseURL is the Postgres DSN; required when SESSION_STORE=postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	MinIOEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinIOAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket    string `mapstructure:"MINIO_BUCKET"`
	MinIOUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	// LinkTokenPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file used to sign link tokens.
	// When both key settings are empty an ephemeral ECDSA key is generated (links do not survive a restart).
	LinkTokenPrivateKey string `mapstructure:"LINK_TOKEN_PRIVATE_KEY"`
	// LinkTokenPublicKey is the PEM-encoded public key or path to file; used with LINK_TOKEN_PRIVATE_KEY.
	LinkTokenPublicKey string `mapstructure:"LINK_TOKEN_PUBLIC_KEY"`
	// LinkTokenIssuer is the iss claim of signing-link tokens.
	LinkTokenIssuer string `mapstructure:"LINK_TOKEN_ISSUER"`
	// LinkTokenTTL is the signing-link lifetime (e.g. "720h").
	LinkTokenTTL string `mapstructure:"LINK_TOKEN_TTL"`

	// SIDCollisionPolicy is overwrite (default) or reject.
	SIDCollisionPolicy string `mapstructure:"SID_COLLISION_POLICY"`
	// RedirectAllowedHosts is a comma-separated allowlist for redirect_uri hosts; empty allows any host.
	RedirectAllowedHosts string `mapstructure:"REDIRECT_ALLOWED_HOSTS"`
	// MaxSignatureBytes bounds a submitted SVG document.
	MaxSignatureBytes int `mapstructure:"MAX_SIGNATURE_BYTES"`

	// Notifier selects how signees are told about new sessions: log, webhook or kafka.
	Notifier            string `mapstructure:"NOTIFIER"`
	NotifyWebhookURL    string `mapstructure:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string `mapstructure:"NOTIFY_WEBHOOK_SECRET"`
	NotifyWorkers       int    `mapstructure:"NOTIFY_WORKERS"`
	NotifyQueueSize     int    `mapstructure:"NOTIFY_QUEUE_SIZE"`
	NotifyMaxRetries    int    `mapstructure:"NOTIFY_MAX_RETRIES"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotifyKafkaTopic is the topic signature_requested events are published to.
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	// Worker-only: consumer group ID and Loki push URL (e.g. http://localhost:3100).
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	LokiURL      string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC collector; empty disables export.
	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_HEALTH_ADDR", "")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_KEYS", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_STORE", "file")
	v.SetDefault("ARTIFACT_STORE", "file")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "hancock")
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "signatures")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("LINK_TOKEN_PRIVATE_KEY", "")
	v.SetDefault("LINK_TOKEN_PUBLIC_KEY", "")
	v.SetDefault("LINK_TOKEN_ISSUER", "hancock")
	v.SetDefault("LINK_TOKEN_TTL", "720h") // 30d
	v.SetDefault("SID_COLLISION_POLICY", "overwrite")
	v.SetDefault("REDIRECT_ALLOWED_HOSTS", "")
	v.SetDefault("MAX_SIGNATURE_BYTES", 512*1024)
	v.SetDefault("NOTIFIER", "log")
	v.SetDefault("NOTIFY_WEBHOOK_URL", "")
	v.SetDefault("NOTIFY_WEBHOOK_SECRET", "")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_MAX_RETRIES", 5)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "hancock-notifications")
	v.SetDefault("KAFKA_GROUP_ID", "hancock-notify-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "hancock")

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
	if strings.TrimSpace(c.APIKeys) == "" && c.IsProduction() {
		return errors.New("config: API_KEYS must be set when APP_ENV=production")
	}
	if _, err := parseAPIKeys(c.APIKeys); err != nil {
		return err
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	switch c.SessionStore {
	case "file", "memory", "redis":
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("config: DATABASE_URL must be set when SESSION_STORE=postgres")
		}
	default:
		return errors.New("config: SESSION_STORE must be one of file, memory, postgres, redis")
	}
	switch c.ArtifactStore {
	case "file", "memory":
	case "minio":
		if c.MinIOEndpoint == "" || c.MinIOBucket == "" {
			return errors.New("config: MINIO_ENDPOINT and MINIO_BUCKET must be set when ARTIFACT_STORE=minio")
		}
	default:
		return errors.New("config: ARTIFACT_STORE must be one of file, memory, minio")
	}
	if (c.SessionStore == "file" || c.ArtifactStore == "file") && c.DataDir == "" {
		return errors.New("config: DATA_DIR must be set for file stores")
	}

	switch c.SIDCollisionPolicy {
	case "overwrite", "reject":
	default:
		return errors.New("config: SID_COLLISION_POLICY must be overwrite or reject")
	}

	if (c.LinkTokenPrivateKey == "") != (c.LinkTokenPublicKey == "") {
		return errors.New("config: LINK_TOKEN_PRIVATE_KEY and LINK_TOKEN_PUBLIC_KEY must be set together")
	}
	if c.LinkTokenPrivateKey == "" && c.IsProduction() {
		return errors.New("config: LINK_TOKEN_PRIVATE_KEY must be set when APP_ENV=production")
	}

	switch c.Notifier {
	case "log":
	case "webhook":
		if c.NotifyWebhookURL == "" {
			return errors.New("config: NOTIFY_WEBHOOK_URL must be set when NOTIFIER=webhook")
		}
	case "kafka":
		if len(c.KafkaBrokersList()) == 0 {
			return errors.New("config: KAFKA_BROKERS must be set when NOTIFIER=kafka")
		}
	default:
		return errors.New("config: NOTIFIER must be one of log, webhook, kafka")
	}
	if c.NotifyWorkers < 1 {
		c.NotifyWorkers = 1
	}
	if c.NotifyQueueSize < 1 {
		c.NotifyQueueSize = 1
	}
	if c.NotifyMaxRetries < 0 {
		c.NotifyMaxRetries = 0
	}
	if c.MaxSignatureBytes <= 0 {
		return errors.New("config: MAX_SIGNATURE_BYTES must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// LinkTokenTTLDuration parses LinkTokenTTL. Returns 720h if unset or invalid.
func (c *Config) LinkTokenTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.LinkTokenTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// RedirectAllowedHostsList returns the lowercased redirect host allowlist.
func (c *Config) RedirectAllowedHostsList() []string {
	if c == nil {
		return nil
	}
	hosts := splitList(c.RedirectAllowedHosts)
	for i, h := range hosts {
		hosts[i] = strings.ToLower(h)
	}
	return hosts
}

// APIKeyEntry is one configured organisation and its key (plaintext or bcrypt hash).
type APIKeyEntry struct {
	Organization string
	Secret       string
}

// APIKeyEntries returns the configured API keys. Outside production an empty
// API_KEYS yields the dev key.
func (c *Config) APIKeyEntries() []APIKeyEntry {
	entries, _ := parseAPIKeys(c.APIKeys)
	if len(entries) == 0 && !c.IsProduction() {
		return []APIKeyEntry{{Organization: DevAPIKeyOwner, Secret: DevAPIKey}}
	}
	return entries
}

func parseAPIKeys(raw string) ([]APIKeyEntry, error) {
	var out []APIKeyEntry
	for _, item := range splitList(raw) {
		org, secret, ok := strings.Cut(item, "=")
		org, secret = strings.TrimSpace(org), strings.TrimSpace(secret)
		if !ok || org == "" || secret == "" {
			return nil, errors.New("config: API_KEYS entries must look like Organisation=secret")
		}
		out = append(out, APIKeyEntry{Organization: org, Secret: secret})
	}
	return out, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
