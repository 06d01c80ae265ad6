package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MaxUploadBytes int64         `mapstructure:"MAX_UPLOAD_BYTES"`

	// Remote structuring model. An empty key disables the remote strategy.
	GeminiAPIKey         string        `mapstructure:"GEMINI_API_KEY"`
	StructuringModel     string        `mapstructure:"STRUCTURING_MODEL"`
	StructuringTimeout   time.Duration `mapstructure:"STRUCTURING_TIMEOUT"`
	StructuringMaxTokens int32         `mapstructure:"STRUCTURING_MAX_TOKENS"`
	// Per caller token bucket on the structuring routes.
	StructuringRate  float64 `mapstructure:"STRUCTURING_RATE"`
	StructuringBurst int     `mapstructure:"STRUCTURING_BURST"`

	BlobBackend string `mapstructure:"BLOB_BACKEND"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3Prefix    string `mapstructure:"S3_PREFIX"`
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`

	SQSQueueName       string   `mapstructure:"SQS_QUEUE_NAME"`
	KafkaBrokers       []string `mapstructure:"KAFKA_BROKERS"`
	KafkaActivityTopic string   `mapstructure:"KAFKA_ACTIVITY_TOPIC"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "REQUEST_TIMEOUT", "MAX_UPLOAD_BYTES",
	"GEMINI_API_KEY", "STRUCTURING_MODEL", "STRUCTURING_TIMEOUT", "STRUCTURING_MAX_TOKENS",
	"STRUCTURING_RATE", "STRUCTURING_BURST",
	"BLOB_BACKEND", "S3_BUCKET", "S3_PREFIX", "S3_ENDPOINT",
	"SQS_QUEUE_NAME", "KAFKA_BROKERS", "KAFKA_ACTIVITY_TOPIC",
}

// Load reads the environment and an optional .env file. It does not check
// that the result is complete; servers call Validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", 60*time.Second)
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("STRUCTURING_MODEL", "gemini-2.5-flash-lite")
	v.SetDefault("STRUCTURING_TIMEOUT", 30*time.Second)
	v.SetDefault("STRUCTURING_MAX_TOKENS", 700)
	v.SetDefault("STRUCTURING_RATE", 0.5)
	v.SetDefault("STRUCTURING_BURST", 10)
	v.SetDefault("BLOB_BACKEND", "memory")
	v.SetDefault("S3_PREFIX", "lab-reports/")
	v.SetDefault("KAFKA_ACTIVITY_TOPIC", "ehr.activity")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.IsDev() {
		log.Warn().Msg("ENV=development: unauthenticated requests are treated as admin; do not run this in production")
	}

	return cfg, nil
}

// splitList accepts both a decoded list and a single comma separated value.
func splitList(decoded []string, raw string) []string {
	if len(decoded) == 0 {
		decoded = []string{raw}
	}
	var out []string
	for _, item := range decoded {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RemoteStructuringEnabled reports whether a model credential is present.
func (c *Config) RemoteStructuringEnabled() bool {
	return c.GeminiAPIKey != ""
}

// Validate checks that the configuration is safe to serve with. Outside
// development a token issuer or a signing key must be configured.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" {
		return errors.New("AUTH_SIGNING_KEY is for development only; use AUTH_ISSUER in production")
	}
	switch c.BlobBackend {
	case "memory":
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when BLOB_BACKEND is \"s3\"")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be \"memory\" or \"s3\", got %q", c.BlobBackend)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.StructuringTimeout <= 0 {
		return errors.New("STRUCTURING_TIMEOUT must be positive")
	}
	if c.StructuringRate <= 0 || c.StructuringBurst < 1 {
		return errors.New("STRUCTURING_RATE and STRUCTURING_BURST must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}
