package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
)

// EnvPrefix is the prefix of every environment variable read by Load.
// Nested keys use "__", e.g. GATEWAY_SDK_STORE__BACKEND.
const EnvPrefix = "GATEWAY_SDK_"

// Config holds all SDK and CLI configuration
type Config struct {
	Environment   string              `koanf:"environment" validate:"required,oneof=development sandbox production"`
	Authorization AuthorizationConfig `koanf:"authorization"`
	Secrets       SecretsConfig       `koanf:"secrets"`
	HTTP          HTTPConfig          `koanf:"http"`
	ThreeDS       ThreeDSConfig       `koanf:"threeds"`
	Store         StoreConfig         `koanf:"store"`
	Logger        LoggerConfig        `koanf:"logger"`
	Metrics       MetricsConfig       `koanf:"metrics"`
}

// AuthorizationConfig names the credential: either inline, or a secret to fetch
type AuthorizationConfig struct {
	Value      string `koanf:"value"`
	SecretName string `koanf:"secret_name"`
}

// SecretsConfig selects and configures the credential source
type SecretsConfig struct {
	Backend   string `koanf:"backend" validate:"required,oneof=local aws vault"`
	LocalPath string `koanf:"local_path"`

	AWSRegion   string `koanf:"aws_region"`
	AWSProfile  string `koanf:"aws_profile"`
	AWSEndpoint string `koanf:"aws_endpoint"`

	VaultAddress   string `koanf:"vault_address"`
	VaultToken     string `koanf:"vault_token"`
	VaultMountPath string `koanf:"vault_mount_path"`

	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// HTTPConfig holds gateway transport settings
type HTTPConfig struct {
	ConnectTimeout    time.Duration `koanf:"connect_timeout" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"required"`
	CABundlePath      string        `koanf:"ca_bundle_path"` // pins the trust store when set
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int           `koanf:"burst" validate:"gte=0"`
}

// ThreeDSConfig holds verification settings
type ThreeDSConfig struct {
	ReturnURLScheme string `koanf:"return_url_scheme" validate:"required"`
	RedirectPath    string `koanf:"redirect_path"`
}

// StoreConfig selects where suspended verifications are persisted
type StoreConfig struct {
	Backend     string `koanf:"backend" validate:"required,oneof=memory file postgres"`
	Path        string `koanf:"path"`
	DatabaseURL string `koanf:"database_url"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `koanf:"development"`
}

// MetricsConfig holds the optional prometheus endpoint
type MetricsConfig struct {
	Address string `koanf:"address"` // empty disables the endpoint
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"environment":               "sandbox",
		"secrets.backend":           "local",
		"secrets.local_path":        "./secrets",
		"secrets.aws_region":        "us-east-1",
		"secrets.vault_mount_path":  "secret",
		"secrets.cache_ttl":         "5m",
		"http.connect_timeout":      "30s",
		"http.read_timeout":         "30s",
		"http.requests_per_second":  0,
		"http.burst":                1,
		"threeds.return_url_scheme": "com.example.app.braintree",
		"store.backend":             "file",
		"store.path":                "./pending-verifications",
		"logger.level":              "info",
		"logger.development":        false,
	}
}

// Load reads configuration from the environment (and a .env file if present),
// applies defaults and validates the result
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, EnvPrefix)),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Authorization.Value == "" && c.Authorization.SecretName == "" {
		return fmt.Errorf("config validation failed: authorization.value or authorization.secret_name is required")
	}
	if c.Store.Backend == "postgres" && c.Store.DatabaseURL == "" {
		return fmt.Errorf("config validation failed: store.database_url is required for the postgres store")
	}
	if c.Store.Backend == "file" && c.Store.Path == "" {
		return fmt.Errorf("config validation failed: store.path is required for the file store")
	}
	if c.Secrets.Backend == "vault" && c.Secrets.VaultAddress == "" {
		return fmt.Errorf("config validation failed: secrets.vault_address is required for the vault backend")
	}

	return nil
}
