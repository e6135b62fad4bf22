package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

const envPrefix = "BLOCKLIST_"

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// APIBaseURL is the root of the blocklist backend API.
	APIBaseURL string `koanf:"api_base_url" validate:"required,url"`

	// APIAuthToken is sent in the Authorization-Token header of every backend call.
	APIAuthToken string `koanf:"api_auth_token" validate:"required"`

	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// RequestTimeout bounds every backend and list download call.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gte=1s,lte=10m"`

	MaxInFlight   int `koanf:"max_in_flight" validate:"gte=1,lte=1000"`
	BulkBatchSize int `koanf:"bulk_batch_size" validate:"gte=1,lte=1000"`

	// MaxRetries is the number of extra attempts after a failed sync.
	MaxRetries int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay time.Duration `koanf:"retry_delay" validate:"gte=1ms,lte=1h"`

	// Parallelism is how many blocklists a full run syncs at once.
	Parallelism int  `koanf:"parallelism" validate:"gte=1,lte=64"`
	Shuffle     bool `koanf:"shuffle"`

	UserAgent string `koanf:"user_agent" validate:"required"`

	// MetricsTextfile, when set, receives Prometheus metrics at the end of a run.
	MetricsTextfile string `koanf:"metrics_textfile"`
}

// DEFAULT_APP_CONFIG defines the default loader settings. The backend URL
// and token have no defaults and must come from the environment.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:            "prod",
	LogLevel:       "info",
	RequestTimeout: 90 * time.Second,
	MaxInFlight:    80,
	BulkBatchSize:  1000,
	MaxRetries:     3,
	RetryDelay:     90 * time.Second,
	Parallelism:    1,
	Shuffle:        true,
	UserAgent:      "blocklist-loader",
}

// envLoader loads environment variables with the prefix "BLOCKLIST_",
// lower-casing the remainder into the key. It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically. Every failure
// is a configuration error.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("%w: error loading default config: %w", domain.ErrConfig, err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("%w: error loading env: %w", domain.ErrConfig, err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: error unmarshalling config: %w", domain.ErrConfig, err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: validation failed: %w", domain.ErrConfig, err)
	}

	return &cfg, nil
}
