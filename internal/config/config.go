// Package config defines the process configuration for the ambient-weather
// sync pipeline. Configuration is loaded once at startup and is immutable
// thereafter, following 12-Factor principles: everything comes from the
// process environment (optionally seeded by a .env file), and any missing
// required value fails the process immediately.
package config

import "time"

// Config is the top-level configuration struct. Components receive only
// the subsets they require; nothing reads the environment after load.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Ambient  AmbientConfig
	Clusters ClustersConfig
	Archive  ArchiveConfig
	Sync     SyncConfig
}

// AmbientConfig holds the Ambient Weather cloud API credentials and
// endpoint configuration.
type AmbientConfig struct {
	APIKey         string        `envconfig:"AMBIENT_API_KEY" validate:"required"`
	ApplicationKey string        `envconfig:"AMBIENT_APPLICATION_KEY" validate:"required"`
	DeviceMAC      string        `envconfig:"AMBIENT_DEVICE_MAC" validate:"required,mac"`
	BaseURL        string        `envconfig:"AMBIENT_BASE_URL" default:"https://rt.ambientweather.net/v1" validate:"url"`
	Timeout        time.Duration `envconfig:"AMBIENT_TIMEOUT" default:"30s"`
	// PageLimit is the maximum records per device-data request. The API
	// caps this at 288 (one day of 5-minute readings).
	PageLimit int `envconfig:"AMBIENT_PAGE_LIMIT" default:"288" validate:"min=1,max=288"`
}

// ClusterConfig holds one destination cluster's connection identifiers.
type ClusterConfig struct {
	Name        string        `validate:"required"`
	URL         string        `validate:"required,url"`
	APIKey      string        // empty means unauthenticated (local dev cluster)
	IndexPrefix string        `validate:"required"`
	Timeout     time.Duration `validate:"required"`
}

// ClustersConfig holds both destination clusters. Prod and staging are
// independent failure domains; neither is optional.
type ClustersConfig struct {
	ProdURL         string        `envconfig:"ES_PROD_URL" validate:"required,url"`
	ProdAPIKey      string        `envconfig:"ES_PROD_API_KEY"`
	StagingURL      string        `envconfig:"ES_STAGING_URL" validate:"required,url"`
	StagingAPIKey   string        `envconfig:"ES_STAGING_API_KEY"`
	IndexPrefix     string        `envconfig:"ES_INDEX_PREFIX" default:"ambient_weather_heiligers"`
	RequestTimeout  time.Duration `envconfig:"ES_REQUEST_TIMEOUT" default:"30s"`
}

// All returns the configured clusters as explicit handles, prod first.
func (c ClustersConfig) All() []ClusterConfig {
	return []ClusterConfig{
		{Name: "prod", URL: c.ProdURL, APIKey: c.ProdAPIKey, IndexPrefix: c.IndexPrefix, Timeout: c.RequestTimeout},
		{Name: "staging", URL: c.StagingURL, APIKey: c.StagingAPIKey, IndexPrefix: c.IndexPrefix, Timeout: c.RequestTimeout},
	}
}

// ArchiveConfig holds the local archive directory configuration.
type ArchiveConfig struct {
	Dir string `envconfig:"ARCHIVE_DIR" default:"data" validate:"required"`
}

// SyncConfig holds the pipeline tunables. The defaults match the
// station's 5-minute sampling rate; both are deliberately configuration
// rather than constants.
type SyncConfig struct {
	// FetchCooldown is the minimum interval between live fetches.
	// Anything sooner is a TooEarly outcome, not an error.
	FetchCooldown time.Duration `envconfig:"FETCH_COOLDOWN" default:"5m"`
	// MinGapThreshold is the smallest span between two stored documents
	// that backfill treats as a real gap; spans at or below it are normal
	// sampling jitter.
	MinGapThreshold time.Duration `envconfig:"MIN_GAP_THRESHOLD" default:"10m"`
}
