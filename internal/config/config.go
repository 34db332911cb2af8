package config

import (
	"fmt"
	"time"

	"github.com/veranemoloko/fusionctl/internal/validation"
)

// Config holds all application configuration settings.
type Config struct {
	BaseURL          string `envconfig:"FUSION_SERVER_BASE_URL" default:"https://fusion.appdome.com/"`
	APIKey           string `envconfig:"FUSION_API_KEY"`
	TeamID           string `envconfig:"FUSION_TEAM_ID"`
	ClientHeaderName string `envconfig:"FUSION_CLIENT_HEADER_NAME" default:"X-Appdome-Client"`
	ClientHeader     string `envconfig:"FUSION_CLIENT_HEADER" default:"fusionctl-go/1.0"`

	AndroidFusionSetID string `envconfig:"FUSION_ANDROID_FS_ID"`
	IOSFusionSetID     string `envconfig:"FUSION_IOS_FS_ID"`

	HTTPTimeout time.Duration `envconfig:"FUSION_HTTP_TIMEOUT" default:"10m"`

	PollInterval   time.Duration `envconfig:"FUSION_POLL_INTERVAL" default:"10s"`
	PollTimeout    time.Duration `envconfig:"FUSION_POLL_TIMEOUT" default:"1h"`
	PollRetries    int           `envconfig:"FUSION_POLL_RETRIES" default:"3"`
	PollRetryDelay time.Duration `envconfig:"FUSION_POLL_RETRY_DELAY" default:"10s"`

	DownloadConcurrency int `envconfig:"FUSION_DOWNLOAD_CONCURRENCY" default:"3"`

	DataDogIntakeURL string `envconfig:"FUSION_DATADOG_INTAKE_URL" default:"https://sourcemap-intake.datadoghq.com/api/v2/srcmap"`
	FirebaseCLI      string `envconfig:"FUSION_FIREBASE_CLI" default:"firebase"`

	StateBackend string `envconfig:"FUSION_STATE_BACKEND" default:"json"`
	StateFile    string `envconfig:"FUSION_STATE_FILE"`
	StateDB      string `envconfig:"FUSION_STATE_DB"`

	HTTPPort        int           `envconfig:"FUSION_HTTP_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"FUSION_SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"FUSION_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"FUSION_LOG_FORMAT" default:"text"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if err := validation.ValidateBaseURL(c.BaseURL); err != nil {
		return err
	}

	if c.ClientHeaderName == "" || c.ClientHeader == "" {
		return fmt.Errorf("client header name and value cannot be empty")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %s", c.PollInterval)
	}

	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll timeout must be positive: %s", c.PollTimeout)
	}

	if c.PollRetries <= 0 {
		return fmt.Errorf("poll retries must be positive: %d", c.PollRetries)
	}

	if c.PollRetryDelay < 0 {
		return fmt.Errorf("poll retry delay cannot be negative: %s", c.PollRetryDelay)
	}

	if c.DownloadConcurrency <= 0 {
		return fmt.Errorf("download concurrency must be positive: %d", c.DownloadConcurrency)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StateBackend {
	case "json":
		if c.StateFile == "" {
			return fmt.Errorf("state file cannot be empty")
		}
	case "sqlite":
		if c.StateDB == "" {
			return fmt.Errorf("state db cannot be empty")
		}
	default:
		return fmt.Errorf("unknown state backend %q (want json or sqlite)", c.StateBackend)
	}

	return nil
}

// FusionSetIDFor returns the default fusion set id configured for platform.
func (c *Config) FusionSetIDFor(platform string) string {
	if platform == PlatformIOS {
		return c.IOSFusionSetID
	}
	return c.AndroidFusionSetID
}
