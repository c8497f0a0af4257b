package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Serp       SerpConfig       `yaml:"serp" mapstructure:"serp"`
	Engage     EngageConfig     `yaml:"engage" mapstructure:"engage"`
	Social     SocialConfig     `yaml:"social" mapstructure:"social"`
	Automation AutomationConfig `yaml:"automation" mapstructure:"automation"`
	Districts  DistrictsConfig  `yaml:"districts" mapstructure:"districts"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the report database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// StorageConfig configures the uploaded-photo blob store.
type StorageConfig struct {
	UploadsDir string `yaml:"uploads_dir" mapstructure:"uploads_dir"`
}

// AnthropicConfig holds vision classification settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeocodeConfig holds reverse-geocoding settings.
type GeocodeConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SerpConfig holds the async web-search provider settings used for
// reporting-form discovery.
type SerpConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	DatasetID        string `yaml:"dataset_id" mapstructure:"dataset_id"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollMaxAttempts  int    `yaml:"poll_max_attempts" mapstructure:"poll_max_attempts"`
}

// PollInterval returns the seconds between snapshot polls as a duration.
func (c SerpConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// EngageConfig holds the engagement-analytics provider settings. An empty
// key disables the provider and selects the bundled city defaults.
type EngageConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SocialConfig holds social posting credentials.
type SocialConfig struct {
	APIKey            string `yaml:"api_key" mapstructure:"api_key"`
	APISecret         string `yaml:"api_secret" mapstructure:"api_secret"`
	AccessToken       string `yaml:"access_token" mapstructure:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret" mapstructure:"access_token_secret"`
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	UploadBaseURL     string `yaml:"upload_base_url" mapstructure:"upload_base_url"`
}

// Configured reports whether a full credential set is present.
func (c SocialConfig) Configured() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// AutomationConfig configures the form-automation subprocess runner.
// LiveSubmission gates real form submissions; when false the pipeline
// generates a fallback tracking number instead of driving city forms.
type AutomationConfig struct {
	ScriptsDir     string `yaml:"scripts_dir" mapstructure:"scripts_dir"`
	NodePath       string `yaml:"node_path" mapstructure:"node_path"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	LiveSubmission bool   `yaml:"live_submission" mapstructure:"live_submission"`
}

// Timeout returns the per-submission subprocess deadline.
func (c AutomationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// DistrictsConfig configures the optional neighborhood boundary lookup.
type DistrictsConfig struct {
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
}

// PipelineConfig configures stage thresholds.
type PipelineConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	PostCharLimit       int     `yaml:"post_char_limit" mapstructure:"post_char_limit"`
	DefaultCity         string  `yaml:"default_city" mapstructure:"default_city"`
	DefaultState        string  `yaml:"default_state" mapstructure:"default_state"`
}

// ServerConfig configures the intake HTTP server.
type ServerConfig struct {
	Port           int   `yaml:"port" mapstructure:"port"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the configuration is usable for the given mode
// ("run" for one-shot pipeline invocations, "serve" for the HTTP server).
// Provider credentials that only degrade a stage when absent are not
// required here.
func (c *Config) Validate(mode string) error {
	var missing []string

	check := func(ok bool, msg string) {
		if !ok {
			missing = append(missing, msg)
		}
	}

	switch mode {
	case "run", "serve":
		check(c.Anthropic.Key != "", "anthropic.key is required")
		check(c.Store.DatabaseURL != "", "store.database_url is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "serve" {
		check(c.Server.Port > 0, "server.port must be > 0")
		check(c.Server.MaxUploadBytes > 0, "server.max_upload_bytes must be > 0")
	}

	check(c.Pipeline.ConfidenceThreshold >= 0 && c.Pipeline.ConfidenceThreshold <= 1,
		"pipeline.confidence_threshold must be between 0 and 1")
	check(c.Pipeline.PostCharLimit > 0, "pipeline.post_char_limit must be > 0")
	check(c.Serp.PollIntervalSecs > 0, "serp.poll_interval_secs must be > 0")
	check(c.Serp.PollMaxAttempts > 0, "serp.poll_max_attempts must be > 0")
	check(c.Automation.TimeoutSecs > 0, "automation.timeout_secs must be > 0")

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CIVICSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "civicsight.db")
	v.SetDefault("storage.uploads_dir", "uploads")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_bytes", 10*1024*1024)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "civicsight/1.0")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("serp.base_url", "https://api.brightdata.com/datasets/v3")
	v.SetDefault("serp.dataset_id", "gd_l7q7dkf244hwjntr0")
	v.SetDefault("serp.poll_interval_secs", 3)
	v.SetDefault("serp.poll_max_attempts", 30)
	v.SetDefault("engage.base_url", "https://api.applovin.com/v1")
	v.SetDefault("social.base_url", "https://api.twitter.com/2")
	v.SetDefault("social.upload_base_url", "https://upload.twitter.com/1.1")
	v.SetDefault("automation.scripts_dir", "scripts/forms")
	v.SetDefault("automation.node_path", "node")
	v.SetDefault("automation.timeout_secs", 120)
	v.SetDefault("automation.live_submission", false)
	v.SetDefault("pipeline.confidence_threshold", 0.6)
	v.SetDefault("pipeline.post_char_limit", 280)
	v.SetDefault("pipeline.default_city", "San Francisco")
	v.SetDefault("pipeline.default_state", "CA")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
