// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SATSCRAPER_SAT_RFC.
const EnvPrefix = "SATSCRAPER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	SAT      SATConfig      `mapstructure:"sat"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Download DownloadConfig `mapstructure:"download"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Captcha  CaptchaConfig  `mapstructure:"captcha"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SATConfig holds the taxpayer credentials and login retry bounds.
type SATConfig struct {
	RFC             string `mapstructure:"rfc"`
	CIEC            string `mapstructure:"ciec"`
	MaxTriesCaptcha int    `mapstructure:"max_tries_captcha"`
	MaxTriesLogin   int    `mapstructure:"max_tries_login"`
}

// HTTPConfig selects and tunes the transport.
type HTTPConfig struct {
	Backend           string  `mapstructure:"backend"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRedirects      int     `mapstructure:"max_redirects"`
	UserAgent         string  `mapstructure:"user_agent"`
	CookieFile        string  `mapstructure:"cookie_file"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DownloadConfig governs resource downloads into a folder.
type DownloadConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	OutputDir   string `mapstructure:"output_dir"`
	CreateDir   bool   `mapstructure:"create_dir"`
}

// StorageConfig selects where downloaded documents are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional metadata repository.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for document notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// CaptchaConfig selects how CAPTCHA images reach a human.
type CaptchaConfig struct {
	Mode           string `mapstructure:"mode"`
	ListenAddr     string `mapstructure:"listen_addr"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ImageDir       string `mapstructure:"image_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Every key gets a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("sat.rfc", "")
	v.SetDefault("sat.ciec", "")
	v.SetDefault("sat.max_tries_captcha", 3)
	v.SetDefault("sat.max_tries_login", 3)
	v.SetDefault("http.backend", "resty")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_redirects", 10)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.cookie_file", "")
	v.SetDefault("http.requests_per_second", 0.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("download.concurrency", 10)
	v.SetDefault("download.output_dir", "cfdi")
	v.SetDefault("download.create_dir", true)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "cfdi_metadata")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("captcha.mode", "console")
	v.SetDefault("captcha.listen_addr", ":8089")
	v.SetDefault("captcha.timeout_seconds", 300)
	v.SetDefault("captcha.image_dir", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits. Credentials are checked by the
// commands that log in, since listing catalogs or logging out does not need them.
func (c Config) Validate() error {
	if c.SAT.MaxTriesCaptcha <= 0 {
		return fmt.Errorf("sat.max_tries_captcha must be > 0")
	}
	if c.SAT.MaxTriesLogin <= 0 {
		return fmt.Errorf("sat.max_tries_login must be > 0")
	}
	switch c.HTTP.Backend {
	case "resty", "colly":
	default:
		return fmt.Errorf("http.backend must be resty or colly, got %q", c.HTTP.Backend)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Download.Concurrency <= 0 {
		return fmt.Errorf("download.concurrency must be > 0")
	}
	switch c.Storage.Backend {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be local, memory or gcs, got %q", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	switch c.Captcha.Mode {
	case "console", "web":
	default:
		return fmt.Errorf("captcha.mode must be console or web, got %q", c.Captcha.Mode)
	}
	if c.Captcha.Mode == "web" && c.Captcha.TimeoutSeconds <= 0 {
		return fmt.Errorf("captcha.timeout_seconds must be > 0 in web mode")
	}
	return nil
}

// RequireCredentials reports a missing RFC or CIEC.
func (c Config) RequireCredentials() error {
	if strings.TrimSpace(c.SAT.RFC) == "" || c.SAT.CIEC == "" {
		return fmt.Errorf("sat.rfc and sat.ciec are required (env %s_SAT_RFC, %s_SAT_CIEC)", EnvPrefix, EnvPrefix)
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CaptchaTimeout is how long the web resolver waits for an answer.
func (c Config) CaptchaTimeout() time.Duration {
	return time.Duration(c.Captcha.TimeoutSeconds) * time.Second
}
