// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/jobscraper/internal/jobs"
	"github.com/JakeFAU/jobscraper/internal/logging"
)

// Config captures every knob of a run. It is loaded once and passed by value.
type Config struct {
	Source   SourceConfig  `mapstructure:"source"`
	HTTP     HTTPConfig    `mapstructure:"http"`
	Keywords []string      `mapstructure:"keywords"`
	Output   OutputConfig  `mapstructure:"output"`
	Master   MasterConfig  `mapstructure:"master"`
	Report   ReportConfig  `mapstructure:"report"`
	Logging  LoggingConfig `mapstructure:"logging"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	Storage  StorageConfig `mapstructure:"storage"`
	DB       DBConfig      `mapstructure:"db"`
	PubSub   PubSubConfig  `mapstructure:"pubsub"`
}

// SourceConfig describes the upstream listing endpoint.
type SourceConfig struct {
	URL            string            `mapstructure:"url"`
	Headers        map[string]string `mapstructure:"headers"`
	UserAgent      string            `mapstructure:"user_agent"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int               `mapstructure:"max_body_bytes"`
}

// HTTPConfig configures retry behavior.
type HTTPConfig struct {
	MaxRetries       int   `mapstructure:"max_retries"`
	BackoffInitialMs int   `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int   `mapstructure:"backoff_max_ms"`
	RetryStatuses    []int `mapstructure:"retry_statuses"`
	Jitter           bool  `mapstructure:"jitter"`
}

// OutputConfig sets where snapshots and the master file go.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
	Format string `mapstructure:"format"`
}

// MasterConfig controls the master file guard.
type MasterConfig struct {
	Lock bool `mapstructure:"lock"`
}

// ReportConfig controls the text chart.
type ReportConfig struct {
	Width int `mapstructure:"width"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig sets the node_exporter textfile target.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// Storage backends for mirroring outputs.
const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// StorageConfig selects where outputs are mirrored.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres postings sink.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBSCRAPER")
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
	// Keywords from the environment arrive as one comma-separated string;
	// list items from a file are kept whole, commas included.
	if raw, ok := v.Get("keywords").(string); ok {
		cfg.Keywords = SplitList(raw)
	} else {
		cfg.Keywords = trimList(cfg.Keywords)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.url", "https://remoteok.com/api")
	v.SetDefault("source.headers", map[string]string{"Accept": "application/json"})
	v.SetDefault("source.user_agent", "jobscraper/0.1 (+https://github.com/JakeFAU/jobscraper)")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.max_body_bytes", 0)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 10000)
	v.SetDefault("http.retry_statuses", []int{429, 500, 502, 503, 504})
	v.SetDefault("http.jitter", true)
	v.SetDefault("keywords", []string{})
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.prefix", "jobs")
	v.SetDefault("output.format", "csv")
	v.SetDefault("master.lock", true)
	v.SetDefault("report.width", 50)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.base_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "postings")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Source.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source.url must be an absolute http(s) URL, got %q", c.Source.URL)
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Source.MaxBodyBytes < 0 {
		return fmt.Errorf("source.max_body_bytes must be >= 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.BackoffInitialMs <= 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http.backoff_initial_ms must be > 0 and <= http.backoff_max_ms")
	}
	for _, code := range c.HTTP.RetryStatuses {
		if code < 100 || code > 599 {
			return fmt.Errorf("http.retry_statuses contains invalid status %d", code)
		}
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if err := ValidatePrefix(c.Output.Prefix); err != nil {
		return err
	}
	if _, err := jobs.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	switch c.Storage.Backend {
	case "", StorageNone:
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set when storage.backend is local")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be one of none, local, gcs; got %q", c.Storage.Backend)
	}
	if err := logging.ValidateLevel(c.Logging.Level); err != nil {
		return err
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// ValidatePrefix rejects prefixes that would escape the output directory.
func ValidatePrefix(prefix string) error {
	if strings.TrimSpace(prefix) == "" {
		return fmt.Errorf("output.prefix must be set")
	}
	if strings.ContainsAny(prefix, `/\`) {
		return fmt.Errorf("output.prefix must not contain path separators, got %q", prefix)
	}
	return nil
}

// Timeout returns the per-request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps retry delays.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

// SplitList splits a comma-separated value, trimming blanks.
func SplitList(raw string) []string {
	return trimList(strings.Split(raw, ","))
}

func trimList(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
