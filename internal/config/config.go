package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/geotargets-cli/internal/fetcher"
	"github.com/sells-group/geotargets-cli/internal/source"
	"github.com/sells-group/geotargets-cli/internal/table"
)

// Config holds the full application configuration.
type Config struct {
	Source SourceConfig `yaml:"source" mapstructure:"source"`
	Table  TableConfig  `yaml:"table" mapstructure:"table"`
	Mirror MirrorConfig `yaml:"mirror" mapstructure:"mirror"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// SourceConfig configures where and how the taxonomy is downloaded.
type SourceConfig struct {
	PageURL             string  `yaml:"page_url" mapstructure:"page_url"`
	Origin              string  `yaml:"origin" mapstructure:"origin"`
	UserAgent           string  `yaml:"user_agent" mapstructure:"user_agent"`
	PageTimeoutSecs     int     `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	ResourceTimeoutSecs int     `yaml:"resource_timeout_secs" mapstructure:"resource_timeout_secs"`
	MinResourceBytes    int64   `yaml:"min_resource_bytes" mapstructure:"min_resource_bytes"`
	RequestsPerSecond   float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// FetcherOptions converts the source settings into fetcher options.
func (c SourceConfig) FetcherOptions() fetcher.Options {
	return fetcher.Options{
		UserAgent:         c.UserAgent,
		PageTimeout:       time.Duration(c.PageTimeoutSecs) * time.Second,
		ResourceTimeout:   time.Duration(c.ResourceTimeoutSecs) * time.Second,
		MinResourceBytes:  c.MinResourceBytes,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

// TableConfig configures the local table file.
type TableConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Filename string `yaml:"filename" mapstructure:"filename"`
	Country  string `yaml:"country" mapstructure:"country"`
	TempDir  string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// MirrorConfig configures the optional GCS copy of the table.
type MirrorConfig struct {
	GCSBucket    string `yaml:"gcs_bucket" mapstructure:"gcs_bucket"`
	ObjectPrefix string `yaml:"object_prefix" mapstructure:"object_prefix"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOTARGETS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source.page_url", source.DefaultPageURL)
	v.SetDefault("source.origin", source.DefaultOrigin)
	v.SetDefault("source.user_agent", fetcher.DefaultUserAgent)
	v.SetDefault("source.page_timeout_secs", int(fetcher.DefaultPageTimeout/time.Second))
	v.SetDefault("source.resource_timeout_secs", int(fetcher.DefaultResourceTimeout/time.Second))
	v.SetDefault("source.min_resource_bytes", fetcher.DefaultMinResourceBytes)
	v.SetDefault("source.requests_per_second", 2)
	v.SetDefault("table.dir", "data")
	v.SetDefault("table.filename", "geotargets.csv")
	v.SetDefault("table.country", "")
	v.SetDefault("table.temp_dir", "")
	v.SetDefault("mirror.gcs_bucket", "")
	v.SetDefault("mirror.object_prefix", "geotargets")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
	cfg.Table.Country = table.NormalizeCountry(cfg.Table.Country)

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

// Validate checks the settings a command mode depends on. Modes are
// "lookup", "update" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Table.Dir == "" {
		errs = append(errs, "table.dir is required")
	}
	if c.Table.Filename == "" {
		errs = append(errs, "table.filename is required")
	}

	switch mode {
	case "lookup":
	case "update", "serve":
		if c.Source.PageURL == "" {
			errs = append(errs, "source.page_url is required")
		}
		if c.Source.Origin == "" {
			errs = append(errs, "source.origin is required")
		}
		if c.Source.MinResourceBytes < 0 {
			errs = append(errs, "source.min_resource_bytes must be >= 0")
		}
		if c.Source.RequestsPerSecond < 0 {
			errs = append(errs, "source.requests_per_second must be >= 0")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
