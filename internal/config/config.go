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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Import  ImportConfig  `yaml:"import" mapstructure:"import"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GeocodeConfig configures the lookup provider and the shared lookup queue.
type GeocodeConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	MinIntervalMs    int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	Email            string `yaml:"email" mapstructure:"email"`
	BreakerFailures  int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// MinInterval returns the minimum gap between provider calls.
func (g GeocodeConfig) MinInterval() time.Duration {
	return time.Duration(g.MinIntervalMs) * time.Millisecond
}

// Timeout returns the per-lookup timeout.
func (g GeocodeConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// ImportConfig configures archive ingestion.
type ImportConfig struct {
	MaxArchiveMB     int      `yaml:"max_archive_mb" mapstructure:"max_archive_mb"`
	UploadDir        string   `yaml:"upload_dir" mapstructure:"upload_dir"`
	SavedDirs        []string `yaml:"saved_dirs" mapstructure:"saved_dirs"`
	FallbackListName string   `yaml:"fallback_list_name" mapstructure:"fallback_list_name"`
	FallbackDelta    float64  `yaml:"fallback_delta" mapstructure:"fallback_delta"`
	SubmitRPS        float64  `yaml:"submit_rps" mapstructure:"submit_rps"`
	SubmitBurst      int      `yaml:"submit_burst" mapstructure:"submit_burst"`
}

// MaxArchiveBytes returns the archive size limit in bytes.
func (i ImportConfig) MaxArchiveBytes() int64 {
	return int64(i.MaxArchiveMB) << 20
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

// Validate checks settings required by the given command mode
// ("import", "serve", "migrate" or "geocode").
func (c *Config) Validate(mode string) error {
	switch mode {
	case "geocode":
		return c.validateGeocode()
	case "migrate":
		return c.validateStore()
	case "import":
		if err := c.validateStore(); err != nil {
			return err
		}
		if err := c.validateGeocode(); err != nil {
			return err
		}
		return c.validateImport()
	case "serve":
		if err := c.validateStore(); err != nil {
			return err
		}
		if err := c.validateGeocode(); err != nil {
			return err
		}
		if err := c.validateImport(); err != nil {
			return err
		}
		if c.Server.Port <= 0 {
			return eris.New("config: server.port must be > 0")
		}
		return nil
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	return nil
}

func (c *Config) validateGeocode() error {
	if c.Geocode.BaseURL == "" {
		return eris.New("config: geocode.base_url is required")
	}
	if c.Geocode.MinIntervalMs < 0 {
		return eris.New("config: geocode.min_interval_ms must be >= 0")
	}
	if c.Geocode.TimeoutSecs <= 0 {
		return eris.New("config: geocode.timeout_secs must be > 0")
	}
	return nil
}

func (c *Config) validateImport() error {
	if c.Import.MaxArchiveMB <= 0 {
		return eris.New("config: import.max_archive_mb must be > 0")
	}
	if len(c.Import.SavedDirs) == 0 {
		return eris.New("config: import.saved_dirs must name at least one directory")
	}
	if c.Import.FallbackDelta <= 0 {
		return eris.New("config: import.fallback_delta must be > 0")
	}
	return nil
}

// Load reads configuration from config.yaml, then PLACES_* environment
// variables, on top of built-in defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "places.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.min_interval_ms", 1100)
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.user_agent", "places-import/1.0")
	v.SetDefault("geocode.breaker_failures", 5)
	v.SetDefault("geocode.breaker_reset_secs", 60)
	v.SetDefault("import.max_archive_mb", 100)
	v.SetDefault("import.upload_dir", "/tmp/places-import")
	v.SetDefault("import.saved_dirs", []string{"saved"})
	v.SetDefault("import.fallback_list_name", "Imported Places")
	v.SetDefault("import.fallback_delta", 0.001)
	v.SetDefault("import.submit_rps", 0.2)
	v.SetDefault("import.submit_burst", 3)

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

// InitLogger configures the global zap logger.
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
