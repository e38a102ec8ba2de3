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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Suggest   SuggestConfig   `yaml:"suggest" mapstructure:"suggest"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ImportConfig configures lead document ingestion.
type ImportConfig struct {
	ChunkSize            int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkTimeoutSecs     int     `yaml:"chunk_timeout_secs" mapstructure:"chunk_timeout_secs"`
	RecordsPerSecond     float64 `yaml:"records_per_second" mapstructure:"records_per_second"`
	TempDir              string  `yaml:"temp_dir" mapstructure:"temp_dir"`
	MaxUploadMB          int     `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	DeadLetter           bool    `yaml:"dead_letter" mapstructure:"dead_letter"`
	StoreRetryAttempts   int     `yaml:"store_retry_attempts" mapstructure:"store_retry_attempts"`
	StoreRetryBackoffMs  int     `yaml:"store_retry_backoff_ms" mapstructure:"store_retry_backoff_ms"`
	StoreRetryMaxDelayMs int     `yaml:"store_retry_max_delay_ms" mapstructure:"store_retry_max_delay_ms"`
}

// ChunkTimeout returns the per-chunk deadline, or zero for none.
func (c ImportConfig) ChunkTimeout() time.Duration {
	if c.ChunkTimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(c.ChunkTimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// SuggestConfig configures the suggestion lookup.
type SuggestConfig struct {
	Limit int `yaml:"limit" mapstructure:"limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Stdout       bool   `yaml:"stdout" mapstructure:"stdout"`
	OTLPEndpoint string `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name" mapstructure:"service_name"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("import.chunk_size", 1000)
	v.SetDefault("import.chunk_timeout_secs", 300)
	v.SetDefault("import.records_per_second", 0)
	v.SetDefault("import.temp_dir", "/tmp/leadsync")
	v.SetDefault("import.max_upload_mb", 64)
	v.SetDefault("import.dead_letter", true)
	v.SetDefault("import.store_retry_attempts", 3)
	v.SetDefault("import.store_retry_backoff_ms", 100)
	v.SetDefault("import.store_retry_max_delay_ms", 5000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("suggest.limit", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "leadsync")

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

// Validate checks the settings a command mode depends on. Modes: "import",
// "serve", "store".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
	default:
		problems = append(problems, "store.driver must be postgres or sqlite, got "+quote(c.Store.Driver))
	}

	switch mode {
	case "store":
	case "import":
		problems = append(problems, c.validateImport()...)
	case "serve":
		problems = append(problems, c.validateImport()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Suggest.Limit <= 0 {
			problems = append(problems, "suggest.limit must be positive")
		}
		if c.Import.TempDir == "" {
			problems = append(problems, "import.temp_dir is required")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateImport() []string {
	var problems []string
	if c.Import.ChunkSize <= 0 {
		problems = append(problems, "import.chunk_size must be positive")
	}
	if c.Import.RecordsPerSecond < 0 {
		problems = append(problems, "import.records_per_second must not be negative")
	}
	return problems
}

func quote(s string) string {
	return `"` + s + `"`
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
