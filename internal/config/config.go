// Package config loads the service configuration from an optional
// config.yaml and the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/place2dxf/internal/projection"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Projection ProjectionConfig `yaml:"projection" mapstructure:"projection"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// OutputDir receives generated drawings; empty means the OS temp dir.
	OutputDir           string `yaml:"output_dir" mapstructure:"output_dir"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// HTTPConfig configures the shared outbound fetcher.
type HTTPConfig struct {
	UserAgent   string      `yaml:"user_agent" mapstructure:"user_agent"`
	MaxAttempts int         `yaml:"max_attempts" mapstructure:"max_attempts"`
	RateLimits  []HostLimit `yaml:"rate_limits" mapstructure:"rate_limits"`
}

// HostLimit is a requests-per-second budget for one outbound host.
type HostLimit struct {
	Host  string  `yaml:"host" mapstructure:"host"`
	RPS   float64 `yaml:"rps" mapstructure:"rps"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
	// Adaptive backs off on 429 responses and recovers on success.
	Adaptive bool `yaml:"adaptive" mapstructure:"adaptive"`
}

// GeocodeConfig configures the Nominatim client.
type GeocodeConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Email       string  `yaml:"email" mapstructure:"email"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ExtractConfig configures the primary building source.
type ExtractConfig struct {
	BaseURL             string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs         int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DownloadTimeoutSecs int    `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
	// BreakerThreshold consecutive failures skip the extract API for
	// BreakerCooldownSecs; 0 disables the breaker.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// ArchiveConfig configures the fallback building source. An empty
// DatabaseURL leaves the fallback unconfigured.
type ArchiveConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Release     string `yaml:"release" mapstructure:"release"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// OverpassConfig configures the road source.
type OverpassConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ProjectionConfig selects the target projected system.
type ProjectionConfig struct {
	CRS string `yaml:"crs" mapstructure:"crs"`
}

// PipelineConfig configures request processing.
type PipelineConfig struct {
	DefaultBuffer float64 `yaml:"default_buffer" mapstructure:"default_buffer"`
	ParallelFetch bool    `yaml:"parallel_fetch" mapstructure:"parallel_fetch"`
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// Timeout is the per-lookup deadline.
func (c GeocodeConfig) Timeout() time.Duration { return secs(c.TimeoutSecs) }

// Timeout is the metadata request deadline.
func (c ExtractConfig) Timeout() time.Duration { return secs(c.TimeoutSecs) }

// DownloadTimeout is the container download deadline.
func (c ExtractConfig) DownloadTimeout() time.Duration { return secs(c.DownloadTimeoutSecs) }

// BreakerCooldown is how long an open breaker skips the extract API.
func (c ExtractConfig) BreakerCooldown() time.Duration { return secs(c.BreakerCooldownSecs) }

// Timeout is the archive query deadline.
func (c ArchiveConfig) Timeout() time.Duration { return secs(c.TimeoutSecs) }

// Timeout is the road query deadline.
func (c OverpassConfig) Timeout() time.Duration { return secs(c.TimeoutSecs) }

// ShutdownTimeout bounds graceful shutdown.
func (c ServerConfig) ShutdownTimeout() time.Duration { return secs(c.ShutdownTimeoutSecs) }

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACE2DXF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed variables the service has always honoured.
	if err := v.BindEnv("geocode.email", "PLACE2DXF_GEOCODE_EMAIL", "NOMINATIM_EMAIL"); err != nil {
		return nil, eris.Wrap(err, "config: bind geocode.email")
	}
	if err := v.BindEnv("server.port", "PLACE2DXF_SERVER_PORT", "PORT"); err != nil {
		return nil, eris.Wrap(err, "config: bind server.port")
	}

	// Defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.output_dir", os.TempDir())
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.user_agent", "place2dxf/1.0")
	v.SetDefault("http.max_attempts", 1)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.email", "")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("extract.base_url", "https://extract.overturemaps.org")
	v.SetDefault("extract.timeout_secs", 20)
	v.SetDefault("extract.download_timeout_secs", 30)
	v.SetDefault("extract.breaker_threshold", 0)
	v.SetDefault("extract.breaker_cooldown_secs", 60)
	v.SetDefault("archive.database_url", "")
	v.SetDefault("archive.release", "2025-06-25.0")
	v.SetDefault("archive.timeout_secs", 60)
	v.SetDefault("archive.max_conns", 4)
	v.SetDefault("overpass.base_url", "https://overpass.kumi.systems/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 20)
	v.SetDefault("projection.crs", "EPSG:32644")
	v.SetDefault("pipeline.default_buffer", 250.0)
	v.SetDefault("pipeline.parallel_fetch", false)

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

// Validate checks the settings a command mode depends on. Modes are
// "serve" and "generate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
	case "generate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.DefaultBuffer <= 0 {
		errs = append(errs, "pipeline.default_buffer must be > 0")
	}
	if _, err := projection.ParseEPSG(c.Projection.CRS); err != nil {
		errs = append(errs, fmt.Sprintf("projection.crs %q is not a UTM zone", c.Projection.CRS))
	}
	if c.Extract.BreakerThreshold < 0 {
		errs = append(errs, "extract.breaker_threshold must be >= 0")
	}
	if c.HTTP.MaxAttempts < 1 {
		errs = append(errs, "http.max_attempts must be >= 1")
	}
	for i, l := range c.HTTP.RateLimits {
		if l.Host == "" {
			errs = append(errs, fmt.Sprintf("http.rate_limits[%d].host is required", i))
		}
		if l.RPS <= 0 {
			errs = append(errs, fmt.Sprintf("http.rate_limits[%d].rps must be > 0", i))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
