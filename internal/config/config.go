package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/popdensity/internal/geometry"
)

// Config holds the full application configuration.
type Config struct {
	Raster   RasterConfig   `yaml:"raster" mapstructure:"raster"`
	Boundary BoundaryConfig `yaml:"boundary" mapstructure:"boundary"`
	Density  DensityConfig  `yaml:"density" mapstructure:"density"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// RasterConfig points at the default population raster.
type RasterConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BoundaryConfig configures how boundary features are read and identified.
type BoundaryConfig struct {
	Path            string        `yaml:"path" mapstructure:"path"`
	Catalog         string        `yaml:"catalog" mapstructure:"catalog"`
	IDField         string        `yaml:"id_field" mapstructure:"id_field"`
	DuplicatePolicy string        `yaml:"duplicate_policy" mapstructure:"duplicate_policy"`
	MinRingArea     float64       `yaml:"min_ring_area" mapstructure:"min_ring_area"`
	KeepTop         int           `yaml:"keep_top" mapstructure:"keep_top"`
	PostGIS         PostGISConfig `yaml:"postgis" mapstructure:"postgis"`
}

// PostGISConfig selects boundaries from a PostGIS table instead of a file.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	IDColumn    string `yaml:"id_column" mapstructure:"id_column"`
	GeomColumn  string `yaml:"geom_column" mapstructure:"geom_column"`
	Where       string `yaml:"where" mapstructure:"where"`
}

// DensityConfig tunes the aggregation engine.
type DensityConfig struct {
	Radius      float64       `yaml:"radius" mapstructure:"radius"`
	Workers     int           `yaml:"workers" mapstructure:"workers"`
	MaskTimeout time.Duration `yaml:"mask_timeout" mapstructure:"mask_timeout"`
}

// StoreConfig configures the result database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int     `yaml:"port" mapstructure:"port"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POPDENSITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("raster.path", "")
	v.SetDefault("boundary.path", "")
	v.SetDefault("boundary.catalog", "")
	v.SetDefault("boundary.id_field", "shapeName")
	v.SetDefault("boundary.duplicate_policy", "suffix")
	v.SetDefault("boundary.min_ring_area", 0.0)
	v.SetDefault("boundary.keep_top", 0)
	v.SetDefault("boundary.postgis.database_url", "")
	v.SetDefault("boundary.postgis.table", "")
	v.SetDefault("boundary.postgis.id_column", "shape_id")
	v.SetDefault("boundary.postgis.geom_column", "geom")
	v.SetDefault("boundary.postgis.where", "")
	v.SetDefault("density.radius", 6_371_007.2)
	v.SetDefault("density.workers", 0)
	v.SetDefault("density.mask_timeout", "0s")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "popdensity.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.burst", 20)
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

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "density", "serve" and "runs".
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(msg string) { problems = append(problems, msg) }

	storeChecks := func() {
		switch strings.ToLower(c.Store.Driver) {
		case "sqlite", "":
		case "postgres", "postgresql":
			if c.Store.DatabaseURL == "" {
				add("store.database_url is required for postgres")
			}
		default:
			add("store.driver must be sqlite or postgres")
		}
	}
	densityChecks := func() {
		if c.Density.Radius <= 0 {
			add("density.radius must be > 0")
		}
		if c.Density.Workers < 0 || c.Density.Workers > 256 {
			add("density.workers must be between 0 and 256")
		}
		if c.Density.MaskTimeout < 0 {
			add("density.mask_timeout must be >= 0")
		}
		if _, err := geometry.ParseDuplicatePolicy(c.Boundary.DuplicatePolicy); err != nil {
			add("boundary.duplicate_policy must be suffix or fail")
		}
		if c.Boundary.IDField == "" {
			add("boundary.id_field is required")
		}
		if c.Boundary.MinRingArea < 0 {
			add("boundary.min_ring_area must be >= 0")
		}
		if c.Boundary.KeepTop < 0 {
			add("boundary.keep_top must be >= 0")
		}
	}

	switch mode {
	case "density":
		densityChecks()
		storeChecks()
	case "serve":
		densityChecks()
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		if c.Server.RateLimit < 0 {
			add("server.rate_limit must be >= 0")
		}
		if c.Raster.Path == "" {
			add("raster.path is required")
		}
	case "runs":
		storeChecks()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
