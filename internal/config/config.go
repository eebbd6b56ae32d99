package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the pricewatch server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Elasticity ElasticityConfig
	Watchlist  WatchlistConfig
	Simulation SimulationConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

// ElasticityConfig points at the external estimator. An empty BaseURL means
// estimates are read from the cluster_elasticity table instead.
type ElasticityConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type WatchlistConfig struct {
	BatchSize       int
	WindowDays      int
	CycleDays       int
	SeverityCritico float64
	SeverityBajo    float64
	SeverityAlto    float64
}

type SimulationConfig struct {
	HorizonDays        int
	FallbackPaceFactor float64
	FallbackBase       float64
	CutBoostScale      float64
	LowSellThroughPct  float64
	// MinMarginPct enables the break-even price when > 0.
	MinMarginPct float64
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("PRICEWATCH_PORT", 8080),
			Env:                envString("PRICEWATCH_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Elasticity: ElasticityConfig{
			BaseURL:  os.Getenv("ELASTICITY_BASE_URL"),
			APIKey:   os.Getenv("ELASTICITY_API_KEY"),
			Timeout:  envDuration("ELASTICITY_TIMEOUT", 10*time.Second),
			CacheTTL: envDuration("ELASTICITY_CACHE_TTL", time.Hour),
		},
		Watchlist: WatchlistConfig{
			BatchSize:       envInt("WATCHLIST_BATCH_SIZE", 50),
			WindowDays:      envInt("WATCHLIST_WINDOW_DAYS", 14),
			CycleDays:       envInt("WATCHLIST_CYCLE_DAYS", 90),
			SeverityCritico: envFloat("SEVERITY_CRITICO", 0.6),
			SeverityBajo:    envFloat("SEVERITY_BAJO", 0.9),
			SeverityAlto:    envFloat("SEVERITY_ALTO", 1.5),
		},
		Simulation: SimulationConfig{
			HorizonDays:        envInt("SIM_HORIZON_DAYS", 90),
			FallbackPaceFactor: envFloat("SIM_FALLBACK_PACE_FACTOR", 0.3),
			FallbackBase:       envFloat("SIM_FALLBACK_BASE", 0.5),
			CutBoostScale:      envFloat("SIM_CUT_BOOST_SCALE", 2),
			LowSellThroughPct:  envFloat("SIM_LOW_SELL_THROUGH_PCT", 50),
			MinMarginPct:       envFloat("SIM_MIN_MARGIN_PCT", 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Server.RateLimitPerMinute)
	}

	if u := c.Elasticity.BaseURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("ELASTICITY_BASE_URL must start with http:// or https://, got %q", u)
	}

	w := c.Watchlist
	if w.BatchSize <= 0 {
		return fmt.Errorf("WATCHLIST_BATCH_SIZE must be positive, got %d", w.BatchSize)
	}
	if w.WindowDays < 1 || w.WindowDays > 365 {
		return fmt.Errorf("WATCHLIST_WINDOW_DAYS must be between 1 and 365, got %d", w.WindowDays)
	}
	if w.CycleDays < 1 || w.CycleDays > 730 {
		return fmt.Errorf("WATCHLIST_CYCLE_DAYS must be between 1 and 730, got %d", w.CycleDays)
	}
	if w.SeverityCritico > w.SeverityBajo {
		return fmt.Errorf("SEVERITY_CRITICO (%g) must not exceed SEVERITY_BAJO (%g)", w.SeverityCritico, w.SeverityBajo)
	}

	s := c.Simulation
	if s.HorizonDays < 1 || s.HorizonDays > 365 {
		return fmt.Errorf("SIM_HORIZON_DAYS must be between 1 and 365, got %d", s.HorizonDays)
	}
	if s.MinMarginPct < 0 || s.MinMarginPct >= 100 {
		return fmt.Errorf("SIM_MIN_MARGIN_PCT must be in [0, 100), got %g", s.MinMarginPct)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
