package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	libconfig "parkwise/backend/libs/config"
	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/tariff"
)

// Mode values.
const (
	ModeAuto   = "auto"
	ModeBacked = "backed"
	ModeLocal  = "local"
)

// Config defines parking service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"PARKWISE_HTTP_PORT"`
	} `yaml:"http"`
	Mode     string `yaml:"mode" env:"PARKWISE_MODE"`
	Database struct {
		DSN         string `yaml:"dsn" env:"PARKWISE_DATABASE_DSN"`
		AutoMigrate bool   `yaml:"automigrate" env:"PARKWISE_DATABASE_AUTOMIGRATE"`
	} `yaml:"database"`
	Backend struct {
		URL              string `yaml:"url" env:"PARKWISE_BACKEND_URL"`
		Token            string `yaml:"token" env:"PARKWISE_BACKEND_TOKEN"`
		TimeoutSeconds   int    `yaml:"timeoutSeconds" env:"PARKWISE_BACKEND_TIMEOUT"`
		MaxRetries       int    `yaml:"maxRetries" env:"PARKWISE_BACKEND_MAX_RETRIES"`
		RetryDelayMillis int    `yaml:"retryDelayMillis" env:"PARKWISE_BACKEND_RETRY_DELAY_MS"`
	} `yaml:"backend"`
	Redis struct {
		Addr       string `yaml:"addr" env:"PARKWISE_REDIS_ADDR"`
		Password   string `yaml:"password" env:"PARKWISE_REDIS_PASSWORD"`
		DB         int    `yaml:"db" env:"PARKWISE_REDIS_DB"`
		TTLSeconds int    `yaml:"ttlSeconds" env:"PARKWISE_REDIS_TTL"`
	} `yaml:"redis"`
	Cache struct {
		Size       int `yaml:"size" env:"PARKWISE_CACHE_SIZE"`
		TTLSeconds int `yaml:"ttlSeconds" env:"PARKWISE_CACHE_TTL"`
	} `yaml:"cache"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"PARKWISE_JWT_SECRET"`
	} `yaml:"auth"`
	Rates struct {
		Car        string `yaml:"car" env:"PARKWISE_RATE_CAR"`
		Motorcycle string `yaml:"motorcycle" env:"PARKWISE_RATE_MOTORCYCLE"`
		Truck      string `yaml:"truck" env:"PARKWISE_RATE_TRUCK"`
		Bicycle    string `yaml:"bicycle" env:"PARKWISE_RATE_BICYCLE"`
	} `yaml:"rates"`
	Conflicts struct {
		ScanIntervalSeconds int `yaml:"scanIntervalSeconds" env:"PARKWISE_CONFLICT_SCAN_INTERVAL"`
		PendingTTLSeconds   int `yaml:"pendingTTLSeconds" env:"PARKWISE_CONFLICT_PENDING_TTL"`
	} `yaml:"conflicts"`
	Treasury struct {
		Timezone string `yaml:"timezone" env:"PARKWISE_TIMEZONE"`
	} `yaml:"treasury"`
}

// Load configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Mode = ModeAuto
	cfg.Backend.TimeoutSeconds = 5
	cfg.Backend.MaxRetries = 2
	cfg.Backend.RetryDelayMillis = 1000
	cfg.Redis.TTLSeconds = 300
	cfg.Cache.Size = 1024
	cfg.Cache.TTLSeconds = 60
	cfg.Conflicts.ScanIntervalSeconds = 30
	cfg.Conflicts.PendingTTLSeconds = 900
	cfg.Treasury.Timezone = "Local"

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "", ModeAuto, ModeBacked, ModeLocal:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.ModeName() == ModeBacked && c.Database.DSN == "" && c.Backend.URL == "" {
		return fmt.Errorf("config: backed mode needs database.dsn or backend.url")
	}
	if _, err := c.HourlyRates(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// ModeName returns the normalized mode, defaulting to auto.
func (c *Config) ModeName() string {
	mode := strings.ToLower(strings.TrimSpace(c.Mode))
	if mode == "" {
		return ModeAuto
	}
	return mode
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// BackendTimeout returns the per-request timeout of the backend client.
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// RetryDelay returns the base delay between backend retries.
func (c *Config) RetryDelay() time.Duration {
	if c.Backend.RetryDelayMillis < 0 {
		return 0
	}
	return time.Duration(c.Backend.RetryDelayMillis) * time.Millisecond
}

// RedisTTL returns the lifetime of cached sessions in redis.
func (c *Config) RedisTTL() time.Duration {
	return seconds(c.Redis.TTLSeconds, 5*time.Minute)
}

// CacheTTL returns the lifetime of cached sessions in the in-process cache.
func (c *Config) CacheTTL() time.Duration {
	return seconds(c.Cache.TTLSeconds, time.Minute)
}

// ScanInterval returns how often plate conflicts are scanned; zero disables scanning.
func (c *Config) ScanInterval() time.Duration {
	if c.Conflicts.ScanIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Conflicts.ScanIntervalSeconds) * time.Second
}

// PendingTTL returns how long a parked registration waits for the operator.
func (c *Config) PendingTTL() time.Duration {
	return seconds(c.Conflicts.PendingTTLSeconds, 15*time.Minute)
}

// Location returns the business timezone used for calendar days.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Treasury.Timezone)
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", name, err)
	}
	return loc, nil
}

// HourlyRates returns the default hourly rates with configured overrides applied.
func (c *Config) HourlyRates() (tariff.Rates, error) {
	rates := tariff.DefaultRates()
	overrides := map[models.VehicleClass]string{
		models.VehicleCar:        c.Rates.Car,
		models.VehicleMotorcycle: c.Rates.Motorcycle,
		models.VehicleTruck:      c.Rates.Truck,
		models.VehicleBicycle:    c.Rates.Bicycle,
	}
	for class, raw := range overrides {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil || rate.IsNegative() {
			return nil, fmt.Errorf("config: rate for %s must be a non-negative number, got %q", class, raw)
		}
		rates[class] = rate
	}
	return rates, nil
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
