package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration. Values are resolved from
// defaults, then the YAML file named by CONFIG_PATH, then the environment.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Routing   RoutingConfig   `yaml:"routing"`
	Planning  PlanningConfig  `yaml:"planning"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// DatabaseConfig selects the appointment store. An empty URL runs on the
// in-memory repository seeded from SeedPath.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	SeedPath string `yaml:"seedPath"`
}

// RedisConfig enables the shared date lock when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

type RoutingConfig struct {
	Timezone        string  `yaml:"timezone"`
	CenterLon       float64 `yaml:"centerLon"`
	CenterLat       float64 `yaml:"centerLat"`
	GroupALimitKm   float64 `yaml:"groupALimitKm"`
	GroupBLimitKm   float64 `yaml:"groupBLimitKm"`
	ClusterRadiusKm float64 `yaml:"clusterRadiusKm"`
	AverageSpeedKmh float64 `yaml:"averageSpeedKmh"`
	MorningStart    int     `yaml:"morningStart"`
	MorningEnd      int     `yaml:"morningEnd"`
	AfternoonStart  int     `yaml:"afternoonStart"`
	AfternoonEnd    int     `yaml:"afternoonEnd"`
	InHomeMinutes   int     `yaml:"inHomeMinutes"`
	PickupMinutes   int     `yaml:"pickupMinutes"`
	TechnicianID    string  `yaml:"technicianId"`
}

type PlanningConfig struct {
	SelectionTimeout time.Duration `yaml:"selectionTimeout"`
	Workers          int           `yaml:"workers"`
	LockTTL          time.Duration `yaml:"lockTTL"`
}

type GeocodingConfig struct {
	ORSAPIKey  string  `yaml:"orsApiKey"`
	Country    string  `yaml:"country"`
	RatePerSec float64 `yaml:"ratePerSec"`
}

func Default() Config {
	return Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Driver: "sqlite", SeedPath: "data/seeds/appointments.json"},
		Routing: RoutingConfig{
			Timezone:        "America/Sao_Paulo",
			CenterLon:       -46.633308,
			CenterLat:       -23.550520,
			GroupALimitKm:   10,
			GroupBLimitKm:   25,
			ClusterRadiusKm: 5,
			AverageSpeedKmh: 30,
			MorningStart:    9,
			MorningEnd:      12,
			AfternoonStart:  13,
			AfternoonEnd:    17,
			InHomeMinutes:   40,
			PickupMinutes:   30,
		},
		Planning: PlanningConfig{
			SelectionTimeout: 5 * time.Minute,
			Workers:          1,
			LockTTL:          30 * time.Minute,
		},
		Geocoding: GeocodingConfig{Country: "BR", RatePerSec: 5},
	}
}

// Get returns the environment value of key, or fallback when unset or empty.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load resolves the configuration and validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// mergeFile overlays the YAML file on top of the current values. Keys absent
// from the file keep their defaults.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &c.Server.Port)
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	str("DB_DRIVER", &c.Database.Driver)
	str("DATABASE_URL", &c.Database.URL)
	str("SEED_PATH", &c.Database.SeedPath)
	str("REDIS_URL", &c.Redis.URL)

	str("TIMEZONE", &c.Routing.Timezone)
	num("CENTER_LON", &c.Routing.CenterLon)
	num("CENTER_LAT", &c.Routing.CenterLat)
	num("GROUP_A_LIMIT_KM", &c.Routing.GroupALimitKm)
	num("GROUP_B_LIMIT_KM", &c.Routing.GroupBLimitKm)
	num("CLUSTER_RADIUS_KM", &c.Routing.ClusterRadiusKm)
	num("AVERAGE_SPEED_KMH", &c.Routing.AverageSpeedKmh)
	integer("MORNING_START", &c.Routing.MorningStart)
	integer("MORNING_END", &c.Routing.MorningEnd)
	integer("AFTERNOON_START", &c.Routing.AfternoonStart)
	integer("AFTERNOON_END", &c.Routing.AfternoonEnd)
	integer("IN_HOME_MINUTES", &c.Routing.InHomeMinutes)
	integer("PICKUP_MINUTES", &c.Routing.PickupMinutes)
	str("TECHNICIAN_ID", &c.Routing.TechnicianID)

	duration("SELECTION_TIMEOUT", &c.Planning.SelectionTimeout)
	integer("PLANNING_WORKERS", &c.Planning.Workers)
	duration("LOCK_TTL", &c.Planning.LockTTL)

	str("ORS_API_KEY", &c.Geocoding.ORSAPIKey)
	str("ORS_COUNTRY", &c.Geocoding.Country)
	num("ORS_RATE_PER_SEC", &c.Geocoding.RatePerSec)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate ensures configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("database driver must be sqlite or pgx, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "pgx" && c.Database.URL == "" {
		return fmt.Errorf("database url is required for driver pgx")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	r := c.Routing
	if r.GroupALimitKm <= 0 || r.GroupBLimitKm <= r.GroupALimitKm {
		return fmt.Errorf("group limits must satisfy 0 < A (%.1f) < B (%.1f)", r.GroupALimitKm, r.GroupBLimitKm)
	}
	if r.AverageSpeedKmh <= 0 {
		return fmt.Errorf("averageSpeedKmh must be positive")
	}
	if !(0 <= r.MorningStart && r.MorningStart < r.MorningEnd &&
		r.MorningEnd <= r.AfternoonStart && r.AfternoonStart < r.AfternoonEnd && r.AfternoonEnd <= 24) {
		return fmt.Errorf("working hours must be ordered within the day: %d-%d, %d-%d",
			r.MorningStart, r.MorningEnd, r.AfternoonStart, r.AfternoonEnd)
	}
	if r.InHomeMinutes <= 0 || r.PickupMinutes <= 0 {
		return fmt.Errorf("service minutes must be positive")
	}

	if c.Planning.SelectionTimeout <= 0 {
		return fmt.Errorf("selectionTimeout must be positive")
	}
	if c.Planning.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.Geocoding.RatePerSec < 0 {
		return fmt.Errorf("geocoding ratePerSec cannot be negative")
	}

	return nil
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Routing.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Routing.Timezone, err)
	}
	return loc, nil
}
