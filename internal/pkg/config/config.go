package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // containers often ship without zoneinfo

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Entur     EnturConfig     `mapstructure:"entur"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	ReadTimeout    int    `mapstructure:"read_timeout"`
	WriteTimeout   int    `mapstructure:"write_timeout"`
	RequestTimeout int    `mapstructure:"request_timeout"`
	RoutePrefix    string `mapstructure:"route_prefix"`
}

// EnturConfig points at the JourneyPlanner GraphQL API.
type EnturConfig struct {
	JourneyPlannerAPIURL string `mapstructure:"journey_planner_api_url"`
	ClientName           string `mapstructure:"client_name"` // sent as ET-Client-Name
	Timezone             string `mapstructure:"timezone"`
}

// Location resolves the configured time zone used for time-of-day projection.
func (e EnturConfig) Location() (*time.Location, error) {
	if e.Timezone == "" || strings.EqualFold(e.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(e.Timezone)
}

// ValkeyConfig is optional; an empty address keeps rate-limit counters in memory.
type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type RateLimitConfig struct {
	Max        int `mapstructure:"max"`
	Expiration int `mapstructure:"expiration"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.request_timeout", 15)
	v.SetDefault("server.route_prefix", "/api")
	v.SetDefault("entur.journey_planner_api_url", "https://api.entur.io/journey-planner/v3/graphql")
	v.SetDefault("entur.client_name", "")
	v.SetDefault("entur.timezone", "Europe/Oslo")
	v.SetDefault("valkey.addr", "")
	v.SetDefault("ratelimit.max", 120)
	v.SetDefault("ratelimit.expiration", 60)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: DEPARTURETIME_ENTUR_CLIENT_NAME → entur.client_name
	v.SetEnvPrefix("DEPARTURETIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "server.request_timeout must be positive")
	}
	if c.Server.RoutePrefix != "" && !strings.HasPrefix(c.Server.RoutePrefix, "/") {
		errs = append(errs, "server.route_prefix must start with /")
	}
	if u, err := url.Parse(c.Entur.JourneyPlannerAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "entur.journey_planner_api_url must be an absolute URL")
	}
	if c.Entur.ClientName == "" {
		errs = append(errs, "entur.client_name is required")
	}
	if _, err := c.Entur.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("entur.timezone: %v", err))
	}
	if c.RateLimit.Max <= 0 {
		errs = append(errs, "ratelimit.max must be positive")
	}
	if c.RateLimit.Expiration <= 0 {
		errs = append(errs, "ratelimit.expiration must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
