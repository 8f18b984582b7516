package config

import (
	"sync/atomic"
	"time"
)

var configValue atomic.Value

func GetConfig() *Config {
	cfg, _ := configValue.Load().(*Config)
	if cfg == nil {
		return NewDefaultConfig()
	}
	return cfg
}

func SetConfig(cfg *Config) {
	configValue.Store(cfg)
}

type Config struct {
	Version     string          `mapstructure:"version"`
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Weather     WeatherConfig   `mapstructure:"weather"`
	View        ViewConfig      `mapstructure:"view"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// WeatherConfig describes the timeline provider endpoint.
type WeatherConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UnitGroup string `mapstructure:"unit_group"`
	Lang      string `mapstructure:"lang"`
	// APIKey is only a fallback for the fetch command; the view keeps its own key.
	APIKey         string  `mapstructure:"api_key"`
	Timeout        int     `mapstructure:"timeout"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type ViewConfig struct {
	DefaultLocation    string `mapstructure:"default_location"`
	RefreshInterval    int    `mapstructure:"refresh_interval"`
	GeolocationTimeout int    `mapstructure:"geolocation_timeout"`
	GeolocationMaxAge  int    `mapstructure:"geolocation_max_age"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

func (c WeatherConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c ViewConfig) RefreshEvery() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

func NewDefaultConfig() *Config {
	return &Config{
		Version:     "1.0.0",
		Environment: "development",
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  60,
		},
		Weather: WeatherConfig{
			BaseURL:        "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline",
			UnitGroup:      "metric",
			Lang:           "es",
			APIKey:         "",
			Timeout:        15,
			RateLimitRPS:   0,
			RateLimitBurst: 1,
		},
		View: ViewConfig{
			DefaultLocation:    "Medellín",
			RefreshInterval:    300,
			GeolocationTimeout: 5,
			GeolocationMaxAge:  60,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "weather.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "tempo:4317",
		},
	}
}
