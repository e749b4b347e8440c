package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration, read from the environment.
type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string

	// AdminEmail and AdminPassword seed the operator account on startup.
	AdminEmail    string
	AdminPassword string

	Redis  RedisConfig
	Alerts AlertsConfig
	Push   PushConfig

	Sources SourcesConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AlertsConfig controls the external alert feed.
type AlertsConfig struct {
	CacheTTL       time.Duration
	FetchTimeout   time.Duration
	DefaultLat     string
	DefaultLon     string
	MinMagnitude   float64
	ReliefWebLimit int
	OpenWeatherKey string
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

// SourceConfig overrides the defaults of one upstream adapter.
type SourceConfig struct {
	Disabled  bool   `yaml:"disabled"`
	URL       string `yaml:"url"`
	UserAgent string `yaml:"user_agent"`
}

// SourcesConfig is the optional YAML file named by SOURCES_CONFIG.
type SourcesConfig struct {
	GDACS       SourceConfig `yaml:"gdacs"`
	USGS        SourceConfig `yaml:"usgs"`
	ReliefWeb   SourceConfig `yaml:"reliefweb"`
	OpenWeather SourceConfig `yaml:"openweather"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:        getenv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Alerts: AlertsConfig{
			CacheTTL:       getenvDuration("ALERTS_CACHE_TTL", 5*time.Minute),
			FetchTimeout:   getenvDuration("ALERTS_FETCH_TIMEOUT", 12*time.Second),
			DefaultLat:     getenv("ALERTS_DEFAULT_LAT", "28.7041"),
			DefaultLon:     getenv("ALERTS_DEFAULT_LON", "77.1025"),
			MinMagnitude:   getenvFloat("ALERTS_MIN_MAG", 4),
			ReliefWebLimit: getenvInt("RELIEFWEB_LIMIT", 10),
			OpenWeatherKey: os.Getenv("OPENWEATHER_KEY"),
		},
		Push: PushConfig{
			VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
			Subscriber:      getenv("VAPID_SUBSCRIBER", "mailto:admin@example.com"),
		},
	}

	if cfg.JWTSecret == "" {
		log.Println("JWT_SECRET not set, using an insecure development secret")
		cfg.JWTSecret = "dev-secret-change-in-production"
	}

	if path := strings.TrimSpace(os.Getenv("SOURCES_CONFIG")); path != "" {
		sc, err := LoadSources(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Sources = sc
	}

	return cfg, nil
}

// LoadSources parses the per-source YAML overrides at path.
func LoadSources(path string) (SourcesConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return SourcesConfig{}, fmt.Errorf("read sources config: %w", err)
	}
	var sc SourcesConfig
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return SourcesConfig{}, fmt.Errorf("parse sources config: %w", err)
	}
	return sc, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("Invalid %s=%q, using %g", key, v, fallback)
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Printf("Invalid %s=%q, using %s", key, v, fallback)
	}
	return fallback
}
