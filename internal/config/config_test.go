package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirWithConfig creates a temp project root with config/dev.yaml and moves
// the test into it. Restores the previous working directory on cleanup.
func chdirWithConfig(t *testing.T, yaml string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "dev.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write dev.yaml: %v", err)
	}
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	chdirWithConfig(t, "server:\n  port: \"9090\"\n")
	t.Setenv("WEATHER_API_KEY", "0123456789abcdef")
	t.Setenv("ENV_NAME", "")
	t.Setenv("CACHE_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.WeatherURL != "https://api.openweathermap.org/data/2.5/weather" {
		t.Errorf("WeatherURL = %q", cfg.WeatherURL)
	}
	if cfg.AirQualityURL != "https://api.openweathermap.org/data/2.5/air_pollution" {
		t.Errorf("AirQualityURL = %q", cfg.AirQualityURL)
	}
	if cfg.CurrentWeatherTTL != time.Hour {
		t.Errorf("CurrentWeatherTTL = %v, want 1h", cfg.CurrentWeatherTTL)
	}
	if cfg.ForecastTTL != 6*time.Hour {
		t.Errorf("ForecastTTL = %v, want 6h", cfg.ForecastTTL)
	}
	if cfg.AlertsTTL != time.Hour {
		t.Errorf("AlertsTTL = %v, want 1h", cfg.AlertsTTL)
	}
	if cfg.AirQualityTTL != time.Hour {
		t.Errorf("AirQualityTTL = %v, want 1h", cfg.AirQualityTTL)
	}
	if cfg.CoordPrecision != 4 {
		t.Errorf("CoordPrecision = %d, want 4", cfg.CoordPrecision)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.RateLimitRPS != 100 || cfg.RateLimitBurst != 250 {
		t.Errorf("rate limit = (%d, %d), want (100, 250)", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoad_YAMLValues(t *testing.T) {
	chdirWithConfig(t, `
server:
  port: "8081"
weather_api:
  lang: de
  timeout: 3s
cache:
  backend: memcached
  current_ttl: 30m
  forecast_ttl: 12h
  coord_precision: 2
  memcached:
    addrs: "cache1:11211,cache2:11211"
reliability:
  rate_limit_rps: 50
  rate_limit_burst: 75
metrics:
  tracked_cities:
    - london
    - paris
`)
	t.Setenv("WEATHER_API_KEY", "0123456789abcdef")
	t.Setenv("ENV_NAME", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("MEMCACHED_ADDRS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != "8081" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.WeatherAPILang != "de" {
		t.Errorf("WeatherAPILang = %q", cfg.WeatherAPILang)
	}
	if cfg.WeatherAPITimeout != 3*time.Second {
		t.Errorf("WeatherAPITimeout = %v", cfg.WeatherAPITimeout)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q", cfg.CacheBackend)
	}
	if cfg.CurrentWeatherTTL != 30*time.Minute {
		t.Errorf("CurrentWeatherTTL = %v", cfg.CurrentWeatherTTL)
	}
	if cfg.ForecastTTL != 12*time.Hour {
		t.Errorf("ForecastTTL = %v", cfg.ForecastTTL)
	}
	if cfg.CoordPrecision != 2 {
		t.Errorf("CoordPrecision = %d", cfg.CoordPrecision)
	}
	if cfg.MemcachedAddrs != "cache1:11211,cache2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if cfg.RateLimitRPS != 50 || cfg.RateLimitBurst != 75 {
		t.Errorf("rate limit = (%d, %d)", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if len(cfg.TrackedCities) != 2 || cfg.TrackedCities[0] != "london" {
		t.Errorf("TrackedCities = %v", cfg.TrackedCities)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirWithConfig(t, "cache:\n  backend: in_memory\n")
	t.Setenv("WEATHER_API_KEY", "0123456789abcdef")
	t.Setenv("ENV_NAME", "")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.CacheBackend != "redis" {
		t.Errorf("CacheBackend = %q, want redis (env override)", cfg.CacheBackend)
	}
	if cfg.RedisAddr != "redis.internal:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.RedisPassword != "hunter2" {
		t.Errorf("RedisPassword = %q", cfg.RedisPassword)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d", cfg.RedisDB)
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	chdirWithConfig(t, "server:\n  port: \"8080\"\n")
	t.Setenv("WEATHER_API_KEY", "")
	t.Setenv("ENV_NAME", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("error = %v, want mention of WEATHER_API_KEY", err)
	}
}

func TestLoad_SecretsFile(t *testing.T) {
	chdirWithConfig(t, "server:\n  port: \"8080\"\n")
	if err := os.WriteFile(filepath.Join("config", "secrets.yaml"), []byte("weather_api_key: secretkey12345\n"), 0o644); err != nil {
		t.Fatalf("write secrets.yaml: %v", err)
	}
	t.Setenv("WEATHER_API_KEY", "")
	t.Setenv("ENV_NAME", "")
	t.Setenv("CACHE_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WeatherAPIKey != "secretkey12345" {
		t.Errorf("WeatherAPIKey = %q, want value from secrets file", cfg.WeatherAPIKey)
	}
}

func TestLoad_InvalidBackend(t *testing.T) {
	chdirWithConfig(t, "cache:\n  backend: cassandra\n")
	t.Setenv("WEATHER_API_KEY", "0123456789abcdef")
	t.Setenv("ENV_NAME", "")
	t.Setenv("CACHE_BACKEND", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unknown cache backend")
	}
	if !strings.Contains(err.Error(), "cache.backend") {
		t.Errorf("error = %v, want cache.backend complaint", err)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	dir := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
	t.Setenv("WEATHER_API_KEY", "0123456789abcdef")
	t.Setenv("ENV_NAME", "")

	_, err = Load()
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		def  time.Duration
		want time.Duration
	}{
		{"2s", time.Second, 2 * time.Second},
		{"", time.Second, time.Second},
		{"garbage", time.Second, time.Second},
		{"-1s", time.Second, time.Second},
		{"0s", time.Second, time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, tt.def); got != tt.want {
			t.Errorf("parseDuration(%q, %v) = %v, want %v", tt.in, tt.def, got, tt.want)
		}
	}
}

func TestValidate_RequestTimeoutBumped(t *testing.T) {
	cfg := &Config{
		WeatherAPITimeout: 5 * time.Second,
		RequestTimeout:    2 * time.Second,
		CacheBackend:      "in_memory",
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.RequestTimeout != 6*time.Second {
		t.Errorf("RequestTimeout = %v, want bumped above upstream timeout", cfg.RequestTimeout)
	}
}
