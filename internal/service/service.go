package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/climatrack/weather-service/internal/alerts"
	"github.com/climatrack/weather-service/internal/cache"
	"github.com/climatrack/weather-service/internal/models"
	"github.com/climatrack/weather-service/internal/observability"
	"github.com/climatrack/weather-service/internal/upstream"
)

// TTLConfig holds the per-endpoint time-to-live table. The TTL is coarse and
// binary: an entry is either fresh (served unmodified) or absent.
type TTLConfig struct {
	CurrentWeather time.Duration
	Forecast       time.Duration
	Alerts         time.Duration
	AirQuality     time.Duration
}

// DefaultTTLs returns the production TTL table: current conditions and
// derived views 1 hour, forecast 6 hours.
func DefaultTTLs() TTLConfig {
	return TTLConfig{
		CurrentWeather: time.Hour,
		Forecast:       6 * time.Hour,
		Alerts:         time.Hour,
		AirQuality:     time.Hour,
	}
}

// WeatherService is the single entry point per query kind. Every operation
// follows cache-first, upstream-second, write-through: compute a normalized
// key, look it up, fall through to the provider on miss, write the result
// back with the endpoint's TTL. Cache failures degrade to a direct upstream
// fetch and are never surfaced.
type WeatherService struct {
	upstream        upstream.Client
	store           cache.Store
	ttl             TTLConfig
	coordPrecision  int
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // nil when coalescing disabled
}

// NewWeatherService creates a WeatherService. coordPrecision controls
// coordinate rounding in cache keys (0 means DefaultCoordPrecision).
// Coalescing is off unless coalesceTimeout is positive.
func NewWeatherService(up upstream.Client, store cache.Store, ttl TTLConfig, coordPrecision int, coalesceEnabled bool, coalesceTimeout time.Duration) *WeatherService {
	var coalescer *requestCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &WeatherService{
		upstream:        up,
		store:           store,
		ttl:             ttl,
		coordPrecision:  coordPrecision,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// CurrentByCity returns current conditions for a city, cache-first.
func (s *WeatherService) CurrentByCity(ctx context.Context, city string) (models.CurrentWeather, error) {
	key := cityKey(keyPrefixWeather, city)
	observability.RecordWeatherQuery(city)

	var cached models.CurrentWeather
	if s.cacheGet(ctx, key, "weather", &cached) {
		return cached, nil
	}

	result, err := s.fetch(ctx, key, func() (interface{}, error) {
		return s.upstream.CurrentByCity(ctx, normalizeCity(city))
	})
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("fetch weather for %s: %w", normalizeCity(city), err)
	}
	data := result.(models.CurrentWeather)
	s.cacheSet(ctx, key, "weather", data, s.ttl.CurrentWeather)
	return data, nil
}

// CurrentByCoordinates returns current conditions for a lat/lon pair,
// cache-first. Coordinates are rounded to fixed precision for the key only;
// the upstream request carries the caller's values.
func (s *WeatherService) CurrentByCoordinates(ctx context.Context, lat, lon float64) (models.CurrentWeather, error) {
	key := coordKey(lat, lon, s.coordPrecision)

	var cached models.CurrentWeather
	if s.cacheGet(ctx, key, "weather", &cached) {
		return cached, nil
	}

	result, err := s.fetch(ctx, key, func() (interface{}, error) {
		return s.upstream.CurrentByCoordinates(ctx, lat, lon)
	})
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("fetch weather for %s: %w", key, err)
	}
	data := result.(models.CurrentWeather)
	s.cacheSet(ctx, key, "weather", data, s.ttl.CurrentWeather)
	return data, nil
}

// ForecastByCity returns the forecast series for a city, cache-first.
func (s *WeatherService) ForecastByCity(ctx context.Context, city string) (models.Forecast, error) {
	key := cityKey(keyPrefixForecast, city)

	var cached models.Forecast
	if s.cacheGet(ctx, key, "forecast", &cached) {
		return cached, nil
	}

	result, err := s.fetch(ctx, key, func() (interface{}, error) {
		return s.upstream.ForecastByCity(ctx, normalizeCity(city))
	})
	if err != nil {
		return models.Forecast{}, fmt.Errorf("fetch forecast for %s: %w", normalizeCity(city), err)
	}
	data := result.(models.Forecast)
	s.cacheSet(ctx, key, "forecast", data, s.ttl.Forecast)
	return data, nil
}

// AlertsByCity returns derived alerts for a city, cache-first. On miss the
// forecast is obtained through ForecastByCity (which may itself hit its own
// cache entry) and run through the derivation engine.
func (s *WeatherService) AlertsByCity(ctx context.Context, city string) ([]models.WeatherAlert, error) {
	key := cityKey(keyPrefixAlerts, city)

	var cached []models.WeatherAlert
	if s.cacheGet(ctx, key, "alerts", &cached) {
		return cached, nil
	}

	forecast, err := s.ForecastByCity(ctx, city)
	if err != nil {
		return nil, err
	}
	derived, err := alerts.FromForecast(forecast.List)
	if err != nil {
		return nil, fmt.Errorf("derive alerts for %s: %w", normalizeCity(city), err)
	}
	for _, a := range derived {
		observability.AlertsDerivedTotal.WithLabelValues(string(a.Severity)).Inc()
	}
	s.cacheSet(ctx, key, "alerts", derived, s.ttl.Alerts)
	return derived, nil
}

// AirQualityByCity returns air pollution data for a city, cache-first. The
// miss path chains through CurrentByCity to resolve coordinates, so it may
// trigger a nested weather-cache lookup and write.
func (s *WeatherService) AirQualityByCity(ctx context.Context, city string) (models.AirQuality, error) {
	key := cityKey(keyPrefixAirQuality, city)

	var cached models.AirQuality
	if s.cacheGet(ctx, key, "air-quality", &cached) {
		return cached, nil
	}

	weather, err := s.CurrentByCity(ctx, city)
	if err != nil {
		return models.AirQuality{}, err
	}

	result, err := s.fetch(ctx, key, func() (interface{}, error) {
		return s.upstream.AirQualityByCoordinates(ctx, weather.Coord.Lat, weather.Coord.Lon)
	})
	if err != nil {
		return models.AirQuality{}, fmt.Errorf("fetch air quality for %s: %w", normalizeCity(city), err)
	}
	data := result.(models.AirQuality)
	s.cacheSet(ctx, key, "air-quality", data, s.ttl.AirQuality)
	return data, nil
}

// fetch runs the upstream call for a missed key, tracking stampedes and
// coalescing concurrent identical calls when enabled.
func (s *WeatherService) fetch(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error) {
	logger := loggerFromContext(ctx)
	if logger != nil {
		logger.Debug("cache miss, fetching upstream", zap.String("key", key))
	}

	concurrentMisses := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.RecordDone(key)
	if concurrentMisses > 1 {
		label := observability.MetricCityLabel(stripKeyPrefix(key))
		observability.CacheStampedeDetectedTotal.WithLabelValues(label).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(label).Observe(float64(concurrentMisses))
	}

	if s.coalescer == nil {
		return fn()
	}

	coalesceStart := time.Now()
	result, err := s.coalescer.GetOrDo(ctx, key, fn)
	if err == nil {
		wait := time.Since(coalesceStart)
		if wait > 10*time.Millisecond {
			observability.RequestCoalescingHitsTotal.WithLabelValues(observability.MetricCityLabel(stripKeyPrefix(key))).Inc()
		}
		observability.RequestCoalescingWaitSeconds.Observe(wait.Seconds())
	}
	return result, err
}

// cacheGet looks up key and decodes the stored payload into out. Returns
// true only on a usable hit. Backend and decode failures count as misses
// (fail-open) and are recorded in metrics.
func (s *WeatherService) cacheGet(ctx context.Context, key, endpoint string, out interface{}) bool {
	logger := loggerFromContext(ctx)
	start := time.Now()
	raw, ok, err := s.store.Get(ctx, key)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(duration)
		if logger != nil {
			logger.Warn("cache get failed, falling through to upstream", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(duration)
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(endpoint).Inc()
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", "decode").Inc()
		if logger != nil {
			logger.Warn("cache entry undecodable, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	observability.CacheHitsTotal.WithLabelValues(endpoint).Inc()
	if logger != nil {
		logger.Debug("cache hit", zap.String("key", key))
	}
	return true
}

// cacheSet writes the payload under key with the endpoint TTL. Failures are
// logged and counted, never propagated: the caller already holds the data.
func (s *WeatherService) cacheSet(ctx context.Context, key, endpoint string, value interface{}, ttl time.Duration) {
	logger := loggerFromContext(ctx)
	raw, err := json.Marshal(value)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", "encode").Inc()
		if logger != nil {
			logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	start := time.Now()
	if err := s.store.Set(ctx, key, raw, ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(start).Seconds())
		if logger != nil {
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(start).Seconds())
	if logger != nil {
		logger.Debug("cache write", zap.String("key", key), zap.String("endpoint", endpoint), zap.Duration("ttl", ttl))
	}
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}

// stripKeyPrefix returns the portion of a cache key after the last colon-
// delimited namespace prefix, typically the city name.
func stripKeyPrefix(key string) string {
	if i := strings.LastIndex(key, ":"); i >= 0 && i+1 < len(key) {
		return key[i+1:]
	}
	return key
}
