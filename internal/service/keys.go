package service

import (
	"strconv"
	"strings"
)

// Cache key namespaces. Every entry is read and written under exactly one of
// these prefixes; the aggregation service owns this namespace exclusively.
const (
	keyPrefixWeather    = "weather:"
	keyPrefixLatLon     = "weather:latlon:"
	keyPrefixForecast   = "forecast:"
	keyPrefixAlerts     = "alerts:"
	keyPrefixAirQuality = "air-quality:"
)

// DefaultCoordPrecision is the number of decimal places coordinates are
// rounded to before key derivation. Four decimals is roughly 11 m of
// resolution, enough to collapse floating-point noise without merging
// distinct locations.
const DefaultCoordPrecision = 4

// normalizeCity lower-cases and trims a city name so differently-cased
// queries collide on the same cache entry and upstream request.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

func cityKey(prefix, city string) string {
	return prefix + normalizeCity(city)
}

// coordKey derives the cache key for a lat/lon query. Coordinates are
// formatted with fixed precision so insignificant floating differences do
// not fragment the cache.
func coordKey(lat, lon float64, precision int) string {
	if precision <= 0 {
		precision = DefaultCoordPrecision
	}
	return keyPrefixLatLon +
		strconv.FormatFloat(lat, 'f', precision, 64) + ":" +
		strconv.FormatFloat(lon, 'f', precision, 64)
}
