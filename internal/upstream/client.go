package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/climatrack/weather-service/internal/models"
	"github.com/climatrack/weather-service/internal/observability"
)

// Client is the transport to the third-party weather provider. Pure
// transport; callers own caching and error recovery.
type Client interface {
	CurrentByCity(ctx context.Context, city string) (models.CurrentWeather, error)
	CurrentByCoordinates(ctx context.Context, lat, lon float64) (models.CurrentWeather, error)
	ForecastByCity(ctx context.Context, city string) (models.Forecast, error)
	AirQualityByCoordinates(ctx context.Context, lat, lon float64) (models.AirQuality, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrCityNotFound  = errors.New("city not found")
	ErrUnavailable   = errors.New("upstream unavailable")
	ErrRateLimited   = errors.New("rate limited")
)

// BaseURLs holds per-endpoint override URLs for the provider.
type BaseURLs struct {
	Weather    string
	Forecast   string
	AirQuality string
}

// OpenWeatherClient talks to the OpenWeatherMap HTTP API.
type OpenWeatherClient struct {
	apiKey  string
	urls    BaseURLs
	lang    string
	timeout time.Duration
	client  *http.Client
}

// NewOpenWeatherClient creates a provider client. Each call carries a bounded
// timeout so a slow provider cannot stall the caller. lang may be empty.
func NewOpenWeatherClient(apiKey string, urls BaseURLs, lang string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		urls:    urls,
		lang:    lang,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// CurrentByCity fetches current conditions for a city name.
func (c *OpenWeatherClient) CurrentByCity(ctx context.Context, city string) (models.CurrentWeather, error) {
	params := url.Values{}
	params.Set("q", city)

	var out models.CurrentWeather
	if err := c.callAPI(ctx, "current_city", c.urls.Weather, params, &out); err != nil {
		return models.CurrentWeather{}, err
	}
	return out, nil
}

// CurrentByCoordinates fetches current conditions for a lat/lon pair.
func (c *OpenWeatherClient) CurrentByCoordinates(ctx context.Context, lat, lon float64) (models.CurrentWeather, error) {
	var out models.CurrentWeather
	if err := c.callAPI(ctx, "current_coords", c.urls.Weather, coordParams(lat, lon), &out); err != nil {
		return models.CurrentWeather{}, err
	}
	return out, nil
}

// ForecastByCity fetches the 3-hour-step forecast series for a city name.
func (c *OpenWeatherClient) ForecastByCity(ctx context.Context, city string) (models.Forecast, error) {
	params := url.Values{}
	params.Set("q", city)

	var out models.Forecast
	if err := c.callAPI(ctx, "forecast", c.urls.Forecast, params, &out); err != nil {
		return models.Forecast{}, err
	}
	return out, nil
}

// AirQualityByCoordinates fetches air pollution data for a lat/lon pair.
func (c *OpenWeatherClient) AirQualityByCoordinates(ctx context.Context, lat, lon float64) (models.AirQuality, error) {
	var out models.AirQuality
	if err := c.callAPI(ctx, "air_quality", c.urls.AirQuality, coordParams(lat, lon), &out); err != nil {
		return models.AirQuality{}, err
	}
	return out, nil
}

func coordParams(lat, lon float64) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	return params
}

// callAPI issues one GET against baseURL with the shared provider parameters
// and decodes the JSON body into out. No retries: a failure here surfaces to
// the caller as-is.
func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, baseURL string, params url.Values, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, baseURL, params)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: request timeout: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("%w: http request failed: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response body: %v", ErrUnavailable, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, baseURL string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	if c.lang != "" {
		params.Set("lang", c.lang)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: unauthorized", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrCityNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// ValidateAPIKey issues a cheap request to check that the configured key is
// accepted by the provider. Used by the health endpoint.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("q", "London")
	req, err := c.buildRequest(ctx, c.urls.Weather, params)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
