package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testAPIKey = "0123456789abcdef"

func testClient(t *testing.T, handler http.Handler) (*OpenWeatherClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	urls := BaseURLs{Weather: srv.URL, Forecast: srv.URL, AirQuality: srv.URL}
	c, err := NewOpenWeatherClient(testAPIKey, urls, "", 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient: %v", err)
	}
	return c, srv
}

func TestNewOpenWeatherClient_KeyValidation(t *testing.T) {
	urls := BaseURLs{}
	if _, err := NewOpenWeatherClient("", urls, "", time.Second); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("empty key error = %v, want ErrInvalidAPIKey", err)
	}
	if _, err := NewOpenWeatherClient("short", urls, "", time.Second); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("short key error = %v, want ErrInvalidAPIKey", err)
	}
	if _, err := NewOpenWeatherClient(testAPIKey, urls, "en", time.Second); err != nil {
		t.Errorf("valid key error = %v, want nil", err)
	}
}

func TestCurrentByCity_Success(t *testing.T) {
	var gotQuery map[string]string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"q":     q.Get("q"),
			"appid": q.Get("appid"),
			"units": q.Get("units"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"London","main":{"temp":17.5},"coord":{"lat":51.5074,"lon":-0.1278}}`))
	}))

	got, err := c.CurrentByCity(context.Background(), "london")
	if err != nil {
		t.Fatalf("CurrentByCity: %v", err)
	}
	if got.Name != "London" {
		t.Errorf("Name = %q, want London", got.Name)
	}
	if got.Main.Temp != 17.5 {
		t.Errorf("Temp = %v, want 17.5", got.Main.Temp)
	}
	if gotQuery["q"] != "london" {
		t.Errorf("q = %q, want london", gotQuery["q"])
	}
	if gotQuery["appid"] != testAPIKey {
		t.Errorf("appid = %q, want the configured key", gotQuery["appid"])
	}
	if gotQuery["units"] != "metric" {
		t.Errorf("units = %q, want metric", gotQuery["units"])
	}
}

func TestCurrentByCoordinates_SendsLatLon(t *testing.T) {
	var gotLat, gotLon string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLat = r.URL.Query().Get("lat")
		gotLon = r.URL.Query().Get("lon")
		w.Write([]byte(`{"name":"Somewhere"}`))
	}))

	if _, err := c.CurrentByCoordinates(context.Background(), 51.5074, -0.1278); err != nil {
		t.Fatalf("CurrentByCoordinates: %v", err)
	}
	if gotLat != "51.5074" {
		t.Errorf("lat = %q, want 51.5074", gotLat)
	}
	if gotLon != "-0.1278" {
		t.Errorf("lon = %q, want -0.1278", gotLon)
	}
}

func TestForecastByCity_Success(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"list":[{"dt_txt":"2026-08-31 12:00:00","main":{"temp":22},"weather":[{"main":"Clear"}]}],"city":{"name":"Paris"}}`))
	}))

	got, err := c.ForecastByCity(context.Background(), "paris")
	if err != nil {
		t.Fatalf("ForecastByCity: %v", err)
	}
	if len(got.List) != 1 {
		t.Fatalf("points = %d, want 1", len(got.List))
	}
	if got.List[0].DtTxt != "2026-08-31 12:00:00" {
		t.Errorf("DtTxt = %q", got.List[0].DtTxt)
	}
	if got.City.Name != "Paris" {
		t.Errorf("City.Name = %q, want Paris", got.City.Name)
	}
}

func TestAirQualityByCoordinates_Success(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"coord":{"lat":39.9,"lon":116.4},"list":[{"main":{"aqi":3},"components":{"pm2_5":35.2}}]}`))
	}))

	got, err := c.AirQualityByCoordinates(context.Background(), 39.9, 116.4)
	if err != nil {
		t.Fatalf("AirQualityByCoordinates: %v", err)
	}
	if len(got.List) != 1 {
		t.Fatalf("records = %d, want 1", len(got.List))
	}
	if got.List[0].Main.AQI != 3 {
		t.Errorf("AQI = %d, want 3", got.List[0].Main.AQI)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"401 unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey},
		{"404 not found", http.StatusNotFound, ErrCityNotFound},
		{"429 rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"500 server error", http.StatusInternalServerError, ErrUnavailable},
		{"503 unavailable", http.StatusServiceUnavailable, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			_, err := c.CurrentByCity(context.Background(), "london")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeoutMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	urls := BaseURLs{Weather: srv.URL}
	c, err := NewOpenWeatherClient(testAPIKey, urls, "", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient: %v", err)
	}

	_, err = c.CurrentByCity(context.Background(), "london")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestLangParamForwarded(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.URL.Query().Get("lang")
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewOpenWeatherClient(testAPIKey, BaseURLs{Weather: srv.URL}, "de", time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient: %v", err)
	}
	if _, err := c.CurrentByCity(context.Background(), "berlin"); err != nil {
		t.Fatalf("CurrentByCity: %v", err)
	}
	if gotLang != "de" {
		t.Errorf("lang = %q, want de", gotLang)
	}
}

func TestCorrelationIDHeaderForwarded(t *testing.T) {
	var gotHeader string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Correlation-ID")
		w.Write([]byte(`{}`))
	}))

	ctx := context.WithValue(context.Background(), "correlation_id", "abc-123")
	if _, err := c.CurrentByCity(ctx, "london"); err != nil {
		t.Fatalf("CurrentByCity: %v", err)
	}
	if gotHeader != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", gotHeader)
	}
}

func TestMalformedJSONIsError(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))

	_, err := c.CurrentByCity(context.Background(), "london")
	if err == nil {
		t.Fatal("expected parse error for malformed body")
	}
}
