package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricCityLabel(t *testing.T) {
	SetTrackedCities([]string{"London", "  PARIS  "})
	defer SetTrackedCities(nil)

	tests := []struct {
		in   string
		want string
	}{
		{"london", "london"},
		{"London", "london"},
		{"  LONDON ", "london"},
		{"paris", "paris"},
		{"tokyo", "other"},
		{"", "other"},
	}
	for _, tt := range tests {
		if got := MetricCityLabel(tt.in); got != tt.want {
			t.Errorf("MetricCityLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMetricCityLabel_NoTrackedCities(t *testing.T) {
	SetTrackedCities(nil)
	if got := MetricCityLabel("london"); got != "other" {
		t.Errorf("MetricCityLabel = %q, want other with empty allow-list", got)
	}
}

func TestMetricsHandler_ServesRegisteredMetrics(t *testing.T) {
	RecordWeatherQuery("london")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "weatherQueriesTotal") {
		t.Error("expected weatherQueriesTotal in metrics output")
	}
}
