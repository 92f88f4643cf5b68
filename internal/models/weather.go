package models

// Coordinates is a latitude/longitude pair as returned by the provider.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WeatherCondition is one entry of the provider's weather array.
type WeatherCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// MainMetrics holds the provider's main block (metric units).
type MainMetrics struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

// Wind holds wind speed (m/s) and direction.
type Wind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
	Gust  float64 `json:"gust,omitempty"`
}

// RainVolume holds accumulated precipitation in millimeters.
// The provider keys these "1h" and "3h".
type RainVolume struct {
	OneHour   float64 `json:"1h,omitempty"`
	ThreeHour float64 `json:"3h,omitempty"`
}

// CurrentWeather is the provider's current-conditions payload. Cached and
// returned verbatim; the service never modifies a stored payload.
type CurrentWeather struct {
	Coord   Coordinates        `json:"coord"`
	Weather []WeatherCondition `json:"weather"`
	Main    MainMetrics        `json:"main"`
	Wind    Wind               `json:"wind"`
	Clouds  struct {
		All int `json:"all"`
	} `json:"clouds"`
	Rain       *RainVolume `json:"rain,omitempty"`
	Visibility int         `json:"visibility"`
	Dt         int64       `json:"dt"`
	Sys        struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Timezone int    `json:"timezone"`
	Name     string `json:"name"`
}

// ForecastPoint is one 3-hour step of the forecast time series.
type ForecastPoint struct {
	Dt      int64              `json:"dt"`
	Main    MainMetrics        `json:"main"`
	Weather []WeatherCondition `json:"weather"`
	Wind    Wind               `json:"wind"`
	Rain    *RainVolume        `json:"rain,omitempty"`
	Pop     float64            `json:"pop"`
	DtTxt   string             `json:"dt_txt"`
}

// Forecast is the provider's 5-day/3-hour forecast payload.
type Forecast struct {
	List []ForecastPoint `json:"list"`
	City struct {
		Name    string      `json:"name"`
		Coord   Coordinates `json:"coord"`
		Country string      `json:"country"`
	} `json:"city"`
}

// AirQualityRecord is one air pollution measurement.
type AirQualityRecord struct {
	Main struct {
		AQI int `json:"aqi"`
	} `json:"main"`
	Components map[string]float64 `json:"components"`
	Dt         int64              `json:"dt"`
}

// AirQuality is the provider's air pollution payload.
type AirQuality struct {
	Coord Coordinates        `json:"coord"`
	List  []AirQualityRecord `json:"list"`
}

// AlertType classifies a derived alert.
type AlertType string

// Alert types emitted by the derivation engine.
const (
	AlertTemperature AlertType = "temperature"
	AlertWind        AlertType = "wind"
	AlertRain        AlertType = "rain"
	AlertStorm       AlertType = "storm"
)

// AlertSeverity ranks a derived alert.
type AlertSeverity string

// Alert severities, lowest to highest.
const (
	SeverityMinor    AlertSeverity = "minor"
	SeverityModerate AlertSeverity = "moderate"
	SeveritySevere   AlertSeverity = "severe"
	SeverityExtreme  AlertSeverity = "extreme"
)

// WeatherAlert is a human-readable alert derived from forecast data.
// Alerts are never persisted outside their cache entry.
type WeatherAlert struct {
	Type        AlertType     `json:"type"`
	Severity    AlertSeverity `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Time        string        `json:"time"`
}
