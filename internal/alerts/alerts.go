package alerts

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/climatrack/weather-service/internal/models"
)

// ErrMalformedForecast is returned when a forecast point is structurally
// incomplete (missing weather conditions or timestamp). The upstream payload
// shape is assumed stable, so this fails the whole derivation rather than
// skipping points.
var ErrMalformedForecast = errors.New("malformed forecast point")

// MaxAlerts caps the derived alert list. Truncation keeps the first matches
// in forecast-point order, not the most severe ones.
const MaxAlerts = 5

// Threshold constants for the derivation rules. Temperatures in Celsius,
// wind in m/s, rain in mm over 3 hours.
const (
	heatSevere   = 35.0
	heatExtreme  = 40.0
	coldSevere   = 5.0
	coldExtreme  = 0.0
	windSevere   = 15.0
	windExtreme  = 25.0
	rainModerate = 10.0
	rainSevere   = 30.0
)

// FromForecast derives severity-tagged alerts from an ordered forecast time
// series. Each point is evaluated against every rule independently, so a
// single point may emit multiple alerts. The result is truncated to the
// first MaxAlerts entries in input order.
func FromForecast(points []models.ForecastPoint) ([]models.WeatherAlert, error) {
	alerts := make([]models.WeatherAlert, 0, MaxAlerts)

	for i, p := range points {
		if len(p.Weather) == 0 || p.DtTxt == "" {
			return nil, fmt.Errorf("%w: point %d", ErrMalformedForecast, i)
		}

		temp := p.Main.Temp
		wind := p.Wind.Speed
		rain := 0.0
		if p.Rain != nil {
			rain = p.Rain.ThreeHour
		}
		conditions := strings.ToLower(p.Weather[0].Main)

		if temp >= heatSevere {
			severity := models.SeveritySevere
			if temp >= heatExtreme {
				severity = models.SeverityExtreme
			}
			alerts = append(alerts, models.WeatherAlert{
				Type:        models.AlertTemperature,
				Severity:    severity,
				Title:       "Extreme Heat Alert",
				Description: fmt.Sprintf("Forecast temperature of %d°C.", int(math.Round(temp))),
				Time:        p.DtTxt,
			})
		}

		if temp <= coldSevere {
			severity := models.SeveritySevere
			if temp <= coldExtreme {
				severity = models.SeverityExtreme
			}
			alerts = append(alerts, models.WeatherAlert{
				Type:        models.AlertTemperature,
				Severity:    severity,
				Title:       "Extreme Cold Alert",
				Description: fmt.Sprintf("Forecast temperature of %d°C.", int(math.Round(temp))),
				Time:        p.DtTxt,
			})
		}

		if wind >= windSevere {
			severity := models.SeveritySevere
			if wind >= windExtreme {
				severity = models.SeverityExtreme
			}
			alerts = append(alerts, models.WeatherAlert{
				Type:        models.AlertWind,
				Severity:    severity,
				Title:       "High Wind Warning",
				Description: fmt.Sprintf("Winds of up to %d km/h.", int(math.Round(wind*3.6))),
				Time:        p.DtTxt,
			})
		}

		if rain >= rainModerate {
			severity := models.SeverityModerate
			if rain >= rainSevere {
				severity = models.SeveritySevere
			}
			alerts = append(alerts, models.WeatherAlert{
				Type:        models.AlertRain,
				Severity:    severity,
				Title:       "Heavy Rain Alert",
				Description: fmt.Sprintf("Forecast of %g mm of rain.", rain),
				Time:        p.DtTxt,
			})
		}

		if strings.Contains(conditions, "storm") {
			alerts = append(alerts, models.WeatherAlert{
				Type:        models.AlertStorm,
				Severity:    models.SeveritySevere,
				Title:       "Storm Alert",
				Description: "Storms expected. Avoid open areas.",
				Time:        p.DtTxt,
			})
		}
	}

	if len(alerts) > MaxAlerts {
		alerts = alerts[:MaxAlerts]
	}
	return alerts, nil
}
