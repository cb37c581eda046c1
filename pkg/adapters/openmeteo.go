package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/weatherdash/pkg/weather"
	"github.com/tidwall/gjson"
)

// DefaultOpenMeteoArchiveURL is the Open-Meteo historical weather endpoint.
const DefaultOpenMeteoArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

// openMeteoLag is how far behind real time the archive is published.
const openMeteoLag = 2 * 24 * time.Hour

var openMeteoDaily = []struct {
	name  string
	scale float64
	field func(o *weather.Observation) **float64
}{
	{"temperature_2m_mean", 1, func(o *weather.Observation) **float64 { return &o.TempC }},
	{"temperature_2m_max", 1, func(o *weather.Observation) **float64 { return &o.TempMaxC }},
	{"temperature_2m_min", 1, func(o *weather.Observation) **float64 { return &o.TempMinC }},
	{"wind_speed_10m_mean", 1, func(o *weather.Observation) **float64 { return &o.WindMPS }},
	{"wind_speed_10m_max", 1, func(o *weather.Observation) **float64 { return &o.WindMaxMPS }},
	{"wind_speed_10m_min", 1, func(o *weather.Observation) **float64 { return &o.WindMinMPS }},
	// hPa to kPa
	{"surface_pressure_mean", 0.1, func(o *weather.Observation) **float64 { return &o.PressureKPa }},
	{"precipitation_sum", 1, func(o *weather.Observation) **float64 { return &o.PrecipMM }},
	{"relative_humidity_2m_mean", 1, func(o *weather.Observation) **float64 { return &o.HumidityPercent }},
	{"cloud_cover_mean", 1, func(o *weather.Observation) **float64 { return &o.CloudCoverPercent }},
	{"dew_point_2m_mean", 1, func(o *weather.Observation) **float64 { return &o.DewPointC }},
	// MJ/m² to kWh/m²
	{"shortwave_radiation_sum", 1 / 3.6, func(o *weather.Observation) **float64 { return &o.SolarRadiationKWh }},
}

// OpenMeteoArchiveAdapter fetches daily aggregates from the Open-Meteo
// historical archive and maps them onto the NASA POWER variable set. Wind is
// requested in m/s, pressure is converted to kPa and shortwave radiation to
// kWh/m². JSON nulls are treated as missing.
type OpenMeteoArchiveAdapter struct {
	URL        string
	HTTPClient *http.Client
	Retry      RetryConfig

	// Now is used to clamp the current year to published data. Defaults to time.Now.
	Now func() time.Time

	fetcher *fetcher
}

// NewOpenMeteoArchiveAdapter returns an adapter for baseURL ("" for the public API).
func NewOpenMeteoArchiveAdapter(baseURL string, client *http.Client, retry RetryConfig) *OpenMeteoArchiveAdapter {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoArchiveURL
	}
	return &OpenMeteoArchiveAdapter{
		URL:        baseURL,
		HTTPClient: client,
		Retry:      retry,
		fetcher:    newFetcher("openmeteo", client, retry),
	}
}

func (a *OpenMeteoArchiveAdapter) Name() string { return "openmeteo" }

// FetchYear implements Source. Years entirely after the archive horizon return
// an empty result without calling the API.
func (a *OpenMeteoArchiveAdapter) FetchYear(ctx context.Context, year int, lat, lon float64) ([]weather.Observation, error) {
	if a.fetcher == nil {
		a.fetcher = newFetcher("openmeteo", a.HTTPClient, a.Retry)
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	if horizon := now().UTC().Add(-openMeteoLag); end.After(horizon) {
		end = time.Date(horizon.Year(), horizon.Month(), horizon.Day(), 0, 0, 0, 0, time.UTC)
	}
	if end.Before(start) {
		return nil, nil
	}

	endpoint := a.URL
	if endpoint == "" {
		endpoint = DefaultOpenMeteoArchiveURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid open-meteo url: %w", err)
	}

	names := make([]string, 0, len(openMeteoDaily))
	for _, d := range openMeteoDaily {
		names = append(names, d.name)
	}

	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("start_date", weather.FormatDate(start))
	q.Set("end_date", weather.FormatDate(end))
	q.Set("daily", strings.Join(names, ","))
	q.Set("wind_speed_unit", "ms")
	q.Set("timezone", "UTC")
	u.RawQuery = q.Encode()

	body, err := a.fetcher.get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("open-meteo %d: %w", year, err)
	}
	return parseOpenMeteo(body)
}

func parseOpenMeteo(body []byte) ([]weather.Observation, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("open-meteo: invalid JSON response")
	}
	if gjson.GetBytes(body, "error").Bool() {
		return nil, fmt.Errorf("open-meteo: %s", gjson.GetBytes(body, "reason").String())
	}

	dates := gjson.GetBytes(body, "daily.time").Array()
	if len(dates) == 0 {
		return nil, nil
	}

	out := make([]weather.Observation, len(dates))
	for i, d := range dates {
		out[i].Date = d.String()
	}

	for _, d := range openMeteoDaily {
		values := gjson.GetBytes(body, "daily."+d.name).Array()
		for i := range out {
			if i >= len(values) || values[i].Type != gjson.Number {
				continue
			}
			v := values[i].Float() * d.scale
			*d.field(&out[i]) = &v
		}
	}

	return out, nil
}
