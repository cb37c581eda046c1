package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/weatherdash/pkg/weather"
	"github.com/tidwall/gjson"
)

// DefaultNASAPowerURL is the NASA POWER daily point endpoint.
const DefaultNASAPowerURL = "https://power.larc.nasa.gov/api/temporal/daily/point"

// nasaFillValue is used when the response header carries no fill_value.
const nasaFillValue = -999.0

// nasaParameters maps every requested NASA POWER parameter onto the
// observation field it fills. T2M comes first: its dates define the records.
var nasaParameters = []struct {
	name  string
	field func(o *weather.Observation) **float64
}{
	{"T2M", func(o *weather.Observation) **float64 { return &o.TempC }},
	{"T2M_MAX", func(o *weather.Observation) **float64 { return &o.TempMaxC }},
	{"T2M_MIN", func(o *weather.Observation) **float64 { return &o.TempMinC }},
	{"WS10M", func(o *weather.Observation) **float64 { return &o.WindMPS }},
	{"WS10M_MAX", func(o *weather.Observation) **float64 { return &o.WindMaxMPS }},
	{"WS10M_MIN", func(o *weather.Observation) **float64 { return &o.WindMinMPS }},
	{"PS", func(o *weather.Observation) **float64 { return &o.PressureKPa }},
	{"PRECTOTCORR", func(o *weather.Observation) **float64 { return &o.PrecipMM }},
	{"RH2M", func(o *weather.Observation) **float64 { return &o.HumidityPercent }},
	{"QV2M", func(o *weather.Observation) **float64 { return &o.SpecificHumidity }},
	{"T2MDEW", func(o *weather.Observation) **float64 { return &o.DewPointC }},
	{"ALLSKY_SFC_SW_DWN", func(o *weather.Observation) **float64 { return &o.SolarRadiationKWh }},
	{"ALLSKY_SFC_LW_DWN", func(o *weather.Observation) **float64 { return &o.LongwaveRadiationKWh }},
	{"CLRSKY_SFC_SW_DWN", func(o *weather.Observation) **float64 { return &o.ClearSkySolarKWh }},
	{"ALLSKY_SFC_PAR_TOT", func(o *weather.Observation) **float64 { return &o.PARTotal }},
	{"CLOUD_AMT", func(o *weather.Observation) **float64 { return &o.CloudCoverPercent }},
}

// NASAPowerAdapter fetches daily point data from the NASA POWER API
// (renewable-energy community) one calendar year at a time.
//
// Values equal to the response's header.fill_value are treated as missing.
// A response without properties.parameter yields an empty result.
type NASAPowerAdapter struct {
	// URL is the daily point endpoint. Defaults to DefaultNASAPowerURL.
	URL string
	// HTTPClient is optional; if nil a client with a 30s timeout is used.
	HTTPClient *http.Client
	// Retry overrides DefaultRetry.
	Retry RetryConfig

	fetcher *fetcher
}

// NewNASAPowerAdapter returns an adapter for baseURL ("" for the public API).
func NewNASAPowerAdapter(baseURL string, client *http.Client, retry RetryConfig) *NASAPowerAdapter {
	if baseURL == "" {
		baseURL = DefaultNASAPowerURL
	}
	return &NASAPowerAdapter{
		URL:        baseURL,
		HTTPClient: client,
		Retry:      retry,
		fetcher:    newFetcher("nasapower", client, retry),
	}
}

func (a *NASAPowerAdapter) Name() string { return "nasapower" }

// FetchYear implements Source.
func (a *NASAPowerAdapter) FetchYear(ctx context.Context, year int, lat, lon float64) ([]weather.Observation, error) {
	if a.fetcher == nil {
		a.fetcher = newFetcher("nasapower", a.HTTPClient, a.Retry)
	}
	endpoint := a.URL
	if endpoint == "" {
		endpoint = DefaultNASAPowerURL
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid nasa power url: %w", err)
	}

	names := make([]string, 0, len(nasaParameters))
	for _, p := range nasaParameters {
		names = append(names, p.name)
	}

	q := u.Query()
	q.Set("parameters", strings.Join(names, ","))
	q.Set("community", "RE")
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("start", fmt.Sprintf("%04d0101", year))
	q.Set("end", fmt.Sprintf("%04d1231", year))
	q.Set("format", "JSON")
	u.RawQuery = q.Encode()

	body, err := a.fetcher.get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("nasa power %d: %w", year, err)
	}
	return parseNASAPower(body)
}

func parseNASAPower(body []byte) ([]weather.Observation, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("nasa power: invalid JSON response")
	}

	params := gjson.GetBytes(body, "properties.parameter")
	if !params.Exists() {
		return nil, nil
	}

	fill := nasaFillValue
	if fv := gjson.GetBytes(body, "header.fill_value"); fv.Exists() {
		fill = fv.Float()
	}

	index := make(map[string]int)
	var out []weather.Observation

	params.Get(nasaParameters[0].name).ForEach(func(key, _ gjson.Result) bool {
		d, err := time.Parse("20060102", key.String())
		if err != nil {
			return true
		}
		index[key.String()] = len(out)
		out = append(out, weather.Observation{Date: weather.FormatDate(d)})
		return true
	})

	for _, p := range nasaParameters {
		params.Get(p.name).ForEach(func(key, value gjson.Result) bool {
			i, ok := index[key.String()]
			if !ok || value.Type != gjson.Number {
				return true
			}
			v := value.Float()
			if v == fill {
				return true
			}
			*p.field(&out[i]) = &v
			return true
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
