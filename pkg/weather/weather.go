// Package weather defines the shared data model of the long-range prediction
// engine: the modeled variables, daily historical observations, calendar-day
// helpers and the predicted-day result.
package weather

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Variable names one modeled weather quantity.
type Variable string

const (
	TempC             Variable = "temp_c"
	TempMaxC          Variable = "temp_max_c"
	TempMinC          Variable = "temp_min_c"
	WindMPS           Variable = "wind_mps"
	WindMaxMPS        Variable = "wind_max_mps"
	WindMinMPS        Variable = "wind_min_mps"
	PressureKPa       Variable = "pressure_kpa"
	PrecipMM          Variable = "precip_mm"
	HumidityPercent   Variable = "humidity_percent"
	CloudCoverPercent Variable = "cloud_cover_percent"
)

// Variables lists every modeled variable in canonical order.
var Variables = []Variable{
	TempC,
	TempMaxC,
	TempMinC,
	WindMPS,
	WindMaxMPS,
	WindMinMPS,
	PressureKPa,
	PrecipMM,
	HumidityPercent,
	CloudCoverPercent,
}

// Valid reports whether v is one of the modeled variables.
func (v Variable) Valid() bool {
	for _, known := range Variables {
		if v == known {
			return true
		}
	}
	return false
}

// Location is a point in decimal degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinates are within geographic bounds.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180 &&
		!math.IsNaN(l.Lat) && !math.IsNaN(l.Lon)
}

func (l Location) String() string {
	return fmt.Sprintf("%.2f,%.2f", l.Lat, l.Lon)
}

// Observation is one day of historical weather at a location.
//
// Modeled values are nil when the source had no usable measurement for that
// day. Auxiliary values are carried through from the source but never modeled.
type Observation struct {
	Date    string  `json:"date"`
	Year    int     `json:"year,omitempty"`
	Anomaly float64 `json:"anomaly,omitempty"`

	TempC             *float64 `json:"temp_c,omitempty"`
	TempMaxC          *float64 `json:"temp_max_c,omitempty"`
	TempMinC          *float64 `json:"temp_min_c,omitempty"`
	WindMPS           *float64 `json:"wind_mps,omitempty"`
	WindMaxMPS        *float64 `json:"wind_max_mps,omitempty"`
	WindMinMPS        *float64 `json:"wind_min_mps,omitempty"`
	PressureKPa       *float64 `json:"pressure_kpa,omitempty"`
	PrecipMM          *float64 `json:"precip_mm,omitempty"`
	HumidityPercent   *float64 `json:"humidity_percent,omitempty"`
	CloudCoverPercent *float64 `json:"cloud_cover_percent,omitempty"`

	SpecificHumidity     *float64 `json:"specific_humidity,omitempty"`
	DewPointC            *float64 `json:"dew_point_c,omitempty"`
	SolarRadiationKWh    *float64 `json:"solar_radiation_kwh,omitempty"`
	LongwaveRadiationKWh *float64 `json:"longwave_radiation_kwh,omitempty"`
	ClearSkySolarKWh     *float64 `json:"clear_sky_solar_kwh,omitempty"`
	PARTotal             *float64 `json:"par_total,omitempty"`
}

// Value returns the measurement for v and whether it is present.
func (o *Observation) Value(v Variable) (float64, bool) {
	p := o.field(v)
	if p == nil || *p == nil {
		return 0, false
	}
	return **p, true
}

// Set stores a measurement for v. Unknown variables are ignored.
func (o *Observation) Set(v Variable, value float64) {
	if p := o.field(v); p != nil {
		*p = &value
	}
}

func (o *Observation) field(v Variable) **float64 {
	switch v {
	case TempC:
		return &o.TempC
	case TempMaxC:
		return &o.TempMaxC
	case TempMinC:
		return &o.TempMinC
	case WindMPS:
		return &o.WindMPS
	case WindMaxMPS:
		return &o.WindMaxMPS
	case WindMinMPS:
		return &o.WindMinMPS
	case PressureKPa:
		return &o.PressureKPa
	case PrecipMM:
		return &o.PrecipMM
	case HumidityPercent:
		return &o.HumidityPercent
	case CloudCoverPercent:
		return &o.CloudCoverPercent
	default:
		return nil
	}
}

// PredictedDay is the long-range prediction for one date. Variables without a
// trained model are left nil and omitted from JSON.
type PredictedDay struct {
	Date string `json:"date"`

	TempC             *float64 `json:"temp_c,omitempty"`
	TempMaxC          *float64 `json:"temp_max_c,omitempty"`
	TempMinC          *float64 `json:"temp_min_c,omitempty"`
	WindMPS           *float64 `json:"wind_mps,omitempty"`
	WindMaxMPS        *float64 `json:"wind_max_mps,omitempty"`
	WindMinMPS        *float64 `json:"wind_min_mps,omitempty"`
	PressureKPa       *float64 `json:"pressure_kpa,omitempty"`
	PrecipMM          *float64 `json:"precip_mm,omitempty"`
	HumidityPercent   *float64 `json:"humidity_percent,omitempty"`
	CloudCoverPercent *float64 `json:"cloud_cover_percent,omitempty"`
}

// Value returns the prediction for v and whether one was made.
func (d *PredictedDay) Value(v Variable) (float64, bool) {
	p := d.field(v)
	if p == nil || *p == nil {
		return 0, false
	}
	return **p, true
}

// Set stores a prediction for v. Unknown variables are ignored.
func (d *PredictedDay) Set(v Variable, value float64) {
	if p := d.field(v); p != nil {
		*p = &value
	}
}

// Len returns the number of predicted variables.
func (d *PredictedDay) Len() int {
	n := 0
	for _, v := range Variables {
		if _, ok := d.Value(v); ok {
			n++
		}
	}
	return n
}

func (d *PredictedDay) field(v Variable) **float64 {
	switch v {
	case TempC:
		return &d.TempC
	case TempMaxC:
		return &d.TempMaxC
	case TempMinC:
		return &d.TempMinC
	case WindMPS:
		return &d.WindMPS
	case WindMaxMPS:
		return &d.WindMaxMPS
	case WindMinMPS:
		return &d.WindMinMPS
	case PressureKPa:
		return &d.PressureKPa
	case PrecipMM:
		return &d.PrecipMM
	case HumidityPercent:
		return &d.HumidityPercent
	case CloudCoverPercent:
		return &d.CloudCoverPercent
	default:
		return nil
	}
}

// DateLayout is the ISO calendar-date layout used for every date string.
const DateLayout = "2006-01-02"

// ParseDate normalizes an ISO date, an RFC3339 timestamp or a compact
// YYYYMMDD date into a calendar date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{DateLayout, time.RFC3339, time.RFC3339Nano, "20060102"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// FormatDate renders t as "YYYY-MM-DD".
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// MonthDay renders the calendar day of t as zero-padded "MM-DD".
func MonthDay(t time.Time) string {
	return fmt.Sprintf("%02d-%02d", int(t.Month()), t.Day())
}

// MonthDayOf extracts "MM-DD" from a date string accepted by ParseDate.
func MonthDayOf(date string) (string, bool) {
	t, err := ParseDate(date)
	if err != nil {
		return "", false
	}
	return MonthDay(t), true
}

// NormalizeMonthDay validates a calendar day given as "MM-DD" or "M-D" and
// returns it zero-padded. February 29 is accepted.
func NormalizeMonthDay(md string) (string, error) {
	var month, day int
	if _, err := fmt.Sscanf(strings.TrimSpace(md), "%d-%d", &month, &day); err != nil {
		return "", fmt.Errorf("invalid month-day %q", md)
	}
	if month < 1 || month > 12 {
		return "", fmt.Errorf("invalid month-day %q: month out of range", md)
	}
	// 2000 is a leap year, so every real calendar day fits.
	last := time.Date(2000, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day < 1 || day > last {
		return "", fmt.Errorf("invalid month-day %q: day out of range", md)
	}
	return fmt.Sprintf("%02d-%02d", month, day), nil
}

// Round2 rounds to two decimal places, halves away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
