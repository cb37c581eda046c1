package weather

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "iso date", input: "2026-07-15", want: "2026-07-15"},
		{name: "rfc3339", input: "2026-07-15T18:30:00Z", want: "2026-07-15"},
		{name: "rfc3339 offset", input: "2026-07-15T23:30:00+02:00", want: "2026-07-15"},
		{name: "compact", input: "20260715", want: "2026-07-15"},
		{name: "surrounding space", input: " 2026-07-15 ", want: "2026-07-15"},
		{name: "leap day", input: "2028-02-29", want: "2028-02-29"},
		{name: "garbage", input: "not-a-date", wantErr: true},
		{name: "invalid day", input: "2026-02-30", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) error: %v", tt.input, err)
			}
			if FormatDate(got) != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, FormatDate(got), tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("expected UTC location, got %v", got.Location())
			}
		})
	}
}

func TestMonthDay(t *testing.T) {
	d := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	if got := MonthDay(d); got != "03-05" {
		t.Errorf("MonthDay = %s, want 03-05", got)
	}

	md, ok := MonthDayOf("1999-12-31")
	if !ok || md != "12-31" {
		t.Errorf("MonthDayOf = %s, %v; want 12-31, true", md, ok)
	}
	if _, ok := MonthDayOf("bogus"); ok {
		t.Error("expected MonthDayOf to reject bogus input")
	}
}

func TestNormalizeMonthDay(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "07-15", want: "07-15"},
		{input: "7-5", want: "07-05"},
		{input: "02-29", want: "02-29"},
		{input: "12-31", want: "12-31"},
		{input: "02-30", wantErr: true},
		{input: "13-01", wantErr: true},
		{input: "00-10", wantErr: true},
		{input: "04-31", wantErr: true},
		{input: "july", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeMonthDay(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeMonthDay(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.234, 1.23},
		{1.235, 1.24},
		{-1.235, -1.24},
		{2.5, 2.5},
		{0, 0},
		{101.3249, 101.32},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestObservation_ValueAndSet(t *testing.T) {
	var o Observation
	for _, v := range Variables {
		if _, ok := o.Value(v); ok {
			t.Fatalf("expected %s to be missing on zero observation", v)
		}
	}

	o.Set(TempC, 21.5)
	o.Set(PrecipMM, 0)
	o.Set(Variable("unknown"), 3)

	if got, ok := o.Value(TempC); !ok || got != 21.5 {
		t.Errorf("TempC = %v, %v; want 21.5, true", got, ok)
	}
	if got, ok := o.Value(PrecipMM); !ok || got != 0 {
		t.Errorf("PrecipMM = %v, %v; want 0, true", got, ok)
	}
	if _, ok := o.Value(Variable("unknown")); ok {
		t.Error("unknown variable should never be present")
	}
}

func TestPredictedDay_JSONOmitsMissing(t *testing.T) {
	d := PredictedDay{Date: "2026-07-15"}
	d.Set(TempC, 24.12)
	d.Set(HumidityPercent, 61)

	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}

	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"temp_c":24.12`) || !strings.Contains(s, `"humidity_percent":61`) {
		t.Errorf("missing predicted values in %s", s)
	}
	if strings.Contains(s, "wind_mps") || strings.Contains(s, "precip_mm") {
		t.Errorf("absent variables must not be serialized: %s", s)
	}
}

func TestVariables(t *testing.T) {
	if len(Variables) != 10 {
		t.Fatalf("expected 10 modeled variables, got %d", len(Variables))
	}
	seen := make(map[Variable]bool)
	for _, v := range Variables {
		if seen[v] {
			t.Errorf("duplicate variable %s", v)
		}
		seen[v] = true
		if !v.Valid() {
			t.Errorf("%s should be valid", v)
		}
	}
	if Variable("dew_point_c").Valid() {
		t.Error("auxiliary fields are not modeled variables")
	}
}
