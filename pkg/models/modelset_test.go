package models

import (
	"fmt"
	"math"
	"testing"

	"github.com/HatiCode/weatherdash/pkg/anomaly"
	"github.com/HatiCode/weatherdash/pkg/history"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

func ptr(v float64) *float64 { return &v }

func makeSample(years []int, fill func(o *weather.Observation, year int)) history.DaySample {
	s := history.DaySample{
		Location: weather.Location{Lat: 44.43, Lon: 26.1},
		MonthDay: "07-15",
	}
	for _, y := range years {
		o := weather.Observation{
			Date:    fmt.Sprintf("%d-07-15", y),
			Year:    y,
			Anomaly: anomaly.Lookup(y, anomaly.TrainingDefault),
		}
		fill(&o, y)
		s.Observations = append(s.Observations, o)
	}
	return s
}

func TestTrain_AllVariables(t *testing.T) {
	years := []int{2000, 2001, 2002, 2003, 2004, 2005}
	sample := makeSample(years, func(o *weather.Observation, y int) {
		for i, v := range weather.Variables {
			o.Set(v, float64(i)+float64(y-2000)*0.1)
		}
	})

	set := Train(sample)
	if len(set.Models) != len(weather.Variables) {
		t.Fatalf("expected %d models, got %d", len(weather.Variables), len(set.Models))
	}
	if set.SampleSize != len(years) || set.MonthDay != "07-15" {
		t.Errorf("unexpected set header: %+v", set)
	}
	if set.TrainedAt.IsZero() {
		t.Error("TrainedAt should be set")
	}
	if set.Empty() {
		t.Error("set should not be empty")
	}

	got := set.Models[weather.TempC].Predict(2006, anomaly.Lookup(2006, anomaly.PredictionDefault))
	if math.Abs(got-0.6) > 1e-3 {
		t.Errorf("TempC prediction = %v, want ~0.6", got)
	}
}

func TestTrain_MissingValuesExcludedPerVariable(t *testing.T) {
	years := []int{2010, 2011, 2012, 2013}
	sample := makeSample(years, func(o *weather.Observation, y int) {
		o.TempC = ptr(float64(y - 1990))
		if y == 2012 {
			o.PrecipMM = ptr(3)
		}
		if y >= 2012 {
			o.HumidityPercent = ptr(60)
		}
	})

	set := Train(sample)

	if reg, ok := set.Models[weather.TempC]; !ok || reg.N != 4 {
		t.Errorf("TempC model = %+v, %v; want N=4", reg, ok)
	}
	if _, ok := set.Models[weather.PrecipMM]; ok {
		t.Error("a single observation must not produce a model")
	}
	if reg, ok := set.Models[weather.HumidityPercent]; !ok || reg.N != 2 {
		t.Errorf("HumidityPercent model = %+v, %v; want N=2", reg, ok)
	}
	if _, ok := set.Models[weather.WindMPS]; ok {
		t.Error("variable without data must be absent")
	}
}

func TestTrain_EmptySample(t *testing.T) {
	set := Train(history.DaySample{MonthDay: "02-29"})
	if !set.Empty() {
		t.Errorf("expected empty model set, got %d models", len(set.Models))
	}
	if set.SampleSize != 0 {
		t.Errorf("SampleSize = %d, want 0", set.SampleSize)
	}
}

func TestTrain_SingleYear(t *testing.T) {
	sample := makeSample([]int{2020}, func(o *weather.Observation, _ int) {
		o.TempC = ptr(25)
	})
	if set := Train(sample); !set.Empty() {
		t.Errorf("one observation must not produce any model, got %d", len(set.Models))
	}
}
