// Package models fits the per-calendar-day regression models used for
// long-range prediction. Each modeled weather variable gets its own linear
// model over the features [year, anomaly].
package models

import (
	"math"
	"time"

	"github.com/HatiCode/weatherdash/pkg/history"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

// ModelSet is the collection of per-variable regressions trained for one
// calendar day. A variable is present only if it had at least two non-missing
// observations in the sample.
type ModelSet struct {
	Key        string                          `json:"key"`
	MonthDay   string                          `json:"month_day"`
	Location   weather.Location                `json:"location"`
	TrainedAt  time.Time                       `json:"trained_at"`
	SampleSize int                             `json:"sample_size"`
	Models     map[weather.Variable]Regression `json:"models"`
}

// Empty reports whether no variable could be modeled.
func (s ModelSet) Empty() bool {
	return len(s.Models) == 0
}

// Train fits one Regression per variable from sample. Missing values are
// excluded per variable, so a gap in one variable never drops the others.
func Train(sample history.DaySample) ModelSet {
	set := ModelSet{
		MonthDay:   sample.MonthDay,
		Location:   sample.Location,
		TrainedAt:  time.Now().UTC(),
		SampleSize: len(sample.Observations),
		Models:     make(map[weather.Variable]Regression),
	}

	for _, v := range weather.Variables {
		x := make([][2]float64, 0, len(sample.Observations))
		y := make([]float64, 0, len(sample.Observations))
		for _, obs := range sample.Observations {
			val, ok := obs.Value(v)
			if !ok || math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
			x = append(x, [2]float64{float64(obs.Year), obs.Anomaly})
			y = append(y, val)
		}
		if len(y) < 2 {
			continue
		}
		reg, err := Fit(x, y)
		if err != nil {
			continue
		}
		set.Models[v] = reg
	}

	return set
}
