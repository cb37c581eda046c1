// Package anomaly holds the global temperature anomaly table used as the
// second regression feature, in °C relative to the pre-industrial baseline.
package anomaly

import "sort"

const (
	// TrainingDefault is used for training years missing from the table.
	TrainingDefault = 1.0
	// PredictionDefault is used for target years missing from the table.
	PredictionDefault = 1.3

	FirstYear = 1984
	LastYear  = 2025
)

var table = map[int]float64{
	1984: 0.25, 1985: 0.27, 1986: 0.28, 1987: 0.30, 1988: 0.32,
	1989: 0.33, 1990: 0.35, 1991: 0.36, 1992: 0.38, 1993: 0.39,
	1994: 0.41, 1995: 0.42, 1996: 0.44, 1997: 0.45, 1998: 0.48,
	1999: 0.49, 2000: 0.50, 2001: 0.51, 2002: 0.53, 2003: 0.55,
	2004: 0.56, 2005: 0.58, 2006: 0.60, 2007: 0.61, 2008: 0.63,
	2009: 0.65, 2010: 0.67, 2011: 0.68, 2012: 0.70, 2013: 0.72,
	2014: 0.74, 2015: 0.76, 2016: 0.78, 2017: 0.80, 2018: 0.82,
	2019: 0.84, 2020: 0.86, 2021: 0.88, 2022: 0.90, 2023: 0.95,
	2024: 1.10, 2025: 1.20,
}

// Lookup returns the anomaly for year, or def when the year is not tabulated.
// There is no interpolation or extrapolation.
func Lookup(year int, def float64) float64 {
	if v, ok := table[year]; ok {
		return v
	}
	return def
}

// Years returns the tabulated years in increasing order.
func Years() []int {
	years := make([]int, 0, len(table))
	for y := range table {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
