// Package adapters provides weatherdash historical data sources that retrieve
// a full calendar year of daily observations for a location from an external
// climate archive and normalize them into [weather.Observation] records.
//
// Each adapter implements the Source interface and can be plugged into the
// day-series extractor. Available adapters include:
//   - NASAPowerAdapter: NASA POWER daily point API (default)
//   - OpenMeteoArchiveAdapter: Open-Meteo historical archive API
//
// Adapters only pull and normalize data. Day selection, anomaly tagging and
// model training happen in the upper layers.
package adapters

import (
	"context"

	"github.com/HatiCode/weatherdash/pkg/weather"
)

// Source is the interface every historical data adapter implements.
//
// FetchYear returns the daily observations of one calendar year at the given
// coordinates, ordered by date. An empty result with a nil error means the
// source has no data for that year. FetchYear must respect context
// cancellation and deadlines.
type Source interface {
	FetchYear(ctx context.Context, year int, lat, lon float64) ([]weather.Observation, error)

	// Name returns a short, unique identifier for the adapter.
	// Example: "nasapower", "openmeteo".
	Name() string
}
