package adapters

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// New creates a source based on kind and generic configuration map.
// This is the central extension point for adding new source types.
//
// Supported kinds:
//   - "nasapower": NASA POWER daily point API
//   - "openmeteo": Open-Meteo historical archive
//
// Recognized config keys: "url", "timeout" (Go duration) and "retries".
// Returns error if kind is unknown or a value cannot be parsed.
func New(kind string, config map[string]string) (Source, error) {
	client, retry, err := parseCommon(config)
	if err != nil {
		return nil, fmt.Errorf("%s source: %w", kind, err)
	}

	switch kind {
	case "nasapower":
		return NewNASAPowerAdapter(config["url"], client, retry), nil
	case "openmeteo":
		return NewOpenMeteoArchiveAdapter(config["url"], client, retry), nil
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be nasapower or openmeteo)", kind)
	}
}

func parseCommon(config map[string]string) (*http.Client, RetryConfig, error) {
	timeout := 30 * time.Second
	if v := config["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, RetryConfig{}, fmt.Errorf("invalid 'timeout': %w", err)
		}
		timeout = d
	}

	retry := DefaultRetry
	if v := config["retries"]; v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, RetryConfig{}, fmt.Errorf("invalid 'retries': %w", err)
		}
		retry.MaxRetries = n
	}

	return &http.Client{Timeout: timeout}, retry, nil
}
