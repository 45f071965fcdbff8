// Package feed fetches disruption data from an upstream source and
// normalizes it into a domain.Snapshot. Three source kinds exist, one per
// upstream format: the GTFS-Realtime service-alerts feed, the JSON
// deviations API, and a webpage keyword scrape used as a last resort.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"linewatch/internal/config"
	"linewatch/internal/domain"
)

// Source produces one normalized snapshot per call. Implementations
// filter to the monitored line before returning; the reconciliation core
// never sees records for other lines.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (domain.Snapshot, error)
}

// FromConfig builds the configured source. API keys are resolved from the
// environment so they never live in the config file.
func FromConfig(cfg *config.Config) (Source, error) {
	apiKey := ""
	if cfg.Source.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.Source.APIKeyEnv)
	}
	switch cfg.Source.Kind {
	case "gtfs":
		if apiKey == "" {
			return nil, fmt.Errorf("feed: gtfs source requires an API key; set %s", cfg.Source.APIKeyEnv)
		}
		return &GTFS{
			URL:      cfg.Source.URL,
			APIKey:   apiKey,
			Line:     cfg.Line.ID,
			Language: cfg.Source.Language,
		}, nil
	case "deviations":
		return &Deviations{
			URL:      cfg.Source.URL,
			APIKey:   apiKey,
			Line:     cfg.Line.ID,
			LineName: cfg.Line.Name,
		}, nil
	case "scrape":
		return &Scrape{
			URL:      cfg.Source.URL,
			Line:     cfg.Line.ID,
			LineName: cfg.Line.Name,
			Keywords: cfg.Source.Keywords,
		}, nil
	default:
		return nil, fmt.Errorf("feed: unknown source kind %q", cfg.Source.Kind)
	}
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}

func now() time.Time { return time.Now().UTC() }
