package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"linewatch/internal/domain"
)

// Deviations fetches the operator's JSON traffic-situation API and keeps
// bus events that mention the monitored line by number or by name.
type Deviations struct {
	URL      string
	APIKey   string
	Line     string
	LineName string
	Client   *http.Client
}

type deviationsResponse struct {
	StatusCode   int `json:"StatusCode"`
	ResponseData []struct {
		TrafficTypes []struct {
			Type string `json:"Type"`
		} `json:"TrafficTypes"`
		Events []struct {
			EventID      int64  `json:"EventId"`
			Message      string `json:"Message"`
			Expanded     string `json:"Expanded"`
			SeverityCode int    `json:"SeverityCode"`
			Created      string `json:"Created"`
		} `json:"Events"`
	} `json:"ResponseData"`
}

func (s *Deviations) Name() string { return "deviations" }

func (s *Deviations) Fetch(ctx context.Context) (domain.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if s.APIKey != "" {
		q := req.URL.Query()
		q.Set("key", s.APIKey)
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("User-Agent", "linewatch/1.0")
	resp, err := httpClient(s.Client).Do(req)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("deviations: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Snapshot{}, fmt.Errorf("deviations: api returned status %d", resp.StatusCode)
	}
	var payload deviationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Snapshot{}, fmt.Errorf("deviations: decode: %w", err)
	}
	if payload.StatusCode != 0 {
		return domain.Snapshot{}, fmt.Errorf("deviations: api status code %d", payload.StatusCode)
	}
	return domain.Snapshot{CapturedAt: now(), Records: s.filter(payload)}, nil
}

func (s *Deviations) filter(payload deviationsResponse) []domain.DisruptionRecord {
	var records []domain.DisruptionRecord
	for _, item := range payload.ResponseData {
		if !hasBusTraffic(item.TrafficTypes) {
			continue
		}
		for _, event := range item.Events {
			if !s.mentionsLine(event.Message) && !s.mentionsLine(event.Expanded) {
				continue
			}
			r := domain.DisruptionRecord{
				Header:   event.Message,
				Details:  event.Expanded,
				Severity: event.SeverityCode,
			}
			if event.EventID != 0 {
				r.ID = strconv.FormatInt(event.EventID, 10)
			}
			records = append(records, r)
		}
	}
	return records
}

func hasBusTraffic(types []struct {
	Type string `json:"Type"`
}) bool {
	for _, t := range types {
		if t.Type == "bus" {
			return true
		}
	}
	return false
}

func (s *Deviations) mentionsLine(text string) bool {
	if strings.Contains(text, s.Line) {
		return true
	}
	return s.LineName != "" && strings.Contains(strings.ToLower(text), strings.ToLower(s.LineName))
}
