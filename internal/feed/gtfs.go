package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"linewatch/internal/domain"
)

// GTFS fetches service alerts from a GTFS-Realtime protobuf feed and
// keeps the alerts whose informed entities reference the monitored line.
type GTFS struct {
	URL      string
	APIKey   string
	Line     string
	Language string
	Client   *http.Client
}

func (s *GTFS) Name() string { return "gtfs" }

func (s *GTFS) Fetch(ctx context.Context) (domain.Snapshot, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("gtfs: parse url: %w", err)
	}
	q := u.Query()
	q.Set("key", s.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	resp, err := httpClient(s.Client).Do(req)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("gtfs: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Snapshot{}, fmt.Errorf("gtfs: feed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("gtfs: read body: %w", err)
	}
	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(body, &feed); err != nil {
		return domain.Snapshot{}, fmt.Errorf("gtfs: parse feed: %w", err)
	}
	return domain.Snapshot{
		CapturedAt: now(),
		Records:    FilterFeed(&feed, s.Line, s.Language),
	}, nil
}

// FilterFeed extracts the alerts affecting lineID from a feed message.
// Route ids arrive both bare ("29") and agency-prefixed ("SL:29"), so a
// substring match is deliberate. Translations in lang win; otherwise the
// first non-empty text is used.
func FilterFeed(feed *gtfs.FeedMessage, lineID, lang string) []domain.DisruptionRecord {
	var records []domain.DisruptionRecord
	for _, entity := range feed.GetEntity() {
		alert := entity.GetAlert()
		if alert == nil {
			continue
		}
		if !affectsLine(alert, lineID) {
			continue
		}
		header := pickTranslation(alert.GetHeaderText(), lang)
		if header == "" {
			header = "Disruption"
		}
		r := domain.DisruptionRecord{
			ID:       entity.GetId(),
			Header:   header,
			Details:  pickTranslation(alert.GetDescriptionText(), lang),
			Severity: int(alert.GetSeverityLevel()),
			Cause:    int(alert.GetCause()),
			Effect:   int(alert.GetEffect()),
		}
		for _, period := range alert.GetActivePeriod() {
			var p domain.ActivePeriod
			if period.Start != nil {
				t := time.Unix(int64(period.GetStart()), 0).UTC()
				p.Start = &t
			}
			if period.End != nil {
				t := time.Unix(int64(period.GetEnd()), 0).UTC()
				p.End = &t
			}
			r.ActivePeriods = append(r.ActivePeriods, p)
		}
		records = append(records, r)
	}
	return records
}

func affectsLine(alert *gtfs.Alert, lineID string) bool {
	for _, informed := range alert.GetInformedEntity() {
		if informed.RouteId == nil {
			continue
		}
		routeID := informed.GetRouteId()
		if routeID == lineID || strings.Contains(routeID, lineID) {
			return true
		}
	}
	return false
}

func pickTranslation(ts *gtfs.TranslatedString, lang string) string {
	var text string
	for _, tr := range ts.GetTranslation() {
		if tr.GetLanguage() == lang || text == "" {
			text = tr.GetText()
		}
	}
	return text
}
