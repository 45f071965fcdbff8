package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"linewatch/internal/domain"
)

// Scrape is the last-resort source: it fetches the operator's public
// disruption page and looks for the monitored line next to disruption
// keywords. It yields at most one synthetic record without an upstream
// id, so identity degrades to the engine's content hash: the same finding
// on consecutive polls reads as ongoing, its disappearance as resolved.
type Scrape struct {
	URL      string
	Line     string
	LineName string
	Keywords []string
	Client   *http.Client
}

// defaultKeywords are the Swedish disruption terms used on sl.se.
var defaultKeywords = []string{"störning", "förseningar", "inställd", "ersättningsbuss", "avbrott"}

func (s *Scrape) Name() string { return "scrape" }

func (s *Scrape) Fetch(ctx context.Context) (domain.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	// Some operator pages reject non-browser agents.
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	resp, err := httpClient(s.Client).Do(req)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("scrape: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Snapshot{}, fmt.Errorf("scrape: page returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("scrape: read body: %w", err)
	}

	snap := domain.Snapshot{CapturedAt: now()}
	if s.Match(string(body)) {
		snap.Records = []domain.DisruptionRecord{{
			Header: fmt.Sprintf("Possible disruption on line %s", s.Line),
			Details: fmt.Sprintf("Line %s (%s) is mentioned on the operator's disruption page. Check the status page for details.",
				s.Line, s.LineName),
		}}
	}
	return snap, nil
}

// Match reports whether the page content mentions the line together with
// at least one disruption keyword.
func (s *Scrape) Match(content string) bool {
	content = strings.ToLower(content)
	mentionsLine := strings.Contains(content, "linje "+s.Line) ||
		strings.Contains(content, " "+s.Line+" ") ||
		(s.LineName != "" && strings.Contains(content, strings.ToLower(s.LineName)))
	if !mentionsLine {
		return false
	}
	keywords := s.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	for _, kw := range keywords {
		if strings.Contains(content, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
