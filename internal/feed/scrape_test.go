package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"linewatch/internal/feed"
)

func TestScrapeMatch(t *testing.T) {
	s := &feed.Scrape{Line: "29", LineName: "Näsbyparkslinjen"}
	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{"line and keyword", "Just nu: störning på linje 29 mot Ropsten", true},
		{"name and keyword", "Näsbyparkslinjen har förseningar", true},
		{"line without keyword", "Linje 29 går som vanligt", false},
		{"keyword without line", "Störning på linje 12", false},
		{"case insensitive", "STÖRNING PÅ LINJE 29", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Match(tc.content); got != tc.want {
				t.Fatalf("Match(%q) = %v, want %v", tc.content, got, tc.want)
			}
		})
	}
}

func TestScrapeCustomKeywords(t *testing.T) {
	s := &feed.Scrape{Line: "29", Keywords: []string{"banarbete"}}
	if !s.Match("linje 29 påverkas av banarbete") {
		t.Fatalf("custom keyword not matched")
	}
	if s.Match("störning på linje 29") {
		t.Fatalf("default keywords should be replaced, not merged")
	}
}

func TestScrapeFetchProducesSyntheticRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>störning på linje 29</html>"))
	}))
	defer srv.Close()

	s := &feed.Scrape{URL: srv.URL, Line: "29", LineName: "Näsbyparkslinjen"}
	snap, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snap.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(snap.Records))
	}
	if snap.Records[0].ID != "" {
		t.Fatalf("synthetic record must not fake an upstream id")
	}
}

func TestScrapeFetchNoMatchIsEmptySnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>allt rullar</html>"))
	}))
	defer srv.Close()

	s := &feed.Scrape{URL: srv.URL, Line: "29"}
	snap, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snap.Records) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap.Records)
	}
}

func TestScrapeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := &feed.Scrape{URL: srv.URL, Line: "29"}
	if _, err := s.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error on server failure")
	}
}
