package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"linewatch/internal/db"
	"linewatch/internal/domain"
	"linewatch/internal/repo"
	"linewatch/internal/server"
	"linewatch/internal/state"
)

var testLine = domain.LineContext{ID: "29", Name: "Huddinge-Sollentuna", StatusURL: "https://sl.se/status"}

func newTestServer(t *testing.T, withHistory bool) (*httptest.Server, *state.Store, *repo.Repo) {
	t.Helper()
	st := state.New(t.TempDir(), testLine.ID)
	cfg := server.Config{Store: st, Line: testLine}
	var r *repo.Repo
	if withHistory {
		conn, err := db.Open(db.Config{Workspace: t.TempDir()})
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		if err := db.Migrate(conn); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		r = &repo.Repo{DB: conn}
		cfg.Repo = r
	}
	ts := httptest.NewServer(server.New(cfg))
	t.Cleanup(ts.Close)
	return ts, st, r
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("get %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t, false)
	var body map[string]string
	getJSON(t, ts.URL+"/v0/health", http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Fatalf("health = %v", body)
	}
}

func TestStatusReflectsPersistedState(t *testing.T) {
	ts, st, _ := newTestServer(t, false)
	err := st.Save(domain.PersistedState{
		Line:      testLine.ID,
		UpdatedAt: time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
		LastSnapshot: domain.Snapshot{Records: []domain.DisruptionRecord{
			{ID: "ev-1", Header: "Signal fault"},
		}},
		KnownIDs: []string{"ev-1"},
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}

	var body struct {
		Line        string  `json:"line"`
		ActiveCount int     `json:"active_count"`
		UpdatedAt   *string `json:"updated_at"`
	}
	getJSON(t, ts.URL+"/v0/status", http.StatusOK, &body)
	if body.Line != "29" || body.ActiveCount != 1 {
		t.Fatalf("status = %+v", body)
	}
	if body.UpdatedAt == nil || *body.UpdatedAt != "2024-03-01T08:30:00Z" {
		t.Fatalf("updated_at = %v", body.UpdatedAt)
	}
}

func TestStatusBeforeFirstCycle(t *testing.T) {
	ts, _, _ := newTestServer(t, false)
	var body struct {
		ActiveCount int     `json:"active_count"`
		UpdatedAt   *string `json:"updated_at"`
	}
	getJSON(t, ts.URL+"/v0/status", http.StatusOK, &body)
	if body.ActiveCount != 0 || body.UpdatedAt != nil {
		t.Fatalf("status = %+v", body)
	}
}

func TestDisruptions(t *testing.T) {
	ts, st, _ := newTestServer(t, false)
	start := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	err := st.Save(domain.PersistedState{
		Line: testLine.ID,
		LastSnapshot: domain.Snapshot{Records: []domain.DisruptionRecord{
			{ID: "ev-1", Header: "Signal fault", ActivePeriods: []domain.ActivePeriod{{Start: &start}}},
		}},
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}

	var body []struct {
		ID     string  `json:"id"`
		Header string  `json:"header"`
		Starts *string `json:"starts"`
		Ends   *string `json:"ends"`
	}
	getJSON(t, ts.URL+"/v0/disruptions", http.StatusOK, &body)
	if len(body) != 1 || body[0].ID != "ev-1" {
		t.Fatalf("disruptions = %+v", body)
	}
	if body[0].Starts == nil || body[0].Ends != nil {
		t.Fatalf("bounds = %v %v", body[0].Starts, body[0].Ends)
	}
}

func TestChecksHistory(t *testing.T) {
	ts, _, r := newTestServer(t, true)
	if _, err := r.RecordCheck(context.Background(), domain.CheckResult{Line: "29", Transition: domain.TransitionNew, RecordCount: 1, NewCount: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	var body []domain.CheckResult
	getJSON(t, ts.URL+"/v0/checks", http.StatusOK, &body)
	if len(body) != 1 || body[0].Transition != domain.TransitionNew {
		t.Fatalf("checks = %+v", body)
	}
}

func TestHistoryDisabled(t *testing.T) {
	ts, _, _ := newTestServer(t, false)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	getJSON(t, ts.URL+"/v0/checks", http.StatusNotFound, &body)
	if body.Error.Code != "not_found" {
		t.Fatalf("error envelope = %+v", body)
	}
}

func TestNotificationsHistory(t *testing.T) {
	ts, _, r := newTestServer(t, true)
	_, err := r.RecordNotification(context.Background(), domain.SentNotification{
		Line:       "29",
		Transition: domain.TransitionNew,
		Title:      "New disruption on line 29",
		Channels:   []string{"desktop"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	var body []domain.SentNotification
	getJSON(t, ts.URL+"/v0/notifications", http.StatusOK, &body)
	if len(body) != 1 || body[0].Title != "New disruption on line 29" {
		t.Fatalf("notifications = %+v", body)
	}
}
