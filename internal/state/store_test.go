package state_test

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"linewatch/internal/domain"
	"linewatch/internal/state"
)

func quietStore(t *testing.T) *state.Store {
	t.Helper()
	s := state.New(t.TempDir(), "29")
	s.Logger = log.New(io.Discard, "", 0)
	return s
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s := quietStore(t)
	st := s.Load()
	if len(st.KnownIDs) != 0 || len(st.LastSnapshot.Records) != 0 {
		t.Fatalf("missing file should load as empty state, got %+v", st)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := quietStore(t)
	want := domain.PersistedState{
		Line:      "29",
		UpdatedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		LastSnapshot: domain.Snapshot{
			CapturedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
			Records:    []domain.DisruptionRecord{{ID: "A", Header: "Delay"}},
		},
		KnownIDs: []string{"A"},
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got := s.Load()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestCorruptFileFailsOpen(t *testing.T) {
	s := quietStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	st := s.Load()
	if len(st.KnownIDs) != 0 {
		t.Fatalf("corrupt file should degrade to empty state, got %+v", st)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := quietStore(t)
	if err := s.Save(domain.PersistedState{Line: "29"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(s.Path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != filepath.Base(s.Path) {
		t.Fatalf("expected only the state file, got %v", entries)
	}
}

func TestLockIsExclusive(t *testing.T) {
	s := quietStore(t)
	release, err := s.Lock()
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := s.Lock(); err == nil {
		t.Fatalf("expected second lock to fail while held")
	}
	release()
	release2, err := s.Lock()
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	release2()
}
