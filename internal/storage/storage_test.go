package storage

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/olgkv/bookmarkchecker/internal/domain"
)

func newTestStorage(t *testing.T, capacity int) *MemoryStorage {
	t.Helper()
	st := NewMemoryStorage(capacity)
	var n int
	st.newID = func() string {
		n++
		return "run-" + strconv.Itoa(n)
	}
	st.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return st
}

func TestMemoryStorageSaveAndGet(t *testing.T) {
	st := newTestStorage(t, 10)

	results := []domain.Result{
		domain.OK(domain.Bookmark{Title: "Go", URL: "https://go.dev"}),
		domain.Failed(domain.Bookmark{Title: "Gone", URL: "https://gone.example"}, "Request timed out"),
	}
	run, err := st.SaveRun(results)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if run.ID != "run-1" {
		t.Fatalf("unexpected id %q", run.ID)
	}
	if run.Summary != (domain.Summary{Total: 2, OK: 1, Error: 1}) {
		t.Fatalf("unexpected summary: %#v", run.Summary)
	}

	got, err := st.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != run {
		t.Fatalf("expected the stored run back")
	}

	runs, checked := st.Stats()
	if runs != 1 || checked != 2 {
		t.Fatalf("unexpected stats: runs=%d checked=%d", runs, checked)
	}
}

func TestMemoryStorageNotFound(t *testing.T) {
	st := newTestStorage(t, 10)

	_, err := st.GetRun("missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestMemoryStorageEvictsOldest(t *testing.T) {
	st := newTestStorage(t, 2)

	for i := 0; i < 3; i++ {
		if _, err := st.SaveRun(nil); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	if _, err := st.GetRun("run-1"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected oldest run evicted, got %v", err)
	}
	for _, id := range []string{"run-2", "run-3"} {
		if _, err := st.GetRun(id); err != nil {
			t.Fatalf("GetRun(%s): %v", id, err)
		}
	}
	if runs, _ := st.Stats(); runs != 2 {
		t.Fatalf("expected 2 runs kept, got %d", runs)
	}
}
