package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestHistoryLimit(t *testing.T) {
	h := newHistory[int](2)
	for i := 0; i < 5; i++ {
		h.add(i)
	}

	snapshot := h.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 items in snapshot, got %d", len(snapshot))
	}
	if snapshot[0] != 3 || snapshot[1] != 4 {
		t.Fatalf("unexpected items retained: %v", snapshot)
	}
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "snapshot dropped"
	entry.Data = logrus.Fields{"component": "aggregator", "source": "bitstamp", "error": errors.New("bad level")}

	if err := store.Fire(entry); err != nil {
		t.Fatalf("store.Fire returned error: %v", err)
	}

	snapshot := store.snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(snapshot))
	}
	rec := snapshot[0]
	if rec.Component != "aggregator" || rec.Fields["source"] != "bitstamp" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if rec.Fields["error"] != "bad level" {
		t.Fatalf("error field = %#v, want string", rec.Fields["error"])
	}
	if _, ok := rec.Fields["component"]; ok {
		t.Fatal("component should not be duplicated in fields")
	}
}

func TestLogStoreIgnoresEntriesAfterClose(t *testing.T) {
	store := newLogStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "msg"
		entry.Data = logrus.Fields{"index": i}
		if err := store.Fire(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := len(store.snapshot()); got != 2 {
		t.Fatalf("expected 2 entries after pruning, got %d", got)
	}

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	if err := store.Fire(entry); err != nil {
		t.Fatalf("unexpected error after close: %v", err)
	}
	if got := len(store.snapshot()); got != 2 {
		t.Fatal("store accepted entries after close")
	}
}
