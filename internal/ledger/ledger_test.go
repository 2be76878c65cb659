package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/lampd/internal/db"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndRecent(t *testing.T) {
	l := openTestLedger(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{EventType: EventInitialized, Timestamp: base, Color: "#0a141e"},
		{EventType: EventUserEdit, Timestamp: base.Add(time.Second), Color: "#ff0000", EditID: "e1"},
		{EventType: EventWriteOK, Timestamp: base.Add(2 * time.Second), Color: "#ff0000", EditID: "e1"},
	}
	for _, e := range entries {
		if err := l.Append(e); err != nil {
			t.Fatalf("Append(%s): %v", e.EventType, err)
		}
	}

	got, err := l.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d entries, want 3", len(got))
	}
	if got[0].EventType != EventWriteOK || got[2].EventType != EventInitialized {
		t.Errorf("Recent order = %s..%s, want newest first", got[0].EventType, got[2].EventType)
	}
	if !got[2].Timestamp.Equal(base) {
		t.Errorf("timestamp = %v, want %v", got[2].Timestamp, base)
	}

	edit, err := l.ByEdit("e1")
	if err != nil {
		t.Fatalf("ByEdit: %v", err)
	}
	if len(edit) != 2 || edit[0].EventType != EventUserEdit || edit[1].EventType != EventWriteOK {
		t.Errorf("ByEdit = %v, want user_edit then cloud_write_ok", edit)
	}
}

func TestGetByType(t *testing.T) {
	l := openTestLedger(t)

	l.Append(Entry{EventType: EventReadFailed, Error: "timeout"})
	l.Append(Entry{EventType: EventRemoteChange, Color: "#0000ff"})
	l.Append(Entry{EventType: EventReadFailed, Error: "http 500"})

	got, err := l.GetByType(EventReadFailed, 10)
	if err != nil {
		t.Fatalf("GetByType: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetByType returned %d entries, want 2", len(got))
	}
	for _, e := range got {
		if e.Error == "" {
			t.Errorf("entry %d lost its error text", e.ID)
		}
	}
}

func TestDeleteOlderThan(t *testing.T) {
	l := openTestLedger(t)
	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Append(Entry{EventType: EventUserEdit, Timestamp: now.Add(-40 * 24 * time.Hour)})
	l.Append(Entry{EventType: EventUserEdit, Timestamp: now.Add(-time.Hour)})

	deleted, err := l.DeleteOlderThan(30 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	left, _ := l.Recent(10)
	if len(left) != 1 {
		t.Errorf("%d entries left, want 1", len(left))
	}
}
