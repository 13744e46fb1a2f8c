package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type recordingSink struct {
	entries []Entry
	err     error
}

func (s *recordingSink) Append(_ context.Context, e Entry) error {
	s.entries = append(s.entries, e)
	return s.err
}

func TestRecordWritesMonthlySegment(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	sink := &recordingSink{err: errors.New("db down")}
	log := NewLog(dir, WithClock(func() time.Time { return now }), WithMirror(sink))

	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithClientIP(ctx, "10.0.0.7")
	if err := log.Record(ctx, "a@x.com", ActionLoginSuccess, "Role: user"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "audit_202603.jsonl"))
	if err != nil {
		t.Fatalf("segment missing: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatal("expected a line")
	}
	var entry map[string]any
	if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
		t.Fatalf("line not valid JSON: %v", err)
	}
	for key, want := range map[string]string{
		"user":       "a@x.com",
		"action":     ActionLoginSuccess,
		"details":    "Role: user",
		"ip":         "10.0.0.7",
		"session_id": "sess-1",
	} {
		if entry[key] != want {
			t.Fatalf("%s = %v, want %s", key, entry[key], want)
		}
	}
	if len(sink.entries) != 1 {
		t.Fatalf("mirror should still receive the entry, got %d", len(sink.entries))
	}
}

func TestRecordDefaultsAndValidation(t *testing.T) {
	log := NewLog(t.TempDir())
	if err := log.Record(context.Background(), "x", "  ", ""); err == nil {
		t.Fatal("expected error for empty action")
	}
	if err := log.Record(context.Background(), "x", ActionLogout, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	segs, err := log.Segments()
	if err != nil || len(segs) != 1 {
		t.Fatalf("segments = %v, %v", segs, err)
	}
	entries, err := log.Read(segs[0], Filter{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if entries[0].SessionID != notAvailable || entries[0].IP != notAvailable {
		t.Fatalf("expected N/A defaults, got %+v", entries[0])
	}
}

func TestSegmentsNewestFirstAndIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"audit_202511.jsonl", "audit_202601.jsonl", "notes.txt", "audit_2026.jsonl"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	segs, err := NewLog(dir).Segments()
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segs) != 2 || segs[0] != "audit_202601.jsonl" || segs[1] != "audit_202511.jsonl" {
		t.Fatalf("unexpected segments %v", segs)
	}

	missing, err := NewLog(filepath.Join(dir, "nope")).Segments()
	if err != nil || missing != nil {
		t.Fatalf("missing dir should be empty, got %v %v", missing, err)
	}
}

func TestReadFiltersNewestFirstAndSkipsGarbage(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	clock := day
	log := NewLog(dir, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	for i, e := range []struct{ user, action string }{
		{"a@x.com", ActionLoginFailed},
		{"a@x.com", ActionLoginSuccess},
		{"b@x.com", ActionLoginFailed},
	} {
		clock = day.Add(time.Duration(i) * time.Hour)
		if err := log.Record(ctx, e.user, e.action, ""); err != nil {
			t.Fatal(err)
		}
	}
	clock = day.Add(24 * time.Hour)
	if err := log.Record(ctx, "a@x.com", ActionLoginFailed, "next day"); err != nil {
		t.Fatal(err)
	}

	seg := SegmentName(day)
	f, err := os.OpenFile(filepath.Join(dir, seg), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{\"timestamp\":\"broken\n")
	_ = f.Close()

	failed, err := log.Read(seg, Filter{Action: ActionLoginFailed})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(failed) != 3 || failed[0].Details != "next day" {
		t.Fatalf("expected 3 failures newest first, got %+v", failed)
	}

	sameDay, err := log.Read(seg, Filter{User: "a@x.com", Date: day})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(sameDay) != 2 {
		t.Fatalf("expected 2 entries for a@x.com on day, got %d", len(sameDay))
	}

	limited, _ := log.Read(seg, Filter{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("limit not applied: %d", len(limited))
	}

	actions, users, err := log.Facets(seg)
	if err != nil {
		t.Fatalf("Facets: %v", err)
	}
	if len(actions) != 2 || len(users) != 2 {
		t.Fatalf("unexpected facets %v %v", actions, users)
	}
}

func TestReadSkipsOverlongLine(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	log := NewLog(dir, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if err := log.Record(ctx, "first@x.com", ActionLoginFailed, ""); err != nil {
		t.Fatal(err)
	}
	if err := log.Record(ctx, strings.Repeat("<", maxLineBytes/4), ActionLoginFailed, "User not found"); err != nil {
		t.Fatal(err)
	}
	if err := log.Record(ctx, "last@x.com", ActionLoginFailed, ""); err != nil {
		t.Fatal(err)
	}

	seg := SegmentName(now)
	info, err := os.Stat(filepath.Join(dir, seg))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() <= maxLineBytes {
		t.Fatalf("segment is only %d bytes, the long entry did not exceed the line limit", info.Size())
	}

	entries, err := log.Read(seg, Filter{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 2 || entries[0].User != "last@x.com" || entries[1].User != "first@x.com" {
		t.Fatalf("expected the two short entries newest first, got %d entries", len(entries))
	}
}

func TestReadRejectsTraversal(t *testing.T) {
	if _, err := NewLog(t.TempDir()).Read("../../etc/passwd", Filter{}); !errors.Is(err, ErrInvalidSegment) {
		t.Fatalf("expected ErrInvalidSegment, got %v", err)
	}
}
