package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/bizmon/eventrelay/internal/wire"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestJSONLWriterWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLWriter(dir, "tail", 16, 1)
	w.now = func() time.Time { return time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC) }

	for i := 0; i < 3; i++ {
		if err := w.Write(map[string]int{"n": i}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "2026-03-04", "tail.jsonl"))
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[2]["n"] != float64(2) {
		t.Fatalf("last line = %v", lines[2])
	}
}

func TestJSONLWriterRejectsAfterClose(t *testing.T) {
	w := NewJSONLWriter(t.TempDir(), "x", 4, 1)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Write("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write after close = %v, want ErrClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestChannelArchiveSplitsByChannel(t *testing.T) {
	dir := t.TempDir()
	a := NewChannelArchive(dir, 16, 1)

	envs := []wire.Envelope{
		{Type: channel.Scan, Data: map[string]any{"userId": "u1"}, Timestamp: 1},
		{Type: channel.Chat, Data: map[string]any{"raw": "hi"}, Timestamp: 2},
		{Type: channel.Scan, Data: map[string]any{"userId": "u2"}, Timestamp: 3},
	}
	for _, env := range envs {
		if err := a.Write(env); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	scans, _ := filepath.Glob(filepath.Join(dir, "*", "scan_monitor.jsonl"))
	if len(scans) != 1 {
		t.Fatalf("scan archives = %v", scans)
	}
	lines := readLines(t, scans[0])
	if len(lines) != 2 || lines[0]["type"] != "scan_monitor" {
		t.Fatalf("scan lines = %v", lines)
	}
	chats, _ := filepath.Glob(filepath.Join(dir, "*", "chat_monitor.jsonl"))
	if len(chats) != 1 {
		t.Fatalf("chat archives = %v", chats)
	}

	if err := a.Write(envs[0]); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write after close = %v, want ErrClosed", err)
	}
}

func TestChannelArchiveRejectsForeignRecords(t *testing.T) {
	a := NewChannelArchive(t.TempDir(), 4, 1)
	defer a.Close()
	if err := a.Write("not an envelope"); err == nil {
		t.Fatal("expected error for non-envelope record")
	}
	if err := a.Write(wire.Envelope{}); err == nil {
		t.Fatal("expected error for envelope without channel")
	}
}
