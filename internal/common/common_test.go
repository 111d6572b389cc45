package common

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMetricsPositionIsMonotonic(t *testing.T) {
	m := NewMetrics()
	m.SetTotalBytes(100)
	m.Start()
	m.AddBox("moov", 0, 80)
	m.AddBox("trak", 1, 40)
	m.AddBox("trak", 1, 250)
	m.IncProblem()
	m.AddIssues(3)
	m.AddIssues(-1)
	m.Stop()
	s := m.Snapshot()
	if s.Bytes != 100 {
		t.Fatalf("bytes = %d, want 100", s.Bytes)
	}
	if s.Boxes != 3 || s.Problems != 1 || s.Issues != 3 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if s.Completion() != 1 {
		t.Fatalf("completion = %v", s.Completion())
	}
	if s.MaxDepth != 1 {
		t.Fatalf("max depth = %d", s.MaxDepth)
	}
	top := s.TopBoxTypes(1)
	if len(top) != 1 || top[0] != (BoxTypeCount{Type: "trak", Count: 2}) {
		t.Fatalf("top types = %+v", top)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{3 << 20, "3.00 MiB"},
	}
	for _, tc := range cases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStartProgressPrinterStops(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	w := writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	})
	m := NewMetrics()
	m.SetTotalBytes(10)
	m.AddBox("mdat", 0, 5)
	stop := StartProgressPrinter(w, m, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	stop()
	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(buf.String(), "Scanned:") {
		t.Fatalf("expected progress output, got %q", buf.String())
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestResearchLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "research.jsonl")
	log := NewResearchLog(path)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := log.Append(ResearchEntry{BoxType: "abcd", FilePath: "a.mp4", Start: int64(i * 8), End: int64(i*8 + 8)}); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := log.Append(ResearchEntry{BoxType: "wxyz"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := ReadResearchLog(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 9 {
		t.Fatalf("entries = %d, want 9", len(entries))
	}
	counts := SummarizeResearch(entries)
	if counts["abcd"] != 8 || counts["wxyz"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if err := log.Append(ResearchEntry{}); err == nil {
		t.Fatalf("expected error for entry without box type")
	}
}

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	logger, closeFn, err := NewLogger(LogOptions{Directory: dir, Level: "debug", MaxSizeMB: 1, Console: &console})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("validated")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "bmffgate.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["message"] != "validated" || line["level"] != "info" {
		t.Fatalf("unexpected log line %v", line)
	}
	if !strings.Contains(console.String(), "validated") {
		t.Fatalf("console missing entry: %q", console.String())
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, _, err := NewLogger(LogOptions{Level: "loud"}); err == nil {
		t.Fatalf("expected error")
	}
}
