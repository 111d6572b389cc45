package common

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics tracks walk progress. It is safe for concurrent use by a walker and
// a progress printer.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	end        time.Time
	position   int64
	totalBytes int64
	boxes      int64
	maxDepth   int
	byType     map[string]int64
	problems   int64
	issues     int64
}

func NewMetrics() *Metrics {
	return &Metrics{byType: make(map[string]int64)}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddBox counts a visited box of type typ at depth and advances the scanned
// position to end. Nested boxes never move the position backwards.
func (m *Metrics) AddBox(typ string, depth int, end int64) {
	m.mu.Lock()
	m.boxes++
	if m.byType == nil {
		m.byType = make(map[string]int64)
	}
	m.byType[typ]++
	if depth > m.maxDepth {
		m.maxDepth = depth
	}
	if end > m.position {
		m.position = end
		if m.totalBytes > 0 && m.position > m.totalBytes {
			m.position = m.totalBytes
		}
	}
	m.mu.Unlock()
}

func (m *Metrics) IncProblem() {
	m.mu.Lock()
	m.problems++
	m.mu.Unlock()
}

func (m *Metrics) AddIssues(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.issues += int64(n)
	m.mu.Unlock()
}

func (m *Metrics) SetTotalBytes(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalBytes = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	byType := make(map[string]int64, len(m.byType))
	for k, v := range m.byType {
		byType[k] = v
	}
	return MetricsSnapshot{
		Duration:   m.elapsedLocked(),
		Bytes:      m.position,
		TotalBytes: m.totalBytes,
		Boxes:      m.boxes,
		MaxDepth:   m.maxDepth,
		BoxTypes:   byType,
		Problems:   m.problems,
		Issues:     m.issues,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration   time.Duration    `json:"duration"`
	Bytes      int64            `json:"bytes"`
	TotalBytes int64            `json:"totalBytes"`
	Boxes      int64            `json:"boxes"`
	MaxDepth   int              `json:"maxDepth"`
	BoxTypes   map[string]int64 `json:"boxTypes,omitempty"`
	Problems   int64            `json:"problems"`
	Issues     int64            `json:"issues"`
}

// TopBoxTypes returns up to n box types ordered by descending count, ties
// broken by name.
func (s MetricsSnapshot) TopBoxTypes(n int) []BoxTypeCount {
	out := make([]BoxTypeCount, 0, len(s.BoxTypes))
	for t, c := range s.BoxTypes {
		out = append(out, BoxTypeCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

type BoxTypeCount struct {
	Type  string
	Count int64
}

func (s MetricsSnapshot) ThroughputBytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Duration.Seconds()
}

func (s MetricsSnapshot) Completion() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	ratio := float64(s.Bytes) / float64(s.TotalBytes)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

func formatProgressLine(s MetricsSnapshot) string {
	if s.TotalBytes > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("Scanned: %6.2f%% (%s / %s) %d boxes, %d issues", pct, FormatBytes(s.Bytes), FormatBytes(s.TotalBytes), s.Boxes, s.Issues)
	}
	return fmt.Sprintf("Scanned: %s %d boxes, %d issues", FormatBytes(s.Bytes), s.Boxes, s.Issues)
}

// StartProgressPrinter redraws a single progress line on w until the returned
// stop function is called.
func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
