package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ResearchEntry records one unrecognized box seen during validation.
type ResearchEntry struct {
	BoxType  string    `json:"boxType"`
	FilePath string    `json:"filePath,omitempty"`
	Start    int64     `json:"start"`
	End      int64     `json:"end"`
	Ts       time.Time `json:"ts"`
}

// ResearchLog appends entries to a JSONL file. Appends are serialized within
// the process by a mutex and across processes by a sibling .lock file.
type ResearchLog struct {
	path string
	mu   sync.Mutex
}

func NewResearchLog(path string) *ResearchLog {
	return &ResearchLog{path: path}
}

// DefaultResearchLogPath is ~/.bmffgate/research-log.jsonl.
func DefaultResearchLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bmffgate", "research-log.jsonl"), nil
}

func (l *ResearchLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *ResearchLog) Append(entry ResearchEntry) error {
	if l == nil {
		return errors.New("nil research log")
	}
	if entry.BoxType == "" {
		return errors.New("research entry missing boxType")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lock := flock.New(l.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock research log: %w", err)
	}
	defer lock.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadResearchLog loads every entry from a JSONL research log.
func ReadResearchLog(path string) ([]ResearchEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []ResearchEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry ResearchEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode research entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// SummarizeResearch counts entries per box type.
func SummarizeResearch(entries []ResearchEntry) map[string]int {
	out := make(map[string]int)
	for _, e := range entries {
		out[e.BoxType]++
	}
	return out
}
