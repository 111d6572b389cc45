// Package report turns validation results into durable artifacts: a JSON
// report, an NDJSON issue stream and a localized PDF.
package report

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"example.com/bmffgate/internal/rules"
	"example.com/bmffgate/internal/tree"
)

// RuleResult is one row of the rule matrix.
type RuleResult struct {
	RuleID   string         `json:"ruleId"`
	Name     string         `json:"name"`
	Severity rules.Severity `json:"severity"`
	Enabled  bool           `json:"enabled"`
	Findings int            `json:"findings"`
	Pass     bool           `json:"pass"`
}

type Report struct {
	RunID       uuid.UUID       `json:"runId"`
	File        string          `json:"file"`
	SHA256      string          `json:"sha256,omitempty"`
	Size        int64           `json:"size"`
	Preset      string          `json:"preset,omitempty"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Boxes       int             `json:"boxes"`
	Summary     tree.Summary    `json:"summary"`
	Rules       []RuleResult    `json:"rules"`
	Issues      []rules.Finding `json:"issues"`
}

type Options struct {
	File   string
	SHA256 string
	Size   int64
	Preset string
	// Enabled filters findings by rule; nil keeps every rule.
	Enabled func(ruleID string) bool
	Now     func() time.Time
}

// New builds a report from res. Findings of disabled rules are dropped and
// the rule marked disabled in the matrix.
func New(res *rules.Result, opts Options) *Report {
	enabled := opts.Enabled
	if enabled == nil {
		enabled = func(string) bool { return true }
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	filtered := res.Filter(enabled)
	rep := &Report{
		RunID:       uuid.New(),
		File:        opts.File,
		SHA256:      opts.SHA256,
		Size:        opts.Size,
		Preset:      opts.Preset,
		GeneratedAt: now().UTC(),
		Boxes:       res.Boxes,
		Summary:     tree.FromResult(filtered).Summary(),
		Issues:      filtered.Findings,
	}
	if rep.Issues == nil {
		rep.Issues = []rules.Finding{}
	}
	counts := map[string]int{}
	failed := map[string]bool{}
	for _, f := range filtered.Findings {
		counts[f.RuleID]++
		if f.Severity == rules.ERROR {
			failed[f.RuleID] = true
		}
	}
	for _, info := range rules.Catalog() {
		rep.Rules = append(rep.Rules, RuleResult{
			RuleID:   info.ID,
			Name:     info.Name,
			Severity: info.DefaultSeverity,
			Enabled:  enabled(info.ID),
			Findings: counts[info.ID],
			Pass:     !failed[info.ID],
		})
	}
	return rep
}

func SaveJSON(rep *Report, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (*Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// StreamWriter emits one JSON object per line: an "issue" line per finding
// and a closing "summary" line.
type StreamWriter struct {
	enc *json.Encoder
}

func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{enc: json.NewEncoder(w)}
}

type issueLine struct {
	Type string `json:"type"`
	rules.Finding
}

type summaryLine struct {
	Type  string `json:"type"`
	File  string `json:"file,omitempty"`
	Boxes int    `json:"boxes"`
	tree.Summary
}

func (s *StreamWriter) Issue(f rules.Finding) error {
	return s.enc.Encode(issueLine{Type: "issue", Finding: f})
}

func (s *StreamWriter) Summary(file string, boxes int, sum tree.Summary) error {
	return s.enc.Encode(summaryLine{Type: "summary", File: file, Boxes: boxes, Summary: sum})
}

// Error writes an "error" line.
func (s *StreamWriter) Error(err error) error {
	return s.enc.Encode(struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{"error", err.Error()})
}

// Object writes v as one line.
func (s *StreamWriter) Object(v any) error {
	return s.enc.Encode(v)
}

// WriteNDJSON streams every issue of rep followed by its summary.
func WriteNDJSON(w io.Writer, rep *Report) error {
	sw := NewStreamWriter(w)
	for _, f := range rep.Issues {
		if err := sw.Issue(f); err != nil {
			return err
		}
	}
	return sw.Summary(rep.File, rep.Boxes, rep.Summary)
}
