package tree

import (
	"strconv"
	"strings"

	"example.com/bmffgate/internal/rules"
)

// Record is one issue at the byte range and nodes it affects.
type Record struct {
	Issue rules.Issue `json:"issue"`
	Start int64       `json:"start"`
	End   int64       `json:"end"`
	Depth int         `json:"depth"`
	Nodes []string    `json:"nodes"`
}

func (r Record) key() string {
	var sb strings.Builder
	sb.WriteString(string(r.Issue.Severity))
	sb.WriteByte(0)
	sb.WriteString(r.Issue.RuleID)
	sb.WriteByte(0)
	sb.WriteString(r.Issue.Message)
	sb.WriteByte(0)
	sb.WriteString(strconv.FormatInt(r.Start, 10))
	sb.WriteByte('-')
	sb.WriteString(strconv.FormatInt(r.End, 10))
	for _, n := range r.Nodes {
		sb.WriteByte(0)
		sb.WriteString(n)
	}
	return sb.String()
}

// Store collects issue records in arrival order.
type Store struct {
	records []Record
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Add(issue rules.Issue, start, end int64, depth int, nodes ...string) {
	s.records = append(s.records, Record{Issue: issue, Start: start, End: end, Depth: depth, Nodes: nodes})
}

func (s *Store) Records() []Record {
	return s.records
}

// Filter returns a store holding only records whose rule is enabled.
func (s *Store) Filter(enabled func(ruleID string) bool) *Store {
	out := NewStore()
	for _, r := range s.records {
		if enabled(r.Issue.RuleID) {
			out.records = append(out.records, r)
		}
	}
	return out
}

// Summary aggregates deduplicated records.
type Summary struct {
	Total        int  `json:"total"`
	Unique       int  `json:"unique"`
	Errors       int  `json:"errors"`
	Warnings     int  `json:"warnings"`
	Info         int  `json:"info"`
	DeepestDepth int  `json:"deepestDepth"`
	Pass         bool `json:"pass"`
}

// Summary counts records per severity after collapsing identical issues
// (same severity, rule, message, byte range and nodes). DeepestDepth is the
// deepest depth at which any of them was seen, or -1 without records.
func (s *Store) Summary() Summary {
	sum := Summary{Total: len(s.records), DeepestDepth: -1}
	seen := make(map[string]struct{}, len(s.records))
	for _, r := range s.records {
		if r.Depth > sum.DeepestDepth {
			sum.DeepestDepth = r.Depth
		}
		k := r.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		sum.Unique++
		switch r.Issue.Severity {
		case rules.ERROR:
			sum.Errors++
		case rules.WARN:
			sum.Warnings++
		default:
			sum.Info++
		}
	}
	sum.Pass = sum.Errors == 0
	return sum
}

// FromResult records every finding of res, naming the box that raised it.
func FromResult(res *rules.Result) *Store {
	s := NewStore()
	for _, f := range res.Findings {
		if f.Box != "" {
			s.Add(f.Issue, f.Start, f.End, f.Depth, f.Box)
		} else {
			s.Add(f.Issue, f.Start, f.End, f.Depth)
		}
	}
	return s
}
