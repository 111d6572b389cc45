package rules

import (
	"context"
	"time"

	"go.uber.org/zap"

	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/common"
)

// Observer sees every event together with the issues the engine raised for
// it, in stream order.
type Observer interface {
	Observe(ev bmff.Event, issues []Issue)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev bmff.Event, issues []Issue)

func (f ObserverFunc) Observe(ev bmff.Event, issues []Issue) { f(ev, issues) }

type RunOptions struct {
	FilePath string
	Recorder ResearchRecorder
	Metrics  *common.Metrics
	Logger   *zap.Logger
	Observer Observer
	MaxDepth int
}

// Finding is an issue located at the box that produced it. Issues raised at
// end of stream carry a zero Header and a Depth of -1.
type Finding struct {
	Issue
	Header bmff.BoxHeader `json:"-" msgpack:"-"`
	Box    string         `json:"box,omitempty" msgpack:"box,omitempty"`
	Start  int64          `json:"start" msgpack:"start"`
	End    int64          `json:"end" msgpack:"end"`
	Depth  int            `json:"depth" msgpack:"depth"`
}

func newFinding(issue Issue, h bmff.BoxHeader, depth int) Finding {
	f := Finding{Issue: issue, Header: h, Start: h.Start, End: h.End, Depth: depth}
	if h.Type != 0 {
		f.Box = h.Identifier()
	}
	return f
}

type Result struct {
	Findings []Finding
	Problems []bmff.Problem
	Boxes    int
	Duration time.Duration
}

// Failed reports whether any finding has error severity.
func (r *Result) Failed() bool {
	for _, f := range r.Findings {
		if f.Severity == ERROR {
			return true
		}
	}
	return false
}

// Counts tallies findings per severity.
func (r *Result) Counts() map[Severity]int {
	out := map[Severity]int{ERROR: 0, WARN: 0, INFO: 0}
	for _, f := range r.Findings {
		out[f.Severity]++
	}
	return out
}

// Filter returns a copy of r keeping only findings whose rule is enabled.
func (r *Result) Filter(enabled func(ruleID string) bool) *Result {
	out := *r
	out.Findings = nil
	for _, f := range r.Findings {
		if enabled(f.RuleID) {
			out.Findings = append(out.Findings, f)
		}
	}
	return &out
}

// Validate walks the file behind r through a fresh default engine. Malformed
// input never produces an error; only cancellation or observer failure does.
func Validate(ctx context.Context, r bmff.Reader, opts RunOptions) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("file", opts.FilePath))
	engine := NewDefaultEngine(RuleSetOptions{FilePath: opts.FilePath, Recorder: opts.Recorder})

	walkOpts := []bmff.Option{bmff.WithMetrics(opts.Metrics)}
	if opts.MaxDepth > 0 {
		walkOpts = append(walkOpts, bmff.WithMaxDepth(opts.MaxDepth))
	}
	walker := bmff.NewWalker(r, walkOpts...)

	res := &Result{}
	began := time.Now()
	log.Debug("validation started", zap.Int64("size", r.Size()))
	err := walker.Walk(ctx, func(ev bmff.Event) error {
		if ev.Kind == bmff.EnterBox {
			res.Boxes++
		}
		issues := engine.Issues(ev, r)
		if opts.Metrics != nil {
			opts.Metrics.AddIssues(len(issues))
		}
		for _, is := range issues {
			res.Findings = append(res.Findings, newFinding(is, ev.Header, ev.Depth))
		}
		if opts.Observer != nil {
			opts.Observer.Observe(ev, issues)
		}
		return nil
	})
	if err != nil {
		log.Warn("validation aborted", zap.Error(err))
		return nil, err
	}
	final := engine.Finish()
	for _, is := range final {
		res.Findings = append(res.Findings, newFinding(is, bmff.BoxHeader{}, -1))
	}
	res.Problems = walker.Problems()
	for _, p := range res.Problems {
		is := Issue{RuleID: IDParse, Message: p.Message, Severity: ERROR}
		res.Findings = append(res.Findings, Finding{Issue: is, Start: p.Offset, End: p.Offset, Depth: p.Depth})
	}
	if opts.Metrics != nil {
		opts.Metrics.AddIssues(len(final) + len(res.Problems))
	}
	res.Duration = time.Since(began)

	counts := res.Counts()
	log.Info("validation finished",
		zap.Int("boxes", res.Boxes),
		zap.Int("errors", counts[ERROR]),
		zap.Int("warnings", counts[WARN]),
		zap.Int("info", counts[INFO]),
		zap.Int("problems", len(res.Problems)),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}

// ValidateFile opens path and validates it.
func ValidateFile(ctx context.Context, path string, opts RunOptions) (*Result, error) {
	fr, err := bmff.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()
	if opts.FilePath == "" {
		opts.FilePath = path
	}
	return Validate(ctx, fr, opts)
}

type researchLogRecorder struct {
	log *common.ResearchLog
}

func (r researchLogRecorder) Record(e ResearchEntry) error {
	return r.log.Append(common.ResearchEntry{BoxType: e.BoxType, FilePath: e.FilePath, Start: e.Start, End: e.End})
}

// ResearchLogRecorder persists unknown box sightings into l.
func ResearchLogRecorder(l *common.ResearchLog) ResearchRecorder {
	return researchLogRecorder{log: l}
}
