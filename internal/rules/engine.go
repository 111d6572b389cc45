package rules

import (
	"sync/atomic"

	"example.com/bmffgate/internal/bmff"
)

// RuleSetOptions configures the default rule set.
type RuleSetOptions struct {
	FilePath string
	Recorder ResearchRecorder
}

// DefaultRules returns a fresh instance of every rule in registration order.
// Stateful rules must not be reused across files.
func DefaultRules(opts RuleSetOptions) []Rule {
	return []Rule{
		BoxSizeRule{},
		&ContainerBoundaryRule{},
		&FileTypeOrderingRule{},
		&MovieDataOrderingRule{},
		&TopLevelOrderingRule{},
		VersionFlagsRule{},
		&EditListRule{},
		&SampleTableRule{},
		&CodecConfigurationRule{},
		&FragmentSequenceRule{},
		FragmentRunRule{},
		UnknownBoxRule{FilePath: opts.FilePath, Recorder: opts.Recorder},
	}
}

// noCopy makes go vet flag copies of the owning struct.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Engine dispatches every event to every rule and concatenates their issues
// in registration order. An Engine validates exactly one event stream; it
// panics when used from two goroutines at once or fed after Finish.
type Engine struct {
	_ noCopy

	rules    []Rule
	busy     atomic.Bool
	finished atomic.Bool
	events   int
}

// NewEngine wraps rules. Without rules it uses DefaultRules with zero options.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules(RuleSetOptions{})
	}
	return &Engine{rules: rules}
}

// NewDefaultEngine returns an engine over a fresh default rule set.
func NewDefaultEngine(opts RuleSetOptions) *Engine {
	return &Engine{rules: DefaultRules(opts)}
}

func (e *Engine) acquire() {
	if !e.busy.CompareAndSwap(false, true) {
		panic("rules: engine used concurrently")
	}
}

func (e *Engine) release() {
	e.busy.Store(false)
}

// Issues forwards ev to every rule.
func (e *Engine) Issues(ev bmff.Event, r bmff.Reader) []Issue {
	e.acquire()
	defer e.release()
	if e.finished.Load() {
		panic("rules: engine fed after Finish")
	}
	e.events++
	var out []Issue
	for _, rule := range e.rules {
		out = append(out, rule.Issues(ev, r)...)
	}
	return out
}

// Finish collects end-of-stream issues from rules implementing Finisher.
// Only the first call reports anything.
func (e *Engine) Finish() []Issue {
	e.acquire()
	defer e.release()
	if e.finished.Swap(true) {
		return nil
	}
	var out []Issue
	for _, rule := range e.rules {
		if f, ok := rule.(Finisher); ok {
			out = append(out, f.Finish()...)
		}
	}
	return out
}

// Events reports how many events the engine has dispatched.
func (e *Engine) Events() int {
	return e.events
}
