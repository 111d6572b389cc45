package rules

import "example.com/bmffgate/internal/bmff"

// Rule observes the event stream and reports violations of one invariant
// family. Implementations must return for every event and never panic on
// malformed input; reader failures become issues.
type Rule interface {
	Issues(ev bmff.Event, r bmff.Reader) []Issue
}

// Finisher is implemented by rules that can only judge once the stream has
// ended, such as containers that were opened but never closed.
type Finisher interface {
	Finish() []Issue
}
