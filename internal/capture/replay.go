package capture

import (
	"fmt"
	"slices"

	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/rules"
)

// replayable lists the rules whose outcome depends only on box framing and
// catalog metadata. Everything else needs payload bytes or decoded details,
// which a capture does not carry.
var replayable = map[string]bool{
	rules.IDContainerBoundary: true,
	rules.IDFileTypeOrdering:  true,
	rules.IDMovieDataOrdering: true,
	rules.IDUnknownBox:        true,
	rules.IDTopLevelAdvisory:  true,
}

// Replayable reports whether replaying a capture reproduces ruleID.
func Replayable(ruleID string) bool {
	return replayable[ruleID]
}

// Mismatch is an event whose replayed issues differ from the recorded ones.
type Mismatch struct {
	Event    int           `json:"event"`
	Box      string        `json:"box"`
	Recorded []rules.Issue `json:"recorded"`
	Replayed []rules.Issue `json:"replayed"`
}

type ReplayResult struct {
	Result     *rules.Result
	Mismatches []Mismatch
}

// Replay feeds the captured stream through a fresh default engine without
// file access. Recorded issues of replayable rules are compared per event.
func Replay(doc *Document) (*ReplayResult, error) {
	events, err := doc.StreamEvents()
	if err != nil {
		return nil, err
	}
	engine := rules.NewDefaultEngine(rules.RuleSetOptions{})
	out := &ReplayResult{Result: &rules.Result{}}
	for i, ev := range events {
		issues := engine.Issues(ev, nil)
		if ev.Kind == bmff.EnterBox {
			out.Result.Boxes++
		}
		for _, is := range issues {
			out.Result.Findings = append(out.Result.Findings, rules.Finding{
				Issue:  is,
				Header: ev.Header,
				Box:    ev.Header.Identifier(),
				Start:  ev.Header.Start,
				End:    ev.Header.End,
				Depth:  ev.Depth,
			})
		}
		recorded := replayableIssues(doc.Events[i].ValidationIssues)
		replayed := replayableIssues(issues)
		if !slices.Equal(recorded, replayed) {
			out.Mismatches = append(out.Mismatches, Mismatch{
				Event:    i,
				Box:      ev.Header.Identifier(),
				Recorded: recorded,
				Replayed: replayed,
			})
		}
	}
	for _, is := range engine.Finish() {
		out.Result.Findings = append(out.Result.Findings, rules.Finding{Issue: is, Depth: -1})
	}
	return out, nil
}

func replayableIssues(issues []rules.Issue) []rules.Issue {
	out := []rules.Issue{}
	for _, is := range issues {
		if replayable[is.RuleID] {
			out = append(out, is)
		}
	}
	return out
}

func (m Mismatch) String() string {
	return fmt.Sprintf("event %d (%s): recorded %d issues, replayed %d", m.Event, m.Box, len(m.Recorded), len(m.Replayed))
}
