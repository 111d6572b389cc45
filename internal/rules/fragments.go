package rules

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"example.com/bmffgate/internal/bmff"
)

// FragmentSequenceRule requires movie fragment sequence numbers to start
// above zero and to strictly increase. Gaps are allowed.
type FragmentSequenceRule struct {
	last       uint32
	lastHeader bmff.BoxHeader
	seen       bool
}

func (f *FragmentSequenceRule) Issues(ev bmff.Event, _ bmff.Reader) []Issue {
	if ev.Kind != bmff.EnterBox || ev.Header.Type != bmff.TypeMfhd {
		return nil
	}
	mfhd, ok := ev.Detail.(*bmff.MovieFragmentHeader)
	if !ok {
		return nil
	}
	var out []Issue
	id := ev.Header.Identifier()
	if mfhd.SequenceNumber == 0 {
		out = append(out, newIssue(IDFragmentSequence, WARN,
			"%s sequence number is zero; fragments should start at 1.", id))
	}
	if f.seen && mfhd.SequenceNumber <= f.last {
		out = append(out, newIssue(IDFragmentSequence, WARN,
			"%s has non-monotonic sequence number %d (previous %s used %d).",
			id, mfhd.SequenceNumber, f.lastHeader.Identifier(), f.last))
	}
	f.last, f.lastHeader, f.seen = mfhd.SequenceNumber, ev.Header, true
	return out
}

// FragmentRunRule requires every track run to carry samples and every
// sample to resolve a duration.
type FragmentRunRule struct{}

func (FragmentRunRule) Issues(ev bmff.Event, _ bmff.Reader) []Issue {
	if ev.Kind != bmff.EnterBox || ev.Header.Type != bmff.TypeTrun {
		return nil
	}
	run, ok := ev.Detail.(*bmff.TrackRun)
	if !ok {
		return nil
	}
	var out []Issue
	context := runContext(run)
	if run.SampleCount == 0 {
		out = append(out, newIssue(IDFragmentRun, ERROR,
			"Track fragment run%s declares 0 samples; ensure track run entries are present.", context))
	}
	var missing []string
	for _, e := range run.Entries {
		if e.Duration == nil {
			missing = append(missing, strconv.FormatUint(uint64(e.Index), 10))
		}
	}
	if len(missing) > 0 {
		out = append(out, newIssue(IDFragmentRun, ERROR,
			"Track fragment run%s is missing sample durations for entries [%s]; cannot advance decode timeline.",
			context, strings.Join(missing, ", ")))
	}
	return out
}

func runContext(run *bmff.TrackRun) string {
	var parts []string
	if run.TrackID != nil {
		parts = append(parts, fmt.Sprintf("track %d", *run.TrackID))
	}
	if run.RunIndex != nil {
		parts = append(parts, fmt.Sprintf("run #%d", *run.RunIndex))
	}
	if run.FirstSample != nil {
		first := *run.FirstSample
		switch {
		case run.SampleCount == 0:
			parts = append(parts, fmt.Sprintf("first sample %d", first))
		case run.SampleCount == 1:
			parts = append(parts, fmt.Sprintf("sample %d", first))
		default:
			last, carry := bits.Add64(first, uint64(run.SampleCount)-1, 0)
			if carry != 0 {
				parts = append(parts, fmt.Sprintf("sample range starting at %d", first))
			} else {
				parts = append(parts, fmt.Sprintf("samples %d-%d", first, last))
			}
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " for " + strings.Join(parts, ", ")
}
