package rules

import (
	"fmt"
	"slices"

	"example.com/bmffgate/internal/bmff"
)

type tableKind uint8

const (
	kindSampleToChunk tableKind = iota + 1
	kindSampleSize
	kindChunkOffsets
	kindTimeToSample
	kindCompositionOffset
)

type sampleTables struct {
	trackID *uint32

	stscID     string
	stsc       []bmff.SampleToChunkEntry
	stscCapped bool
	hasStsc    bool

	stszID      string
	sampleCount uint64
	hasStsz     bool

	stcoID  string
	chunks  uint64
	hasStco bool

	sttsID    string
	sttsTotal uint64
	hasStts   bool

	cttsID    string
	cttsTotal uint64
	hasCtts   bool
}

func (t *sampleTables) label() string {
	if t.trackID != nil {
		return fmt.Sprintf("Track %d", *t.trackID)
	}
	return "Track"
}

// SampleTableRule cross-checks the sample tables of each track: chunk
// coverage, expanded sample counts, timing table totals and chunk offset
// ordering. Every arrival of a table re-evaluates it against the siblings
// already known.
type SampleTableRule struct {
	tracks depthStack[*sampleTables]
}

func (s *SampleTableRule) Issues(ev bmff.Event, _ bmff.Reader) []Issue {
	if ev.Kind == bmff.ExitBox {
		if ev.Header.Type == bmff.TypeTrak {
			s.tracks.trim(ev.Depth)
		}
		return nil
	}
	s.tracks.trim(ev.Depth)
	if ev.Header.Type == bmff.TypeTrak {
		s.tracks.push(ev.Depth, &sampleTables{})
		return nil
	}
	top := s.tracks.top()
	if top == nil || ev.Detail == nil {
		return nil
	}
	t := *top
	id := ev.Header.Identifier()
	switch d := ev.Detail.(type) {
	case *bmff.TrackHeader:
		trackID := d.TrackID
		t.trackID = &trackID
	case *bmff.SampleToChunk:
		t.stscID, t.stsc, t.hasStsc = id, d.Entries, true
		t.stscCapped = d.Capped(len(d.Entries))
		return s.evaluate(t, kindSampleToChunk)
	case *bmff.SampleSize:
		t.stszID, t.sampleCount, t.hasStsz = id, uint64(d.SampleCount), true
		return s.evaluate(t, kindSampleSize)
	case *bmff.CompactSampleSize:
		t.stszID, t.sampleCount, t.hasStsz = id, uint64(d.SampleCount), true
		return s.evaluate(t, kindSampleSize)
	case *bmff.ChunkOffset:
		t.stcoID, t.chunks, t.hasStco = id, uint64(d.Rows), true
		out := chunkOrderingIssues(t, id, d.Disorder)
		return append(out, s.evaluate(t, kindChunkOffsets)...)
	case *bmff.TimeToSample:
		t.sttsID, t.sttsTotal, t.hasStts = id, d.SampleTotal, true
		return s.evaluate(t, kindTimeToSample)
	case *bmff.CompositionOffset:
		t.cttsID, t.cttsTotal, t.hasCtts = id, d.SampleTotal, true
		return s.evaluate(t, kindCompositionOffset)
	}
	return nil
}

func (s *SampleTableRule) evaluate(t *sampleTables, trigger tableKind) []Issue {
	var out []Issue
	switch trigger {
	case kindSampleToChunk, kindSampleSize, kindChunkOffsets:
		out = append(out, chunkCorrelationIssues(t)...)
	}
	return append(out, countIssues(t, trigger)...)
}

// chunkCorrelationIssues expands the sample-to-chunk runs over the chunk
// offset table. A capped stsc cannot be expanded and is left unchecked.
func chunkCorrelationIssues(t *sampleTables) []Issue {
	if !t.hasStsc || !t.hasStsz || !t.hasStco || t.stscCapped {
		return nil
	}
	label := t.label()
	chunkCount := t.chunks
	if chunkCount == 0 {
		if t.sampleCount > 0 {
			return []Issue{newIssue(IDSampleTable, ERROR,
				"%s chunk offset table %s declares 0 chunks but sample size table %s declares %d samples.",
				label, t.stcoID, t.stszID, t.sampleCount)}
		}
		return nil
	}
	if len(t.stsc) == 0 {
		if t.sampleCount > 0 {
			return []Issue{newIssue(IDSampleTable, ERROR,
				"%s sample-to-chunk table %s contains no entries but chunk offset table %s defines %d chunks.",
				label, t.stscID, t.stcoID, chunkCount)}
		}
		return nil
	}

	runs := slices.Clone(t.stsc)
	slices.SortStableFunc(runs, func(a, b bmff.SampleToChunkEntry) int {
		switch {
		case a.FirstChunk < b.FirstChunk:
			return -1
		case a.FirstChunk > b.FirstChunk:
			return 1
		}
		return 0
	})

	var out []Issue
	var coverage, total uint64
	for i, run := range runs {
		start := uint64(run.FirstChunk)
		if start < 1 {
			out = append(out, newIssue(IDSampleTable, ERROR,
				"%s sample-to-chunk table %s has entry %d with invalid first_chunk %d.",
				label, t.stscID, i+1, run.FirstChunk))
			continue
		}
		if start > chunkCount {
			out = append(out, newIssue(IDSampleTable, ERROR,
				"%s sample-to-chunk table %s references chunk %d but chunk offset table %s only defines %d chunks.",
				label, t.stscID, run.FirstChunk, t.stcoID, chunkCount))
			continue
		}
		nextStart := chunkCount + 1
		if i+1 < len(runs) {
			next := uint64(runs[i+1].FirstChunk)
			if next <= start {
				out = append(out, newIssue(IDSampleTable, ERROR,
					"%s sample-to-chunk table %s has non-monotonic first_chunk values at entries %d and %d.",
					label, t.stscID, i+1, i+2))
			}
			nextStart = next
		}
		runEnd := min(nextStart, chunkCount+1)
		if runEnd <= start {
			continue
		}
		length := runEnd - start
		coverage += length
		total = addSaturating(total, mulSaturating(length, uint64(run.SamplesPerChunk)))
	}
	if coverage < chunkCount {
		out = append(out, newIssue(IDSampleTable, ERROR,
			"%s sample-to-chunk table %s only covers %d of %d chunks declared by %s (missing %d).",
			label, t.stscID, coverage, chunkCount, t.stcoID, chunkCount-coverage))
	}
	if total != t.sampleCount {
		out = append(out, newIssue(IDSampleTable, ERROR,
			"%s sample size table %s declares %d samples but sample-to-chunk table %s expands to %d samples across %d chunks.",
			label, t.stszID, t.sampleCount, t.stscID, total, chunkCount))
	}
	return out
}

func countIssues(t *sampleTables, trigger tableKind) []Issue {
	var out []Issue
	label := t.label()
	if (trigger == kindSampleSize || trigger == kindTimeToSample) && t.hasStsz && t.hasStts &&
		t.sttsTotal != t.sampleCount {
		out = append(out, newIssue(IDSampleTable, ERROR,
			"%s time-to-sample table %s sums to %d samples but sample size table %s declares %d samples.",
			label, t.sttsID, t.sttsTotal, t.stszID, t.sampleCount))
	}
	if (trigger == kindSampleSize || trigger == kindCompositionOffset) && t.hasStsz && t.hasCtts &&
		t.cttsTotal != t.sampleCount {
		out = append(out, newIssue(IDSampleTable, ERROR,
			"%s composition offset table %s sums to %d samples but sample size table %s declares %d samples.",
			label, t.cttsID, t.cttsTotal, t.stszID, t.sampleCount))
	}
	if (trigger == kindTimeToSample || trigger == kindCompositionOffset) && t.hasStts && t.hasCtts &&
		t.sttsTotal != t.cttsTotal {
		out = append(out, newIssue(IDSampleTable, ERROR,
			"%s time-to-sample table %s sums to %d samples but composition offset table %s covers %d samples.",
			label, t.sttsID, t.sttsTotal, t.cttsID, t.cttsTotal))
	}
	return out
}

// chunkOrderingIssues reports the first pair of chunk offsets that does not
// strictly increase.
func chunkOrderingIssues(t *sampleTables, id string, disorder *[2]bmff.ChunkOffsetEntry) []Issue {
	if disorder == nil {
		return nil
	}
	prev, cur := disorder[0], disorder[1]
	return []Issue{newIssue(IDSampleTable, ERROR,
		"%s chunk offset table %s has non-monotonic offsets at entries %d and %d (%d then %d).",
		t.label(), id, prev.Index, cur.Index, prev.Offset, cur.Offset)}
}
